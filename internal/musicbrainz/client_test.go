package musicbrainz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSearchReleaseGroups(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/release-group" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("fmt") != "json" {
			t.Error("missing fmt=json")
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"count": 1,
			"release-groups": [{
				"id": "f5093c06-23e3-404f-aeaa-40f72885ee3a",
				"title": "The Wall",
				"primary-type": "Album",
				"first-release-date": "1979-11-30",
				"artist-credit": [{
					"name": "Pink Floyd",
					"artist": {"id": "83d91898-7763-47d7-b03b-b92132375c47", "name": "Pink Floyd"}
				}]
			}]
		}`))
	}))
	defer server.Close()

	client := NewWithBaseURL(100, testLogger(), server.URL)
	results, err := client.SearchReleaseGroups(context.Background(), "Pink Floyd", "The Wall")
	if err != nil {
		t.Fatalf("SearchReleaseGroups: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	rg := results[0]
	if rg.MBID != "f5093c06-23e3-404f-aeaa-40f72885ee3a" {
		t.Errorf("MBID = %q", rg.MBID)
	}
	if rg.ReleaseYear != 1979 {
		t.Errorf("ReleaseYear = %d, want 1979", rg.ReleaseYear)
	}
	if len(rg.ArtistCredits) != 1 || rg.ArtistCredits[0].Name != "Pink Floyd" {
		t.Errorf("ArtistCredits = %+v", rg.ArtistCredits)
	}
}

func TestGetReleaseGroup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/release-group/abc" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("inc") != "artist-credits" {
			t.Error("missing inc=artist-credits")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "abc",
			"title": "OK Computer",
			"primary-type": "Album",
			"first-release-date": "1997-05-21",
			"artist-credit": [{"name": "Radiohead", "artist": {"id": "rh-1", "name": "Radiohead"}}]
		}`))
	}))
	defer server.Close()

	client := NewWithBaseURL(100, testLogger(), server.URL)
	rg, err := client.GetReleaseGroup(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetReleaseGroup: %v", err)
	}
	if rg.Title != "OK Computer" || rg.ReleaseYear != 1997 {
		t.Errorf("got %+v", rg)
	}
	if len(rg.ArtistCredits) != 1 || rg.ArtistCredits[0].MBID != "rh-1" {
		t.Errorf("ArtistCredits = %+v", rg.ArtistCredits)
	}
}

func TestGetReleaseGroupNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewWithBaseURL(100, testLogger(), server.URL)
	_, err := client.GetReleaseGroup(context.Background(), "nope")
	var notFound *ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewWithBaseURL(100, testLogger(), server.URL)
	_, err := client.SearchReleaseGroups(context.Background(), "a", "b")
	var unavailable *ErrUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if unavailable.RetryAfter <= 0 {
		t.Error("expected positive RetryAfter on 503")
	}
}

func TestParseYear(t *testing.T) {
	cases := map[string]int{
		"1979-11-30": 1979,
		"1997":       1997,
		"":           0,
		"19":         0,
		"abcd-01-01": 0,
	}
	for input, want := range cases {
		if got := parseYear(input); got != want {
			t.Errorf("parseYear(%q) = %d, want %d", input, got, want)
		}
	}
}
