package judge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeCompleter struct {
	content string
	err     error
	calls   int
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.content, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestValidateBatch(t *testing.T) {
	completer := &fakeCompleter{
		content: `{"verdicts": [
			{"position": 1, "valid": true, "rationale": "exact match"},
			{"position": 2, "valid": false, "rationale": "live album, not the studio release"}
		]}`,
	}
	j := New(completer, testLogger())

	verdicts, err := j.ValidateBatch(context.Background(), []Candidate{
		{Position: 1, EntryTitle: "The Wall", MatchTitle: "The Wall"},
		{Position: 2, EntryTitle: "The Wall", MatchTitle: "The Wall Live"},
	})
	if err != nil {
		t.Fatalf("ValidateBatch: %v", err)
	}
	if len(verdicts) != 2 {
		t.Fatalf("got %d verdicts, want 2", len(verdicts))
	}
	if !verdicts[0].Valid || verdicts[1].Valid {
		t.Errorf("verdicts wrong: %+v", verdicts)
	}
	if completer.calls != 1 {
		t.Errorf("expected a single batched call, got %d", completer.calls)
	}
}

func TestValidateBatchEmpty(t *testing.T) {
	completer := &fakeCompleter{}
	j := New(completer, testLogger())

	verdicts, err := j.ValidateBatch(context.Background(), nil)
	if err != nil || verdicts != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", verdicts, err)
	}
	if completer.calls != 0 {
		t.Error("empty batch must not call the model")
	}
}

func TestValidateBatchCallFailure(t *testing.T) {
	j := New(&fakeCompleter{err: errors.New("rate limited")}, testLogger())

	_, err := j.ValidateBatch(context.Background(), []Candidate{{Position: 1}})
	if err == nil {
		t.Fatal("expected error when the model call fails")
	}
}

func TestValidateBatchMissingVerdict(t *testing.T) {
	completer := &fakeCompleter{
		content: `{"verdicts": [{"position": 1, "valid": true, "rationale": "ok"}]}`,
	}
	j := New(completer, testLogger())

	_, err := j.ValidateBatch(context.Background(), []Candidate{
		{Position: 1}, {Position: 2},
	})
	if err == nil || !strings.Contains(err.Error(), "missing verdicts") {
		t.Fatalf("expected missing-verdict error, got %v", err)
	}
}

func TestValidateBatchMalformedOutput(t *testing.T) {
	j := New(&fakeCompleter{content: "I think these all look fine!"}, testLogger())

	_, err := j.ValidateBatch(context.Background(), []Candidate{{Position: 1}})
	if err == nil {
		t.Fatal("expected error for non-JSON output")
	}
}

func TestDecodeJSONStripsFences(t *testing.T) {
	var out struct {
		OK bool `json:"ok"`
	}
	fenced := "```json\n{\"ok\": true}\n```"
	if err := DecodeJSON(fenced, &out); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if !out.OK {
		t.Error("expected ok=true")
	}
}

func TestClientCompleteJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "{\"verdicts\": []}"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gpt-4o-mini", 5*time.Second, testLogger())
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if content != `{"verdicts": []}` {
		t.Errorf("content = %q", content)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "{}"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "gpt-4o-mini", 5*time.Second, testLogger())
	if _, err := client.CompleteJSON(context.Background(), "s", "u"); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestClientDoesNotRetryBadRequest(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad model"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "nope", 5*time.Second, testLogger())
	if _, err := client.CompleteJSON(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls)
	}
}
