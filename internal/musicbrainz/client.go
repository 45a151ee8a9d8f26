// Package musicbrainz is the external registry client used to resolve and
// import release groups and artists.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ssherman/greatlist/internal/version"
)

const defaultBaseURL = "https://musicbrainz.org/ws/2"

// ErrUnavailable indicates a transient failure (rate-limited, timeout, server error).
type ErrUnavailable struct {
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("musicbrainz unavailable: %v", e.Cause)
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// ErrNotFound indicates the registry has no record for the requested ID.
type ErrNotFound struct {
	MBID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("musicbrainz: %s not found", e.MBID)
}

// ReleaseGroup is a registry release group with its credited artists.
type ReleaseGroup struct {
	MBID          string         `json:"mbid"`
	Title         string         `json:"title"`
	PrimaryType   string         `json:"primary_type,omitempty"`
	ReleaseYear   int            `json:"release_year,omitempty"`
	ArtistCredits []ArtistCredit `json:"artist_credits,omitempty"`
}

// ArtistCredit is one credited artist on a release group.
type ArtistCredit struct {
	MBID string `json:"mbid"`
	Name string `json:"name"`
}

// Artist is a registry artist record.
type Artist struct {
	MBID string `json:"mbid"`
	Name string `json:"name"`
}

// Client talks to the MusicBrainz web service with rate limiting.
type Client struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	baseURL string
}

// New creates a MusicBrainz client with the default base URL.
func New(requestsPerSecond float64, logger *slog.Logger) *Client {
	return NewWithBaseURL(requestsPerSecond, logger, defaultBaseURL)
}

// NewWithBaseURL creates a MusicBrainz client with a custom base URL (for testing).
func NewWithBaseURL(requestsPerSecond float64, logger *slog.Logger, baseURL string) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Client{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger.With(slog.String("component", "musicbrainz")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// SearchReleaseGroups searches the registry by artist and title, best matches
// first. Returns zero or more candidates.
func (c *Client) SearchReleaseGroups(ctx context.Context, artist, title string) ([]ReleaseGroup, error) {
	query := fmt.Sprintf("releasegroup:%q AND artist:%q", title, artist)
	params := url.Values{
		"query": {query},
		"fmt":   {"json"},
		"limit": {"10"},
	}
	reqURL := c.baseURL + "/release-group?" + params.Encode()

	body, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	results := make([]ReleaseGroup, 0, len(resp.ReleaseGroups))
	for _, rg := range resp.ReleaseGroups {
		results = append(results, mapReleaseGroup(&rg))
	}
	return results, nil
}

// GetReleaseGroup fetches a full release group record with artist credits.
func (c *Client) GetReleaseGroup(ctx context.Context, mbid string) (*ReleaseGroup, error) {
	params := url.Values{
		"inc": {"artist-credits"},
		"fmt": {"json"},
	}
	reqURL := c.baseURL + "/release-group/" + url.PathEscape(mbid) + "?" + params.Encode()

	body, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var rg mbReleaseGroup
	if err := json.Unmarshal(body, &rg); err != nil {
		return nil, fmt.Errorf("parsing release group response: %w", err)
	}
	mapped := mapReleaseGroup(&rg)
	return &mapped, nil
}

// GetArtist fetches an artist record by MusicBrainz ID.
func (c *Client) GetArtist(ctx context.Context, mbid string) (*Artist, error) {
	params := url.Values{"fmt": {"json"}}
	reqURL := c.baseURL + "/artist/" + url.PathEscape(mbid) + "?" + params.Encode()

	body, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var a mbArtist
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("parsing artist response: %w", err)
	}
	return &Artist{MBID: a.ID, Name: a.Name}, nil
}

// doRequest executes an HTTP GET with rate limiting and standard headers.
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ErrUnavailable{Cause: fmt.Errorf("rate limiter: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent())
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ErrUnavailable{Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ErrNotFound{MBID: reqURL}
	}

	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ErrUnavailable{
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			RetryAfter: 2 * time.Second,
		}
	}

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ErrUnavailable{Cause: fmt.Errorf("unexpected HTTP %d", resp.StatusCode)}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

// mapReleaseGroup converts a registry release group to the client type.
func mapReleaseGroup(rg *mbReleaseGroup) ReleaseGroup {
	out := ReleaseGroup{
		MBID:        rg.ID,
		Title:       rg.Title,
		PrimaryType: rg.PrimaryType,
		ReleaseYear: parseYear(rg.FirstReleaseDate),
	}
	for _, credit := range rg.ArtistCredit {
		name := credit.Artist.Name
		if name == "" {
			name = credit.Name
		}
		out.ArtistCredits = append(out.ArtistCredits, ArtistCredit{
			MBID: credit.Artist.ID,
			Name: name,
		})
	}
	return out
}

// parseYear extracts the year from a first-release-date like "1979-11-30".
func parseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

func userAgent() string {
	return fmt.Sprintf("greatlist/%s (https://github.com/ssherman/greatlist)", version.Version)
}
