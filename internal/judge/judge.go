package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const systemPrompt = `You are a music metadata reviewer. You receive a JSON array of list entries, each paired with the album it was matched to. For every entry decide whether the matched album really is the release the entry refers to. Reissues, remasters and minor title punctuation differences are the same release; live albums, compilations, tributes and different albums by the same artist are not.

Respond with a JSON object of the form {"verdicts": [{"position": <int>, "valid": <bool>, "rationale": "<short reason>"}]}. Include exactly one verdict for every entry, keyed by its position. Output JSON only.`

// Candidate is one resolved entry submitted for validation.
type Candidate struct {
	Position     int      `json:"position"`
	EntryTitle   string   `json:"entry_title"`
	EntryArtists []string `json:"entry_artists,omitempty"`
	MatchTitle   string   `json:"match_title"`
	MatchArtists []string `json:"match_artists,omitempty"`
	ReleaseYear  int      `json:"release_year,omitempty"`
}

// Verdict is the judge's ruling on one candidate.
type Verdict struct {
	Position  int    `json:"position"`
	Valid     bool   `json:"valid"`
	Rationale string `json:"rationale"`
}

// ErrJudgeUnavailable wraps a failed model call. The whole batch is retried
// by re-dispatching the stage.
type ErrJudgeUnavailable struct {
	Cause error
}

func (e *ErrJudgeUnavailable) Error() string {
	return fmt.Sprintf("judge unavailable: %v", e.Cause)
}

func (e *ErrJudgeUnavailable) Unwrap() error { return e.Cause }

// Completer abstracts the LLM client for testing.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

// Judge validates batches of resolved entries with a single LLM call.
type Judge struct {
	client Completer
	logger *slog.Logger
}

// New creates a judge backed by the given LLM client.
func New(client Completer, logger *slog.Logger) *Judge {
	return &Judge{
		client: client,
		logger: logger.With(slog.String("component", "judge")),
	}
}

// ValidateBatch submits all candidates in one call and returns one verdict
// per candidate. The batch is all-or-nothing: a failed call or a response
// missing any candidate fails the whole batch, so a retry revalidates
// everything.
func (j *Judge) ValidateBatch(ctx context.Context, candidates []Candidate) ([]Verdict, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("marshaling candidates: %w", err)
	}

	content, err := j.client.CompleteJSON(ctx, systemPrompt, string(payload))
	if err != nil {
		return nil, &ErrJudgeUnavailable{Cause: err}
	}

	var parsed struct {
		Verdicts []Verdict `json:"verdicts"`
	}
	if err := DecodeJSON(content, &parsed); err != nil {
		return nil, fmt.Errorf("validating batch of %d: %w", len(candidates), err)
	}

	byPosition := make(map[int]Verdict, len(parsed.Verdicts))
	for _, v := range parsed.Verdicts {
		byPosition[v.Position] = v
	}

	verdicts := make([]Verdict, 0, len(candidates))
	var missing []int
	for _, c := range candidates {
		v, ok := byPosition[c.Position]
		if !ok {
			missing = append(missing, c.Position)
			continue
		}
		verdicts = append(verdicts, v)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("model response missing verdicts for positions %s", formatPositions(missing))
	}

	j.logger.Debug("batch validated",
		slog.Int("candidates", len(candidates)),
		slog.Int("invalid", countInvalid(verdicts)))
	return verdicts, nil
}

func countInvalid(verdicts []Verdict) int {
	n := 0
	for _, v := range verdicts {
		if !v.Valid {
			n++
		}
	}
	return n
}

func formatPositions(positions []int) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ", ")
}
