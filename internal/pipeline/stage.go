// Package pipeline runs the wizard's automated steps as retryable background
// jobs on a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoItems marks a stage entered with nothing to work on; the wizard
// surfaces it as a failed step rather than a trivially completed one.
var ErrNoItems = errors.New("no items to enrich")

// ProgressFunc reports stage progress as a percentage in [0,100). Stages call
// it periodically; the runner persists the value and pins 100 to completion.
type ProgressFunc func(percent int)

// Stage is one automated wizard step. Run must be idempotent: it resets its
// own prior output before producing new output, so a retry after failure or a
// re-entered step never sees stale partial results. The returned map becomes
// the step's summary metadata.
type Stage interface {
	Name() string
	Run(ctx context.Context, listID string, report ProgressFunc) (map[string]any, error)
}

// ErrStageBusy is returned when a stage already holds the running lease for a
// list. The caller should surface it as a conflict, not retry.
type ErrStageBusy struct {
	ListID string
	Step   string
}

func (e *ErrStageBusy) Error() string {
	return fmt.Sprintf("stage %q is already running for list %s", e.Step, e.ListID)
}

// ErrUnknownStage is returned when a step has no registered stage, either
// because the name is wrong or the step is interactive.
type ErrUnknownStage struct {
	Step string
}

func (e *ErrUnknownStage) Error() string {
	return fmt.Sprintf("no runnable stage for step %q", e.Step)
}
