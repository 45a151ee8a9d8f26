package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ssherman/greatlist/internal/event"
	"github.com/ssherman/greatlist/internal/list"
	"github.com/ssherman/greatlist/internal/wizard"
)

const jobQueueSize = 64

type job struct {
	listID string
	step   string
}

// Runner dispatches stage jobs onto a bounded worker pool. Each (list, step)
// pair holds at most one running lease at a time; the lease is taken and
// released through the wizard state's step status inside a transaction, so
// two concurrent dispatches cannot both start the same stage.
type Runner struct {
	lists  *list.Service
	bus    *event.Bus
	logger *slog.Logger
	stages map[string]Stage
	jobs   chan job
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewRunner creates a runner over the given stages.
func NewRunner(lists *list.Service, bus *event.Bus, logger *slog.Logger, stages ...Stage) *Runner {
	byName := make(map[string]Stage, len(stages))
	for _, s := range stages {
		byName[s.Name()] = s
	}
	return &Runner{
		lists:  lists,
		bus:    bus,
		logger: logger.With(slog.String("component", "pipeline")),
		stages: byName,
		jobs:   make(chan job, jobQueueSize),
	}
}

// Start launches workers that execute jobs until ctx is cancelled.
func (r *Runner) Start(ctx context.Context, workers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-r.jobs:
					r.execute(ctx, j)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Dispatch takes the running lease for (listID, step) and queues the job.
// Returns ErrStageBusy if the stage is already running, ErrUnknownStage for
// steps without a registered stage, and list.ErrNotFound for unknown lists.
func (r *Runner) Dispatch(ctx context.Context, listID, step string) error {
	if _, ok := r.stages[step]; !ok {
		return &ErrUnknownStage{Step: step}
	}

	// Lease acquisition: idle, completed, and failed all yield to a new run;
	// running rejects. The surrounding transaction makes this a compare-and-swap.
	_, err := r.lists.MutateWizardState(ctx, listID, func(st *wizard.State) error {
		status, err := st.StepStatusFor(step)
		if err != nil {
			return err
		}
		if status.Status == wizard.StatusRunning {
			return &ErrStageBusy{ListID: listID, Step: step}
		}
		return st.SetStepStatus(step, wizard.StatusRunning, 0, "", nil)
	})
	if err != nil {
		return err
	}

	select {
	case r.jobs <- job{listID: listID, step: step}:
		return nil
	default:
		// Queue full: release the lease so a later dispatch can retry.
		r.releaseLease(ctx, listID, step, "job queue full")
		return fmt.Errorf("dispatching %s for list %s: job queue full", step, listID)
	}
}

func (r *Runner) releaseLease(ctx context.Context, listID, step, reason string) {
	_, err := r.lists.MutateWizardState(ctx, listID, func(st *wizard.State) error {
		return st.SetStepStatus(step, wizard.StatusFailed, 0, reason, nil)
	})
	if err != nil {
		r.logger.Error("releasing stage lease failed",
			slog.String("list_id", listID),
			slog.String("step", step),
			slog.Any("error", err))
	}
}

func (r *Runner) execute(ctx context.Context, j job) {
	stage := r.stages[j.step]
	logger := r.logger.With(
		slog.String("list_id", j.listID),
		slog.String("step", j.step))
	logger.Info("stage started")

	r.bus.Publish(event.Event{
		Type: event.StageStarted,
		Data: map[string]any{"list_id": j.listID, "step": j.step},
	})

	report := func(percent int) {
		_, err := r.lists.MutateWizardState(ctx, j.listID, func(st *wizard.State) error {
			return st.SetStepStatus(j.step, wizard.StatusRunning, percent, "", nil)
		})
		if err != nil {
			logger.Warn("persisting progress failed", slog.Any("error", err))
		}
	}

	summary, runErr := stage.Run(ctx, j.listID, report)
	if runErr != nil {
		logger.Error("stage failed", slog.Any("error", runErr))
		_, err := r.lists.MutateWizardState(ctx, j.listID, func(st *wizard.State) error {
			return st.SetStepStatus(j.step, wizard.StatusFailed, 0, runErr.Error(), nil)
		})
		if err != nil {
			logger.Error("persisting stage failure failed", slog.Any("error", err))
		}
		r.bus.Publish(event.Event{
			Type: event.StageFailed,
			Data: map[string]any{"list_id": j.listID, "step": j.step, "error": runErr.Error()},
		})
		return
	}

	_, err := r.lists.MutateWizardState(ctx, j.listID, func(st *wizard.State) error {
		return st.SetStepStatus(j.step, wizard.StatusCompleted, 100, "", summary)
	})
	if err != nil {
		logger.Error("persisting stage completion failed", slog.Any("error", err))
	}
	logger.Info("stage completed")
	r.bus.Publish(event.Event{
		Type: event.StageCompleted,
		Data: map[string]any{"list_id": j.listID, "step": j.step},
	})
}
