package wizard

import (
	"encoding/json"
	"time"
)

// Status is the execution state of a single wizard step.
type Status string

// Step statuses.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StepStatus captures the outcome of one step's most recent run.
// Progress is 100 exactly when Status is completed; Error is set exactly
// when Status is failed.
type StepStatus struct {
	Status   Status         `json:"status"`
	Progress int            `json:"progress"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// State is the persisted wizard state for one list. Unknown JSON keys
// written by other tooling are preserved across round-trips.
type State struct {
	CurrentStep int
	StepStates  map[string]StepStatus
	CompletedAt *time.Time
	extra       map[string]json.RawMessage
}

// NewState returns a state positioned at the first step with all steps idle.
func NewState() *State {
	states := make(map[string]StepStatus, len(Steps))
	for _, name := range Steps {
		states[name] = StepStatus{Status: StatusIdle}
	}
	return &State{StepStates: states}
}

// CurrentStepName maps the current step index to its name.
func (s *State) CurrentStepName() string {
	idx := s.CurrentStep
	if idx < 0 {
		idx = 0
	}
	if idx >= len(Steps) {
		idx = len(Steps) - 1
	}
	return Steps[idx]
}

// Advance moves to the next step. fromStep must match the current step name,
// otherwise the caller is stale and ErrInvalidStep is returned. The index is
// clamped at the last step; arriving at the complete step stamps CompletedAt.
func (s *State) Advance(fromStep string) error {
	if !KnownStep(fromStep) {
		return &ErrUnknownStep{Step: fromStep}
	}
	current := s.CurrentStepName()
	if fromStep != current {
		return &ErrInvalidStep{From: fromStep, Current: current}
	}
	if s.CurrentStep < len(Steps)-1 {
		s.CurrentStep++
	}
	if s.CurrentStepName() == StepComplete && s.CompletedAt == nil {
		now := time.Now().UTC()
		s.CompletedAt = &now
	}
	return nil
}

// Back moves to the previous step, floored at the first. A no-op at step 0.
func (s *State) Back(fromStep string) error {
	if !KnownStep(fromStep) {
		return &ErrUnknownStep{Step: fromStep}
	}
	if s.CurrentStep > 0 {
		s.CurrentStep--
	}
	return nil
}

// Restart resets the wizard to the first step and clears the completion
// timestamp. Step statuses and list items are left alone; each stage resets
// its own output when re-entered.
func (s *State) Restart() {
	s.CurrentStep = 0
	s.CompletedAt = nil
}

// SetStepStatus replaces the status record for a step. This is the only
// mutation path used by stage job runners. Completed steps are pinned to
// progress 100 and errors are retained only on failed steps.
func (s *State) SetStepStatus(step string, status Status, progress int, errMsg string, metadata map[string]any) error {
	if !KnownStep(step) {
		return &ErrUnknownStep{Step: step}
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if status == StatusCompleted {
		progress = 100
	} else if progress == 100 {
		progress = 99
	}
	if status != StatusFailed {
		errMsg = ""
	}
	if s.StepStates == nil {
		s.StepStates = make(map[string]StepStatus)
	}
	s.StepStates[step] = StepStatus{
		Status:   status,
		Progress: progress,
		Error:    errMsg,
		Metadata: metadata,
	}
	return nil
}

// StepStatusFor returns the status record for a step.
func (s *State) StepStatusFor(step string) (StepStatus, error) {
	if !KnownStep(step) {
		return StepStatus{}, &ErrUnknownStep{Step: step}
	}
	st, ok := s.StepStates[step]
	if !ok {
		return StepStatus{Status: StatusIdle}, nil
	}
	return st, nil
}

// StepProgress returns the progress percentage for a step.
func (s *State) StepProgress(step string) (int, error) {
	st, err := s.StepStatusFor(step)
	if err != nil {
		return 0, err
	}
	return st.Progress, nil
}

// StepError returns the error message for a step, if any.
func (s *State) StepError(step string) (string, error) {
	st, err := s.StepStatusFor(step)
	if err != nil {
		return "", err
	}
	return st.Error, nil
}

// StepMetadata returns the metadata map for a step, if any.
func (s *State) StepMetadata(step string) (map[string]any, error) {
	st, err := s.StepStatusFor(step)
	if err != nil {
		return nil, err
	}
	return st.Metadata, nil
}

// stateJSON is the persisted wire shape.
type stateJSON struct {
	CurrentStep int                   `json:"current_step"`
	Steps       map[string]StepStatus `json:"steps"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// MarshalJSON writes the persisted shape, merging back any unknown keys that
// were present when the state was loaded.
func (s *State) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(stateJSON{
		CurrentStep: s.CurrentStep,
		Steps:       s.StepStates,
		CompletedAt: s.CompletedAt,
	})
	if err != nil {
		return nil, err
	}
	if len(s.extra) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the persisted shape, stashing unknown keys for
// forward-compatible round-trips.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var known stateJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	s.CurrentStep = known.CurrentStep
	s.StepStates = known.Steps
	s.CompletedAt = known.CompletedAt
	if s.StepStates == nil {
		s.StepStates = make(map[string]StepStatus)
	}

	delete(raw, "current_step")
	delete(raw, "steps")
	delete(raw, "completed_at")
	if len(raw) > 0 {
		s.extra = raw
	} else {
		s.extra = nil
	}
	return nil
}
