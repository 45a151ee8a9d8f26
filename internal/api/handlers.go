package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ssherman/greatlist/internal/event"
	"github.com/ssherman/greatlist/internal/list"
	"github.com/ssherman/greatlist/internal/pipeline"
	"github.com/ssherman/greatlist/internal/version"
	"github.com/ssherman/greatlist/internal/wizard"
)

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"commit":  version.Commit,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleCreateList(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name       string `json:"name"`
		SourceText string `json:"source_text"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	l := &list.List{Name: body.Name, SourceText: body.SourceText}
	if err := r.lists.Create(req.Context(), l); err != nil {
		r.serviceError(w, err, "creating list")
		return
	}

	r.bus.Publish(event.Event{
		Type: event.ListCreated,
		Data: map[string]any{"list_id": l.ID},
	})
	writeJSON(w, http.StatusCreated, l)
}

func (r *Router) handleGetList(w http.ResponseWriter, req *http.Request) {
	l, err := r.lists.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		r.serviceError(w, err, "loading list")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (r *Router) handleUpdateSource(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name       string `json:"name"`
		SourceText string `json:"source_text"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	id := req.PathValue("id")
	if err := r.lists.UpdateSource(req.Context(), id, body.Name, body.SourceText); err != nil {
		r.serviceError(w, err, "updating list source")
		return
	}
	l, err := r.lists.GetByID(req.Context(), id)
	if err != nil {
		r.serviceError(w, err, "loading list")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (r *Router) handleListItems(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if _, err := r.lists.GetByID(req.Context(), id); err != nil {
		r.serviceError(w, err, "loading list")
		return
	}
	items, err := r.lists.ItemsByList(req.Context(), id)
	if err != nil {
		r.serviceError(w, err, "loading items")
		return
	}
	if items == nil {
		items = []*list.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleUpdateItem applies review edits to one item: skipping it, verifying
// its match, clearing a wrong match, or correcting the parsed entry.
func (r *Router) handleUpdateItem(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Verified   *bool    `json:"verified"`
		Skipped    *bool    `json:"skipped"`
		Title      *string  `json:"title"`
		Artists    []string `json:"artists"`
		ClearMatch bool     `json:"clear_match"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := r.lists.GetItem(req.Context(), req.PathValue("itemId"))
	if err != nil {
		r.serviceError(w, err, "loading item")
		return
	}
	if item.ListID != req.PathValue("id") {
		writeError(w, http.StatusNotFound, "item not found in list")
		return
	}

	if body.ClearMatch {
		item.Metadata.ClearMatch()
		item.Metadata.AIMatchInvalid = false
		item.AlbumID = ""
	}
	if body.Verified != nil {
		item.Verified = *body.Verified
	}
	if body.Skipped != nil {
		item.Metadata.Skipped = *body.Skipped
	}
	if body.Title != nil {
		item.Metadata.Title = *body.Title
	}
	if body.Artists != nil {
		item.Metadata.Artists = body.Artists
	}

	if err := r.lists.UpdateItem(req.Context(), item); err != nil {
		r.serviceError(w, err, "updating item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type navRequest struct {
	FromStep string `json:"from_step"`
}

func (r *Router) handleAdvance(w http.ResponseWriter, req *http.Request) {
	var body navRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := req.PathValue("id")
	state, err := r.lists.MutateWizardState(req.Context(), id, func(st *wizard.State) error {
		return st.Advance(body.FromStep)
	})
	if err != nil {
		r.serviceError(w, err, "advancing wizard")
		return
	}

	if state.CurrentStepName() == wizard.StepComplete {
		r.bus.Publish(event.Event{
			Type: event.ListCompleted,
			Data: map[string]any{"list_id": id},
		})
	}
	writeJSON(w, http.StatusOK, state)
}

func (r *Router) handleBack(w http.ResponseWriter, req *http.Request) {
	var body navRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := r.lists.MutateWizardState(req.Context(), req.PathValue("id"), func(st *wizard.State) error {
		return st.Back(body.FromStep)
	})
	if err != nil {
		r.serviceError(w, err, "stepping wizard back")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (r *Router) handleRestart(w http.ResponseWriter, req *http.Request) {
	state, err := r.lists.MutateWizardState(req.Context(), req.PathValue("id"), func(st *wizard.State) error {
		st.Restart()
		return nil
	})
	if err != nil {
		r.serviceError(w, err, "restarting wizard")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (r *Router) handleStepStatus(w http.ResponseWriter, req *http.Request) {
	l, err := r.lists.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		r.serviceError(w, err, "loading list")
		return
	}
	status, err := l.Wizard.StepStatusFor(req.PathValue("step"))
	if err != nil {
		r.serviceError(w, err, "reading step status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"step":   req.PathValue("step"),
		"status": status,
	})
}

func (r *Router) handleRunStep(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	step := req.PathValue("step")
	if err := r.runner.Dispatch(req.Context(), id, step); err != nil {
		r.serviceError(w, err, "dispatching stage")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"list_id": id,
		"step":    step,
		"status":  string(wizard.StatusRunning),
	})
}

// serviceError maps domain errors to HTTP statuses.
func (r *Router) serviceError(w http.ResponseWriter, err error, doing string) {
	var (
		busy         *pipeline.ErrStageBusy
		unknownStage *pipeline.ErrUnknownStage
		invalidStep  *wizard.ErrInvalidStep
		unknownStep  *wizard.ErrUnknownStep
	)
	switch {
	case errors.Is(err, list.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &busy):
		writeError(w, http.StatusConflict, busy.Error())
	case errors.As(err, &invalidStep):
		writeError(w, http.StatusConflict, invalidStep.Error())
	case errors.As(err, &unknownStage):
		writeError(w, http.StatusBadRequest, unknownStage.Error())
	case errors.As(err, &unknownStep):
		writeError(w, http.StatusBadRequest, unknownStep.Error())
	default:
		r.logger.Error(doing+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
