package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ssherman/greatlist/internal/database"
	"github.com/ssherman/greatlist/internal/event"
	"github.com/ssherman/greatlist/internal/list"
	"github.com/ssherman/greatlist/internal/parser"
	"github.com/ssherman/greatlist/internal/pipeline"
	"github.com/ssherman/greatlist/internal/wizard"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupTestServer(t *testing.T) (*httptest.Server, *list.Service) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	lists := list.NewService(setupTestDB(t))
	bus := event.NewBus(logger, 16)

	runner := pipeline.NewRunner(lists, bus, logger,
		pipeline.NewParseStage(lists, parser.NewLineParser()))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	runner.Start(ctx, 1)

	router := NewRouter(RouterDeps{
		ListService: lists,
		Runner:      runner,
		Bus:         bus,
		Logger:      logger,
	})
	server := httptest.NewServer(router.Handler())
	t.Cleanup(server.Close)
	return server, lists
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func createTestList(t *testing.T, server *httptest.Server, source string) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/lists", map[string]string{
		"name":        "Greatest Albums",
		"source_text": source,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &created)
	return created.ID
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)
	resp, err := http.Get(server.URL + "/api/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCreateAndGetList(t *testing.T) {
	server, _ := setupTestServer(t)
	id := createTestList(t, server, "Pink Floyd - The Wall")

	resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/lists/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got struct {
		Name   string `json:"name"`
		Wizard struct {
			CurrentStep int `json:"current_step"`
		} `json:"wizard_state"`
	}
	decodeBody(t, resp, &got)
	if got.Name != "Greatest Albums" || got.Wizard.CurrentStep != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestCreateListRequiresName(t *testing.T) {
	server, _ := setupTestServer(t)
	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/lists", map[string]string{"name": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestGetListNotFound(t *testing.T) {
	server, _ := setupTestServer(t)
	resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/lists/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestWizardAdvance(t *testing.T) {
	server, _ := setupTestServer(t)
	id := createTestList(t, server, "")

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/lists/"+id+"/wizard/advance",
		map[string]string{"from_step": wizard.StepSource})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("advance status = %d", resp.StatusCode)
	}
	var state struct {
		CurrentStep int `json:"current_step"`
	}
	decodeBody(t, resp, &state)
	if state.CurrentStep != 1 {
		t.Errorf("current_step = %d, want 1", state.CurrentStep)
	}
}

func TestWizardAdvanceStaleClient(t *testing.T) {
	server, _ := setupTestServer(t)
	id := createTestList(t, server, "")

	// Wizard sits at source; a client claiming to be on enrich is stale.
	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/lists/"+id+"/wizard/advance",
		map[string]string{"from_step": wizard.StepEnrich})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestWizardAdvanceUnknownStep(t *testing.T) {
	server, _ := setupTestServer(t)
	id := createTestList(t, server, "")

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/lists/"+id+"/wizard/advance",
		map[string]string{"from_step": "teleport"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWizardBackAndRestart(t *testing.T) {
	server, _ := setupTestServer(t)
	id := createTestList(t, server, "")

	doJSON(t, http.MethodPost, server.URL+"/api/v1/lists/"+id+"/wizard/advance",
		map[string]string{"from_step": wizard.StepSource})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/lists/"+id+"/wizard/back",
		map[string]string{"from_step": wizard.StepParse})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("back status = %d", resp.StatusCode)
	}
	var state struct {
		CurrentStep int `json:"current_step"`
	}
	decodeBody(t, resp, &state)
	if state.CurrentStep != 0 {
		t.Errorf("current_step = %d, want 0", state.CurrentStep)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/api/v1/lists/"+id+"/wizard/restart", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("restart status = %d", resp.StatusCode)
	}
}

func TestRunStepAndStatus(t *testing.T) {
	server, lists := setupTestServer(t)
	id := createTestList(t, server, "1. Pink Floyd - The Wall (1979)")

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/lists/"+id+"/steps/parse/run", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("run status = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		l, err := lists.GetByID(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		st, _ := l.Wizard.StepStatusFor(wizard.StepParse)
		if st.Status == wizard.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("parse never completed: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/lists/"+id+"/steps/parse", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status status = %d", resp.StatusCode)
	}
	var got struct {
		Status struct {
			Status   string `json:"status"`
			Progress int    `json:"progress"`
		} `json:"status"`
	}
	decodeBody(t, resp, &got)
	if got.Status.Status != string(wizard.StatusCompleted) || got.Status.Progress != 100 {
		t.Errorf("step status = %+v", got.Status)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/lists/"+id+"/items", nil)
	var items struct {
		Items []json.RawMessage `json:"items"`
	}
	decodeBody(t, resp, &items)
	if len(items.Items) != 1 {
		t.Errorf("got %d items", len(items.Items))
	}
}

func TestRunStepUnknownStage(t *testing.T) {
	server, _ := setupTestServer(t)
	id := createTestList(t, server, "")

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/lists/"+id+"/steps/review/run", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUpdateItemReviewActions(t *testing.T) {
	server, lists := setupTestServer(t)
	id := createTestList(t, server, "")
	ctx := context.Background()

	items := []*list.Item{
		{Position: 1, Metadata: list.ItemMetadata{Title: "The Wall", MusicBrainzMatch: true, MBReleaseGroupID: "mb-x"}},
	}
	if err := lists.ReplaceUnverified(ctx, id, items); err != nil {
		t.Fatal(err)
	}
	stored, _ := lists.ItemsByList(ctx, id)
	itemURL := fmt.Sprintf("%s/api/v1/lists/%s/items/%s", server.URL, id, stored[0].ID)

	resp := doJSON(t, http.MethodPatch, itemURL, map[string]any{
		"skipped":     true,
		"clear_match": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}

	got, err := lists.GetItem(ctx, stored[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Metadata.Skipped {
		t.Error("skipped not set")
	}
	if got.Metadata.MusicBrainzMatch || got.Metadata.MBReleaseGroupID != "" {
		t.Errorf("match not cleared: %+v", got.Metadata)
	}
}

func TestUpdateItemWrongList(t *testing.T) {
	server, lists := setupTestServer(t)
	listA := createTestList(t, server, "")
	listB := createTestList(t, server, "")
	ctx := context.Background()

	if err := lists.ReplaceUnverified(ctx, listA, []*list.Item{{Position: 1}}); err != nil {
		t.Fatal(err)
	}
	stored, _ := lists.ItemsByList(ctx, listA)

	url := fmt.Sprintf("%s/api/v1/lists/%s/items/%s", server.URL, listB, stored[0].ID)
	resp := doJSON(t, http.MethodPatch, url, map[string]any{"skipped": true})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
