package list

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ssherman/greatlist/internal/database"
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

func TestCreateAndGetByID(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	l := &List{Name: "Top 100 Albums", SourceText: "1. Pink Floyd - The Wall"}
	if err := svc.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if l.ID == "" {
		t.Fatal("expected ID to be set after Create")
	}

	got, err := svc.GetByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Top 100 Albums" {
		t.Errorf("Name = %q, want Top 100 Albums", got.Name)
	}
	if got.Wizard == nil || got.Wizard.CurrentStepName() != wizard.StepSource {
		t.Errorf("expected fresh wizard state at source step")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	svc := NewService(setupTestDB(t))
	_, err := svc.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMutateWizardState(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	l := &List{Name: "mutate"}
	if err := svc.Create(ctx, l); err != nil {
		t.Fatal(err)
	}

	state, err := svc.MutateWizardState(ctx, l.ID, func(s *wizard.State) error {
		return s.Advance(wizard.StepSource)
	})
	if err != nil {
		t.Fatalf("MutateWizardState: %v", err)
	}
	if state.CurrentStepName() != wizard.StepParse {
		t.Errorf("step = %q, want parse", state.CurrentStepName())
	}

	// A failing mutation must not persist
	_, err = svc.MutateWizardState(ctx, l.ID, func(s *wizard.State) error {
		_ = s.Advance(s.CurrentStepName())
		return errors.New("abort")
	})
	if err == nil {
		t.Fatal("expected mutation error")
	}

	got, err := svc.GetByID(ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Wizard.CurrentStepName() != wizard.StepParse {
		t.Errorf("aborted mutation persisted: step = %q", got.Wizard.CurrentStepName())
	}
}

func TestReplaceUnverifiedKeepsVerified(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	l := &List{Name: "replace"}
	if err := svc.Create(ctx, l); err != nil {
		t.Fatal(err)
	}

	first := []*Item{
		{Position: 1, Metadata: ItemMetadata{Title: "The Wall", Artists: []string{"Pink Floyd"}}},
		{Position: 2, Metadata: ItemMetadata{Title: "Kid A", Artists: []string{"Radiohead"}}},
	}
	if err := svc.ReplaceUnverified(ctx, l.ID, first); err != nil {
		t.Fatalf("ReplaceUnverified: %v", err)
	}

	// Verify the first item
	items, err := svc.ItemsByList(ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	items[0].Verified = true
	if err := svc.UpdateItem(ctx, items[0]); err != nil {
		t.Fatal(err)
	}

	// Re-parse with a new batch at fresh positions
	second := []*Item{
		{Position: 2, Metadata: ItemMetadata{Title: "OK Computer", Artists: []string{"Radiohead"}}},
		{Position: 3, Metadata: ItemMetadata{Title: "Loveless", Artists: []string{"My Bloody Valentine"}}},
	}
	if err := svc.ReplaceUnverified(ctx, l.ID, second); err != nil {
		t.Fatalf("second ReplaceUnverified: %v", err)
	}

	items, err = svc.ItemsByList(ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("item count = %d, want 3 (1 verified + 2 new)", len(items))
	}
	if !items[0].Verified || items[0].Metadata.Title != "The Wall" {
		t.Errorf("verified item was not preserved: %+v", items[0])
	}
}

func TestItemMetadataRoundTripPreservesUnknownKeys(t *testing.T) {
	raw := []byte(`{"title":"The Wall","mb_release_group_id":"x","legacy_flag":true}`)

	var meta ItemMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if meta.Title != "The Wall" || meta.MBReleaseGroupID != "x" {
		t.Errorf("typed fields not populated: %+v", meta)
	}

	out, err := json.Marshal(meta)
	if err != nil {
		t.Fatal(err)
	}
	var round map[string]any
	if err := json.Unmarshal(out, &round); err != nil {
		t.Fatal(err)
	}
	if round["legacy_flag"] != true {
		t.Error("unknown metadata key dropped on round-trip")
	}
}

func TestClearMatch(t *testing.T) {
	meta := ItemMetadata{
		Title:            "The Wall",
		MBReleaseGroupID: "x",
		MBArtistIDs:      []string{"a"},
		MatchScore:       0.9,
		LocalIndexMatch:  true,
		MusicBrainzMatch: true,
		EnrichError:      "index shard offline",
	}
	meta.ClearMatch()
	if meta.Enriched() || meta.MBReleaseGroupID != "" || meta.MatchScore != 0 || meta.EnrichError != "" {
		t.Errorf("ClearMatch left enrichment output: %+v", meta)
	}
	if meta.Title != "The Wall" {
		t.Error("ClearMatch must not touch parse output")
	}
}
