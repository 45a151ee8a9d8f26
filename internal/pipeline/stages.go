package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ssherman/greatlist/internal/catalog"
	"github.com/ssherman/greatlist/internal/importer"
	"github.com/ssherman/greatlist/internal/judge"
	"github.com/ssherman/greatlist/internal/list"
	"github.com/ssherman/greatlist/internal/parser"
	"github.com/ssherman/greatlist/internal/resolver"
	"github.com/ssherman/greatlist/internal/wizard"
)

// ParseStage turns the list's raw source text into items. Re-running replaces
// all unverified items; entries a user already verified in an earlier run are
// kept, and new entries are shifted past any position a kept item still holds.
type ParseStage struct {
	lists  *list.Service
	parser parser.Parser
}

// NewParseStage creates the parse stage.
func NewParseStage(lists *list.Service, p parser.Parser) *ParseStage {
	return &ParseStage{lists: lists, parser: p}
}

func (s *ParseStage) Name() string { return wizard.StepParse }

func (s *ParseStage) Run(ctx context.Context, listID string, report ProgressFunc) (map[string]any, error) {
	l, err := s.lists.GetByID(ctx, listID)
	if err != nil {
		return nil, err
	}

	entries := s.parser.Parse(l.SourceText)
	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries parsed from source")
	}
	report(25)

	existing, err := s.lists.ItemsByList(ctx, listID)
	if err != nil {
		return nil, err
	}
	occupied := make(map[int]bool)
	kept := 0
	for _, item := range existing {
		if item.Verified {
			occupied[item.Position] = true
			kept++
		}
	}
	report(50)

	items := make([]*list.Item, 0, len(entries))
	for _, e := range entries {
		pos := e.Position
		for occupied[pos] {
			pos++
		}
		occupied[pos] = true
		items = append(items, &list.Item{
			Position: pos,
			Metadata: list.ItemMetadata{
				Title:       e.Title,
				Artists:     e.Artists,
				Album:       e.Album,
				ReleaseYear: e.ReleaseYear,
			},
		})
	}
	if err := s.lists.ReplaceUnverified(ctx, listID, items); err != nil {
		return nil, err
	}

	return map[string]any{"entries": len(items), "kept_verified": kept}, nil
}

// MatchResolver resolves one free-text entry to a catalog or registry match.
type MatchResolver interface {
	Resolve(ctx context.Context, title string, artistNames []string) (resolver.Match, error)
}

// EnrichStage resolves each unverified item against the local index and the
// registry. Prior match output is cleared first so a retry recomputes from
// scratch. A failure on one item is recorded on that item and the loop moves
// on; only list-level storage errors fail the stage.
type EnrichStage struct {
	lists         *list.Service
	catalog       *catalog.Service
	resolver      MatchResolver
	progressEvery int
	logger        *slog.Logger
}

// NewEnrichStage creates the enrich stage.
func NewEnrichStage(lists *list.Service, catalogSvc *catalog.Service, res MatchResolver, progressEvery int, logger *slog.Logger) *EnrichStage {
	if progressEvery < 1 {
		progressEvery = 10
	}
	return &EnrichStage{
		lists:         lists,
		catalog:       catalogSvc,
		resolver:      res,
		progressEvery: progressEvery,
		logger:        logger.With(slog.String("component", "enrich")),
	}
}

func (s *EnrichStage) Name() string { return wizard.StepEnrich }

func (s *EnrichStage) Run(ctx context.Context, listID string, report ProgressFunc) (map[string]any, error) {
	items, err := s.lists.ItemsByList(ctx, listID)
	if err != nil {
		return nil, err
	}

	var pending []*list.Item
	for _, item := range items {
		if !item.Verified {
			pending = append(pending, item)
		}
	}
	if len(pending) == 0 {
		return nil, ErrNoItems
	}

	var matchedLocal, matchedRegistry, unmatched, failed int
	var itemErrors []map[string]any
	for i, item := range pending {
		item.Metadata.ClearMatch()
		item.AlbumID = ""

		// Track entries name the album they belong to; that album is what
		// gets resolved.
		title := item.Metadata.Title
		if item.Metadata.Album != "" {
			title = item.Metadata.Album
		}

		match, err := s.resolver.Resolve(ctx, title, item.Metadata.Artists)
		if err == nil {
			err = s.applyMatch(ctx, item, match)
		}
		if err != nil {
			s.logger.Warn("item enrich failed",
				slog.Int("position", item.Position),
				slog.Any("error", err))
			item.Metadata.EnrichError = err.Error()
			failed++
			itemErrors = append(itemErrors, map[string]any{
				"item_id": item.ID,
				"title":   item.Metadata.Title,
				"error":   err.Error(),
			})
		} else {
			switch match.Source {
			case resolver.SourceLocalIndex:
				matchedLocal++
			case resolver.SourceRegistry:
				matchedRegistry++
			default:
				unmatched++
			}
		}

		if err := s.lists.UpdateItem(ctx, item); err != nil {
			return nil, err
		}
		if (i+1)%s.progressEvery == 0 {
			report((i + 1) * 100 / len(pending))
		}
	}

	summary := map[string]any{
		"matched_local":    matchedLocal,
		"matched_registry": matchedRegistry,
		"unmatched":        unmatched,
		"failed_count":     failed,
	}
	if len(itemErrors) > 0 {
		summary["errors"] = itemErrors
	}
	return summary, nil
}

func (s *EnrichStage) applyMatch(ctx context.Context, item *list.Item, match resolver.Match) error {
	switch match.Source {
	case resolver.SourceLocalIndex:
		album, err := s.catalog.GetAlbumByID(ctx, match.AlbumID)
		if err != nil {
			return err
		}
		if album == nil {
			return fmt.Errorf("resolved album %q vanished", match.AlbumID)
		}
		artists, err := s.catalog.AlbumArtists(ctx, album.ID)
		if err != nil {
			return err
		}
		item.AlbumID = album.ID
		item.Metadata.LocalIndexMatch = true
		item.Metadata.MatchScore = match.Score
		item.Metadata.MatchTitle = album.Title
		for _, a := range artists {
			item.Metadata.MatchArtists = append(item.Metadata.MatchArtists, a.Name)
		}
		// A match found through the registry keeps its registry identity so
		// the link back to the release group survives alongside the album.
		if match.ViaRegistry && match.ReleaseGroup != nil {
			item.Metadata.MusicBrainzMatch = true
			item.Metadata.MBReleaseGroupID = match.ReleaseGroup.MBID
		}
	case resolver.SourceRegistry:
		rg := match.ReleaseGroup
		item.Metadata.MusicBrainzMatch = true
		item.Metadata.MBReleaseGroupID = rg.MBID
		item.Metadata.MatchScore = match.Score
		item.Metadata.MatchTitle = rg.Title
		for _, credit := range rg.ArtistCredits {
			item.Metadata.MBArtistIDs = append(item.Metadata.MBArtistIDs, credit.MBID)
			item.Metadata.MatchArtists = append(item.Metadata.MatchArtists, credit.Name)
		}
	case resolver.SourceNone:
		// Left unmatched; the review step lets the user skip or fix it.
	}
	return nil
}

// ValidateStage sends every enriched item to the judge in a single batch and
// records per-item verdicts. Earlier verdicts never bind a rerun: verified and
// ai_match_invalid are reset before the call, so a changed match gets a fresh
// ruling. The batch is all-or-nothing, so a failed call leaves no partial
// verdicts behind.
type ValidateStage struct {
	lists *list.Service
	judge *judge.Judge
}

// NewValidateStage creates the validate stage.
func NewValidateStage(lists *list.Service, j *judge.Judge) *ValidateStage {
	return &ValidateStage{lists: lists, judge: j}
}

func (s *ValidateStage) Name() string { return wizard.StepValidate }

func (s *ValidateStage) Run(ctx context.Context, listID string, report ProgressFunc) (map[string]any, error) {
	items, err := s.lists.ItemsByList(ctx, listID)
	if err != nil {
		return nil, err
	}

	byPosition := make(map[int]*list.Item)
	var candidates []judge.Candidate
	missing := 0
	for _, item := range items {
		if item.Metadata.Skipped {
			continue
		}
		if !item.Metadata.Enriched() {
			missing++
			continue
		}
		if item.Verified || item.Metadata.AIMatchInvalid {
			item.Verified = false
			item.Metadata.AIMatchInvalid = false
			if err := s.lists.UpdateItem(ctx, item); err != nil {
				return nil, err
			}
		}
		byPosition[item.Position] = item
		candidates = append(candidates, judge.Candidate{
			Position:     item.Position,
			EntryTitle:   item.Metadata.Title,
			EntryArtists: item.Metadata.Artists,
			MatchTitle:   item.Metadata.MatchTitle,
			MatchArtists: item.Metadata.MatchArtists,
			ReleaseYear:  item.Metadata.ReleaseYear,
		})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no items to validate")
	}
	report(25)

	verdicts, err := s.judge.ValidateBatch(ctx, candidates)
	if err != nil {
		return nil, err
	}
	report(75)

	var valid, invalid int
	for _, v := range verdicts {
		item := byPosition[v.Position]
		item.Verified = v.Valid
		item.Metadata.AIMatchInvalid = !v.Valid
		if v.Valid {
			valid++
		} else {
			invalid++
		}
		if err := s.lists.UpdateItem(ctx, item); err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"valid_count":   valid,
		"invalid_count": invalid,
		"missing_count": missing,
	}, nil
}

// ImportStage links every accepted match to a catalog album, creating albums
// from the registry where needed, and marks linked items verified. Item-level
// failures are recorded on the item and in the summary; the stage itself
// completes so the user can retry just the failed items.
type ImportStage struct {
	lists         *list.Service
	importer      *importer.Importer
	progressEvery int
	logger        *slog.Logger
}

// NewImportStage creates the import stage.
func NewImportStage(lists *list.Service, imp *importer.Importer, progressEvery int, logger *slog.Logger) *ImportStage {
	if progressEvery < 1 {
		progressEvery = 10
	}
	return &ImportStage{
		lists:         lists,
		importer:      imp,
		progressEvery: progressEvery,
		logger:        logger.With(slog.String("component", "import")),
	}
}

func (s *ImportStage) Name() string { return wizard.StepImport }

func (s *ImportStage) Run(ctx context.Context, listID string, report ProgressFunc) (map[string]any, error) {
	items, err := s.lists.ItemsByList(ctx, listID)
	if err != nil {
		return nil, err
	}

	var imported, linked, skipped, failed int
	var importErrors []map[string]any
	for i, item := range items {
		meta := &item.Metadata
		switch {
		case meta.Skipped || meta.AIMatchInvalid || !meta.Enriched():
			skipped++
			continue

		case item.AlbumID != "":
			// Linked at enrich time or on an earlier run; nothing to create.
			meta.ImportError = ""
			item.Verified = true
			linked++

		case meta.MusicBrainzMatch:
			album, err := s.importer.Import(ctx, meta.MBReleaseGroupID)
			if err != nil {
				s.logger.Warn("item import failed",
					slog.Int("position", item.Position),
					slog.Any("error", err))
				meta.ImportError = err.Error()
				failed++
				importErrors = append(importErrors, map[string]any{
					"item_id": item.ID,
					"title":   meta.Title,
					"error":   err.Error(),
				})
			} else {
				item.AlbumID = album.ID
				meta.ImportError = ""
				item.Verified = true
				imported++
			}

		default:
			skipped++
			continue
		}

		if err := s.lists.UpdateItem(ctx, item); err != nil {
			return nil, err
		}
		if (i+1)%s.progressEvery == 0 {
			report((i + 1) * 100 / len(items))
		}
	}

	summary := map[string]any{
		"imported_count": imported,
		"linked_count":   linked,
		"skipped_count":  skipped,
		"failed_count":   failed,
	}
	if len(importErrors) > 0 {
		summary["errors"] = importErrors
	}
	return summary, nil
}
