// Package resolver maps free-text list entries to canonical albums, checking
// the local catalog first and falling back to the MusicBrainz registry.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ssherman/greatlist/internal/catalog"
	"github.com/ssherman/greatlist/internal/musicbrainz"
	"github.com/ssherman/greatlist/internal/textutil"
)

// Registry candidates scoring below this are treated as no match. The
// registry's own full-text search already filters hard, so the bar is lower
// than the local index threshold.
const registryMinSimilarity = 0.5

// Source says where a match came from.
type Source string

const (
	// SourceLocalIndex means the entry matched an album already in the catalog.
	SourceLocalIndex Source = "local_index"
	// SourceRegistry means the entry matched a registry release group not yet imported.
	SourceRegistry Source = "registry"
	// SourceNone means no match was found anywhere.
	SourceNone Source = "none"
)

// Match is the outcome of resolving one entry. AlbumID is set for local
// matches and ReleaseGroup for registry ones; a via-registry local match
// carries both so callers can persist the registry identity alongside the
// album link. Neither is set for SourceNone.
type Match struct {
	Source       Source
	AlbumID      string
	ReleaseGroup *musicbrainz.ReleaseGroup
	Score        float64
	// ViaRegistry marks local matches reached through a registry lookup: the
	// registry hit carried an MBID an existing album already owns.
	ViaRegistry bool
}

// Registry is the external lookup the resolver falls back to.
type Registry interface {
	SearchReleaseGroups(ctx context.Context, artist, title string) ([]musicbrainz.ReleaseGroup, error)
}

// Resolver resolves free-text titles against the catalog and the registry.
type Resolver struct {
	catalog   *catalog.Service
	registry  Registry
	threshold float64
	logger    *slog.Logger
}

// New creates a resolver. threshold is the minimum local index similarity
// accepted as a match.
func New(catalogSvc *catalog.Service, registry Registry, threshold float64, logger *slog.Logger) *Resolver {
	return &Resolver{
		catalog:   catalogSvc,
		registry:  registry,
		threshold: threshold,
		logger:    logger.With(slog.String("component", "resolver")),
	}
}

// Resolve maps a title and artist names to a match. Entries missing a title
// or any artist are unresolvable and short-circuit to SourceNone without
// touching either source. Registry transport failures also degrade to
// SourceNone rather than failing the entry; the caller can retry the whole
// stage later.
func (r *Resolver) Resolve(ctx context.Context, title string, artistNames []string) (Match, error) {
	if strings.TrimSpace(title) == "" || !hasArtist(artistNames) {
		return Match{Source: SourceNone}, nil
	}

	local, err := r.resolveLocal(ctx, title, artistNames)
	if err != nil {
		return Match{}, err
	}
	if local != nil {
		return *local, nil
	}

	return r.resolveRegistry(ctx, title, artistNames)
}

// resolveLocal checks the local index and returns a match if the best hit
// clears the threshold, nil otherwise.
func (r *Resolver) resolveLocal(ctx context.Context, title string, artistNames []string) (*Match, error) {
	hits, err := r.catalog.SearchAlbums(ctx, title, artistNames)
	if err != nil {
		return nil, fmt.Errorf("searching local index: %w", err)
	}
	if len(hits) == 0 || hits[0].Score < r.threshold {
		return nil, nil
	}
	return &Match{
		Source:  SourceLocalIndex,
		AlbumID: hits[0].Album.ID,
		Score:   hits[0].Score,
	}, nil
}

// resolveRegistry queries the registry and picks the most similar candidate.
// A candidate whose MBID already belongs to a local album becomes a local
// match instead.
func (r *Resolver) resolveRegistry(ctx context.Context, title string, artistNames []string) (Match, error) {
	artist := ""
	if len(artistNames) > 0 {
		artist = artistNames[0]
	}

	candidates, err := r.registry.SearchReleaseGroups(ctx, artist, title)
	if err != nil {
		r.logger.Warn("registry search failed, treating as no match",
			slog.String("title", title),
			slog.Any("error", err))
		return Match{Source: SourceNone}, nil
	}

	best, bestScore := pickBest(title, candidates)
	if best == nil || bestScore < registryMinSimilarity {
		return Match{Source: SourceNone}, nil
	}

	// The registry hit may point at an album we already imported.
	existing, err := r.catalog.GetAlbumByMBID(ctx, best.MBID)
	if err != nil {
		return Match{}, fmt.Errorf("checking catalog for %q: %w", best.MBID, err)
	}
	if existing != nil {
		return Match{
			Source:       SourceLocalIndex,
			AlbumID:      existing.ID,
			ReleaseGroup: best,
			Score:        bestScore,
			ViaRegistry:  true,
		}, nil
	}

	return Match{
		Source:       SourceRegistry,
		ReleaseGroup: best,
		Score:        bestScore,
	}, nil
}

func hasArtist(names []string) bool {
	for _, name := range names {
		if strings.TrimSpace(name) != "" {
			return true
		}
	}
	return false
}

func pickBest(title string, candidates []musicbrainz.ReleaseGroup) (*musicbrainz.ReleaseGroup, float64) {
	var (
		best      *musicbrainz.ReleaseGroup
		bestScore float64
	)
	for i := range candidates {
		score := textutil.Similarity(title, candidates[i].Title)
		if score > bestScore {
			best = &candidates[i]
			bestScore = score
		}
	}
	return best, bestScore
}
