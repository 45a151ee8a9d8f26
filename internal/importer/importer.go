// Package importer materializes registry release groups as local catalog
// albums, reusing existing entities wherever a MusicBrainz ID already exists.
package importer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ssherman/greatlist/internal/catalog"
	"github.com/ssherman/greatlist/internal/musicbrainz"
)

// ImportError wraps a failure to import one release group.
type ImportError struct {
	MBID  string
	Cause error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("importing release group %s: %v", e.MBID, e.Cause)
}

func (e *ImportError) Unwrap() error { return e.Cause }

// Registry is the external lookup the importer pulls full records from.
type Registry interface {
	GetReleaseGroup(ctx context.Context, mbid string) (*musicbrainz.ReleaseGroup, error)
}

// Importer creates catalog albums from registry release groups.
type Importer struct {
	catalog  *catalog.Service
	registry Registry
	logger   *slog.Logger
}

// New creates an importer.
func New(catalogSvc *catalog.Service, registry Registry, logger *slog.Logger) *Importer {
	return &Importer{
		catalog:  catalogSvc,
		registry: registry,
		logger:   logger.With(slog.String("component", "importer")),
	}
}

// Import finds or creates the album for a release group MBID. Idempotent: if
// the album already exists it is returned unchanged, so a retried import
// stage never duplicates entities.
func (i *Importer) Import(ctx context.Context, mbid string) (*catalog.Album, error) {
	if mbid == "" {
		return nil, &ImportError{MBID: mbid, Cause: fmt.Errorf("empty MBID")}
	}

	existing, err := i.catalog.GetAlbumByMBID(ctx, mbid)
	if err != nil {
		return nil, &ImportError{MBID: mbid, Cause: err}
	}
	if existing != nil {
		return existing, nil
	}

	rg, err := i.registry.GetReleaseGroup(ctx, mbid)
	if err != nil {
		return nil, &ImportError{MBID: mbid, Cause: err}
	}

	artistIDs, err := i.findOrCreateArtists(ctx, rg.ArtistCredits)
	if err != nil {
		return nil, &ImportError{MBID: mbid, Cause: err}
	}

	album := &catalog.Album{
		Title:            rg.Title,
		ReleaseYear:      rg.ReleaseYear,
		MBReleaseGroupID: rg.MBID,
	}
	if err := i.catalog.CreateAlbum(ctx, album, artistIDs); err != nil {
		return nil, &ImportError{MBID: mbid, Cause: err}
	}

	i.logger.Info("imported album",
		slog.String("album_id", album.ID),
		slog.String("title", album.Title),
		slog.String("mbid", mbid))
	return album, nil
}

// findOrCreateArtists resolves each credit to a local artist, creating any
// that are missing, preserving credit order.
func (i *Importer) findOrCreateArtists(ctx context.Context, credits []musicbrainz.ArtistCredit) ([]string, error) {
	ids := make([]string, 0, len(credits))
	for _, credit := range credits {
		existing, err := i.catalog.GetArtistByMBID(ctx, credit.MBID)
		if err != nil {
			return nil, fmt.Errorf("looking up artist %q: %w", credit.MBID, err)
		}
		if existing != nil {
			ids = append(ids, existing.ID)
			continue
		}

		artist := &catalog.Artist{Name: credit.Name, MBArtistID: credit.MBID}
		if err := i.catalog.CreateArtist(ctx, artist); err != nil {
			return nil, fmt.Errorf("creating artist %q: %w", credit.Name, err)
		}
		ids = append(ids, artist.ID)
	}
	return ids, nil
}
