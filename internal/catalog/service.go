package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service provides persistence for albums and artists.
type Service struct {
	db *sql.DB
}

// NewService creates a catalog service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// CreateArtist persists a new artist, assigning ID and timestamps.
func (s *Service) CreateArtist(ctx context.Context, a *Artist) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artists (id, name, musicbrainz_artist_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.Name, nullString(a.MBArtistID),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting artist %q: %w", a.Name, err)
	}
	return nil
}

// GetArtistByMBID returns the artist carrying the given MusicBrainz ID, or
// nil if no local artist owns it.
func (s *Service) GetArtistByMBID(ctx context.Context, mbid string) (*Artist, error) {
	if mbid == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, musicbrainz_artist_id, created_at, updated_at
		FROM artists WHERE musicbrainz_artist_id = ?
	`, mbid)
	return scanArtist(row)
}

// CreateAlbum persists a new album with its credited artists in one
// transaction.
func (s *Service) CreateAlbum(ctx context.Context, a *Album, artistIDs []string) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO albums (id, title, release_year, musicbrainz_release_group_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.Title, nullInt(a.ReleaseYear), nullString(a.MBReleaseGroupID),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting album %q: %w", a.Title, err)
	}

	for i, artistID := range artistIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO album_artists (album_id, artist_id, position) VALUES (?, ?, ?)
		`, a.ID, artistID, i)
		if err != nil {
			return fmt.Errorf("linking artist %q to album %q: %w", artistID, a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing album: %w", err)
	}
	return nil
}

// GetAlbumByID returns an album by its local ID, or nil if absent.
func (s *Service) GetAlbumByID(ctx context.Context, id string) (*Album, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, release_year, musicbrainz_release_group_id, created_at, updated_at
		FROM albums WHERE id = ?
	`, id)
	return scanAlbum(row)
}

// GetAlbumByMBID returns the album carrying the given MusicBrainz release
// group ID, or nil if no local album owns it. This is the side lookup the
// resolver uses to redirect registry hits at existing entities.
func (s *Service) GetAlbumByMBID(ctx context.Context, mbid string) (*Album, error) {
	if mbid == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, release_year, musicbrainz_release_group_id, created_at, updated_at
		FROM albums WHERE musicbrainz_release_group_id = ?
	`, mbid)
	return scanAlbum(row)
}

// AlbumArtists returns the credited artists for an album in credit order.
func (s *Service) AlbumArtists(ctx context.Context, albumID string) ([]*Artist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.musicbrainz_artist_id, a.created_at, a.updated_at
		FROM artists a
		JOIN album_artists aa ON aa.artist_id = a.id
		WHERE aa.album_id = ?
		ORDER BY aa.position
	`, albumID)
	if err != nil {
		return nil, fmt.Errorf("loading artists for album %q: %w", albumID, err)
	}
	defer rows.Close() //nolint:errcheck

	var artists []*Artist
	for rows.Next() {
		var (
			a         Artist
			mbid      sql.NullString
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&a.ID, &a.Name, &mbid, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning artist row: %w", err)
		}
		a.MBArtistID = mbid.String
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)
		artists = append(artists, &a)
	}
	return artists, rows.Err()
}

func scanArtist(row *sql.Row) (*Artist, error) {
	var (
		a         Artist
		mbid      sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&a.ID, &a.Name, &mbid, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning artist row: %w", err)
	}
	a.MBArtistID = mbid.String
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func scanAlbum(row *sql.Row) (*Album, error) {
	var (
		a         Album
		year      sql.NullInt64
		mbid      sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&a.ID, &a.Title, &year, &mbid, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning album row: %w", err)
	}
	a.ReleaseYear = int(year.Int64)
	a.MBReleaseGroupID = mbid.String
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
