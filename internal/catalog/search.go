package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/ssherman/greatlist/internal/textutil"
)

const maxSearchHits = 10

// SearchAlbums scores local albums against a title and artist-name set and
// returns hits ordered best-first. Candidates are prefiltered in SQL on title
// tokens, then scored in Go with weighted title/artist similarity.
func (s *Service) SearchAlbums(ctx context.Context, title string, artistNames []string) ([]AlbumHit, error) {
	tokens := textutil.Tokenize(title)
	if len(tokens) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, release_year, musicbrainz_release_group_id, created_at, updated_at
		FROM albums WHERE title LIKE ? COLLATE NOCASE
	`, "%"+longestToken(tokens)+"%")
	if err != nil {
		return nil, fmt.Errorf("searching albums for %q: %w", title, err)
	}
	defer rows.Close() //nolint:errcheck

	var candidates []*Album
	for rows.Next() {
		var (
			a         Album
			year      sql.NullInt64
			mbid      sql.NullString
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&a.ID, &a.Title, &year, &mbid, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning album row: %w", err)
		}
		a.ReleaseYear = int(year.Int64)
		a.MBReleaseGroupID = mbid.String
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)
		candidates = append(candidates, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var hits []AlbumHit
	for _, album := range candidates {
		score := textutil.Similarity(title, album.Title)
		if len(artistNames) > 0 {
			artists, err := s.AlbumArtists(ctx, album.ID)
			if err != nil {
				return nil, err
			}
			score = 0.75*score + 0.25*bestArtistSimilarity(artistNames, artists)
		}
		if score <= 0 {
			continue
		}
		hits = append(hits, AlbumHit{Album: album, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > maxSearchHits {
		hits = hits[:maxSearchHits]
	}
	return hits, nil
}

// longestToken picks the most selective token for the SQL prefilter.
func longestToken(tokens []string) string {
	best := tokens[0]
	for _, tok := range tokens[1:] {
		if len(tok) > len(best) {
			best = tok
		}
	}
	return best
}

// bestArtistSimilarity returns the best pairwise similarity between the query
// artist names and the album's credited artists.
func bestArtistSimilarity(queryNames []string, artists []*Artist) float64 {
	var best float64
	for _, q := range queryNames {
		for _, a := range artists {
			if sim := textutil.Similarity(q, a.Name); sim > best {
				best = sim
			}
		}
	}
	return best
}
