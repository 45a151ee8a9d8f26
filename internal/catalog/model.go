// Package catalog owns the canonical Album and Artist entities and the local
// search index the resolver queries before touching the external registry.
package catalog

import "time"

// Album is a canonical release group.
type Album struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	ReleaseYear      int       `json:"release_year,omitempty"`
	MBReleaseGroupID string    `json:"musicbrainz_release_group_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Artist is a canonical contributor.
type Artist struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MBArtistID string    `json:"musicbrainz_artist_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AlbumHit is a scored local search result.
type AlbumHit struct {
	Album *Album  `json:"album"`
	Score float64 `json:"score"`
}
