// Package list owns the List and ListItem entities and their persistence.
package list

import (
	"encoding/json"
	"time"

	"github.com/ssherman/greatlist/internal/wizard"
)

// List is the aggregate root for one imported best-of list.
type List struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	SourceText string        `json:"source_text,omitempty"`
	Wizard     *wizard.State `json:"wizard_state"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Item is one list entry being resolved to a canonical album.
// AlbumID is the ownership link set once the entry is resolved or imported.
type Item struct {
	ID        string       `json:"id"`
	ListID    string       `json:"list_id"`
	Position  int          `json:"position"`
	Metadata  ItemMetadata `json:"metadata"`
	Verified  bool         `json:"verified"`
	AlbumID   string       `json:"album_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ItemMetadata is the typed view of the freeform metadata blob carried by
// each item. Keys written by earlier versions or other tooling are preserved
// in extra and survive round-trips.
type ItemMetadata struct {
	Title       string   `json:"title,omitempty"`
	Artists     []string `json:"artists,omitempty"`
	Album       string   `json:"album,omitempty"`
	ReleaseYear int      `json:"release_year,omitempty"`

	// Enrichment output.
	MBReleaseGroupID string   `json:"mb_release_group_id,omitempty"`
	MBArtistIDs      []string `json:"mb_artist_ids,omitempty"`
	MatchTitle       string   `json:"match_title,omitempty"`
	MatchArtists     []string `json:"match_artists,omitempty"`
	MatchScore       float64  `json:"match_score,omitempty"`
	LocalIndexMatch  bool     `json:"local_index_match,omitempty"`
	MusicBrainzMatch bool     `json:"musicbrainz_match,omitempty"`
	EnrichError      string   `json:"enrich_error,omitempty"`

	// Validation and import flags.
	AIMatchInvalid bool   `json:"ai_match_invalid,omitempty"`
	Skipped        bool   `json:"skipped,omitempty"`
	ImportError    string `json:"import_error,omitempty"`

	extra map[string]json.RawMessage
}

// knownMetadataKeys are the JSON keys owned by the typed fields above.
var knownMetadataKeys = []string{
	"title", "artists", "album", "release_year",
	"mb_release_group_id", "mb_artist_ids", "match_title", "match_artists",
	"match_score", "local_index_match", "musicbrainz_match", "enrich_error",
	"ai_match_invalid", "skipped", "import_error",
}

// metadataAlias avoids recursing into the custom (un)marshalers.
type metadataAlias ItemMetadata

// MarshalJSON writes the typed fields and merges back unknown keys.
func (m ItemMetadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(metadataAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.extra) == 0 {
		return known, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the typed fields and stashes unknown keys.
func (m *ItemMetadata) UnmarshalJSON(data []byte) error {
	var alias metadataAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*m = ItemMetadata(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownMetadataKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		m.extra = raw
	} else {
		m.extra = nil
	}
	return nil
}

// ClearMatch removes all enrichment output so the enrich stage can recompute
// from a clean slate.
func (m *ItemMetadata) ClearMatch() {
	m.MBReleaseGroupID = ""
	m.MBArtistIDs = nil
	m.MatchTitle = ""
	m.MatchArtists = nil
	m.MatchScore = 0
	m.LocalIndexMatch = false
	m.MusicBrainzMatch = false
	m.EnrichError = ""
}

// Enriched reports whether the item carries any match from the enrich stage.
func (m *ItemMetadata) Enriched() bool {
	return m.LocalIndexMatch || m.MusicBrainzMatch
}
