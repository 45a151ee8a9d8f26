package musicbrainz

// MusicBrainz API response types.

// searchResponse is the top-level response from the release-group search endpoint.
type searchResponse struct {
	Count         int              `json:"count"`
	Offset        int              `json:"offset"`
	ReleaseGroups []mbReleaseGroup `json:"release-groups"`
}

// mbReleaseGroup represents a MusicBrainz release group entity.
type mbReleaseGroup struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	PrimaryType      string           `json:"primary-type"`
	SecondaryTypes   []string         `json:"secondary-types"`
	FirstReleaseDate string           `json:"first-release-date"`
	Score            int              `json:"score"`
	ArtistCredit     []mbArtistCredit `json:"artist-credit"`
}

// mbArtistCredit is one credited artist on a release group.
type mbArtistCredit struct {
	Name   string       `json:"name"`
	Artist mbArtistStub `json:"artist"`
}

// mbArtistStub is the nested artist reference inside a credit.
type mbArtistStub struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SortName string `json:"sort-name"`
}

// mbArtist represents a full MusicBrainz artist entity.
type mbArtist struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SortName string `json:"sort-name"`
	Type     string `json:"type"`
	Country  string `json:"country"`
}
