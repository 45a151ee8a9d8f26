// Package parser turns pasted best-of list text into structured entries.
package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// Entry is one parsed line of a source list.
type Entry struct {
	Position    int
	Rank        int
	Title       string
	Artists     []string
	Album       string
	ReleaseYear int
}

// Parser extracts entries from raw source text. Implementations are
// line-oriented and must tolerate ragged input.
type Parser interface {
	Parse(source string) []Entry
}

var (
	rankPattern = regexp.MustCompile(`^\s*#?(\d+)\s*[.):\-]\s*`)
	yearPattern = regexp.MustCompile(`\s*\(((?:19|20)\d{2})\)\s*$`)
)

// separators tried in order when splitting artist from title.
var separators = []string{" - ", " – ", " — ", ": "}

// LineParser handles the common "N. Artist - Title (Year)" shape and its
// variants, including "N. Artist - Album - Title" for track entries that name
// their album. Lines that fit no pattern become title-only entries so nothing
// from the source is silently dropped.
type LineParser struct{}

// NewLineParser creates the default parser.
func NewLineParser() *LineParser {
	return &LineParser{}
}

// Parse splits source into lines and extracts one entry per non-blank line.
// Positions follow the printed ranks where the source has them and need not
// be contiguous; lines without a rank, and ranks that repeat or go backwards,
// get the next free position so positions never collide.
func (p *LineParser) Parse(source string) []Entry {
	var entries []Entry
	next := 1
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		entry := parseLine(line)
		if entry.Rank >= next {
			entry.Position = entry.Rank
		} else {
			entry.Position = next
		}
		next = entry.Position + 1
		entries = append(entries, entry)
	}
	return entries
}

func parseLine(line string) Entry {
	var entry Entry

	if m := rankPattern.FindStringSubmatch(line); m != nil {
		if rank, err := strconv.Atoi(m[1]); err == nil {
			entry.Rank = rank
		}
		line = line[len(m[0]):]
	}

	if m := yearPattern.FindStringSubmatch(line); m != nil {
		if year, err := strconv.Atoi(m[1]); err == nil {
			entry.ReleaseYear = year
		}
		line = strings.TrimSpace(yearPattern.ReplaceAllString(line, ""))
	}

	for _, sep := range separators {
		artist, rest, ok := strings.Cut(line, sep)
		if !ok {
			continue
		}
		entry.Artists = splitArtists(artist)
		if album, title, ok := strings.Cut(rest, sep); ok {
			entry.Album = strings.TrimSpace(album)
			entry.Title = strings.TrimSpace(title)
		} else {
			entry.Title = strings.TrimSpace(rest)
		}
		return entry
	}

	entry.Title = strings.TrimSpace(line)
	return entry
}

// splitArtists breaks a credit string on common joiners.
func splitArtists(credit string) []string {
	credit = strings.TrimSpace(credit)
	if credit == "" {
		return nil
	}
	parts := []string{credit}
	for _, joiner := range []string{" & ", " and ", " feat. ", " ft. ", " / "} {
		var next []string
		for _, part := range parts {
			next = append(next, strings.Split(part, joiner)...)
		}
		parts = next
	}
	var artists []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			artists = append(artists, trimmed)
		}
	}
	return artists
}
