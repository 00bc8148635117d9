// package matcher decides whether provider search results are usable matches
// for canonical tracks.
//
// Matching is pure string work: no network calls, no phonetic or edit-distance
// metrics. Providers disagree on parenthetical suffixes ("(Remastered 2011)"),
// feature syntax ("feat. X" vs "ft X"), and album-vs-single naming; loose
// containment tolerates these while the provider's own result ranking keeps
// precision acceptable.
package matcher

import (
	"strings"
	"unicode"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/services"
)

// Normalize lowercases s, strips everything but letters, digits, and spaces,
// and collapses runs of whitespace into single spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// fieldMatches reports whether a and b satisfy a containment relation in
// either direction after normalization. Empty values never match.
func fieldMatches(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// Matches reports whether the candidate is a usable match for the canonical
// track: title and artist must each satisfy bidirectional containment. Album
// is deliberately ignored; it is too noisy to gate on.
func Matches(track models.Track, candidate services.ProviderTrack) bool {
	return fieldMatches(track.Title, candidate.Title) && fieldMatches(track.Artist, candidate.Artist)
}

// Match walks candidates in provider-rank order and returns the first usable
// match, or nil if none qualifies.
func Match(track models.Track, candidates []services.ProviderTrack) *services.ProviderTrack {
	for i := range candidates {
		if Matches(track, candidates[i]) {
			return &candidates[i]
		}
	}
	return nil
}
