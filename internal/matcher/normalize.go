package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/cover-matcher/internal/features"
)

// removeDiacritics removes diacritical marks from a string (e.g., "Mélancolique" -> "Melancolique").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeMood normalizes a mood label for table lookup (lowercase, no
// diacritics, spaces for dashes and underscores).
func NormalizeMood(mood string) string {
	mood = removeDiacritics(mood)
	mood = strings.ToLower(strings.TrimSpace(mood))
	mood = strings.NewReplacer("-", " ", "_", " ").Replace(mood)
	return strings.Join(strings.Fields(mood), " ")
}

// moodFromEnergy maps a track's energy onto the photo mood vocabulary.
func moodFromEnergy(energy float64) string {
	switch {
	case energy >= 0.7:
		return features.MoodEnergetic
	case energy >= 0.5:
		return features.MoodHappy
	case energy < 0.3:
		return features.MoodMelancholic
	default:
		return features.MoodNeutral
	}
}
