package sanitizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

// NormalizeName produces the canonical comparison form of a person's name:
// lowercased, diacritics stripped ("José" and "Jose" compare equal),
// punctuation removed, whitespace collapsed.
func NormalizeName(name string) string {
	name = TrimAndNormalize(name)
	if name == "" {
		return ""
	}

	if stripped, _, err := transform.String(diacriticStripper, name); err == nil {
		name = stripped
	}

	var result strings.Builder
	var lastWasSpace bool
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			lastWasSpace = false
		case !lastWasSpace && result.Len() > 0:
			result.WriteRune(' ')
			lastWasSpace = true
		}
	}

	return strings.TrimSpace(result.String())
}

// NameTokens splits a normalized name into its comparison tokens.
func NameTokens(name string) []string {
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}

// NormalizeEmail produces the canonical key form of an email address.
// The original casing is preserved elsewhere for display.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
