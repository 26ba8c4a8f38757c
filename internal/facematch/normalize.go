package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// CleanFullName trims the name and collapses inner whitespace runs.
// The result is what gets stored on the identity.
func CleanFullName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// NameKey normalizes a name for case and accent insensitive lookups.
func NameKey(name string) string {
	name = RemoveDiacritics(CleanFullName(name))
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
