// Package normalize implements the deterministic text transformation
// applied to every mention and alias before lookup or comparison. The
// normalized form is the lookup key for the whole system, so the resolver
// and every store implementation share this one definition.
package normalize

import (
	"sort"
	"strings"
	"unicode"
)

// separatorRunes are treated as word separators rather than stripped, so
// "react-native" and "react native" normalize identically.
const separatorRunes = "-_/\\"

// keptSymbols are symbol runes that carry meaning in entity names and
// survive normalization ("c++", "c#", ".net" loses only the dot).
const keptSymbols = "+#&"

// Normalize derives the canonical lookup key for a mention or alias:
// lowercase, trimmed, internal whitespace collapsed to single spaces,
// punctuation stripped. It never fails; garbage input yields an empty
// string. Input is not assumed to be ASCII.
func Normalize(s string) string {
	lowered := strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || strings.ContainsRune(separatorRunes, r):
			b.WriteRune(' ')
		case strings.ContainsRune(keptSymbols, r):
			b.WriteRune(r)
		default:
			// Remaining punctuation and symbols are dropped outright
			// ("BNP P." -> "bnp p", "École!" -> "école").
		}
	}

	// Fields both trims and collapses runs of internal whitespace.
	return strings.Join(strings.Fields(b.String()), " ")
}

// TokenSortKey returns the normalized string with its tokens sorted, the
// comparison form used for token-order-insensitive similarity
// ("native react" and "react native" share one key).
func TokenSortKey(normalized string) string {
	fields := strings.Fields(normalized)
	if len(fields) < 2 {
		return normalized
	}
	sort.Strings(fields)
	return strings.Join(fields, " ")
}
