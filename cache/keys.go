package cache

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// flattenOwner turns an owner key into a store-safe segment. The snake_case
// part keeps keys readable in the backend; the xxhash suffix keeps distinct
// owners apart once punctuation has been folded away.
func flattenOwner(owner string) string {
	return toSnake(owner) + KeySeparator + hashKey(owner)
}

func hashKey(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}

// toSnake converts the provided string to snake_case using ASCII-aware rules.
// Punctuation coming from reflected type names and identifiers (dots,
// pointers, colons, generic brackets) collapses into single underscores,
// so the result is accepted by memcache and redis style backends.
func toSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if (unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower) && !lastUnderscore {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false

		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false

		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}
