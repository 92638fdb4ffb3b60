package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Nguyễn" -> "Nguyen").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// ASCIIFold transliterates Latin letters with diacritics to plain ASCII
// (e.g., "Trần Thị Đào" -> "Tran Thi Dao").
func ASCIIFold(s string) string {
	// đ/Đ have no decomposition and survive NFD.
	return strings.NewReplacer("đ", "d", "Đ", "D").Replace(RemoveDiacritics(s))
}

// Slug turns an identity into a filesystem-safe token: diacritics removed and
// anything other than ASCII letters, digits, dash or underscore replaced by '_'.
func Slug(s string) string {
	s = ASCIIFold(s)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
