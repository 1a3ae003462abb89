package stringutil

import (
	"bytes"
	"strings"
	"unicode"
)

func PascalToSnake(s string) string {
	var b bytes.Buffer

	for i, c := range s {
		if unicode.IsUpper(c) {
			if i > 0 && (unicode.IsLower(rune(s[i-1])) || (i+1 < len(s) && unicode.IsLower(rune(s[i+1])))) {
				b.WriteByte('_')
			}

			b.WriteRune(unicode.ToLower(c))
		} else {
			b.WriteRune(c)
		}
	}

	return b.String()
}

// SafeFileName makes s usable as a single path element on common
// filesystems. Separators and control characters become spaces and runs of
// whitespace collapse. An empty result becomes "untitled".
func SafeFileName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return ' '
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return ' '
		default:
			return r
		}
	}, s)

	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, ". ")

	if len(s) > 120 {
		s = strings.TrimSpace(strings.ToValidUTF8(s[:120], ""))
	}

	if s == "" {
		return "untitled"
	}

	return s
}

func LooksTrue(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "1", "on", "enabled", "enable", "active", "ok", "okay":
		return true
	default:
		return false
	}
}
