package sanitizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNoteLength bounds notes recorded on a booking's status history.
const MaxNoteLength = 500

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

// SanitizeText drops control and invalid characters, then collapses
// whitespace.
func SanitizeText(s string) string {
	if s == "" {
		return ""
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == utf8.RuneError:
			return -1
		case unicode.IsSpace(r):
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)

	return TrimAndNormalize(cleaned)
}

// SanitizeNote is SanitizeText capped at MaxNoteLength runes.
func SanitizeNote(s string) string {
	return Truncate(SanitizeText(s), MaxNoteLength)
}

// Truncate cuts s to at most n runes, trimming a trailing space the cut may
// leave behind.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	runes := []rune(s)
	return strings.TrimRight(string(runes[:n]), " ")
}
