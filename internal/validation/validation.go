package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrIdentifierEmpty is returned when the identifier is empty or whitespace-only after trim.
var ErrIdentifierEmpty = errors.New("location identifier is required")

// ErrIdentifierTooLong is returned when the identifier length exceeds the maximum.
var ErrIdentifierTooLong = errors.New("location identifier too long")

// ErrIdentifierInvalidChars is returned when the identifier contains disallowed characters.
var ErrIdentifierInvalidChars = errors.New("location identifier contains invalid characters")

// ValidateIdentifier trims the input, enforces a maximum length (in runes),
// and restricts to allowed characters: letters (Unicode, so Chinese city names
// pass), digits, space, comma, hyphen and dot. Returns the trimmed string or
// an error suitable for a 400 response. The identifier may be a city name, a
// provider cityId, or a "lat,lon" pair.
func ValidateIdentifier(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrIdentifierEmpty
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrIdentifierTooLong
	}
	for _, c := range r {
		if !isAllowedIdentifierRune(c) {
			return "", ErrIdentifierInvalidChars
		}
	}
	return s, nil
}

// IsCityID reports whether the identifier looks like a provider cityId
// (digits only) rather than a city name.
func IsCityID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isAllowedIdentifierRune returns true for letters (Unicode), digits, space, comma, hyphen, dot.
func isAllowedIdentifierRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.':
		return true
	}
	return false
}
