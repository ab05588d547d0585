// Package phone turns free-form phone input into a dialable international number.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultCountryCode is prepended to 10-digit local numbers unless configured otherwise.
const DefaultCountryCode = "91"

// ErrInvalidFormat is matched by every FormatError.
var ErrInvalidFormat = errors.New("invalid phone number format")

// FormatError carries the input that could not be normalized.
type FormatError struct {
	Input string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid phone number format: %s", e.Input)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}

// Normalize strips everything but digits from raw and returns the number in +<digits> form.
//
// The rules are applied in order:
//   - 11 digits starting with 1 are a North American number: "+" is prepended.
//   - exactly 10 digits are local: "+" and defaultCountryCode are prepended.
//   - more than 10 digits already carry a country code: "+" is prepended.
//   - anything shorter fails with a *FormatError.
//
// An empty defaultCountryCode falls back to DefaultCountryCode.
func Normalize(raw, defaultCountryCode string) (string, error) {
	digits := Digits(raw)
	if defaultCountryCode == "" {
		defaultCountryCode = DefaultCountryCode
	}

	switch {
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, nil
	case len(digits) == 10:
		return "+" + defaultCountryCode + digits, nil
	case len(digits) > 10:
		return "+" + digits, nil
	default:
		return "", &FormatError{Input: raw}
	}
}

// Digits returns the ASCII digits of s in order.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
