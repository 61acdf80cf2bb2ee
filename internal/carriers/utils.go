package carriers

import (
	"strings"
)

// NormalizePhone reduces a phone number to the 10-digit Indian format.
// Non-digits are stripped and a "91" country prefix on a 12-digit result is dropped.
// ok is false unless exactly 10 digits remain.
func NormalizePhone(raw string) (phone string, ok bool) {
	var b strings.Builder
	for _, c := range raw {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	digits := b.String()

	if len(digits) == 12 && strings.HasPrefix(digits, "91") {
		digits = digits[2:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return digits, true
}

// SplitName splits a full name on the first space.
// The provider requires both parts, so blanks are padded.
func SplitName(fullName string) (firstName, lastName string) {
	trimmed := strings.TrimSpace(fullName)
	if trimmed == "" {
		return "Customer", "."
	}
	first, rest, found := strings.Cut(trimmed, " ")
	rest = strings.TrimSpace(rest)
	if !found || rest == "" {
		return first, "."
	}
	return first, rest
}
