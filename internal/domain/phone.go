package domain

import (
	"fmt"
	"regexp"
	"strings"
)

const nigeriaCountryCode = "234"

var nigerianMobilePattern = regexp.MustCompile(`^234[789][01]\d{8}$`)

// PhoneNumber is a validated Nigerian mobile number stored as digits with country code.
type PhoneNumber struct {
	digits string
}

// Digits returns the number as 234XXXXXXXXXX.
func (p PhoneNumber) Digits() string { return p.digits }

// E164 returns the number as +234XXXXXXXXXX.
func (p PhoneNumber) E164() string {
	if p.digits == "" {
		return ""
	}
	return "+" + p.digits
}

func (p PhoneNumber) IsZero() bool { return p.digits == "" }

func (p PhoneNumber) String() string { return p.E164() }

// NormalizePhone canonicalizes a raw phone string.
//
// Non-digits are stripped, a leading 0 is replaced by 234, and numbers
// without a country code get 234 prepended.
func NormalizePhone(raw string) (PhoneNumber, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return PhoneNumber{}, fmt.Errorf("%w: phone number is empty", ErrValidation)
	}

	switch {
	case strings.HasPrefix(digits, "0"):
		digits = nigeriaCountryCode + digits[1:]
	case strings.HasPrefix(digits, nigeriaCountryCode):
	default:
		digits = nigeriaCountryCode + digits
	}

	if !nigerianMobilePattern.MatchString(digits) {
		return PhoneNumber{}, fmt.Errorf("%w: invalid phone number %q", ErrValidation, raw)
	}
	return PhoneNumber{digits: digits}, nil
}
