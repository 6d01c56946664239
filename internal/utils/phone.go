package utils

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// bare 10 digit numbers are dialled as North American
const defaultPhoneRegion = "US"

var (
	nonDigits  = regexp.MustCompile(`\D`)
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

func digitsOnly(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// ValidPhoneNumber accepts anything carrying 10 to 15 digits once
// punctuation is stripped.
func ValidPhoneNumber(phone string) bool {
	n := len(digitsOnly(phone))
	return n >= 10 && n <= 15
}

// NormalizePhoneNumber converts a phone number to E.164. Numbers without a
// leading + are read as international unless they carry exactly 10 digits.
func NormalizePhoneNumber(phone string) string {
	digits := digitsOnly(phone)
	raw, region := "+"+digits, "ZZ"
	if len(digits) == 10 && !strings.HasPrefix(strings.TrimSpace(phone), "+") {
		raw, region = digits, defaultPhoneRegion
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "+" + digits
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func ValidEmail(email string) bool {
	return emailRegex.MatchString(strings.TrimSpace(email))
}
