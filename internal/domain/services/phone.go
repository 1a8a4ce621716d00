package services

import "strings"

// ToDigits strips everything but ASCII digits
func ToDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone turns a phone number or chat address into the canonical
// digits-only form with country code. Bare 10-digit national numbers get
// countryCode prepended. Applying it twice yields the same value.
func NormalizePhone(raw, countryCode string) string {
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		raw = raw[:i]
	}
	digits := ToDigits(raw)
	for strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	}
	if len(digits) == 11 && digits[0] == '0' {
		digits = digits[1:]
	}
	if len(digits) == 10 {
		return countryCode + digits
	}
	return digits
}

// PhoneVariants lists the stored encodings to try for a phone, in lookup
// order: bare national number, country-prefixed digits, then "+" form.
func PhoneVariants(raw, countryCode string) []string {
	digits := NormalizePhone(raw, countryCode)
	if digits == "" {
		return nil
	}
	if strings.HasPrefix(digits, countryCode) && len(digits) == len(countryCode)+10 {
		bare := digits[len(countryCode):]
		return []string{bare, digits, "+" + digits}
	}
	return []string{digits, "+" + digits}
}
