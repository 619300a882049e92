package billing

import "strings"

// local numbers are at least this long once the country code is removed
const minLocalDigits = 10

// NormalizePhone keeps only the digits of phone.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalPhone is the digits-only phone including the country code.
func CanonicalPhone(phone, countryCode string) string {
	digits := NormalizePhone(phone)
	if digits == "" || countryCode == "" {
		return digits
	}
	if hasCountryCode(digits, countryCode) {
		return digits
	}
	return countryCode + digits
}

// PhoneVariants returns the phone with and without the country code.
func PhoneVariants(phone, countryCode string) []string {
	digits := NormalizePhone(phone)
	if digits == "" {
		return nil
	}
	if countryCode == "" {
		return []string{digits}
	}
	if hasCountryCode(digits, countryCode) {
		return []string{digits, digits[len(countryCode):]}
	}
	return []string{digits, countryCode + digits}
}

func hasCountryCode(digits, countryCode string) bool {
	return strings.HasPrefix(digits, countryCode) && len(digits)-len(countryCode) >= minLocalDigits
}

// DedupGuard remembers which phones of one tenant were already messaged today.
type DedupGuard struct {
	countryCode string
	sent        map[string]struct{}
}

// NewDedupGuard seeds the guard with the phones found in today's sent log.
func NewDedupGuard(sentPhones []string, countryCode string) *DedupGuard {
	g := &DedupGuard{countryCode: countryCode, sent: make(map[string]struct{})}
	for _, p := range sentPhones {
		g.Mark(p)
	}
	return g
}

// Seen reports whether phone, in any of its variants, was already messaged.
func (g *DedupGuard) Seen(phone string) bool {
	for _, v := range PhoneVariants(phone, g.countryCode) {
		if _, ok := g.sent[v]; ok {
			return true
		}
	}
	return false
}

func (g *DedupGuard) Mark(phone string) {
	for _, v := range PhoneVariants(phone, g.countryCode) {
		g.sent[v] = struct{}{}
	}
}
