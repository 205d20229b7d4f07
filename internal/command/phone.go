package command

import "strings"

// NumberPolicy normalizes stored phone numbers for dialing and messaging.
// The default country code is configuration, not a constant: the right
// prefix depends on where the household lives.
type NumberPolicy struct {
	// DefaultCountryCode is prepended (digits only, e.g. "55") when a
	// number carries no leading +.
	DefaultCountryCode string
}

// Normalize strips everything except digits and a leading +, then applies
// the default country code when the + is absent. The same normalization
// feeds both messaging and calling.
func (p NumberPolicy) Normalize(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	n := b.String()
	if n == "" {
		return ""
	}
	if !strings.HasPrefix(n, "+") && p.DefaultCountryCode != "" {
		if !strings.HasPrefix(n, p.DefaultCountryCode) {
			n = p.DefaultCountryCode + n
		}
		n = "+" + n
	}
	return n
}

// Digits returns only the digit characters of raw, the form wa.me links
// require.
func (p NumberPolicy) Digits(raw string) string {
	var b strings.Builder
	for _, r := range p.Normalize(raw) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
