package util

import (
	"net/mail"
	"strings"
)

// NormalizeSender reduces a From header or bare address to a lowercase
// address with any +alias removed, so "News <Team+weekly@Example.com>" and
// "team@example.com" compare equal. Dots are kept. Returns "" when no address
// can be parsed.
func NormalizeSender(from string) string {
	addr := parseFirstAddress(from)
	if addr == "" {
		return ""
	}
	email := strings.ToLower(addr)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if plus := strings.IndexByte(local, '+'); plus > -1 {
		local = local[:plus]
	}
	return local + "@" + domain
}

// parseFirstAddress accepts a single address or falls back to the first
// parsable entry of a comma-separated list.
func parseFirstAddress(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if a, err := mail.ParseAddress(s); err == nil {
		return strings.TrimSpace(a.Address)
	}
	for _, p := range strings.Split(s, ",") {
		if a, err := mail.ParseAddress(strings.TrimSpace(p)); err == nil {
			return strings.TrimSpace(a.Address)
		}
	}
	return ""
}
