package util

import "testing"

func TestNormalizeSender_Basic(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Name <User@Example.COM>`, "user@example.com"},
		{`"Name" <user+news@Example.com>`, "user@example.com"},
		{`user+tag@EXAMPLE.com`, "user@example.com"},
		{`user.name+tag@EXAMPLE.com`, "user.name@example.com"}, // dots preserved
		{`  news@example.com `, "news@example.com"},
		{`bad address`, ""},
		{`"A" <not-an-email> , "B" <c@D.com>`, "c@d.com"},
		{``, ""},
	}
	for _, tc := range tests {
		if got := NormalizeSender(tc.in); got != tc.want {
			t.Errorf("NormalizeSender(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestSenderSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"news@example.com", "news@example.com"},
		{"Weekly News", "Weekly_News"},
		{"../../etc/passwd", "etcpasswd"},
		{`a\b/c`, "abc"},
		{"  ", "unknown"},
		{"..", "unknown"},
	}
	for _, tc := range tests {
		if got := SenderSlug(tc.in); got != tc.want {
			t.Errorf("SenderSlug(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
