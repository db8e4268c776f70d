package model

import (
	"errors"
	"testing"
)

func TestParseDate(t *testing.T) {
	got, err := ParseDate(" 2024-02-29 ")
	if err != nil || got == nil || got.Format("2006/01/02") != "2024/02/29" {
		t.Fatalf("ParseDate = %v, %v", got, err)
	}
	if got, err := ParseDate(""); got != nil || err != nil {
		t.Fatalf("empty = %v, %v; want nil, nil", got, err)
	}
	for _, bad := range []string{"2024-02-30", "02/01/2024", "yesterday"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseDate(%q) err = %v; want ErrInvalidInput", bad, err)
		}
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		mutates bool
	}{
		{"", ActionExport, false},
		{"export", ActionExport, false},
		{" Delete ", ActionDelete, true},
		{"ARCHIVE", ActionArchive, true},
	}
	for _, tc := range tests {
		got, err := ParseAction(tc.in)
		if err != nil || got != tc.want || got.Mutates() != tc.mutates {
			t.Errorf("ParseAction(%q) = %q, %v", tc.in, got, err)
		}
	}
	if _, err := ParseAction("purge"); err == nil {
		t.Errorf("expected error for unknown action")
	}
}

func TestParseMode(t *testing.T) {
	if m, _ := ParseMode(""); m != ModeSimple {
		t.Errorf("default mode = %q", m)
	}
	if m, _ := ParseMode("Full"); m != ModeFull {
		t.Errorf("mode = %q", m)
	}
	if _, err := ParseMode("deep"); err == nil {
		t.Errorf("expected error for unknown mode")
	}
}

func TestMessageHeader(t *testing.T) {
	m := &Message{Headers: []Header{
		{Name: "Subject", Value: "first"},
		{Name: "subject", Value: "second"},
		{Name: "From", Value: "a@b.com"},
	}}
	if got := m.Header("SUBJECT"); got != "first" {
		t.Errorf("Header(SUBJECT) = %q; want first", got)
	}
	if got := m.Header("Date"); got != "" {
		t.Errorf("Header(Date) = %q; want empty", got)
	}
}
