package util

import "strings"

var slugReplacer = strings.NewReplacer(" ", "_", "/", "", `\`, "", ":", "")

// SenderSlug turns a sender filter into a file-name fragment: spaces become
// underscores and path separators are dropped.
func SenderSlug(sender string) string {
	s := slugReplacer.Replace(strings.TrimSpace(sender))
	s = strings.Trim(s, ".")
	if s == "" {
		return "unknown"
	}
	return s
}
