package extract

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/charset"
)

// decodeBase64URL accepts both padded and unpadded base64url.
func decodeBase64URL(data string) ([]byte, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail usually sends unpadded base64url
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return nil, fmt.Errorf("decode base64url: %w", err)
		}
	}
	return b, nil
}

// toUTF8 converts b from the declared charset. Unknown charsets are an error;
// the caller decides whether to keep the raw bytes.
func toUTF8(b []byte, cs string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(cs)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return string(b), nil
	}
	r, err := charset.Reader(cs, strings.NewReader(string(b)))
	if err != nil {
		return string(b), fmt.Errorf("charset %q: %w", cs, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return string(b), fmt.Errorf("charset %q: %w", cs, err)
	}
	return string(out), nil
}
