// Package sigv4 - encode.go implements the URI encoding SigV4 signs over.
package sigv4

import (
	"net/url"
	"regexp"
	"strings"
)

const upperHex = "0123456789ABCDEF"

// Escape percent-encodes everything except RFC 3986 unreserved characters.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' ||
		'a' <= c && c <= 'z' ||
		'0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// EncodePath escapes each non-empty segment of p and joins them with '/'.
// Empty segments (leading, trailing or doubled slashes) are dropped.
func EncodePath(p string) string {
	segments := strings.Split(p, "/")
	out := segments[:0]
	for _, seg := range segments {
		if seg != "" {
			out = append(out, Escape(seg))
		}
	}
	return strings.Join(out, "/")
}

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// ParseLooseURL parses value, assuming http:// when no scheme is given.
func ParseLooseURL(value string) (*url.URL, error) {
	value = strings.TrimSpace(value)
	if !schemePattern.MatchString(value) {
		value = "http://" + value
	}
	return url.Parse(value)
}
