package models

import "strings"

// Matches reports whether contentType satisfies the filter's ContentType
// pattern. "image/*" matches any image subtype; "*" and "*/*" match all.
func (f Filter) Matches(contentType string) bool {
	p := strings.ToLower(strings.TrimSpace(f.ContentType))
	ct := strings.ToLower(contentType)
	switch {
	case p == "", p == "*", p == "*/*":
		return true
	case strings.HasSuffix(p, "/*"):
		return strings.HasPrefix(ct, strings.TrimSuffix(p, "*"))
	default:
		return ct == p
	}
}

// WildcardPrefix returns the "type/" prefix for wildcard patterns and
// whether the pattern is a wildcard at all. Match-all patterns return "".
func (f Filter) WildcardPrefix() (string, bool) {
	p := strings.ToLower(strings.TrimSpace(f.ContentType))
	switch {
	case p == "", p == "*", p == "*/*":
		return "", true
	case strings.HasSuffix(p, "/*"):
		return strings.TrimSuffix(p, "*"), true
	default:
		return p, false
	}
}
