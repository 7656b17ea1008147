package catalog

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// idPattern matches the ids the remote store hands out.
	idPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}$`)
	pathIDExpr = regexp.MustCompile(`/(?:d|folders)/([A-Za-z0-9_-]{10,})`)
)

// ParseRef extracts a remote file id from a share link or returns the input
// when it already is a bare id. ok is false when no id can be found.
func ParseRef(ref string) (id string, ok bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if idPattern.MatchString(ref) {
		return ref, true
	}

	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return "", false
	}
	if m := pathIDExpr.FindStringSubmatch(u.Path); m != nil {
		return m[1], true
	}
	if q := u.Query().Get("id"); idPattern.MatchString(q) {
		return q, true
	}
	return "", false
}
