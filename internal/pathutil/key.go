// Package pathutil builds object storage keys from parts that may come
// from clients.
package pathutil

import (
	"strings"

	"github.com/keithlinneman/invitegate/internal/xerrors"
)

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// JoinKey joins non-empty parts with "/", trimming slashes around each.
// Keys with dot segments, backslashes or control characters are refused.
func JoinKey(parts ...string) (string, error) {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	key := strings.Join(out, "/")
	switch {
	case key == "":
		return "", xerrors.New("empty object key")
	case HasDotSegments(key):
		return "", xerrors.Newf("object key %q has dot segments", key)
	case strings.ContainsAny(key, "\\"):
		return "", xerrors.Newf("object key %q has a backslash", key)
	case strings.IndexFunc(key, func(r rune) bool { return r < 0x20 || r == 0x7f }) >= 0:
		return "", xerrors.Newf("object key %q has control characters", key)
	case strings.Contains(key, "//"):
		return "", xerrors.Newf("object key %q has an empty segment", key)
	}
	return key, nil
}
