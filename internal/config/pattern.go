package config

import (
	"net/url"
	"path/filepath"
	"strings"
)

// MatchPattern reports whether a URL path matches a glob pattern.
// Patterns ending in "/*" also match everything below that directory,
// so "/admin/*" matches "/admin/users/edit".
func MatchPattern(pattern, path string) bool {
	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}

	return false
}

// urlPath extracts the path of a URL for pattern matching.
// Unparsable input is matched as-is.
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// NewIgnoreFunc builds an Ignore predicate from glob patterns.
// A URL is ignored when its path matches any ignore pattern, or when follow
// patterns are given and its path matches none of them.
// It returns nil when both lists are empty.
func NewIgnoreFunc(ignorePatterns, followPatterns []string) func(string) bool {
	if len(ignorePatterns) == 0 && len(followPatterns) == 0 {
		return nil
	}

	ignore := append([]string(nil), ignorePatterns...)
	follow := append([]string(nil), followPatterns...)

	return func(rawURL string) bool {
		path := urlPath(rawURL)
		for _, p := range ignore {
			if MatchPattern(p, path) {
				return true
			}
		}
		if len(follow) == 0 {
			return false
		}
		for _, p := range follow {
			if MatchPattern(p, path) {
				return false
			}
		}
		return true
	}
}

// combineIgnore returns a predicate that ignores a URL when either a or b does.
func combineIgnore(a, b func(string) bool) func(string) bool {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(u string) bool {
		return a(u) || b(u)
	}
}
