package frontier

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Normalize resolves rawURL against base and returns its canonical form:
// absolute, scheme and host lower-cased, fragment removed, empty path
// replaced by "/", and the query removed when stripQuery is set.
// A nil base requires rawURL to be absolute already.
func Normalize(rawURL string, base *url.URL, stripQuery bool) (string, error) {
	u, err := resolve(rawURL, base)
	if err != nil {
		return "", err
	}
	return canonical(u, stripQuery).String(), nil
}

func resolve(rawURL string, base *url.URL) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("empty URL")
	}

	var (
		u   *url.URL
		err error
	)
	if base != nil {
		u, err = base.Parse(rawURL)
	} else {
		u, err = url.Parse(rawURL)
	}
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("not an absolute URL: %s", rawURL)
	}
	return u, nil
}

func canonical(u *url.URL, stripQuery bool) *url.URL {
	out := *u
	out.Scheme = strings.ToLower(out.Scheme)
	out.Host = strings.ToLower(out.Host)
	out.Fragment = ""
	out.RawFragment = ""
	if stripQuery {
		out.RawQuery = ""
		out.ForceQuery = false
	}
	if out.Path == "" {
		out.Path = "/"
		out.RawPath = ""
	}
	return &out
}

// basepath returns the directory prefix of a URL path, up to and including
// the last "/". "/docs/index.html" yields "/docs/".
func basepath(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "/"
	}
	return path[:i+1]
}

// compileExtensionPattern builds a case-insensitive `\.(a|b|c)$` matcher.
// It returns nil for an empty list.
func compileExtensionPattern(exts []string) *regexp.Regexp {
	quoted := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(ext))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\.(` + strings.Join(quoted, "|") + `)$`)
}
