package sitemap

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoBaseURL is returned when a multi-document sitemap is written without
// a base URL to build the index locations from.
var ErrNoBaseURL = errors.New("base URL required to write a sitemap index")

// PartPaths returns the file paths of n sitemap parts derived from path:
// "out/sitemap.xml" yields "out/sitemap-1.xml", "out/sitemap-2.xml", ...
func PartPaths(path string, n int) []string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	if ext == "" {
		ext = ".xml"
	}

	paths := make([]string, n)
	for i := range n {
		paths[i] = fmt.Sprintf("%s-%d%s", stem, i+1, ext)
	}
	return paths
}

// PartLocations resolves the base names of the part files against baseURL.
func PartLocations(baseURL string, partPaths []string) ([]string, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrNoBaseURL, baseURL)
	}

	locs := make([]string, len(partPaths))
	for i, p := range partPaths {
		ref := &url.URL{Path: filepath.Base(p)}
		locs[i] = base.ResolveReference(ref).String()
	}
	return locs, nil
}

// WriteFiles persists the output. A single document is written to path.
// Several documents are written next to path as numbered parts, and path
// receives the sitemap index whose locations are resolved against baseURL.
// It returns the written file paths, index first.
func WriteFiles(out *Output, path, baseURL string) ([]string, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if !out.IsMultiFile() {
		doc := ""
		if out.Len() == 1 {
			doc = out.Documents[0]
		}
		if err := writeFile(path, doc); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	parts := PartPaths(path, out.Len())
	locs, err := PartLocations(baseURL, parts)
	if err != nil {
		return nil, err
	}
	index, err := out.Index(locs)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(parts)+1)
	if err := writeFile(path, index); err != nil {
		return nil, err
	}
	written = append(written, path)

	for i, p := range parts {
		if err := writeFile(p, out.Documents[i]); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	return written, nil
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // sitemaps are public documents
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
