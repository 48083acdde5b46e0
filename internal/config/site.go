package config

import (
	"fmt"

	"github.com/nao1215/sitemapgen/internal/model"
)

// PriorityRule overrides changefreq and/or priority for URLs whose path
// matches Pattern. Rules are evaluated in order; the first match wins.
type PriorityRule struct {
	// Pattern is a glob matched against the URL path (see MatchPattern).
	Pattern string `yaml:"pattern"`

	// ChangeFreq replaces the item's changefreq when set.
	ChangeFreq string `yaml:"changefreq,omitempty"`

	// Priority replaces the item's priority when set.
	Priority *float64 `yaml:"priority,omitempty"`
}

// Matches reports whether the rule applies to the given URL.
func (r PriorityRule) Matches(rawURL string) bool {
	return MatchPattern(r.Pattern, urlPath(rawURL))
}

// Apply rewrites the item's changefreq/priority when the rule matches.
// It returns true if the rule matched.
func (r PriorityRule) Apply(item *model.URLItem) bool {
	if !r.Matches(item.Loc) {
		return false
	}
	if r.ChangeFreq != "" {
		item.ChangeFreq = model.ChangeFreq(r.ChangeFreq)
	}
	if r.Priority != nil {
		item.Priority = model.NewPriority(*r.Priority)
	}
	return true
}

// ApplyPriorityRules applies the first matching rule to the item.
func ApplyPriorityRules(rules []PriorityRule, item *model.URLItem) {
	for _, r := range rules {
		if r.Apply(item) {
			return
		}
	}
}

// SiteConfig holds site-specific configuration for a single host.
// This allows customizing crawl behavior per website.
type SiteConfig struct {
	// Cookie is an HTTP cookie to use when crawling this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the global crawl depth for this site.
	// A nil value keeps the global MaxDepth; 0 means unlimited.
	Depth *int `yaml:"depth,omitempty"`

	// ChangeFreq overrides the default changefreq for this site.
	ChangeFreq string `yaml:"changefreq,omitempty"`

	// Priority overrides the default priority for this site.
	Priority *float64 `yaml:"priority,omitempty"`

	// Exclude adds file extensions to the global exclusion list.
	Exclude []string `yaml:"exclude,omitempty"`

	// ExcludePaths adds literal path substrings that are never crawled.
	ExcludePaths []string `yaml:"excludePaths,omitempty"`

	// IgnorePatterns are URL patterns to skip during crawling.
	// Patterns are matched against the URL path using glob syntax.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL patterns to follow during crawling.
	// If specified, only URLs matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// PriorityRules override changefreq/priority per URL path.
	PriorityRules []PriorityRule `yaml:"priorityRules,omitempty"`
}

// validate checks the values that would otherwise surface as invalid
// sitemap output.
func (sc SiteConfig) validate() error {
	if sc.Depth != nil && *sc.Depth < 0 {
		return ErrInvalidMaxDepth
	}
	if sc.ChangeFreq != "" && !model.ChangeFreq(sc.ChangeFreq).IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidChangeFreq, sc.ChangeFreq)
	}
	if sc.Priority != nil {
		if err := model.NewPriority(*sc.Priority).Validate(); err != nil {
			return ErrInvalidPriority
		}
	}
	for _, r := range sc.PriorityRules {
		if r.Pattern == "" {
			return fmt.Errorf("priority rule without pattern")
		}
		if r.ChangeFreq != "" && !model.ChangeFreq(r.ChangeFreq).IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidChangeFreq, r.ChangeFreq)
		}
		if r.Priority != nil {
			if err := model.NewPriority(*r.Priority).Validate(); err != nil {
				return ErrInvalidPriority
			}
		}
	}
	return nil
}

// File represents the structure of the .sitemapgen configuration file.
type File struct {
	// Sites maps host names to their site-specific configurations.
	// Keys are the host without the protocol (e.g., "example.com").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a specific host.
// It merges the site-specific configuration with defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Depth != nil {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.ChangeFreq != "" {
		result.ChangeFreq = siteConfig.ChangeFreq
	}
	if siteConfig.Priority != nil {
		result.Priority = siteConfig.Priority
	}
	if len(siteConfig.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(siteConfig.Headers))
		for k, v := range result.Headers {
			merged[k] = v
		}
		for k, v := range siteConfig.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}
	if len(siteConfig.Exclude) > 0 {
		result.Exclude = append(append([]string(nil), result.Exclude...), siteConfig.Exclude...)
	}
	if len(siteConfig.ExcludePaths) > 0 {
		result.ExcludePaths = append(append([]string(nil), result.ExcludePaths...), siteConfig.ExcludePaths...)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	if len(siteConfig.PriorityRules) > 0 {
		result.PriorityRules = siteConfig.PriorityRules
	}

	return result
}

// ApplySite returns a copy of the configuration with the site configuration
// layered on top. Slices are extended, scalars replaced when set, and the
// site's ignore/follow patterns are combined with any existing Ignore predicate.
func (c *Config) ApplySite(sc SiteConfig) *Config {
	out := c.Clone()

	if sc.Cookie != "" {
		out.Cookie = sc.Cookie
	}
	if len(sc.Headers) > 0 {
		if out.Headers == nil {
			out.Headers = make(map[string]string, len(sc.Headers))
		}
		for k, v := range sc.Headers {
			out.Headers[k] = v
		}
	}
	if sc.Depth != nil {
		out.MaxDepth = *sc.Depth
	}
	if sc.ChangeFreq != "" {
		out.ChangeFreq = model.ChangeFreq(sc.ChangeFreq)
	}
	if sc.Priority != nil {
		out.Priority = model.NewPriority(*sc.Priority)
	}
	out.Exclude = append(out.Exclude, sc.Exclude...)
	out.ExcludePaths = append(out.ExcludePaths, sc.ExcludePaths...)
	out.PriorityRules = append(out.PriorityRules, sc.PriorityRules...)
	out.Ignore = combineIgnore(out.Ignore, NewIgnoreFunc(sc.IgnorePatterns, sc.FollowPatterns))

	return out
}
