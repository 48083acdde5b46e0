package model

import (
	"fmt"
	"strings"
)

// ChangeFreq is the sitemap <changefreq> hint for a URL.
// The empty value means "absent" and is never serialized.
type ChangeFreq string

const (
	// ChangeFreqAlways is used for documents that change on every access.
	ChangeFreqAlways ChangeFreq = "always"
	// ChangeFreqHourly marks documents that change about once an hour.
	ChangeFreqHourly ChangeFreq = "hourly"
	// ChangeFreqDaily marks documents that change about once a day.
	ChangeFreqDaily ChangeFreq = "daily"
	// ChangeFreqWeekly marks documents that change about once a week.
	ChangeFreqWeekly ChangeFreq = "weekly"
	// ChangeFreqMonthly marks documents that change about once a month.
	ChangeFreqMonthly ChangeFreq = "monthly"
	// ChangeFreqYearly marks documents that change about once a year.
	ChangeFreqYearly ChangeFreq = "yearly"
	// ChangeFreqNever is used for archived URLs.
	ChangeFreqNever ChangeFreq = "never"
)

// changeFreqs lists every valid value in the order defined by sitemaps.org.
var changeFreqs = []ChangeFreq{
	ChangeFreqAlways,
	ChangeFreqHourly,
	ChangeFreqDaily,
	ChangeFreqWeekly,
	ChangeFreqMonthly,
	ChangeFreqYearly,
	ChangeFreqNever,
}

// String returns the wire representation of the change frequency.
func (c ChangeFreq) String() string {
	return string(c)
}

// IsValid reports whether c is one of the sitemaps.org values.
// The empty value is not valid; it means the field is absent.
func (c ChangeFreq) IsValid() bool {
	for _, v := range changeFreqs {
		if c == v {
			return true
		}
	}
	return false
}

// ParseChangeFreq converts user input (flags, config files) into a ChangeFreq.
// Matching is case-insensitive and surrounding whitespace is ignored.
// An empty string yields the empty (absent) value without error.
func ParseChangeFreq(s string) (ChangeFreq, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	c := ChangeFreq(s)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid changefreq %q: must be one of %s", s, joinChangeFreqs())
	}
	return c, nil
}

func joinChangeFreqs() string {
	parts := make([]string, len(changeFreqs))
	for i, c := range changeFreqs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
