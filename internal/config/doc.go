// Package config provides configuration structures and utilities for sitemapgen.
// It defines the crawl tunables (concurrency, pacing, admission rules, sitemap
// defaults), the fetch settings and the YAML site configuration file.
package config
