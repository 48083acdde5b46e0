// Package sitemap assembles fetched pages into sitemaps.org XML documents.
//
// The Assembler accumulates items in fetch-completion order. Build keeps the
// indexable items only and paginates them into <urlset> documents of at most
// MaxEntriesPerFile entries. When more than one document is produced, Index
// renders a <sitemapindex> linking the parts and WriteFiles persists the set.
package sitemap
