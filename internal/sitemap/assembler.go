package sitemap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/sitemapgen/internal/model"
)

const (
	// Namespace is the sitemaps.org schema namespace of every document.
	Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

	// DefaultMaxEntriesPerFile is the protocol limit of URLs per document.
	DefaultMaxEntriesPerFile = 50000
)

// ErrNoLocations is returned when Index is called with the wrong number of
// part locations.
var ErrNoLocations = errors.New("sitemap index needs one location per document")

// urlSet is the <urlset> root element.
type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	Xmlns   string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

// urlEntry is one <url> block. Empty optional fields are omitted.
type urlEntry struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// sitemapIndex is the <sitemapindex> root element.
type sitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	Xmlns    string         `xml:"xmlns,attr"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// Output is the result of Build: one or more serialized <urlset> documents.
type Output struct {
	// Documents are the serialized XML documents, in order.
	Documents []string

	// Pages holds the items of each document, parallel to Documents.
	Pages [][]model.URLItem

	// GeneratedAt is when Build ran; it is used as the index lastmod.
	GeneratedAt time.Time
}

// Len returns the number of documents.
func (o *Output) Len() int {
	return len(o.Documents)
}

// Entries returns the total number of <url> entries across all documents.
func (o *Output) Entries() int {
	n := 0
	for _, p := range o.Pages {
		n += len(p)
	}
	return n
}

// IsMultiFile reports whether the sitemap was split into several documents.
func (o *Output) IsMultiFile() bool {
	return len(o.Documents) > 1
}

// Index renders a <sitemapindex> document referencing each part.
// locations must hold exactly one absolute URL per document.
func (o *Output) Index(locations []string) (string, error) {
	if len(locations) != len(o.Documents) {
		return "", fmt.Errorf("%w: got %d locations for %d documents",
			ErrNoLocations, len(locations), len(o.Documents))
	}

	idx := sitemapIndex{Xmlns: Namespace}
	lastmod := ""
	if !o.GeneratedAt.IsZero() {
		lastmod = o.GeneratedAt.UTC().Format(time.RFC3339)
	}
	for _, loc := range locations {
		idx.Sitemaps = append(idx.Sitemaps, sitemapEntry{Loc: loc, LastMod: lastmod})
	}

	return marshalDocument(idx)
}

// Assembler collects fetched items and builds sitemap documents from them.
// It is safe for concurrent use.
type Assembler struct {
	maxEntries int
	now        func() time.Time

	mu    sync.Mutex
	items []model.URLItem
}

// NewAssembler creates an Assembler that paginates at maxEntriesPerFile.
// Non-positive values fall back to DefaultMaxEntriesPerFile.
func NewAssembler(maxEntriesPerFile int) *Assembler {
	if maxEntriesPerFile <= 0 {
		maxEntriesPerFile = DefaultMaxEntriesPerFile
	}
	return &Assembler{
		maxEntries: maxEntriesPerFile,
		now:        time.Now,
	}
}

// Add appends an item. Non-indexable items are accepted and kept; Build
// filters them out.
func (a *Assembler) Add(item model.URLItem) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, item)
}

// Len returns the number of items added so far, indexable or not.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Items returns a copy of every item added, in insertion order.
func (a *Assembler) Items() []model.URLItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.URLItem(nil), a.items...)
}

// Build serializes the indexable items into one or more documents.
// An empty crawl still yields a single, empty <urlset>.
func (a *Assembler) Build() (*Output, error) {
	a.mu.Lock()
	indexable := make([]model.URLItem, 0, len(a.items))
	for _, item := range a.items {
		if item.Indexable {
			indexable = append(indexable, item)
		}
	}
	a.mu.Unlock()

	out := &Output{GeneratedAt: a.now()}

	pages := paginate(indexable, a.maxEntries)
	for _, page := range pages {
		doc, err := renderURLSet(page)
		if err != nil {
			return nil, err
		}
		out.Documents = append(out.Documents, doc)
		out.Pages = append(out.Pages, page)
	}

	return out, nil
}

// paginate splits items into chunks of at most size entries.
// It always returns at least one (possibly empty) chunk.
func paginate(items []model.URLItem, size int) [][]model.URLItem {
	if len(items) == 0 {
		return [][]model.URLItem{{}}
	}

	pages := make([][]model.URLItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		pages = append(pages, items[start:end])
	}
	return pages
}

func renderURLSet(items []model.URLItem) (string, error) {
	set := urlSet{Xmlns: Namespace, URLs: make([]urlEntry, 0, len(items))}
	for _, item := range items {
		set.URLs = append(set.URLs, toEntry(item))
	}
	return marshalDocument(set)
}

func toEntry(item model.URLItem) urlEntry {
	e := urlEntry{
		Loc:        item.Loc,
		ChangeFreq: string(item.ChangeFreq),
	}
	if item.HasLastMod() {
		e.LastMod = item.LastMod.UTC().Format(time.RFC3339)
	}
	if item.Priority.Valid {
		e.Priority = item.Priority.Clamp().String()
	}
	return e
}

func marshalDocument(v any) (string, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode sitemap: %w", err)
	}
	return xml.Header + string(body) + "\n", nil
}
