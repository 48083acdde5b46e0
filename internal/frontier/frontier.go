package frontier

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/nao1215/sitemapgen/internal/model"
)

// DefaultMaxConcurrency is the in-flight cap used when none is configured.
const DefaultMaxConcurrency = 5

// RejectReason explains why a candidate URL was not admitted.
type RejectReason string

// Rejection reasons, in the order the rules are evaluated.
const (
	// RejectNone means the URL was admitted.
	RejectNone RejectReason = ""

	// RejectInvalid means the candidate could not be resolved to an absolute URL.
	RejectInvalid RejectReason = "invalid"

	// RejectDuplicate means the normalized URL is already known.
	RejectDuplicate RejectReason = "duplicate"

	// RejectScheme means the scheme is neither http nor https.
	RejectScheme RejectReason = "scheme"

	// RejectForeignHost means the host differs from the seed host.
	RejectForeignHost RejectReason = "foreign_host"

	// RejectExtension means the path ends in an excluded file extension.
	RejectExtension RejectReason = "extension"

	// RejectIgnored means the ignore predicate returned true or panicked.
	RejectIgnored RejectReason = "ignored"

	// RejectExcludedPath means the path contains an excluded substring.
	RejectExcludedPath RejectReason = "excluded_path"

	// RejectBasepath means the URL lies outside the seed's origin and directory.
	RejectBasepath RejectReason = "basepath"

	// RejectDepth means the depth exceeds the configured maximum.
	RejectDepth RejectReason = "depth"
)

// Admission is the outcome of Enqueue.
type Admission struct {
	// URL is the normalized URL. Empty when the candidate was invalid.
	URL string

	// Reason is RejectNone when the URL was admitted.
	Reason RejectReason
}

// Admitted reports whether the URL was inserted into the queue.
func (a Admission) Admitted() bool {
	return a.Reason == RejectNone
}

// Frontier owns the URL queue, the dedup set and per-URL crawl state.
//
// Design decision: Rejected candidates are not added to the dedup set.
// Only admitted URLs are "known", so the dedup set is exactly the set of URLs
// that were (or will be) fetched.
type Frontier struct {
	seed     *url.URL
	seedBase string

	stripQuerystring   bool
	restrictToBasepath bool
	maxDepth           int
	maxConcurrency     int
	excludeExt         *regexp.Regexp
	excludePaths       []string
	ignore             func(string) bool

	mu       sync.Mutex
	entries  map[string]*model.QueueEntry
	pending  []*model.QueueEntry
	inFlight int
	fetched  int
	errored  int
	rejected map[RejectReason]int
}

// New creates a Frontier for the given seed. The seed must be an absolute
// http or https URL; it is not enqueued automatically.
func New(seed string, opts ...Option) (*Frontier, error) {
	u, err := url.Parse(strings.TrimSpace(seed))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, ErrInvalidSeed
	}
	if !isHTTPScheme(u.Scheme) {
		return nil, ErrInvalidSeed
	}

	f := &Frontier{
		stripQuerystring: true,
		maxConcurrency:   DefaultMaxConcurrency,
		entries:          make(map[string]*model.QueueEntry),
		rejected:         make(map[RejectReason]int),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.seed = canonical(u, f.stripQuerystring)
	f.seedBase = basepath(f.seed.Path)

	return f, nil
}

// Seed returns the normalized seed URL.
func (f *Frontier) Seed() string {
	return f.seed.String()
}

// Enqueue normalizes a candidate URL and admits it when every rule passes.
// Relative candidates are resolved against referrer, or against the seed when
// referrer is empty. Rejections are reported through the Admission, not as
// errors; the only error is a *FetchConditionError from a panicking ignore
// predicate, in which case the URL is also rejected.
func (f *Frontier) Enqueue(rawURL, referrer string, depth int) (Admission, error) {
	base := f.seed
	if referrer != "" {
		if ref, err := url.Parse(referrer); err == nil && ref.IsAbs() {
			base = ref
		}
	}

	u, err := resolve(rawURL, base)
	if err != nil {
		f.reject(RejectInvalid)
		return Admission{Reason: RejectInvalid}, nil
	}
	u = canonical(u, f.stripQuerystring)
	normalized := u.String()

	if f.Known(normalized) {
		f.reject(RejectDuplicate)
		return Admission{URL: normalized, Reason: RejectDuplicate}, nil
	}

	reason, condErr := f.admit(u, normalized, depth)
	if reason != RejectNone {
		f.reject(reason)
		return Admission{URL: normalized, Reason: reason}, condErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Re-check under the lock: another goroutine may have admitted the URL
	// while the predicates ran.
	if _, ok := f.entries[normalized]; ok {
		f.rejected[RejectDuplicate]++
		return Admission{URL: normalized, Reason: RejectDuplicate}, nil
	}

	entry := &model.QueueEntry{
		URL:      normalized,
		Referrer: referrer,
		Depth:    depth,
		State:    model.EntryQueued,
	}
	f.entries[normalized] = entry
	f.pending = append(f.pending, entry)

	return Admission{URL: normalized}, nil
}

// admit evaluates the stateless admission rules. It runs without holding
// the lock so that a slow ignore predicate does not block other callers.
func (f *Frontier) admit(u *url.URL, normalized string, depth int) (RejectReason, error) {
	if !isHTTPScheme(u.Scheme) {
		return RejectScheme, nil
	}

	if u.Host != f.seed.Host {
		return RejectForeignHost, nil
	}

	if f.excludeExt != nil && f.excludeExt.MatchString(u.Path) {
		return RejectExtension, nil
	}

	ignored, err := f.isIgnored(normalized)
	if err != nil || ignored {
		return RejectIgnored, err
	}

	for _, p := range f.excludePaths {
		if p != "" && strings.Contains(u.Path, p) {
			return RejectExcludedPath, nil
		}
	}

	if f.restrictToBasepath {
		if u.Scheme != f.seed.Scheme || !strings.HasPrefix(u.Path, f.seedBase) {
			return RejectBasepath, nil
		}
	}

	if f.maxDepth != 0 && depth > f.maxDepth {
		return RejectDepth, nil
	}

	return RejectNone, nil
}

// isIgnored runs the caller's predicate, converting a panic into a
// *FetchConditionError.
func (f *Frontier) isIgnored(u string) (ignored bool, err error) {
	if f.ignore == nil {
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			ignored = true
			err = &FetchConditionError{URL: u, Value: r}
		}
	}()

	return f.ignore(u), nil
}

func (f *Frontier) reject(reason RejectReason) {
	f.mu.Lock()
	f.rejected[reason]++
	f.mu.Unlock()
}

// Dequeue returns up to n queued entries in FIFO order and moves them to
// Fetching. The result never pushes the in-flight count above the
// concurrency cap. Returned entries are copies.
func (f *Frontier) Dequeue(n int) []model.QueueEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	if avail := f.maxConcurrency - f.inFlight; n > avail {
		n = avail
	}
	if n > len(f.pending) {
		n = len(f.pending)
	}
	if n <= 0 {
		return nil
	}

	out := make([]model.QueueEntry, 0, n)
	for _, e := range f.pending[:n] {
		e.State = model.EntryFetching
		out = append(out, *e)
	}
	// Drop references so terminal entries are only reachable through the map.
	clear(f.pending[:n])
	f.pending = f.pending[n:]
	f.inFlight += n

	return out
}

// MarkFetched moves an in-flight entry to Fetched.
func (f *Frontier) MarkFetched(rawURL string) error {
	return f.finish(rawURL, model.EntryFetched)
}

// MarkErrored moves an in-flight entry to Errored.
func (f *Frontier) MarkErrored(rawURL string) error {
	return f.finish(rawURL, model.EntryErrored)
}

func (f *Frontier) finish(rawURL string, state model.EntryState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[rawURL]
	if !ok || e.State != model.EntryFetching || !state.IsTerminal() {
		return ErrNotInFlight
	}

	e.State = state
	f.inFlight--
	if state == model.EntryFetched {
		f.fetched++
	} else {
		f.errored++
	}
	return nil
}

// IsComplete reports whether nothing is queued and nothing is in flight.
func (f *Frontier) IsComplete() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending) == 0 && f.inFlight == 0
}

// InFlight returns the number of entries currently being fetched.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Pending returns the number of queued entries.
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Known reports whether a normalized URL is in the dedup set.
func (f *Frontier) Known(normalized string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[normalized]
	return ok
}

// Entry returns a copy of the entry for a normalized URL.
func (f *Frontier) Entry(normalized string) (model.QueueEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[normalized]
	if !ok {
		return model.QueueEntry{}, false
	}
	return *e, true
}

// URLs returns the dedup set in sorted order.
func (f *Frontier) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	urls := make([]string, 0, len(f.entries))
	for u := range f.entries {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Stats returns a snapshot of per-state and rejection counts.
func (f *Frontier) Stats() model.FrontierStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	rejected := make(map[string]int, len(f.rejected))
	for reason, n := range f.rejected {
		rejected[string(reason)] = n
	}

	return model.FrontierStats{
		Known:    len(f.entries),
		Queued:   len(f.pending),
		InFlight: f.inFlight,
		Fetched:  f.fetched,
		Errored:  f.errored,
		Rejected: rejected,
	}
}

func isHTTPScheme(scheme string) bool {
	s := strings.ToLower(scheme)
	return s == "http" || s == "https"
}
