package frontier

// Option configures a Frontier.
type Option func(*Frontier)

// WithStripQuerystring removes query strings during normalization.
func WithStripQuerystring(strip bool) Option {
	return func(f *Frontier) {
		f.stripQuerystring = strip
	}
}

// WithRestrictToBasepath limits admission to URLs sharing the seed's
// scheme, host and directory prefix.
func WithRestrictToBasepath(restrict bool) Option {
	return func(f *Frontier) {
		f.restrictToBasepath = restrict
	}
}

// WithMaxDepth sets the maximum link depth. 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(f *Frontier) {
		f.maxDepth = depth
	}
}

// WithMaxConcurrency sets the cap on in-flight entries honoured by Dequeue.
func WithMaxConcurrency(n int) Option {
	return func(f *Frontier) {
		if n > 0 {
			f.maxConcurrency = n
		}
	}
}

// WithExclude sets the excluded file extensions (without the dot).
func WithExclude(exts []string) Option {
	return func(f *Frontier) {
		f.excludeExt = compileExtensionPattern(exts)
	}
}

// WithExcludePaths sets literal path substrings that are never admitted.
func WithExcludePaths(paths []string) Option {
	return func(f *Frontier) {
		f.excludePaths = append([]string(nil), paths...)
	}
}

// WithIgnore sets the caller's ignore predicate.
func WithIgnore(ignore func(string) bool) Option {
	return func(f *Frontier) {
		f.ignore = ignore
	}
}
