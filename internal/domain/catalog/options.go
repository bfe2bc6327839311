package catalog

// Option applies a configuration option to the Catalog.
type Option func(*Catalog)

// WithEntry adds an event type or replaces the default definition of an existing one.
func WithEntry(e Entry) Option {
	return func(c *Catalog) {
		c.entries[e.Type] = e
	}
}

// WithEntries adds or replaces several event types at once.
func WithEntries(entries ...Entry) Option {
	return func(c *Catalog) {
		for _, e := range entries {
			c.entries[e.Type] = e
		}
	}
}

// WithoutDefaults drops the built-in event types so only configured ones are recognized.
// It must precede any WithEntry option.
func WithoutDefaults() Option {
	return func(c *Catalog) {
		c.entries = make(map[string]Entry)
	}
}

// WithMaxCorrection bounds the magnitude of a score_correction amount.
func WithMaxCorrection(limit int) Option {
	return func(c *Catalog) {
		if limit > 0 {
			c.maxCorrection = limit
		}
	}
}
