package exchange

import "time"

type Option func(*Options)

type Options struct {
	Limit int
	Since time.Time
}

// WithLimit caps the number of records returned.
func WithLimit(limit int) Option {
	return func(o *Options) {
		o.Limit = limit
	}
}

// WithSince returns only records at or after t.
func WithSince(t time.Time) Option {
	return func(o *Options) {
		o.Since = t
	}
}

func ApplyOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
