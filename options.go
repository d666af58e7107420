package fpguard

import (
	"errors"

	"github.com/joeycumines/go-fpguard/catalog"
	"github.com/joeycumines/go-fpguard/rebind"
	"github.com/joeycumines/go-fpguard/report"
	"github.com/joeycumines/go-fpguard/seqrand"
	"github.com/joeycumines/logiface"
)

// guardOptions holds configuration for a [Guard] instance.
type guardOptions struct {
	catalog   *catalog.Catalog
	channel   report.Channel
	logger    *logiface.Logger[logiface.Event]
	generator *seqrand.Generator
	location  func() string
	rebinder  rebind.Rebinder
	noScreen  bool
}

// Option configures a [Guard] instance.
type Option interface {
	applyOption(*guardOptions) error
}

// optionFunc implements [Option] via a closure.
type optionFunc struct {
	fn func(*guardOptions) error
}

func (o *optionFunc) applyOption(opts *guardOptions) error {
	return o.fn(opts)
}

// WithCatalog configures the trapped members and the screen geometry.
// Defaults to [catalog.Default].
func WithCatalog(c *catalog.Catalog) Option {
	return &optionFunc{fn: func(opts *guardOptions) error {
		if c == nil {
			return errors.New("fpguard: catalog must not be nil")
		}
		opts.catalog = c
		return nil
	}}
}

// WithChannel configures the observer that receives every report. This
// option is required.
func WithChannel(c report.Channel) Option {
	return &optionFunc{fn: func(opts *guardOptions) error {
		if c == nil {
			return errors.New("fpguard: channel must not be nil")
		}
		opts.channel = c
		return nil
	}}
}

// WithLogger configures logging, which is disabled by default.
func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return &optionFunc{fn: func(opts *guardOptions) error {
		opts.logger = l
		return nil
	}}
}

// WithGenerator configures the source of the screen offsets. A generator
// that has been reset replays the same offsets. Defaults to
// [seqrand.New].
func WithGenerator(g *seqrand.Generator) Option {
	return &optionFunc{fn: func(opts *guardOptions) error {
		if g == nil {
			return errors.New("fpguard: generator must not be nil")
		}
		opts.generator = g
		return nil
	}}
}

// WithLocation configures the document URL, reported for calls that can't
// be attributed to a script.
func WithLocation(fn func() string) Option {
	return &optionFunc{fn: func(opts *guardOptions) error {
		opts.location = fn
		return nil
	}}
}

// WithRebinder configures how traps are bound into the runtime. Defaults to
// [rebind.Goja].
func WithRebinder(r rebind.Rebinder) Option {
	return &optionFunc{fn: func(opts *guardOptions) error {
		if r == nil {
			return errors.New("fpguard: rebinder must not be nil")
		}
		opts.rebinder = r
		return nil
	}}
}

// WithoutScreenRandomization leaves the screen geometry untouched.
func WithoutScreenRandomization() Option {
	return &optionFunc{fn: func(opts *guardOptions) error {
		opts.noScreen = true
		return nil
	}}
}

// resolveOptions applies the given options to a default [guardOptions]
// and validates that all required fields are set.
func resolveOptions(opts []Option) (*guardOptions, error) {
	cfg := &guardOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.channel == nil {
		return nil, errors.New("fpguard: channel is required (use WithChannel)")
	}
	if cfg.catalog == nil {
		cfg.catalog = catalog.Default()
	}
	return cfg, nil
}
