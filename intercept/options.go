package intercept

import (
	"errors"

	"github.com/joeycumines/go-fpguard/absorb"
	"github.com/joeycumines/go-fpguard/attribution"
	"github.com/joeycumines/go-fpguard/rebind"
	"github.com/joeycumines/go-fpguard/report"
	"github.com/joeycumines/logiface"
)

// registryOptions holds configuration for a [Registry] instance.
type registryOptions struct {
	resolver *attribution.Resolver
	absorber *absorb.Absorber
	channel  report.Channel
	table    *rebind.Table
	location func() string
	logger   *logiface.Logger[logiface.Event]
}

// Option configures a [Registry] instance.
type Option interface {
	applyOption(*registryOptions) error
}

// optionFunc implements [Option] via a closure.
type optionFunc struct {
	fn func(*registryOptions) error
}

func (o *optionFunc) applyOption(opts *registryOptions) error {
	return o.fn(opts)
}

// WithResolver configures the attribution of trapped calls. If not
// provided, every call is attributed to the document location.
func WithResolver(r *attribution.Resolver) Option {
	return &optionFunc{fn: func(opts *registryOptions) error {
		if r == nil {
			return errors.New("intercept: resolver must not be nil")
		}
		opts.resolver = r
		return nil
	}}
}

// WithAbsorber configures the value returned by every trap. This option is
// required.
func WithAbsorber(a *absorb.Absorber) Option {
	return &optionFunc{fn: func(opts *registryOptions) error {
		if a == nil {
			return errors.New("intercept: absorber must not be nil")
		}
		opts.absorber = a
		return nil
	}}
}

// WithChannel configures where block reports are sent. This option is
// required.
func WithChannel(c report.Channel) Option {
	return &optionFunc{fn: func(opts *registryOptions) error {
		if c == nil {
			return errors.New("intercept: channel must not be nil")
		}
		opts.channel = c
		return nil
	}}
}

// WithTable configures the table traps are registered into. This option is
// required.
func WithTable(t *rebind.Table) Option {
	return &optionFunc{fn: func(opts *registryOptions) error {
		if t == nil {
			return errors.New("intercept: table must not be nil")
		}
		opts.table = t
		return nil
	}}
}

// WithLocation configures the fallback origin, typically the document URL,
// used when a call can't be attributed to a script.
func WithLocation(fn func() string) Option {
	return &optionFunc{fn: func(opts *registryOptions) error {
		opts.location = fn
		return nil
	}}
}

// WithLogger configures logging, which is disabled by default.
func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return &optionFunc{fn: func(opts *registryOptions) error {
		opts.logger = l
		return nil
	}}
}

// resolveOptions applies the given options to a default [registryOptions]
// and validates that all required fields are set.
func resolveOptions(opts []Option) (*registryOptions, error) {
	cfg := &registryOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.absorber == nil {
		return nil, errors.New("intercept: absorber is required (use WithAbsorber)")
	}
	if cfg.channel == nil {
		return nil, errors.New("intercept: channel is required (use WithChannel)")
	}
	if cfg.table == nil {
		return nil, errors.New("intercept: table is required (use WithTable)")
	}
	return cfg, nil
}
