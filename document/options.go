package document

import (
	"errors"

	"github.com/joeycumines/go-fpguard"
	"github.com/joeycumines/go-fpguard/report"
	"github.com/joeycumines/logiface"
)

// documentOptions holds configuration for a [Document] instance.
type documentOptions struct {
	channel   report.Channel
	logger    *logiface.Logger[logiface.Event]
	location  string
	userAgent string
	screen    Screen
	guard     []fpguard.Option
}

// Option configures a [Document] instance.
type Option interface {
	applyOption(*documentOptions) error
}

// optionFunc implements [Option] via a closure.
type optionFunc struct {
	fn func(*documentOptions) error
}

func (o *optionFunc) applyOption(opts *documentOptions) error {
	return o.fn(opts)
}

// WithChannel configures the observer of blocked calls and overridden
// reads. This option is required.
func WithChannel(c report.Channel) Option {
	return &optionFunc{fn: func(opts *documentOptions) error {
		if c == nil {
			return errors.New("document: channel must not be nil")
		}
		opts.channel = c
		return nil
	}}
}

// WithLogger configures logging, including the page console, which is
// otherwise discarded.
func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return &optionFunc{fn: func(opts *documentOptions) error {
		opts.logger = l
		return nil
	}}
}

// WithLocation configures the document URL. Defaults to about:blank.
func WithLocation(url string) Option {
	return &optionFunc{fn: func(opts *documentOptions) error {
		if url == `` {
			return errors.New("document: location must not be empty")
		}
		opts.location = url
		return nil
	}}
}

// WithUserAgent configures navigator.userAgent.
func WithUserAgent(ua string) Option {
	return &optionFunc{fn: func(opts *documentOptions) error {
		opts.userAgent = ua
		return nil
	}}
}

// WithScreen configures the true screen geometry. Defaults to
// [DefaultScreen].
func WithScreen(s Screen) Option {
	return &optionFunc{fn: func(opts *documentOptions) error {
		if s.Width <= 0 || s.Height <= 0 || s.AvailWidth <= 0 || s.AvailHeight <= 0 {
			return errors.New("document: screen dimensions must be positive")
		}
		opts.screen = s
		return nil
	}}
}

// WithGuardOptions configures the [fpguard.Guard], e.g. a custom catalog.
// The channel, logger, and location are always those of the document.
func WithGuardOptions(o ...fpguard.Option) Option {
	return &optionFunc{fn: func(opts *documentOptions) error {
		opts.guard = append(opts.guard, o...)
		return nil
	}}
}

// resolveOptions applies the given options to a default [documentOptions]
// and validates that all required fields are set.
func resolveOptions(opts []Option) (*documentOptions, error) {
	cfg := &documentOptions{
		location:  `about:blank`,
		userAgent: DefaultUserAgent,
		screen:    DefaultScreen,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.channel == nil {
		return nil, errors.New("document: channel is required (use WithChannel)")
	}
	return cfg, nil
}
