package fpguard

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-fpguard/absorb"
	"github.com/joeycumines/go-fpguard/attribution"
	"github.com/joeycumines/go-fpguard/catalog"
	"github.com/joeycumines/go-fpguard/intercept"
	"github.com/joeycumines/go-fpguard/override"
	"github.com/joeycumines/go-fpguard/randomize"
	"github.com/joeycumines/go-fpguard/rebind"
	"github.com/joeycumines/go-fpguard/report"
	"github.com/joeycumines/go-fpguard/seqrand"
	"github.com/joeycumines/logiface"
)

// ErrAlreadyInstalled is returned by [Guard.Install] after the first call.
var ErrAlreadyInstalled = errors.New(`fpguard: already installed`)

// Guard installs fingerprinting protection into a single [goja.Runtime].
type Guard struct {
	runtime   *goja.Runtime
	absorber  *absorb.Absorber
	catalog   *catalog.Catalog
	channel   report.Channel
	logger    *logiface.Logger[logiface.Event]
	generator *seqrand.Generator
	location  func() string
	rebinder  rebind.Rebinder
	lookup    *rebind.GojaRebinder
	installed []catalog.Descriptor
	offsets   []randomize.Offset
	noScreen  bool
	done      bool
}

// New creates a new [Guard] bound to the given [goja.Runtime], which must not
// be nil. See [WithChannel], which is required.
//
// New fails if the secure random source is unavailable, there is no
// fallback to a weaker source.
func New(runtime *goja.Runtime, opts ...Option) (*Guard, error) {
	if runtime == nil {
		panic("fpguard: runtime must not be nil")
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	if cfg.generator == nil && !cfg.noScreen {
		if cfg.generator, err = seqrand.New(); err != nil {
			return nil, fmt.Errorf(`fpguard: %w`, err)
		}
	}

	absorber, err := absorb.New(runtime)
	if err != nil {
		return nil, fmt.Errorf(`fpguard: %w`, err)
	}

	lookup := rebind.Goja(runtime)
	if cfg.rebinder == nil {
		cfg.rebinder = lookup
	}

	return &Guard{
		runtime:   runtime,
		absorber:  absorber,
		catalog:   cfg.catalog,
		channel:   cfg.channel,
		logger:    cfg.logger,
		generator: cfg.generator,
		location:  cfg.location,
		rebinder:  cfg.rebinder,
		lookup:    lookup,
		noScreen:  cfg.noScreen,
	}, nil
}

// Install registers a trap for every catalog descriptor, and overrides the
// screen geometry, then binds all of them in a single pass. It must be
// called on the runtime's goroutine, before any page script runs.
//
// Descriptors are independent. Failures, such as a member that doesn't
// exist in this runtime, are returned joined, and don't prevent the rest
// from being installed. Install may only be called once, later calls
// return [ErrAlreadyInstalled].
func (g *Guard) Install() error {
	if g.done {
		return ErrAlreadyInstalled
	}
	g.done = true

	var (
		table rebind.Table
		errs  []error
	)

	registry, err := intercept.New(
		intercept.WithResolver(attribution.NewResolver(attribution.Goja(g.runtime))),
		intercept.WithAbsorber(g.absorber),
		intercept.WithChannel(g.channel),
		intercept.WithTable(&table),
		intercept.WithLocation(g.location),
		intercept.WithLogger(g.logger),
	)
	if err != nil {
		return err
	}
	if err := registry.InstallAll(g.catalog.Descriptors()); err != nil {
		errs = append(errs, err)
	}
	g.installed = registry.Installed()

	if geometry := g.catalog.Geometry(); !g.noScreen && len(geometry.Properties) != 0 {
		initializer := randomize.Initializer{
			Generator:  g.generator,
			Overrider:  override.New(&table, g.absorber, g.channel, override.WithLogger(g.logger)),
			Reader:     randomize.LookupReader(g.lookup),
			Logger:     g.logger,
			Properties: geometry.Properties,
			Limit:      geometry.Limit,
		}
		offsets, err := initializer.Run()
		if err != nil {
			errs = append(errs, err)
		}
		g.offsets = offsets
	}

	if err := table.Apply(g.rebinder); err != nil {
		errs = append(errs, err)
	}

	err = errors.Join(errs...)

	b := g.logger.Info()
	if err != nil {
		b = g.logger.Warning().Err(err)
	}
	b.Int(`traps`, len(g.installed)).
		Int(`overrides`, len(g.offsets)).
		Int(`bindings`, table.Len()).
		Log(`fingerprinting protection installed`)

	return err
}

// Runtime returns the [goja.Runtime] this guard is bound to.
func (g *Guard) Runtime() *goja.Runtime {
	return g.runtime
}

// Absorber returns the value returned by every trap.
func (g *Guard) Absorber() *absorb.Absorber {
	return g.absorber
}

// Installed returns the descriptors that were registered as traps.
func (g *Guard) Installed() []catalog.Descriptor {
	return append([]catalog.Descriptor(nil), g.installed...)
}

// Offsets returns the applied screen offsets, in catalog order.
func (g *Guard) Offsets() []randomize.Offset {
	return append([]randomize.Offset(nil), g.offsets...)
}
