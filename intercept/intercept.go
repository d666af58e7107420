// Package intercept replaces fingerprinting APIs with traps.
//
// Each trap reports the blocked call, attributed to the calling script, then
// returns the absorbing value in place of the real result. The original
// member never runs.
package intercept

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-fpguard/absorb"
	"github.com/joeycumines/go-fpguard/attribution"
	"github.com/joeycumines/go-fpguard/catalog"
	"github.com/joeycumines/go-fpguard/rebind"
	"github.com/joeycumines/go-fpguard/report"
	"github.com/joeycumines/logiface"
)

// Registry registers traps into a [rebind.Table]. Traps take effect once the
// table is applied. Install and InstallAll must not be called concurrently,
// while traps themselves run on the runtime's goroutine.
type Registry struct {
	resolver  *attribution.Resolver
	absorber  *absorb.Absorber
	channel   report.Channel
	table     *rebind.Table
	location  func() string
	logger    *logiface.Logger[logiface.Event]
	installed []catalog.Descriptor
}

// New constructs a [Registry]. See [WithAbsorber], [WithChannel], and
// [WithTable], all of which are required.
func New(opts ...Option) (*Registry, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Registry{
		resolver: cfg.resolver,
		absorber: cfg.absorber,
		channel:  cfg.channel,
		table:    cfg.table,
		location: cfg.location,
		logger:   cfg.logger,
	}, nil
}

// Install registers a trap for the descriptor's binding path, reporting the
// descriptor's category. Registering a path twice fails with
// [rebind.ErrDuplicateBinding].
func (x *Registry) Install(d catalog.Descriptor) error {
	if !d.Category().Valid() {
		return fmt.Errorf(`intercept: %w: %s`, catalog.ErrUnknownCategory, d.BindingPath())
	}
	err := x.table.Register(rebind.Binding{
		Path:  d.BindingPath(),
		Value: x.absorber.Runtime().ToValue(x.Trap(d.Category())),
	})
	if err != nil {
		return fmt.Errorf(`intercept: %w`, err)
	}
	x.installed = append(x.installed, d)
	return nil
}

// InstallAll calls Install for each descriptor, including bare function
// paths. Descriptors are independent: every descriptor is attempted, and
// any failures are returned joined.
func (x *Registry) InstallAll(descriptors []catalog.Descriptor) error {
	var errs []error
	for _, d := range descriptors {
		if err := x.Install(d); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	x.logger.Debug().
		Int(`descriptors`, len(descriptors)).
		Int(`failed`, len(errs)).
		Log(`traps registered`)
	return err
}

// Installed returns the descriptors registered so far, in order.
func (x *Registry) Installed() []catalog.Descriptor {
	return append([]catalog.Descriptor(nil), x.installed...)
}

// Trap returns the handler for the given category. It never panics, and
// always returns the absorbing value.
func (x *Registry) Trap(category catalog.Category) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) (result goja.Value) {
		result = x.absorber.Object()
		defer func() {
			if r := recover(); r != nil {
				x.logger.Err().
					Str(`type`, category.String()).
					Any(`panic`, r).
					Log(`trap failed to report`)
			}
		}()
		x.channel.SendReport(report.EventBlocked, report.Block{
			Type:      category.String(),
			ScriptURL: attribution.Strip(x.origin()),
		})
		return
	}
}

// origin attributes the current call, falling back to the location.
func (x *Registry) origin() string {
	if x.resolver != nil {
		if record, ok := x.resolver.Resolve(); ok && record.URL != `` {
			return record.String()
		}
	}
	if x.location != nil {
		return x.location()
	}
	return ``
}
