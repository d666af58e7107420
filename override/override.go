// Package override pins properties to fixed values, as observed by the
// privileged observer.
//
// Reads of an overridden property report the fixed value, on
// [report.EventOverride], and return the absorbing value to the page, the
// same as a trapped call.
package override

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-fpguard/absorb"
	"github.com/joeycumines/go-fpguard/rebind"
	"github.com/joeycumines/go-fpguard/report"
	"github.com/joeycumines/logiface"
)

type (
	// Overrider registers property overrides into a [rebind.Table].
	Overrider struct {
		table    *rebind.Table
		absorber *absorb.Absorber
		channel  report.Channel
		logger   *logiface.Logger[logiface.Event]
	}

	// Option configures an [Overrider].
	Option func(*Overrider)
)

// WithLogger configures logging of overridden reads, at debug level.
func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return func(o *Overrider) { o.logger = l }
}

// New constructs an [Overrider]. The table, absorber, and channel must not
// be nil.
func New(table *rebind.Table, absorber *absorb.Absorber, channel report.Channel, opts ...Option) *Overrider {
	if table == nil || absorber == nil || channel == nil {
		panic(`override: nil table, absorber, or channel`)
	}
	x := &Overrider{
		table:    table,
		absorber: absorber,
		channel:  channel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(x)
		}
	}
	return x
}

// Property registers an accessor at path, e.g. Screen.prototype.width,
// reporting value on every read. Registering a path twice fails with
// [rebind.ErrDuplicateBinding].
func (x *Overrider) Property(path string, value float64) error {
	err := x.table.Register(rebind.Binding{
		Path:     path,
		Value:    x.absorber.Runtime().ToValue(x.getter(path, value)),
		Accessor: true,
	})
	if err != nil {
		return fmt.Errorf(`override: %w`, err)
	}
	return nil
}

func (x *Overrider) getter(path string, value float64) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) (result goja.Value) {
		result = x.absorber.Object()
		defer func() {
			if r := recover(); r != nil {
				x.logger.Err().
					Str(`path`, path).
					Any(`panic`, r).
					Log(`override failed to report`)
			}
		}()
		x.logger.Debug().
			Str(`path`, path).
			Float64(`value`, value).
			Log(`override property returning`)
		x.channel.SendReport(report.EventOverride, report.Override{Path: path, Value: value})
		return
	}
}
