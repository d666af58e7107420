// Package randomize offsets the screen geometry, once, at load time.
//
// Each geometry property is overridden with its true value minus an offset
// drawn from a [seqrand.Generator]. Resetting the generator and running a
// fresh [Initializer] reproduces the same offsets.
package randomize

import (
	"errors"
	"fmt"
	"math"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-fpguard/catalog"
	"github.com/joeycumines/go-fpguard/override"
	"github.com/joeycumines/go-fpguard/seqrand"
	"github.com/joeycumines/logiface"
)

var (
	// ErrAlreadyRun is returned by [Initializer.Run] after the first call.
	ErrAlreadyRun = errors.New(`randomize: already run`)

	// ErrDuplicateProperty indicates two geometry properties share a path,
	// which would silently discard one of the offsets.
	ErrDuplicateProperty = errors.New(`randomize: duplicate property`)

	// ErrNotNumber indicates a source value isn't a finite number.
	ErrNotNumber = errors.New(`randomize: source is not a number`)
)

type (
	// Reader reads the true value of a source path, e.g. screen.width.
	Reader func(path string) (float64, error)

	// Lookuper resolves a dotted path to a value, see [rebind.GojaRebinder].
	Lookuper interface {
		Lookup(path string) (goja.Value, error)
	}

	// Offset records one applied override.
	Offset struct {
		Path   string
		Source string
		True   float64
		Offset int
	}

	// Initializer applies the geometry overrides. Generator, Overrider, and
	// Reader are required.
	Initializer struct {
		Generator *seqrand.Generator
		Overrider *override.Overrider
		Reader    Reader
		Logger    *logiface.Logger[logiface.Event]

		// Properties defaults to the properties of [catalog.DefaultGeometry].
		Properties []catalog.GeometryProperty

		// Limit is the exclusive upper bound of each offset, defaulting to
		// [catalog.DefaultGeometryLimit].
		Limit int

		ran bool
	}
)

// Value is the overridden value, as reported on read.
func (x Offset) Value() float64 {
	return x.True - float64(x.Offset)
}

// LookupReader adapts a [Lookuper] as a [Reader].
func LookupReader(l Lookuper) Reader {
	return func(path string) (float64, error) {
		v, err := l.Lookup(path)
		if err != nil {
			return 0, err
		}
		switch v.Export().(type) {
		case int64, float64:
		default:
			return 0, fmt.Errorf(`%w: %s`, ErrNotNumber, path)
		}
		f := v.ToFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf(`%w: %s`, ErrNotNumber, path)
		}
		return f, nil
	}
}

// Run draws one offset per property, in order, and registers each override.
// It may be called only once; later calls return [ErrAlreadyRun].
//
// Properties are independent: an unreadable source skips that property,
// after its offset is drawn, and the failures are returned joined.
func (x *Initializer) Run() ([]Offset, error) {
	if x.ran {
		return nil, ErrAlreadyRun
	}
	x.ran = true

	if x.Generator == nil || x.Overrider == nil || x.Reader == nil {
		return nil, errors.New(`randomize: generator, overrider, and reader are required`)
	}

	properties := x.Properties
	if properties == nil {
		properties = catalog.DefaultGeometry().Properties
	}
	limit := x.Limit
	if limit == 0 {
		limit = catalog.DefaultGeometryLimit
	}

	seen := make(map[string]struct{}, len(properties))
	for _, p := range properties {
		if _, ok := seen[p.Path]; ok {
			return nil, fmt.Errorf(`%w: %s`, ErrDuplicateProperty, p.Path)
		}
		seen[p.Path] = struct{}{}
	}

	var (
		offsets = make([]Offset, 0, len(properties))
		errs    []error
	)
	for _, p := range properties {
		n, err := x.Generator.Intn(limit)
		if err != nil {
			return offsets, fmt.Errorf(`randomize: %w`, err)
		}
		v, err := x.Reader(p.Source)
		if err != nil {
			errs = append(errs, fmt.Errorf(`randomize: read %s: %w`, p.Source, err))
			continue
		}
		o := Offset{Path: p.Path, Source: p.Source, True: v, Offset: n}
		if err := x.Overrider.Property(o.Path, o.Value()); err != nil {
			errs = append(errs, err)
			continue
		}
		offsets = append(offsets, o)
	}

	if b := x.Logger.Debug(); b.Enabled() {
		b = b.Int(`limit`, limit)
		for _, o := range offsets {
			b = b.Int(o.Source, o.Offset)
		}
		b.Log(`screen geometry randomized`)
	}

	return offsets, errors.Join(errs...)
}
