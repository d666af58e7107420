// Package rebind is the indirection table between trap handlers and the
// objects they replace members of.
//
// Handlers are registered as [Binding] values in a [Table], which is applied
// in a single pass through a [Rebinder]. Only the rebinder mutates script
// visible state. See [Goja] for the goja implementation.
package rebind

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

var (
	// ErrDuplicateBinding is returned when registering a path twice.
	ErrDuplicateBinding = errors.New(`rebind: duplicate binding`)
	// ErrPathNotFound is returned when a path, or the container of the
	// member being rebound, doesn't exist.
	ErrPathNotFound = errors.New(`rebind: path not found`)
	// ErrInvalidBinding is returned for an empty path, a nil value, or an
	// accessor that isn't callable.
	ErrInvalidBinding = errors.New(`rebind: invalid binding`)
)

type (
	// Binding replaces the member at Path with Value.
	Binding struct {
		// Value is the replacement, which must be callable if Accessor is
		// set.
		Value goja.Value
		// Path is a dotted path from the global object, e.g.
		// CanvasRenderingContext2D.prototype.getImageData.
		Path string
		// Accessor installs Value as the getter of an accessor property,
		// rather than as a data property.
		Accessor bool
	}

	// Rebinder applies a single binding.
	Rebinder interface {
		Rebind(b Binding) error
	}

	// RebinderFunc implements [Rebinder].
	RebinderFunc func(b Binding) error

	// Table is an ordered set of bindings, keyed by path. The zero value is
	// ready to use. Not safe for concurrent use.
	Table struct {
		index    map[string]int
		bindings []Binding
	}

	// GojaRebinder rebinds members of a goja runtime's global object graph.
	GojaRebinder struct {
		vm *goja.Runtime
	}
)

// Rebind calls f(b).
func (f RebinderFunc) Rebind(b Binding) error { return f(b) }

// Register adds a binding, failing with [ErrDuplicateBinding] if the path is
// already registered.
func (x *Table) Register(b Binding) error {
	if b.Path == `` || b.Value == nil {
		return fmt.Errorf(`%w: %q`, ErrInvalidBinding, b.Path)
	}
	if _, ok := x.index[b.Path]; ok {
		return fmt.Errorf(`%w: %s`, ErrDuplicateBinding, b.Path)
	}
	if x.index == nil {
		x.index = make(map[string]int)
	}
	x.index[b.Path] = len(x.bindings)
	x.bindings = append(x.bindings, b)
	return nil
}

// Lookup returns the binding registered for path.
func (x *Table) Lookup(path string) (Binding, bool) {
	if i, ok := x.index[path]; ok {
		return x.bindings[i], true
	}
	return Binding{}, false
}

// Len returns the number of registered bindings.
func (x *Table) Len() int {
	return len(x.bindings)
}

// Bindings returns a copy of the bindings, in registration order.
func (x *Table) Bindings() []Binding {
	return append([]Binding(nil), x.bindings...)
}

// Apply rebinds every registered binding, in registration order. Each
// binding is independent: failures are collected, and returned joined,
// after all bindings have been attempted.
func (x *Table) Apply(r Rebinder) error {
	var errs []error
	for _, b := range x.bindings {
		if err := r.Rebind(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Goja returns a rebinder for the given runtime, which must not be nil. It
// must only be used on the runtime's goroutine.
func Goja(vm *goja.Runtime) *GojaRebinder {
	if vm == nil {
		panic(`rebind: nil runtime`)
	}
	return &GojaRebinder{vm: vm}
}

// Rebind defines the final path segment on its container, which must exist.
// Data bindings are writable, configurable, and non-enumerable, like
// built-in methods. Accessor bindings are configurable and enumerable, and
// have no setter.
//
// An existing non-configurable but writable property, e.g. a global
// declared with var or function, keeps its attributes, and only has its
// value replaced. Accessor bindings can't replace such a property.
func (x *GojaRebinder) Rebind(b Binding) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf(`rebind: %s: %v`, b.Path, r)
		}
	}()

	if b.Path == `` || b.Value == nil {
		return fmt.Errorf(`%w: %q`, ErrInvalidBinding, b.Path)
	}

	var container *goja.Object
	name := b.Path
	if i := strings.LastIndexByte(b.Path, '.'); i >= 0 {
		v, err := x.Lookup(b.Path[:i])
		if err != nil {
			return err
		}
		var ok bool
		if container, ok = v.(*goja.Object); !ok {
			return fmt.Errorf(`%w: %s: not an object`, ErrPathNotFound, b.Path[:i])
		}
		name = b.Path[i+1:]
	} else {
		container = x.vm.GlobalObject()
	}

	if b.Accessor {
		if _, ok := goja.AssertFunction(b.Value); !ok {
			return fmt.Errorf(`%w: %s: getter is not callable`, ErrInvalidBinding, b.Path)
		}
		err = container.DefineAccessorProperty(name, b.Value, nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	} else {
		err = container.DefineDataProperty(name, b.Value, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
		if err != nil && container.DefineDataProperty(name, b.Value, goja.FLAG_TRUE, goja.FLAG_NOT_SET, goja.FLAG_NOT_SET) == nil {
			err = nil
		}
	}
	if err != nil {
		return fmt.Errorf(`rebind: %s: %w`, b.Path, err)
	}
	return nil
}

// Lookup reads the value at a dotted path from the global object. Every
// segment must be present, and each container must be an object.
func (x *GojaRebinder) Lookup(path string) (value goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf(`rebind: %s: %v`, path, r)
		}
	}()

	if path == `` {
		return nil, fmt.Errorf(`%w: empty path`, ErrPathNotFound)
	}

	object := x.vm.GlobalObject()
	segments := strings.Split(path, `.`)
	for i, segment := range segments {
		value = object.Get(segment)
		if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
			return nil, fmt.Errorf(`%w: %s`, ErrPathNotFound, strings.Join(segments[:i+1], `.`))
		}
		if i == len(segments)-1 {
			break
		}
		var ok bool
		if object, ok = value.(*goja.Object); !ok {
			return nil, fmt.Errorf(`%w: %s: not an object`, ErrPathNotFound, strings.Join(segments[:i+1], `.`))
		}
	}
	return value, nil
}
