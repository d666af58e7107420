// Package absorb implements the absorbing value: a single JavaScript value
// that stands in for the result of a blocked API, surviving any chain of
// calls, property reads, writes, and index operations.
//
// The value is a goja Proxy over a no-op function template. Every operation
// yields the value itself, except for primitive coercion, which yields "" or
// 0, and reflection, which only exposes the template's non-configurable own
// properties.
package absorb

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// templateSource is evaluated to obtain the no-op function template.
const templateSource = `(function () {})`

const (
	// StringProperty reads as an empty string, rather than a function.
	StringProperty = `toString`
	// NumberProperty reads as zero, rather than a function.
	NumberProperty = `valueOf`
)

// ErrTemplate is returned by [New] if the no-op function template can't be
// created, or inspected.
var ErrTemplate = errors.New(`absorb: invalid function template`)

type (
	// Value is the capability set of the absorbing value, as observed by
	// script code.
	Value interface {
		// Invoke models a call (or construction), always returning the
		// absorbing value.
		Invoke(args ...goja.Value) goja.Value
		// Get models a property read.
		Get(name string) goja.Value
		// Set models a property write, which is accepted and ignored.
		Set(name string, value goja.Value) goja.Value
		// String models coercion to a string.
		String() string
		// Number models coercion to a number.
		Number() float64
		// Keys models own key enumeration.
		Keys() []string
		// Has models the `in` operator.
		Has(name string) bool
	}

	// Absorber is the absorbing value of a single goja runtime. It must only
	// be used on the runtime's goroutine.
	Absorber struct {
		vm          *goja.Runtime
		object      *goja.Object
		template    *goja.Object
		toPrimitive goja.Value
		empty       goja.Value
		zero        goja.Value
		names       []string
		descriptors map[string]goja.PropertyDescriptor
	}
)

var _ Value = (*Absorber)(nil)

// New builds the absorbing value for the given runtime, which must not be
// nil, and must not be running script code on another goroutine.
func New(vm *goja.Runtime) (*Absorber, error) {
	if vm == nil {
		panic(`absorb: nil runtime`)
	}

	value, err := vm.RunString(templateSource)
	if err != nil {
		return nil, fmt.Errorf(`%w: %w`, ErrTemplate, err)
	}
	template, ok := value.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf(`%w: %T`, ErrTemplate, value)
	}
	if _, ok := goja.AssertFunction(template); !ok {
		return nil, fmt.Errorf(`%w: not callable`, ErrTemplate)
	}

	x := &Absorber{
		vm:          vm,
		template:    template,
		empty:       vm.ToValue(``),
		zero:        vm.ToValue(0),
		descriptors: make(map[string]goja.PropertyDescriptor),
	}

	if err := x.describeTemplate(); err != nil {
		return nil, err
	}

	x.toPrimitive = vm.ToValue(x.coerce)

	x.object = vm.ToValue(vm.NewProxy(template, &goja.ProxyTrapConfig{
		Apply: func(_ *goja.Object, _ goja.Value, args []goja.Value) goja.Value {
			return x.Invoke(args...)
		},
		Construct: func(*goja.Object, []goja.Value, *goja.Object) *goja.Object {
			return x.object
		},
		Get: func(_ *goja.Object, property string, _ goja.Value) goja.Value {
			return x.Get(property)
		},
		GetIdx: func(*goja.Object, int, goja.Value) goja.Value {
			return x.object
		},
		GetSym: func(_ *goja.Object, property *goja.Symbol, _ goja.Value) goja.Value {
			if property == goja.SymToPrimitive {
				return x.toPrimitive
			}
			return x.object
		},
		Set: func(*goja.Object, string, goja.Value, goja.Value) bool {
			return true
		},
		SetIdx: func(*goja.Object, int, goja.Value, goja.Value) bool {
			return true
		},
		SetSym: func(*goja.Object, *goja.Symbol, goja.Value, goja.Value) bool {
			return true
		},
		Has: func(_ *goja.Object, property string) bool {
			return x.Has(property)
		},
		HasSym: func(*goja.Object, *goja.Symbol) bool {
			return false
		},
		OwnKeys: func(*goja.Object) *goja.Object {
			keys := x.Keys()
			items := make([]any, len(keys))
			for i, k := range keys {
				items[i] = k
			}
			return vm.NewArray(items...)
		},
		GetOwnPropertyDescriptor: func(_ *goja.Object, property string) goja.PropertyDescriptor {
			return x.descriptors[property]
		},
		GetOwnPropertyDescriptorSym: func(*goja.Object, *goja.Symbol) goja.PropertyDescriptor {
			return goja.PropertyDescriptor{}
		},
		DefineProperty: func(_ *goja.Object, key string, desc goja.PropertyDescriptor) bool {
			return !x.Has(key) && desc.Configurable != goja.FLAG_FALSE
		},
		DefinePropertySym: func(_ *goja.Object, _ *goja.Symbol, desc goja.PropertyDescriptor) bool {
			return desc.Configurable != goja.FLAG_FALSE
		},
		DeleteProperty: func(_ *goja.Object, property string) bool {
			return !x.Has(property)
		},
		PreventExtensions: func(*goja.Object) bool {
			return false
		},
	})).(*goja.Object)

	return x, nil
}

// describeTemplate records the non-configurable own properties of the
// template, and their descriptors.
func (x *Absorber) describeTemplate() error {
	object := x.vm.Get(`Object`).ToObject(x.vm)
	getOwnPropertyDescriptor, ok := goja.AssertFunction(object.Get(`getOwnPropertyDescriptor`))
	if !ok {
		return fmt.Errorf(`%w: Object.getOwnPropertyDescriptor unavailable`, ErrTemplate)
	}

	for _, name := range x.template.GetOwnPropertyNames() {
		v, err := getOwnPropertyDescriptor(object, x.template, x.vm.ToValue(name))
		if err != nil {
			return fmt.Errorf(`%w: %s: %w`, ErrTemplate, name, err)
		}
		d := v.ToObject(x.vm)
		if d.Get(`configurable`).ToBoolean() {
			continue
		}
		desc := goja.PropertyDescriptor{
			Configurable: goja.FLAG_FALSE,
			Enumerable:   goja.ToFlag(d.Get(`enumerable`).ToBoolean()),
		}
		if getter, setter := d.Get(`get`), d.Get(`set`); getter != nil || setter != nil {
			desc.Getter, desc.Setter = getter, setter
		} else {
			desc.Value = d.Get(`value`)
			desc.Writable = goja.ToFlag(d.Get(`writable`).ToBoolean())
		}
		x.names = append(x.names, name)
		x.descriptors[name] = desc
	}

	return nil
}

// coerce is the Symbol.toPrimitive implementation.
func (x *Absorber) coerce(call goja.FunctionCall) goja.Value {
	switch call.Argument(0).String() {
	case `string`:
		return x.empty
	case `number`, `default`:
		return x.zero
	default:
		return goja.Undefined()
	}
}

// Object returns the absorbing value, as exposed to scripts.
func (x *Absorber) Object() *goja.Object {
	return x.object
}

// Runtime returns the runtime the absorbing value belongs to.
func (x *Absorber) Runtime() *goja.Runtime {
	return x.vm
}

// Is reports whether v is the absorbing value.
func (x *Absorber) Is(v goja.Value) bool {
	return v != nil && v.SameAs(x.object)
}

// Invoke returns the absorbing value, for any arguments.
func (x *Absorber) Invoke(...goja.Value) goja.Value {
	return x.object
}

// Get returns the absorbing value, except for [StringProperty] and
// [NumberProperty], which read as "" and 0.
func (x *Absorber) Get(name string) goja.Value {
	switch name {
	case StringProperty:
		return x.empty
	case NumberProperty:
		return x.zero
	default:
		return x.object
	}
}

// Set ignores the write, returning the absorbing value.
func (x *Absorber) Set(string, goja.Value) goja.Value {
	return x.object
}

// String is the string coercion, always empty.
func (x *Absorber) String() string {
	return ``
}

// Number is the numeric coercion, always zero.
func (x *Absorber) Number() float64 {
	return 0
}

// Keys returns the names of the template's non-configurable own properties.
func (x *Absorber) Keys() []string {
	return append([]string(nil), x.names...)
}

// Has reports whether name is one of [Absorber.Keys].
func (x *Absorber) Has(name string) bool {
	_, ok := x.descriptors[name]
	return ok
}
