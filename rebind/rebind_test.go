package rebind

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Register(t *testing.T) {
	vm := goja.New()
	var table Table
	require.NoError(t, table.Register(Binding{Path: `a.b`, Value: vm.ToValue(1)}))
	require.NoError(t, table.Register(Binding{Path: `a.c`, Value: vm.ToValue(2)}))

	err := table.Register(Binding{Path: `a.b`, Value: vm.ToValue(3)})
	assert.ErrorIs(t, err, ErrDuplicateBinding)
	assert.ErrorContains(t, err, `a.b`)

	assert.ErrorIs(t, table.Register(Binding{Value: vm.ToValue(1)}), ErrInvalidBinding)
	assert.ErrorIs(t, table.Register(Binding{Path: `a.d`}), ErrInvalidBinding)

	assert.Equal(t, 2, table.Len())
	b, ok := table.Lookup(`a.b`)
	require.True(t, ok)
	assert.Equal(t, int64(1), b.Value.Export())
	_, ok = table.Lookup(`a.d`)
	assert.False(t, ok)

	bindings := table.Bindings()
	require.Len(t, bindings, 2)
	assert.Equal(t, `a.b`, bindings[0].Path)
	assert.Equal(t, `a.c`, bindings[1].Path)
}

func TestTable_Apply_independent(t *testing.T) {
	vm := goja.New()
	var table Table
	for _, path := range [...]string{`one`, `two`, `three`} {
		require.NoError(t, table.Register(Binding{Path: path, Value: vm.ToValue(path)}))
	}

	errTwo := errors.New(`two failed`)
	var applied []string
	err := table.Apply(RebinderFunc(func(b Binding) error {
		applied = append(applied, b.Path)
		if b.Path == `two` {
			return errTwo
		}
		return nil
	}))
	assert.ErrorIs(t, err, errTwo)
	assert.Equal(t, []string{`one`, `two`, `three`}, applied)
}

func TestTable_Apply_empty(t *testing.T) {
	var table Table
	assert.NoError(t, table.Apply(RebinderFunc(func(Binding) error {
		t.Fatal(`unexpected call`)
		return nil
	})))
}

func newStubRuntime(t *testing.T) *goja.Runtime {
	t.Helper()
	vm := goja.New()
	_, err := vm.RunString(`
function Widget() {}
Widget.prototype.measure = function () { return 42; };
Object.defineProperty(Widget.prototype, 'size', { get: function () { return 7; }, configurable: true, enumerable: true });
var widget = new Widget();
var ns = { inner: { fn: function () { return 'real'; } } };
var scalar = 5;
`)
	require.NoError(t, err)
	return vm
}

func TestGojaRebinder_Rebind_data(t *testing.T) {
	vm := newStubRuntime(t)
	r := Goja(vm)

	require.NoError(t, r.Rebind(Binding{
		Path:  `Widget.prototype.measure`,
		Value: vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(`trapped`) }),
	}))
	require.NoError(t, r.Rebind(Binding{
		Path:  `ns.inner.fn`,
		Value: vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(`bare`) }),
	}))

	v, err := vm.RunString(`[widget.measure(), ns.inner.fn(), Object.keys(Widget.prototype).indexOf('measure')].join()`)
	require.NoError(t, err)
	assert.Equal(t, `trapped,bare,-1`, v.String())
}

func TestGojaRebinder_Rebind_accessor(t *testing.T) {
	vm := newStubRuntime(t)
	r := Goja(vm)

	require.NoError(t, r.Rebind(Binding{
		Path:     `Widget.prototype.size`,
		Value:    vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(3) }),
		Accessor: true,
	}))

	v, err := vm.RunString(`widget.size`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Export())

	assert.ErrorIs(t, r.Rebind(Binding{Path: `Widget.prototype.other`, Value: vm.ToValue(1), Accessor: true}), ErrInvalidBinding)
}

func TestGojaRebinder_Rebind_global(t *testing.T) {
	vm := newStubRuntime(t)
	r := Goja(vm)
	require.NoError(t, r.Rebind(Binding{Path: `scalar`, Value: vm.ToValue(6)}))
	require.NoError(t, r.Rebind(Binding{
		Path:  `Widget`,
		Value: vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(`trapped`) }),
	}))
	v, err := vm.RunString(`[scalar, Widget(), Object.keys(globalThis).indexOf('scalar') !== -1, Object.getOwnPropertyDescriptor(globalThis, 'scalar').configurable]`)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(6), `trapped`, true, false}, v.Export())
}

func TestGojaRebinder_Rebind_globalReadOnly(t *testing.T) {
	vm := newStubRuntime(t)
	_, err := vm.RunString(`Object.defineProperty(globalThis, 'fixed', { value: 1 })`)
	require.NoError(t, err)
	r := Goja(vm)
	assert.ErrorContains(t, r.Rebind(Binding{Path: `fixed`, Value: vm.ToValue(2)}), `fixed`)

	getter := vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(9) })
	assert.ErrorContains(t, r.Rebind(Binding{Path: `scalar`, Value: getter, Accessor: true}), `scalar`)

	v, err := vm.RunString(`[fixed, scalar]`)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(5)}, v.Export())
}

func TestGojaRebinder_Rebind_notFound(t *testing.T) {
	vm := newStubRuntime(t)
	r := Goja(vm)
	for _, path := range [...]string{
		`webkitRTCPeerConnection.prototype.createOffer`,
		`ns.missing.fn`,
		`scalar.x`,
	} {
		t.Run(path, func(t *testing.T) {
			err := r.Rebind(Binding{Path: path, Value: vm.ToValue(1)})
			assert.ErrorIs(t, err, ErrPathNotFound)
		})
	}
}

func TestGojaRebinder_Rebind_frozen(t *testing.T) {
	vm := newStubRuntime(t)
	_, err := vm.RunString(`Object.freeze(ns.inner)`)
	require.NoError(t, err)
	err = Goja(vm).Rebind(Binding{Path: `ns.inner.fn`, Value: vm.ToValue(1)})
	assert.ErrorContains(t, err, `ns.inner.fn`)
}

func TestGojaRebinder_Lookup(t *testing.T) {
	vm := newStubRuntime(t)
	r := Goja(vm)

	v, err := r.Lookup(`widget.size`)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.Export())

	v, err = r.Lookup(`scalar`)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Export())

	_, err = r.Lookup(`widget.missing`)
	assert.ErrorIs(t, err, ErrPathNotFound)
	_, err = r.Lookup(``)
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestGoja_nilRuntime(t *testing.T) {
	assert.Panics(t, func() { Goja(nil) })
}
