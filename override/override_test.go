package override

import (
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-fpguard/absorb"
	"github.com/joeycumines/go-fpguard/rebind"
	"github.com/joeycumines/go-fpguard/report"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T) (*goja.Runtime, *absorb.Absorber) {
	t.Helper()
	vm := goja.New()
	_, err := vm.RunString(`
function Screen() {}
Object.defineProperty(Screen.prototype, 'width', { get: function () { return 1920; }, configurable: true, enumerable: true });
var screen = new Screen();
`)
	require.NoError(t, err)
	absorber, err := absorb.New(vm)
	require.NoError(t, err)
	return vm, absorber
}

func TestOverrider_Property(t *testing.T) {
	vm, absorber := newRuntime(t)
	var (
		table    rebind.Table
		recorder report.Recorder
		logs     strings.Builder
	)
	o := New(&table, absorber, &recorder, WithLogger(stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&logs), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()))

	require.NoError(t, o.Property(`Screen.prototype.width`, 1901))
	assert.ErrorIs(t, o.Property(`Screen.prototype.width`, 1), rebind.ErrDuplicateBinding)

	// not applied yet
	v, err := vm.RunString(`screen.width`)
	require.NoError(t, err)
	assert.Equal(t, int64(1920), v.Export())
	assert.Empty(t, recorder.Messages())

	require.NoError(t, table.Apply(rebind.Goja(vm)))

	v, err = vm.RunString(`[screen.width, screen.width - 10, screen.width.foo.bar()]`)
	require.NoError(t, err)
	results := v.ToObject(vm)
	assert.True(t, absorber.Is(results.Get(`0`)))
	assert.Equal(t, int64(-10), results.Get(`1`).Export())
	assert.True(t, absorber.Is(results.Get(`2`)))

	assert.Equal(t, []report.Override{
		{Path: `Screen.prototype.width`, Value: 1901},
		{Path: `Screen.prototype.width`, Value: 1901},
		{Path: `Screen.prototype.width`, Value: 1901},
	}, recorder.Overrides())
	assert.Equal(t, 3, strings.Count(logs.String(), `"msg":"override property returning"`))
}

func TestOverrider_Property_channelPanics(t *testing.T) {
	vm, absorber := newRuntime(t)
	var table rebind.Table
	o := New(&table, absorber, report.ChannelFunc(func(string, any) { panic(`boom`) }))
	require.NoError(t, o.Property(`Screen.prototype.width`, 1))
	require.NoError(t, table.Apply(rebind.Goja(vm)))

	v, err := vm.RunString(`screen.width`)
	require.NoError(t, err)
	assert.True(t, absorber.Is(v))
}

func TestNew_nil(t *testing.T) {
	_, absorber := newRuntime(t)
	assert.Panics(t, func() { New(nil, absorber, report.Discard) })
	assert.Panics(t, func() { New(new(rebind.Table), nil, report.Discard) })
	assert.Panics(t, func() { New(new(rebind.Table), absorber, nil) })
}
