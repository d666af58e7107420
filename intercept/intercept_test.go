package intercept

import (
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-fpguard/absorb"
	"github.com/joeycumines/go-fpguard/attribution"
	"github.com/joeycumines/go-fpguard/catalog"
	"github.com/joeycumines/go-fpguard/rebind"
	"github.com/joeycumines/go-fpguard/report"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stubSource = `
function CanvasRenderingContext2D() {}
CanvasRenderingContext2D.prototype.getImageData = function () { throw new Error('real getImageData'); };
CanvasRenderingContext2D.prototype.fillRect = function () { return 'real fillRect'; };
function AnalyserNode() {}
AnalyserNode.prototype.getFloatFrequencyData = function () { throw new Error('real getFloatFrequencyData'); };
var navigator = { mediaDevices: { enumerateDevices: function () { throw new Error('real enumerateDevices'); } } };
`

type harness struct {
	vm       *goja.Runtime
	absorber *absorb.Absorber
	recorder *report.Recorder
	table    *rebind.Table
	registry *Registry
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	vm := goja.New()
	_, err := vm.RunScript(`stub.js`, stubSource)
	require.NoError(t, err)
	absorber, err := absorb.New(vm)
	require.NoError(t, err)
	h := &harness{
		vm:       vm,
		absorber: absorber,
		recorder: new(report.Recorder),
		table:    new(rebind.Table),
	}
	h.registry, err = New(append([]Option{
		WithAbsorber(absorber),
		WithChannel(h.recorder),
		WithTable(h.table),
		WithResolver(attribution.NewResolver(attribution.Goja(vm))),
		WithLocation(func() string { return `http://example.com/page.html` }),
	}, opts...)...)
	require.NoError(t, err)
	return h
}

func (h *harness) apply(t *testing.T) {
	t.Helper()
	require.NoError(t, h.table.Apply(rebind.Goja(h.vm)))
}

func TestRegistry_Install_getImageData(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.registry.Install(catalog.Member(catalog.Canvas, `CanvasRenderingContext2D`, `getImageData`)))
	h.apply(t)

	v, err := h.vm.RunScript(`http://example.com/fp.js`, `
var ctx = new CanvasRenderingContext2D();
var data = ctx.getImageData(0, 0, 16, 16);
[data, data.data[0].foo().bar, ctx.fillRect()];
`)
	require.NoError(t, err)
	results := v.ToObject(h.vm)
	assert.True(t, h.absorber.Is(results.Get(`0`)))
	assert.True(t, h.absorber.Is(results.Get(`1`)))
	assert.Equal(t, `real fillRect`, results.Get(`2`).String())

	assert.Equal(t, []report.Block{{Type: `Canvas`, ScriptURL: `http://example.com/fp.js`}}, h.recorder.Blocks())
	assert.Len(t, h.recorder.Messages(), 1)
}

func TestRegistry_InstallAll(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.registry.InstallAll([]catalog.Descriptor{
		catalog.Member(catalog.Canvas, `CanvasRenderingContext2D`, `getImageData`),
		catalog.Member(catalog.Audio, `AnalyserNode`, `getFloatFrequencyData`),
		catalog.Function(catalog.WebRTC, `navigator.mediaDevices.enumerateDevices`),
	}))
	assert.Len(t, h.registry.Installed(), 3)
	h.apply(t)

	_, err := h.vm.RunScript(`http://cdn.example.com/lib.js`, `
new AnalyserNode().getFloatFrequencyData(new Float32Array(8));
navigator.mediaDevices.enumerateDevices().then(function () {});
`)
	require.NoError(t, err)

	assert.Equal(t, []report.Block{
		{Type: `AudioContext`, ScriptURL: `http://cdn.example.com/lib.js`},
		{Type: `WebRTC`, ScriptURL: `http://cdn.example.com/lib.js`},
	}, h.recorder.Blocks())
}

func TestRegistry_InstallAll_independent(t *testing.T) {
	h := newHarness(t)
	err := h.registry.InstallAll([]catalog.Descriptor{
		catalog.Member(catalog.Canvas, `CanvasRenderingContext2D`, `getImageData`),
		catalog.Member(catalog.Canvas, `CanvasRenderingContext2D`, `getImageData`),
		catalog.Member(catalog.WebRTC, `webkitRTCPeerConnection`, `createOffer`),
		catalog.Function(catalog.WebRTC, `navigator.mediaDevices.enumerateDevices`),
	})
	assert.ErrorIs(t, err, rebind.ErrDuplicateBinding)
	assert.Len(t, h.registry.Installed(), 3)
	assert.Equal(t, 3, h.table.Len())

	// the missing constructor doesn't prevent the others
	err = h.table.Apply(rebind.Goja(h.vm))
	assert.ErrorIs(t, err, rebind.ErrPathNotFound)
	assert.ErrorContains(t, err, `webkitRTCPeerConnection`)

	_, err = h.vm.RunScript(`http://example.com/x.js`, `
new CanvasRenderingContext2D().getImageData();
navigator.mediaDevices.enumerateDevices();
`)
	require.NoError(t, err)
	assert.Len(t, h.recorder.Blocks(), 2)
}

func TestRegistry_Install_invalidCategory(t *testing.T) {
	h := newHarness(t)
	err := h.registry.Install(catalog.Descriptor{})
	assert.ErrorIs(t, err, catalog.ErrUnknownCategory)
	assert.Zero(t, h.table.Len())
}

func TestRegistry_Trap_locationFallback(t *testing.T) {
	for _, tc := range [...]struct {
		name  string
		chain attribution.CallChain
	}{
		{`short stack`, attribution.CallChainFunc(func() []attribution.Frame { return make([]attribution.Frame, 2) })},
		{`empty url`, attribution.CallChainFunc(func() []attribution.Frame { return make([]attribution.Frame, 3) })},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, WithResolver(attribution.NewResolver(tc.chain)))
			v := h.registry.Trap(catalog.WebGL)(goja.FunctionCall{})
			assert.True(t, h.absorber.Is(v))
			assert.Equal(t, []report.Block{{Type: `WebGL`, ScriptURL: `http://example.com/page.html`}}, h.recorder.Blocks())
		})
	}
}

func TestRegistry_Trap_stripsLocation(t *testing.T) {
	h := newHarness(t, WithLocation(func() string { return `http://example.com/page.html:1:2` }))
	h.registry.Trap(catalog.Canvas)(goja.FunctionCall{})
	assert.Equal(t, []report.Block{{Type: `Canvas`, ScriptURL: `http://example.com/page.html`}}, h.recorder.Blocks())
}

func TestRegistry_Trap_evalAttribution(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.registry.Install(catalog.Member(catalog.Canvas, `CanvasRenderingContext2D`, `getImageData`)))
	h.apply(t)

	_, err := h.vm.RunScript(`http://example.com/loader.js`, `
function load(src) { return eval(src); }
load('new CanvasRenderingContext2D().getImageData(0, 0, 1, 1)');
`)
	require.NoError(t, err)
	assert.Equal(t, []report.Block{{Type: `Canvas`, ScriptURL: `http://example.com/loader.js`}}, h.recorder.Blocks())
}

func TestRegistry_Trap_channelPanics(t *testing.T) {
	var logs strings.Builder
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&logs), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
	h := newHarness(t,
		WithLogger(logger),
		WithChannel(report.ChannelFunc(func(string, any) { panic(`observer gone`) })),
	)
	require.NoError(t, h.registry.Install(catalog.Member(catalog.Canvas, `CanvasRenderingContext2D`, `getImageData`)))
	h.apply(t)

	v, err := h.vm.RunScript(`http://example.com/fp.js`, `new CanvasRenderingContext2D().getImageData().x`)
	require.NoError(t, err)
	assert.True(t, h.absorber.Is(v))
	assert.Contains(t, logs.String(), `"msg":"trap failed to report"`)
	assert.Contains(t, logs.String(), `observer gone`)
}

func TestRegistry_noResolver(t *testing.T) {
	vm := goja.New()
	absorber, err := absorb.New(vm)
	require.NoError(t, err)
	var recorder report.Recorder
	registry, err := New(WithAbsorber(absorber), WithChannel(&recorder), WithTable(new(rebind.Table)))
	require.NoError(t, err)
	registry.Trap(catalog.WebRTC)(goja.FunctionCall{})
	assert.Equal(t, []report.Block{{Type: `WebRTC`}}, recorder.Blocks())
}

func TestNew_options(t *testing.T) {
	vm := goja.New()
	absorber, err := absorb.New(vm)
	require.NoError(t, err)
	var table rebind.Table

	for _, tc := range [...]struct {
		name string
		opts []Option
		want string
	}{
		{`no absorber`, []Option{WithChannel(report.Discard), WithTable(&table)}, `absorber is required`},
		{`no channel`, []Option{WithAbsorber(absorber), WithTable(&table)}, `channel is required`},
		{`no table`, []Option{WithAbsorber(absorber), WithChannel(report.Discard)}, `table is required`},
		{`nil absorber`, []Option{WithAbsorber(nil)}, `absorber must not be nil`},
		{`nil channel`, []Option{WithChannel(nil)}, `channel must not be nil`},
		{`nil table`, []Option{WithTable(nil)}, `table must not be nil`},
		{`nil resolver`, []Option{WithResolver(nil)}, `resolver must not be nil`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			registry, err := New(tc.opts...)
			assert.Nil(t, registry)
			assert.ErrorContains(t, err, tc.want)
		})
	}

	registry, err := New(nil, WithAbsorber(absorber), WithChannel(report.Discard), WithTable(&table))
	require.NoError(t, err)
	assert.NotNil(t, registry)
}
