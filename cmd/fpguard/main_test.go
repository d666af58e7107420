package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joeycumines/go-fpguard/catalog"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func writeScript(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o600))
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	fp := writeScript(t, dir, `fp.js`, `
var canvas = document.createElement('canvas');
canvas.toDataURL();
canvas.getContext('2d').getImageData(0, 0, 1, 1);
new AudioContext().createAnalyser().getByteFrequencyData(new Uint8Array(8));
`)
	app := writeScript(t, dir, `app.js`, `
console.log('width', screen.width + 0);
`)

	stdout, stderr, err := execute(t, `run`, `--base-url`, `https://example.com/js/`, `--summary`, `--log-level`, `info`, fp, app)
	require.NoError(t, err)

	assert.Contains(t, stdout, `{"event":"got-canvas-fingerprinting","type":"Canvas","scriptUrl":"https://example.com/js/fp.js"}`+"\n")
	assert.Contains(t, stdout, `{"event":"got-canvas-fingerprinting","type":"AudioContext","scriptUrl":"https://example.com/js/fp.js"}`+"\n")
	assert.Contains(t, stdout, `{"event":"got-property-override","path":"Screen.prototype.width","value":`)
	assert.Equal(t, 3, strings.Count(stdout, `"event":"got-canvas-fingerprinting"`))

	// summary table
	assert.Contains(t, stdout, `TOTAL SCRIPTS 1`)
	assert.Regexp(t, `Canvas\s+\|\s+https://example.com/js/fp.js\s+\|\s+2`, stdout)

	assert.Contains(t, stderr, `"msg":"width 0"`)
	assert.Contains(t, stderr, `"msg":"blocked fingerprinting call"`)
}

func TestRun_noScreen(t *testing.T) {
	dir := t.TempDir()
	app := writeScript(t, dir, `app.js`, `if (screen.width !== 1920) throw new Error('randomized');`)
	stdout, _, err := execute(t, `run`, `--no-screen`, app)
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestRun_fileURL(t *testing.T) {
	dir := t.TempDir()
	fp := writeScript(t, dir, `fp.js`, `navigator.mediaDevices.enumerateDevices()`)
	stdout, _, err := execute(t, `run`, fp)
	require.NoError(t, err)
	abs, err := filepath.Abs(fp)
	require.NoError(t, err)
	assert.Equal(t, `{"event":"got-canvas-fingerprinting","type":"WebRTC","scriptUrl":"file://`+filepath.ToSlash(abs)+`"}`+"\n", stdout)
}

func TestRun_scriptError(t *testing.T) {
	dir := t.TempDir()
	bad := writeScript(t, dir, `bad.js`, `throw new Error('kaboom')`)
	later := writeScript(t, dir, `later.js`, `document.createElement('canvas').toDataURL()`)
	worse := writeScript(t, dir, `worse.js`, `undefinedFunction()`)
	stdout, stderr, err := execute(t, `run`, `--base-url`, `http://x.example`, bad, later, worse)
	require.Error(t, err)
	assert.ErrorContains(t, err, `http://x.example/bad.js`)
	assert.ErrorContains(t, err, `kaboom`)
	assert.ErrorContains(t, err, `http://x.example/worse.js`)
	assert.NotContains(t, err.Error(), `later.js`)
	assert.Equal(t, `{"event":"got-canvas-fingerprinting","type":"Canvas","scriptUrl":"http://x.example/later.js"}`+"\n", stdout)
	assert.Equal(t, 2, strings.Count(stderr, `"msg":"script failed"`))
}

func TestRun_timers(t *testing.T) {
	dir := t.TempDir()
	late := writeScript(t, dir, `late.js`, `setTimeout(function () { new WebGLRenderingContext().getParameter(1); }, 5);`)
	stdout, _, err := execute(t, `run`, `--base-url`, `http://x.example`, `--wait`, `200ms`, late)
	require.NoError(t, err)
	assert.Equal(t, `{"event":"got-canvas-fingerprinting","type":"WebGL","scriptUrl":"http://x.example/late.js"}`+"\n", stdout)
}

func TestRun_errors(t *testing.T) {
	_, _, err := execute(t, `run`)
	assert.Error(t, err)

	_, _, err = execute(t, `run`, filepath.Join(t.TempDir(), `missing.js`))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = execute(t, `--log-level`, `loud`, `run`, `x.js`)
	assert.ErrorContains(t, err, `invalid log level: "loud"`)

	dir := t.TempDir()
	bad := writeScript(t, dir, `catalog.yaml`, "members:\n  - category: Nope\n")
	_, _, err = execute(t, `run`, `--catalog`, bad, writeScript(t, dir, `a.js`, `1`))
	assert.ErrorIs(t, err, catalog.ErrUnknownCategory)
}

func TestCatalog(t *testing.T) {
	stdout, _, err := execute(t, `catalog`)
	require.NoError(t, err)

	c, err := catalog.Load(strings.NewReader(stdout))
	require.NoError(t, err)
	assert.Equal(t, catalog.Default().Descriptors(), c.Descriptors())
	assert.Equal(t, catalog.Default().Geometry(), c.Geometry())
	assert.Contains(t, stdout, `navigator.mediaDevices.enumerateDevices`)
}

func TestCatalog_file(t *testing.T) {
	dir := t.TempDir()
	file := writeScript(t, dir, `catalog.yaml`, "functions:\n  - category: WebRTC\n    path: navigator.mediaDevices.enumerateDevices\n")
	stdout, _, err := execute(t, `catalog`, `--catalog`, file)
	require.NoError(t, err)
	c, err := catalog.Load(strings.NewReader(stdout))
	require.NoError(t, err)
	require.Len(t, c.Descriptors(), 1)
	assert.True(t, c.Descriptors()[0].IsTopLevelFunction())
}

func TestParseLevel(t *testing.T) {
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		v, err := parseLevel(level.String())
		require.NoError(t, err)
		assert.Equal(t, level, v)
	}
	_, err := parseLevel(`warn`)
	assert.Error(t, err)
}
