package document

import (
	_ "embed"
	"fmt"

	"github.com/dop251/goja"
)

// DefaultUserAgent is reported by navigator.userAgent.
const DefaultUserAgent = `Mozilla/5.0 (X11; Linux x86_64) fpguard`

//go:embed environment.js
var environmentSource string

var environmentProgram = goja.MustCompile(`fpguard:environment.js`, environmentSource, true)

// Screen is the true screen geometry, as seen without protection.
type Screen struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	AvailWidth  int `json:"availWidth"`
	AvailHeight int `json:"availHeight"`
	ColorDepth  int `json:"colorDepth"`
}

// DefaultScreen is a common desktop geometry.
var DefaultScreen = Screen{
	Width:       1920,
	Height:      1080,
	AvailWidth:  1920,
	AvailHeight: 1040,
	ColorDepth:  24,
}

// installEnvironment defines the browser surface the catalog targets:
// canvas, WebGL, audio, and WebRTC constructors, plus screen, navigator,
// location, and document.
func installEnvironment(vm *goja.Runtime, location, userAgent string, screen Screen) error {
	v, err := vm.RunProgram(environmentProgram)
	if err != nil {
		return fmt.Errorf(`document: environment: %w`, err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return fmt.Errorf(`document: environment: not a function`)
	}
	config := vm.NewObject()
	_ = config.Set(`location`, location)
	_ = config.Set(`userAgent`, userAgent)
	_ = config.Set(`screen`, map[string]any{
		`width`:       screen.Width,
		`height`:      screen.Height,
		`availWidth`:  screen.AvailWidth,
		`availHeight`: screen.AvailHeight,
		`colorDepth`:  screen.ColorDepth,
	})
	if _, err := fn(goja.Undefined(), vm.GlobalObject(), config); err != nil {
		return fmt.Errorf(`document: environment: %w`, err)
	}
	return nil
}
