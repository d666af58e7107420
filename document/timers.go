package document

import (
	"github.com/dop251/goja"
	goeventloop "github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/logiface"
)

// timers binds setTimeout, setInterval, and queueMicrotask to the loop.
// Callbacks run on the loop goroutine, same as page scripts.
type timers struct {
	js      *goeventloop.JS
	runtime *goja.Runtime
	logger  *logiface.Logger[logiface.Event]
}

func (t *timers) bind() {
	_ = t.runtime.Set(`setTimeout`, t.setTimeout)
	_ = t.runtime.Set(`clearTimeout`, t.clearTimeout)
	_ = t.runtime.Set(`setInterval`, t.setInterval)
	_ = t.runtime.Set(`clearInterval`, t.clearInterval)
	_ = t.runtime.Set(`queueMicrotask`, t.queueMicrotask)
}

// callback validates the first argument, binding any trailing arguments.
func (t *timers) callback(name string, call goja.FunctionCall, from int) func() {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(t.runtime.NewTypeError(name + ` requires a function as first argument`))
	}
	var args []goja.Value
	if len(call.Arguments) > from {
		args = append(args, call.Arguments[from:]...)
	}
	return func() {
		if _, err := fn(goja.Undefined(), args...); err != nil {
			t.logger.Err().
				Str(`callback`, name).
				Err(err).
				Log(`callback failed`)
		}
	}
}

func (t *timers) delay(call goja.FunctionCall) int {
	delayMs := int(call.Argument(1).ToInteger())
	if delayMs < 0 {
		delayMs = 0
	}
	return delayMs
}

func (t *timers) setTimeout(call goja.FunctionCall) goja.Value {
	id, err := t.js.SetTimeout(t.callback(`setTimeout`, call, 2), t.delay(call))
	if err != nil {
		panic(t.runtime.NewGoError(err))
	}
	return t.runtime.ToValue(id)
}

func (t *timers) clearTimeout(call goja.FunctionCall) goja.Value {
	_ = t.js.ClearTimeout(uint64(call.Argument(0).ToInteger()))
	return goja.Undefined()
}

func (t *timers) setInterval(call goja.FunctionCall) goja.Value {
	id, err := t.js.SetInterval(t.callback(`setInterval`, call, 2), t.delay(call))
	if err != nil {
		panic(t.runtime.NewGoError(err))
	}
	return t.runtime.ToValue(id)
}

func (t *timers) clearInterval(call goja.FunctionCall) goja.Value {
	_ = t.js.ClearInterval(uint64(call.Argument(0).ToInteger()))
	return goja.Undefined()
}

func (t *timers) queueMicrotask(call goja.FunctionCall) goja.Value {
	if err := t.js.QueueMicrotask(t.callback(`queueMicrotask`, call, 1)); err != nil {
		panic(t.runtime.NewGoError(err))
	}
	return goja.Undefined()
}
