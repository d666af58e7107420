package attribution

import (
	"runtime"
	"strconv"

	"github.com/dop251/goja"
)

// evalSourceName is the source name goja assigns to code compiled by eval.
const evalSourceName = `<eval>`

type gojaChain struct {
	vm *goja.Runtime
}

// Goja returns a [CallChain] backed by the call stack of the given runtime.
//
// The first frame of each captured chain is the capture site, i.e. the Go
// caller of CaptureCallChain. The remaining frames are the runtime's, most
// recent first, which starts with the Go function (trap) that was called by
// the script. Frames of eval'd code are given a synthesized evaluation
// origin, naming the nearest script frame below them.
//
// CaptureCallChain must only be called on the runtime's goroutine, from a Go
// function that was called by a running script.
func Goja(vm *goja.Runtime) CallChain {
	if vm == nil {
		panic(`attribution: nil runtime`)
	}
	return &gojaChain{vm: vm}
}

func (x *gojaChain) CaptureCallChain() []Frame {
	stack := x.vm.CaptureCallStack(0, nil)

	frames := make([]Frame, 0, len(stack)+1)
	frames = append(frames, captureSite())
	for i := range stack {
		frames = append(frames, gojaFrame(&stack[i]))
	}

	for i := range frames {
		if frames[i].IsEval {
			frames[i].EvalOrigin = evalOrigin(frames[i+1:])
		}
	}

	return frames
}

// captureSite describes the caller of CaptureCallChain.
func captureSite() Frame {
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		return Frame{URL: `<native>`, FuncName: `<native>`}
	}
	frame := Frame{URL: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		frame.FuncName = fn.Name()
	}
	return frame
}

func gojaFrame(sf *goja.StackFrame) Frame {
	pos := sf.Position()
	return Frame{
		URL:      sf.SrcName(),
		FuncName: sf.FuncName(),
		Line:     pos.Line,
		Column:   pos.Column,
		IsEval:   sf.SrcName() == evalSourceName,
	}
}

// evalOrigin renders the V8 style origin of eval'd code, given the frames
// below it. Nested evals resolve to the outermost script.
func evalOrigin(below []Frame) string {
	for _, f := range below {
		if f.IsEval || f.URL == `<native>` {
			continue
		}
		return `eval at ` + f.FuncName + ` (` + f.URL + `:` + strconv.Itoa(f.Line) + `:` + strconv.Itoa(f.Column) + `)`
	}
	return `eval at <anonymous>`
}
