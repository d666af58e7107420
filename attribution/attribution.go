// Package attribution recovers the script responsible for a trapped call, by
// inspecting the call stack at the point of interception.
//
// The stack is obtained through the [CallChain] capability, see [Goja] for
// the goja implementation. The [Resolver] logic itself is independent of the
// host, and may be exercised with a fake chain.
package attribution

import (
	"regexp"
	"strconv"
)

// SkipFrames is the number of leading frames belonging to the interception
// machinery: the capture site, and the trap handler that called it.
const SkipFrames = 2

var (
	// evalOriginPattern matches a parenthesized url:line:col triplet of an
	// evaluation origin, e.g. "eval at f (http://example.com/a.js:10:5)".
	// Matches can't span parentheses, so only the innermost nesting level
	// matches.
	evalOriginPattern = regexp.MustCompile(`\((https?://[^()\s]*:\d+:\d+)\)`)

	lineColumnSuffix = regexp.MustCompile(`:\d+:\d+$`)
)

type (
	// CallChain captures the current call stack, most recent frame first,
	// without any depth limit.
	CallChain interface {
		CaptureCallChain() []Frame
	}

	// CallChainFunc implements [CallChain].
	CallChainFunc func() []Frame

	// Frame is a single entry of a captured call stack.
	Frame struct {
		// URL identifies the script, as named when it was compiled.
		URL string
		// FuncName is informational only.
		FuncName string
		// EvalOrigin describes where dynamically evaluated code came from,
		// e.g. "eval at f (http://example.com/a.js:10:5)". Only meaningful
		// if IsEval is true.
		EvalOrigin string
		Line       int
		Column     int
		IsEval     bool
	}

	// Record identifies the origin of a call. It is derived per call, and
	// not retained.
	Record struct {
		URL         string
		Line        int
		Column      int
		HasPosition bool
	}

	// Resolver maps call stacks to origins.
	Resolver struct {
		chain CallChain
	}
)

// CaptureCallChain calls f.
func (f CallChainFunc) CaptureCallChain() []Frame { return f() }

// NewResolver returns a resolver using the given chain, which must not be nil.
func NewResolver(chain CallChain) *Resolver {
	if chain == nil {
		panic(`attribution: nil call chain`)
	}
	return &Resolver{chain: chain}
}

// Resolve returns the origin of the current call, i.e. the first frame
// following the [SkipFrames] interception frames. False is returned if the
// stack is too short, in which case the caller should fall back to the
// document location. Resolve never panics.
func (x *Resolver) Resolve() (record Record, ok bool) {
	defer func() {
		if recover() != nil {
			record, ok = Record{}, false
		}
	}()

	frames := x.chain.CaptureCallChain()
	if len(frames) <= SkipFrames {
		return Record{}, false
	}

	return FromFrame(frames[SkipFrames]), true
}

// FromFrame converts a single frame to a record. Frames of dynamically
// evaluated code are attributed to the script that evaluated them, if that
// can be determined from the evaluation origin, otherwise the raw origin
// text is used as the URL.
func FromFrame(frame Frame) Record {
	if frame.IsEval {
		if m := evalOriginPattern.FindAllStringSubmatch(frame.EvalOrigin, -1); m != nil {
			return Parse(m[len(m)-1][1])
		}
		return Record{URL: frame.EvalOrigin}
	}
	return Record{
		URL:         frame.URL,
		Line:        frame.Line,
		Column:      frame.Column,
		HasPosition: true,
	}
}

// Parse splits a url:line:col string. Input without a trailing position is
// returned as the URL.
func Parse(s string) Record {
	loc := lineColumnSuffix.FindStringIndex(s)
	if loc == nil {
		return Record{URL: s}
	}
	record := Record{URL: s[:loc[0]], HasPosition: true}
	suffix := s[loc[0]+1:]
	for i := 0; i < len(suffix); i++ {
		if suffix[i] == ':' {
			record.Line, _ = strconv.Atoi(suffix[:i])
			record.Column, _ = strconv.Atoi(suffix[i+1:])
			break
		}
	}
	return record
}

// String renders the record as url:line:col, or just the url if there is no
// position.
func (r Record) String() string {
	if !r.HasPosition {
		return r.URL
	}
	return r.URL + `:` + strconv.Itoa(r.Line) + `:` + strconv.Itoa(r.Column)
}

// Stripped is the URL without any position, as used to key reports.
func (r Record) Stripped() string {
	return Strip(r.String())
}

// Strip removes a trailing :line:column suffix, if present.
func Strip(url string) string {
	return lineColumnSuffix.ReplaceAllString(url, ``)
}
