package report

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/joeycumines/go-utilpkg/jsonenc"
)

// JSONSink writes each report as a single line JSON object, e.g.
//
//	{"event":"got-canvas-fingerprinting","type":"Canvas","scriptUrl":"http://example.com/a.js"}
//
// It implements both [Channel] and [Sink], and is safe for concurrent use.
// Write errors are returned by Deliver, and ignored by SendReport.
type JSONSink struct {
	w   io.Writer
	buf []byte
	mu  sync.Mutex
}

var (
	_ Channel = (*JSONSink)(nil)
	_ Sink    = (*JSONSink)(nil)
)

// NewJSONSink returns a sink writing to w, which must not be nil.
func NewJSONSink(w io.Writer) *JSONSink {
	if w == nil {
		panic(`report: nil writer`)
	}
	return &JSONSink{w: w}
}

// SendReport writes the report as a single line.
func (x *JSONSink) SendReport(event string, payload any) {
	_ = x.Deliver(context.Background(), []Message{{Event: event, Payload: payload}})
}

// Deliver writes the batch with a single write. Messages with unsupported
// payloads are skipped, and reported via the returned error.
func (x *JSONSink) Deliver(_ context.Context, batch []Message) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	var unsupported error
	x.buf = x.buf[:0]
	for _, msg := range batch {
		var err error
		if x.buf, err = AppendJSON(x.buf, msg); err != nil {
			unsupported = err
			continue
		}
		x.buf = append(x.buf, '\n')
	}

	if len(x.buf) != 0 {
		if _, err := x.w.Write(x.buf); err != nil {
			return err
		}
	}

	return unsupported
}

// AppendJSON appends msg to dst as a JSON object. On error, dst is returned
// unmodified.
func AppendJSON(dst []byte, msg Message) ([]byte, error) {
	switch payload := msg.Payload.(type) {
	case Block:
		dst = append(dst, `{"event":`...)
		dst = jsonenc.AppendString(dst, msg.Event)
		dst = append(dst, `,"type":`...)
		dst = jsonenc.AppendString(dst, payload.Type)
		dst = append(dst, `,"scriptUrl":`...)
		dst = jsonenc.AppendString(dst, payload.ScriptURL)
		return append(dst, '}'), nil

	case Override:
		dst = append(dst, `{"event":`...)
		dst = jsonenc.AppendString(dst, msg.Event)
		dst = append(dst, `,"path":`...)
		dst = jsonenc.AppendString(dst, payload.Path)
		dst = append(dst, `,"value":`...)
		dst = jsonenc.AppendFloat64(dst, payload.Value)
		return append(dst, '}'), nil

	default:
		return dst, fmt.Errorf(`%w: %s: %T`, ErrUnsupportedPayload, msg.Event, msg.Payload)
	}
}
