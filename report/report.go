// Package report carries interception events from trap handlers to the
// privileged observer.
//
// Trap handlers see only the fire-and-forget [Channel]. Observer side
// implementations include [Recorder] (in-memory), [Dispatcher] (asynchronous
// batches to a [Sink]), [LogSink] (structured logging), and [JSONSink] (JSON
// lines).
package report

import (
	"context"
	"errors"
)

const (
	// EventBlocked is sent, with a [Block] payload, for each trapped call.
	EventBlocked = `got-canvas-fingerprinting`
	// EventOverride is sent, with an [Override] payload, for each read of an
	// overridden property.
	EventOverride = `got-property-override`
)

// ErrUnsupportedPayload is returned by [AppendJSON] for payloads other than
// [Block] and [Override].
var ErrUnsupportedPayload = errors.New(`report: unsupported payload`)

type (
	// Channel delivers a report to the observer. Implementations must not
	// block on the observer, and must not panic.
	Channel interface {
		SendReport(event string, payload any)
	}

	// ChannelFunc implements [Channel].
	ChannelFunc func(event string, payload any)

	// Multi sends every report to each of its channels, in order.
	Multi []Channel

	// Sink receives batches of reports, see [Dispatcher].
	Sink interface {
		Deliver(ctx context.Context, batch []Message) error
	}

	// SinkFunc implements [Sink].
	SinkFunc func(ctx context.Context, batch []Message) error

	// Sinks delivers every batch to each of its sinks, in order, joining
	// any errors.
	Sinks []Sink

	// Message is a report, as received by a [Sink].
	Message struct {
		Payload any
		Event   string
	}

	// Block is the payload of [EventBlocked].
	Block struct {
		// Type is the category of the trapped API, e.g. Canvas.
		Type string `json:"type"`
		// ScriptURL is the origin of the call, without line or column.
		ScriptURL string `json:"scriptUrl"`
	}

	// Override is the payload of [EventOverride].
	Override struct {
		// Path is the overridden property, e.g. Screen.prototype.width.
		Path string `json:"path"`
		// Value is the fixed value the property was overridden with.
		Value float64 `json:"value"`
	}
)

var (
	_ Channel = ChannelFunc(nil)
	_ Channel = Multi(nil)
	_ Sink    = SinkFunc(nil)
	_ Sink    = Sinks(nil)
)

// SendReport calls f.
func (f ChannelFunc) SendReport(event string, payload any) { f(event, payload) }

// SendReport forwards the report to every non-nil channel, in order.
func (x Multi) SendReport(event string, payload any) {
	for _, c := range x {
		if c != nil {
			c.SendReport(event, payload)
		}
	}
}

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, batch []Message) error { return f(ctx, batch) }

// Deliver passes the batch to every non-nil sink, joining any errors.
func (x Sinks) Deliver(ctx context.Context, batch []Message) error {
	var errs []error
	for _, s := range x {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a channel that drops every report.
var Discard Channel = ChannelFunc(func(string, any) {})
