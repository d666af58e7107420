package report

import (
	"context"
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// DefaultLogRates limits the log lines per distinct report, see [LogSink].
var DefaultLogRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 30,
}

type (
	// LogSink writes reports as structured log lines. Repeats of the same
	// report (event, type or path, and script) are rate limited, so a page
	// hammering a trapped API can't flood the log. It implements both
	// [Channel] and [Sink], and is safe for concurrent use.
	LogSink struct {
		logger  *logiface.Logger[logiface.Event]
		limiter *catrate.Limiter
	}

	logCategory struct {
		event string
		key   string
		url   string
	}
)

var (
	_ Channel = (*LogSink)(nil)
	_ Sink    = (*LogSink)(nil)
)

// NewLogSink returns a sink writing to logger, which may be nil. If rates is
// nil, [DefaultLogRates] is used. A panic will occur if rates are invalid,
// per [catrate.NewLimiter].
func NewLogSink(logger *logiface.Logger[logiface.Event], rates map[time.Duration]int) *LogSink {
	if rates == nil {
		rates = DefaultLogRates
	}
	return &LogSink{
		logger:  logger,
		limiter: catrate.NewLimiter(rates),
	}
}

// SendReport logs the report, subject to the rate limits.
func (x *LogSink) SendReport(event string, payload any) {
	x.log(Message{Event: event, Payload: payload})
}

// Deliver logs each message of the batch, and never fails.
func (x *LogSink) Deliver(_ context.Context, batch []Message) error {
	for _, msg := range batch {
		x.log(msg)
	}
	return nil
}

func (x *LogSink) log(msg Message) {
	switch payload := msg.Payload.(type) {
	case Block:
		if !x.allow(logCategory{msg.Event, payload.Type, payload.ScriptURL}) {
			return
		}
		x.logger.Info().
			Str(`event`, msg.Event).
			Str(`type`, payload.Type).
			Str(`script_url`, payload.ScriptURL).
			Log(`blocked fingerprinting call`)

	case Override:
		if !x.allow(logCategory{msg.Event, payload.Path, ``}) {
			return
		}
		x.logger.Debug().
			Str(`event`, msg.Event).
			Str(`path`, payload.Path).
			Float64(`value`, payload.Value).
			Log(`overridden property read`)

	default:
		if !x.allow(logCategory{msg.Event, fmt.Sprintf(`%T`, payload), ``}) {
			return
		}
		x.logger.Warning().
			Str(`event`, msg.Event).
			Str(`payload_type`, fmt.Sprintf(`%T`, payload)).
			Log(`unsupported report`)
	}
}

func (x *LogSink) allow(category logCategory) bool {
	next, ok := x.limiter.Allow(category)
	if ok && next != (time.Time{}) {
		// the last line before limiting kicks in
		x.logger.Notice().
			Str(`event`, category.event).
			Str(`key`, category.key).
			Time(`next`, next).
			Log(`further reports rate limited`)
	}
	return ok
}
