package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

var errSinkPanic = errors.New(`report: panic in sink`)

type (
	// DispatcherConfig models optional configuration, for NewDispatcher.
	DispatcherConfig struct {
		// Logger receives delivery failures and drop notices, if non-nil.
		Logger *logiface.Logger[logiface.Event]

		// MaxSize restricts the maximum number of reports per batch, if
		// positive.
		// **Defaults to 16, if 0, or DispatcherConfig is nil.**
		//
		// WARNING: NewDispatcher will panic if both MaxSize and
		// FlushInterval are disabled.
		MaxSize int

		// FlushInterval specifies the maximum duration before an "incomplete"
		// batch is passed to the Sink, if positive.
		// **Defaults to 50ms, if 0, or DispatcherConfig is nil.**
		// If MaxSize is specified, time-based flushing can be disabled, by
		// setting this <= 0.
		FlushInterval time.Duration

		// QueueSize is the number of reports that may be pending, before
		// further reports are dropped.
		// **Defaults to 1024, if <= 0, or DispatcherConfig is nil.**
		QueueSize int
	}

	// Dispatcher is a [Channel] that forwards reports to a [Sink], in
	// batches, on a dedicated goroutine. SendReport never blocks: reports
	// that don't fit in the queue are dropped, and counted.
	// Instances must be initialized using the NewDispatcher factory.
	Dispatcher struct {
		// betteralign:ignore

		sink          Sink                             // configurable
		logger        *logiface.Logger[logiface.Event] // configurable
		maxSize       int                              // configurable
		flushInterval time.Duration                    // configurable
		ctx           context.Context
		cancel        context.CancelFunc
		done          chan struct{}
		stopped       chan struct{}
		stopOnce      sync.Once
		sendMu        sync.RWMutex // held exclusively to close stopped
		queue         chan Message
		dropped       atomic.Uint64
		delivered     atomic.Uint64
	}
)

var _ Channel = (*Dispatcher)(nil)

// NewDispatcher initializes a new Dispatcher, using the provided config and
// sink. The provided config may be nil. A panic will occur if sink is nil, or
// invalid config is provided.
//
// The Dispatcher.Close method and/or Dispatcher.Shutdown method should be
// called when the Dispatcher is no longer needed.
func NewDispatcher(config *DispatcherConfig, sink Sink) *Dispatcher {
	if sink == nil {
		panic(`report: nil sink`)
	}

	dispatcher := Dispatcher{
		sink:          sink,
		maxSize:       16,
		flushInterval: time.Millisecond * 50,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	queueSize := 1024

	if config != nil {
		dispatcher.logger = config.Logger
		if config.MaxSize != 0 {
			dispatcher.maxSize = config.MaxSize
		}
		if config.FlushInterval != 0 {
			dispatcher.flushInterval = config.FlushInterval
		}
		if config.QueueSize > 0 {
			queueSize = config.QueueSize
		}
	}

	if dispatcher.flushInterval <= 0 && dispatcher.maxSize <= 0 {
		panic(`report: one of MaxSize or FlushInterval must be specified`)
	}

	dispatcher.queue = make(chan Message, queueSize)
	dispatcher.ctx, dispatcher.cancel = context.WithCancel(context.Background())

	go dispatcher.run()

	return &dispatcher
}

// SendReport enqueues a report, without blocking. Reports sent after
// Shutdown or Close are dropped.
func (x *Dispatcher) SendReport(event string, payload any) {
	x.sendMu.RLock()
	defer x.sendMu.RUnlock()

	select {
	case <-x.stopped:
		x.drop(event)
		return
	default:
	}

	select {
	case x.queue <- Message{Event: event, Payload: payload}:
	default:
		x.drop(event)
	}
}

// Dropped returns the number of reports that were not enqueued.
func (x *Dispatcher) Dropped() uint64 {
	return x.dropped.Load()
}

// Delivered returns the number of reports passed to the sink without error.
func (x *Dispatcher) Delivered() uint64 {
	return x.delivered.Load()
}

// Shutdown will immediately prevent further reports via SendReport, then
// wait for all already enqueued reports to be delivered. An error will be
// returned if ctx is canceled prior to this, causing a forced Close.
//
// This method is unsafe to call from within a Sink.
func (x *Dispatcher) Shutdown(ctx context.Context) (err error) {
	x.stop()

	select {
	case <-ctx.Done():
		if x.ctx.Err() == nil {
			err = ctx.Err() // indicating we forcibly closed
		}
		x.cancel()
		<-x.done
	case <-x.done:
	}

	return err
}

// Close immediately cancels delivery, discarding pending reports, which are
// counted as dropped, blocking until the Dispatcher has finished closing.
//
// This method is unsafe to call from within a Sink.
func (x *Dispatcher) Close() error {
	x.stop()
	x.cancel()
	<-x.done
	return nil
}

// stop closes stopped, after which nothing more may be enqueued.
func (x *Dispatcher) stop() {
	x.stopOnce.Do(func() {
		x.sendMu.Lock()
		defer x.sendMu.Unlock()
		close(x.stopped)
	})
}

// discard counts everything still pending as dropped.
func (x *Dispatcher) discard(batch []Message) {
	n := uint64(len(batch))
	for {
		select {
		case <-x.queue:
			n++
			continue
		default:
		}
		break
	}
	if n == 0 {
		return
	}
	x.dropped.Add(n)
	x.logger.Warning().
		Uint64(`discarded`, n).
		Log(`pending reports discarded`)
}

func (x *Dispatcher) drop(event string) {
	if n := x.dropped.Add(1); n&(n-1) == 0 {
		// logs on powers of two
		x.logger.Warning().
			Str(`event`, event).
			Uint64(`dropped`, n).
			Log(`report dropped`)
	}
}

func (x *Dispatcher) run() {
	defer close(x.done)
	defer x.cancel()

	var (
		batch  []Message
		timer  *time.Timer
		timerC <-chan time.Time
	)

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}
	defer stopTimer()

	flush := func() {
		stopTimer()
		if len(batch) == 0 {
			return
		}
		jobs := batch
		batch = nil
		if err := x.deliver(jobs); err != nil {
			x.logger.Err().
				Err(err).
				Int(`size`, len(jobs)).
				Log(`report delivery failed`)
			return
		}
		x.delivered.Add(uint64(len(jobs)))
	}

	add := func(msg Message) {
		batch = append(batch, msg)
		if x.maxSize > 0 && len(batch) >= x.maxSize {
			flush()
		} else if x.flushInterval > 0 && len(batch) == 1 {
			// first report -> start the timer for flush
			timer = time.NewTimer(x.flushInterval)
			timerC = timer.C
		}
	}

	for {
		select {
		case <-x.ctx.Done():
			x.discard(batch)
			return

		case <-x.stopped:
			// note: the queue is drained on a best-effort basis
			for {
				select {
				case msg := <-x.queue:
					add(msg)
					continue
				default:
				}
				break
			}
			flush()
			return

		case msg := <-x.queue:
			add(msg)

		case <-timerC:
			flush()
		}
	}
}

// deliver calls the sink, converting panics to errors.
func (x *Dispatcher) deliver(batch []Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf(`%w: %v`, errSinkPanic, r)
		}
	}()
	return x.sink.Deliver(x.ctx, batch)
}
