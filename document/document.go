// Package document hosts page scripts, under fingerprinting protection.
//
// A [Document] is a goja runtime driven by a single event loop, with a
// minimal browser environment: the canvas, WebGL, audio, and WebRTC
// constructors, plus screen, navigator, location, document, console, and
// timers. Protection is installed before the loop runs anything else, so
// no page script observes the real members.
//
// Scripts are compiled with their URL as the source name, which is what
// blocked calls are attributed to.
package document

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	goeventloop "github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/go-fpguard"
	"github.com/joeycumines/logiface"
)

// ErrClosed is returned by [Document.Exec] after [Document.Close].
var ErrClosed = errors.New(`document: closed`)

type (
	// Document is a running page. Its methods are safe for concurrent use,
	// and scripts execute in submission order.
	Document struct {
		loop     *goeventloop.Loop
		runtime  *goja.Runtime
		guard    *fpguard.Guard
		logger   *logiface.Logger[logiface.Event]
		location string
		install  error
		stop     context.CancelFunc
		done     chan struct{}
		runErr   error
		mu       sync.Mutex
		closed   bool

		// running is the id of the Exec task on the loop, or 0, guarded by
		// runningMu, which is held while interrupting.
		runningMu sync.Mutex
		running   uint64
		lastID    atomic.Uint64
	}

	// Script is a page script, identified by its URL.
	Script struct {
		URL    string
		Source string
	}
)

// Open builds the environment, installs protection, and starts the event
// loop. See [WithChannel], which is required.
//
// Failing to bind some of the trapped members is not fatal, see
// [Document.InstallError].
func Open(opts ...Option) (*Document, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	loop, err := goeventloop.New()
	if err != nil {
		return nil, fmt.Errorf(`document: %w`, err)
	}

	js, err := goeventloop.NewJS(loop)
	if err != nil {
		_ = loop.Close()
		return nil, fmt.Errorf(`document: %w`, err)
	}

	runtime := goja.New()

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(consolePrinter{logger: cfg.logger}))
	registry.Enable(runtime)
	console.Enable(runtime)

	(&timers{js: js, runtime: runtime, logger: cfg.logger}).bind()

	if err := installEnvironment(runtime, cfg.location, cfg.userAgent, cfg.screen); err != nil {
		_ = loop.Close()
		return nil, err
	}

	location := cfg.location
	guard, err := fpguard.New(runtime, append(append([]fpguard.Option(nil), cfg.guard...),
		fpguard.WithChannel(cfg.channel),
		fpguard.WithLogger(cfg.logger),
		fpguard.WithLocation(func() string { return location }),
	)...)
	if err != nil {
		_ = loop.Close()
		return nil, err
	}

	d := &Document{
		loop:     loop,
		runtime:  runtime,
		guard:    guard,
		logger:   cfg.logger,
		location: location,
		done:     make(chan struct{}),
	}

	// the loop isn't running, so the runtime is still ours
	d.install = guard.Install()

	var ctx context.Context
	ctx, d.stop = context.WithCancel(context.Background())
	go func() {
		defer close(d.done)
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, goeventloop.ErrLoopTerminated) {
			d.runErr = err
		}
	}()

	d.logger.Debug().
		Str(`location`, location).
		Log(`document opened`)

	return d, nil
}

// Guard returns the installed protection.
func (d *Document) Guard() *fpguard.Guard {
	return d.guard
}

// Location returns the document URL.
func (d *Document) Location() string {
	return d.location
}

// InstallError returns the non-fatal error from installing protection,
// e.g. a catalog member missing from the environment.
func (d *Document) InstallError() error {
	return d.install
}

// Exec runs a script on the loop, returning its exported completion value.
// A script that throws returns a [*goja.Exception]. If ctx is done first,
// the script is interrupted, or never started if it is still queued. Other
// scripts and callbacks are unaffected.
func (d *Document) Exec(ctx context.Context, script Script) (any, error) {
	program, err := goja.Compile(script.URL, script.Source, false)
	if err != nil {
		return nil, fmt.Errorf(`document: compile %s: %w`, script.URL, err)
	}

	type result struct {
		value any
		err   error
	}
	ch := make(chan result, 1)
	id := d.lastID.Add(1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	err = d.loop.Submit(func() {
		var r result
		r.value, r.err = d.run(ctx, id, script.URL, program)
		ch <- r
	})
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf(`document: %w`, err)
	}

	select {
	case r := <-ch:
		return r.value, r.err
	case <-d.done:
		select {
		case r := <-ch:
			return r.value, r.err
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
	}

	d.runningMu.Lock()
	running := d.running == id
	if running {
		d.runtime.Interrupt(ctx.Err())
	}
	d.runningMu.Unlock()
	if !running {
		// still queued, in which case it won't start, or already finished
		return nil, ctx.Err()
	}

	select {
	case r := <-ch:
		if r.err == nil {
			return r.value, nil
		}
	case <-d.done:
	}
	return nil, ctx.Err()
}

// run executes program on the loop goroutine, as the task identified by id,
// unless ctx is already done.
func (d *Document) run(ctx context.Context, id uint64, url string, program *goja.Program) (any, error) {
	d.runningMu.Lock()
	if err := ctx.Err(); err != nil {
		d.runningMu.Unlock()
		return nil, err
	}
	d.running = id
	d.runningMu.Unlock()

	v, err := d.runtime.RunProgram(program)

	d.runningMu.Lock()
	d.running = 0
	d.runtime.ClearInterrupt()
	d.runningMu.Unlock()

	if err != nil {
		d.logger.Warning().
			Str(`script`, url).
			Err(err).
			Log(`script failed`)
		return nil, err
	}
	return v.Export(), nil
}

// Close stops the loop, waiting for queued scripts and due callbacks until
// ctx is done, after which the loop is abandoned. Close is idempotent.
func (d *Document) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := d.loop.Shutdown(ctx)
	if errors.Is(err, goeventloop.ErrLoopTerminated) {
		err = nil
	}
	d.stop()
	<-d.done

	d.logger.Debug().
		Str(`location`, d.location).
		Log(`document closed`)

	if err != nil {
		return fmt.Errorf(`document: %w`, err)
	}
	return d.runErr
}
