package report

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

type (
	// Recorder keeps every report in memory, for a single run. It
	// implements both [Channel] and [Sink], and is safe for concurrent use.
	Recorder struct {
		messages []Message
		mu       sync.Mutex
	}

	// Count is a row of [Recorder.Summary].
	Count struct {
		Type      string
		ScriptURL string
		Count     int
	}
)

var (
	_ Channel = (*Recorder)(nil)
	_ Sink    = (*Recorder)(nil)
)

// SendReport records the report.
func (x *Recorder) SendReport(event string, payload any) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.messages = append(x.messages, Message{Event: event, Payload: payload})
}

// Deliver records every message of the batch, and never fails.
func (x *Recorder) Deliver(_ context.Context, batch []Message) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.messages = append(x.messages, batch...)
	return nil
}

// Messages returns a copy of every report, in receive order.
func (x *Recorder) Messages() []Message {
	x.mu.Lock()
	defer x.mu.Unlock()
	return slices.Clone(x.messages)
}

// Blocks returns the [EventBlocked] payloads.
func (x *Recorder) Blocks() (blocks []Block) {
	for _, m := range x.Messages() {
		if b, ok := m.Payload.(Block); ok && m.Event == EventBlocked {
			blocks = append(blocks, b)
		}
	}
	return
}

// Overrides returns the [EventOverride] payloads.
func (x *Recorder) Overrides() (overrides []Override) {
	for _, m := range x.Messages() {
		if o, ok := m.Payload.(Override); ok && m.Event == EventOverride {
			overrides = append(overrides, o)
		}
	}
	return
}

// Summary counts blocked calls per type and script, sorted by descending
// count, then type, then script.
func (x *Recorder) Summary() []Count {
	type key struct{ typ, script string }
	index := make(map[key]int)
	var counts []Count
	for _, b := range x.Blocks() {
		k := key{b.Type, b.ScriptURL}
		if i, ok := index[k]; ok {
			counts[i].Count++
			continue
		}
		index[k] = len(counts)
		counts = append(counts, Count{Type: b.Type, ScriptURL: b.ScriptURL, Count: 1})
	}
	slices.SortFunc(counts, func(a, b Count) int {
		return cmp.Or(
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.ScriptURL, b.ScriptURL),
		)
	})
	return counts
}

// Reset discards every report.
func (x *Recorder) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.messages = nil
}
