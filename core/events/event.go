package events

import (
	"context"
	"sync"

	"dlanstake/core/types"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render themselves as a generic
// types.Event for receipts and streaming.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events raised while an instruction runs. Nothing leaves the
// buffer until Flush, so events of a discarded instruction are never seen.
type Buffer struct {
	pending []Event
}

func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.pending = append(b.pending, evt)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	return append([]Event(nil), b.pending...)
}

// Flush forwards buffered events to dst and empties the buffer.
func (b *Buffer) Flush(dst Emitter) {
	if b == nil {
		return
	}
	if dst != nil {
		for _, evt := range b.pending {
			dst.Emit(evt)
		}
	}
	b.pending = nil
}

// Reset drops buffered events.
func (b *Buffer) Reset() {
	if b != nil {
		b.pending = nil
	}
}

// Render converts typed events to their generic form, skipping others.
func Render(evts []Event) []types.Event {
	out := make([]types.Event, 0, len(evts))
	for _, evt := range evts {
		typed, ok := evt.(Typed)
		if !ok {
			continue
		}
		if rendered := typed.Event(); rendered != nil {
			out = append(out, *rendered)
		}
	}
	return out
}

const subscriberBuffer = 64

// Broadcaster fans committed events out to subscribers. Slow subscribers
// lose events rather than stall the executor.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan types.Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan types.Event)}
}

func (b *Broadcaster) Emit(evt Event) {
	typed, ok := evt.(Typed)
	if !ok || b == nil {
		return
	}
	rendered := typed.Event()
	if rendered == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- *rendered.Clone():
		default:
		}
	}
}

// Subscribe registers a subscriber. The channel closes when ctx ends or the
// returned cancel function is called.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan types.Event, func()) {
	ch := make(chan types.Event, subscriberBuffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(done)
			close(ch)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel
}
