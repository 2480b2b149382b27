// Package events implements the per-app publish/subscribe bus used by the
// event action and by blocks that emit or listen to named events.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Event is one delivery on the bus. Error is non-nil when the emitter marked
// the event as a failure.
type Event struct {
	Name  string
	Data  any
	Error any
}

// Failed reports whether the event carries an error marker.
func (e Event) Failed() bool {
	return e.Error != nil
}

// Handler receives events. Handlers run synchronously on the emitting
// goroutine and must not block for long.
type Handler func(Event)

type subscription struct {
	name    string
	handler Handler
	once    bool
	active  atomic.Bool
}

// Bus delivers events to the handlers subscribed at the moment of emission,
// in subscription order. It is safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*subscription
	l    *slog.Logger
}

func NewBus(l *slog.Logger) *Bus {
	if l == nil {
		l = slog.Default()
	}
	return &Bus{
		subs: make(map[string][]*subscription),
		l:    l,
	}
}

// Subscribe registers h for name. The returned disposer removes the
// subscription; once it returns h receives no further events.
func (b *Bus) Subscribe(name string, h Handler) (dispose func()) {
	return b.add(name, h, false)
}

// Once registers h for the next emission of name only.
func (b *Bus) Once(name string, h Handler) (dispose func()) {
	return b.add(name, h, true)
}

func (b *Bus) add(name string, h Handler, once bool) func() {
	sub := &subscription{name: name, handler: h, once: once}
	sub.active.Store(true)

	b.mu.Lock()
	b.subs[name] = append(b.subs[name], sub)
	b.mu.Unlock()

	var disposeOnce sync.Once
	return func() {
		disposeOnce.Do(func() {
			sub.active.Store(false)
			b.remove(sub)
		})
	}
}

func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.name]
	for i, s := range list {
		if s == sub {
			// Copy so snapshots taken by in-flight emits stay intact.
			next := make([]*subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, sub.name)
			} else {
				b.subs[sub.name] = next
			}
			return
		}
	}
}

// Emit delivers data to the current subscribers of name and returns how many
// handlers were invoked.
func (b *Bus) Emit(name string, data any) int {
	return b.emit(Event{Name: name, Data: data})
}

// EmitError delivers data with an error marker. Listeners waiting on the
// event treat it as a failure.
func (b *Bus) EmitError(name string, data, marker any) int {
	if marker == nil {
		marker = true
	}
	return b.emit(Event{Name: name, Data: data, Error: marker})
}

func (b *Bus) emit(ev Event) int {
	b.mu.Lock()
	list := b.subs[ev.Name]
	snapshot := make([]*subscription, 0, len(list))
	kept := list[:0:0]
	for _, s := range list {
		if s.once {
			// Claim under the lock so a concurrent emit cannot also deliver it.
			if s.active.CompareAndSwap(true, false) {
				snapshot = append(snapshot, s)
			}
			continue
		}
		snapshot = append(snapshot, s)
		kept = append(kept, s)
	}
	if len(kept) != len(list) {
		if len(kept) == 0 {
			delete(b.subs, ev.Name)
		} else {
			b.subs[ev.Name] = kept
		}
	}
	b.mu.Unlock()

	delivered := 0
	for _, s := range snapshot {
		if !s.once && !s.active.Load() {
			continue
		}
		b.deliver(s, ev)
		delivered++
	}
	return delivered
}

func (b *Bus) deliver(s *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.l.Error("event handler panicked", "event", ev.Name, "panic", fmt.Sprint(r))
		}
	}()
	s.handler(ev)
}

// Subscribers returns the number of live subscriptions for name.
func (b *Bus) Subscribers(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[name])
}

// Clear drops every subscription. It is called when the app instance that
// owns the bus shuts down.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, list := range b.subs {
		for _, s := range list {
			s.active.Store(false)
		}
	}
	b.subs = make(map[string][]*subscription)
}

// Next returns a channel that receives the next emission of name. The channel
// is buffered so the emitter never blocks. Call cancel to stop waiting.
func (b *Bus) Next(name string) (events <-chan Event, cancel func()) {
	ch := make(chan Event, 1)
	dispose := b.Once(name, func(ev Event) {
		ch <- ev
	})
	return ch, dispose
}
