package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus(nil)
	var got []string
	bus.Subscribe("x", func(ev Event) { got = append(got, "a:"+ev.Data.(string)) })
	bus.Subscribe("x", func(ev Event) { got = append(got, "b:"+ev.Data.(string)) })
	bus.Subscribe("y", func(ev Event) { got = append(got, "y") })

	n := bus.Emit("x", "1")

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a:1", "b:1"}, got)
}

func TestOnceRunsExactlyOnce(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	bus.Once("x", func(Event) { calls++ })

	bus.Emit("x", nil)
	bus.Emit("x", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Subscribers("x"))
}

func TestOnceUnderConcurrentEmit(t *testing.T) {
	bus := NewBus(nil)
	var mu sync.Mutex
	calls := 0
	bus.Once("x", func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Emit("x", nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
}

func TestDisposedSubscriptionGetsNothing(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	dispose := bus.Subscribe("x", func(Event) { calls++ })

	bus.Emit("x", nil)
	dispose()
	dispose()
	bus.Emit("x", nil)

	assert.Equal(t, 1, calls)
}

func TestSubscribeDuringEmitWaitsForNextRound(t *testing.T) {
	bus := NewBus(nil)
	late := 0
	bus.Subscribe("x", func(Event) {
		bus.Subscribe("x", func(Event) { late++ })
	})

	bus.Emit("x", nil)
	assert.Equal(t, 0, late)

	bus.Emit("x", nil)
	assert.Equal(t, 1, late)
}

func TestDisposeDuringEmitSkipsLaterHandler(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	var disposeSecond func()
	bus.Subscribe("x", func(Event) { disposeSecond() })
	disposeSecond = bus.Subscribe("x", func(Event) { calls++ })

	bus.Emit("x", nil)

	assert.Equal(t, 0, calls)
}

func TestEmitError(t *testing.T) {
	bus := NewBus(nil)
	var got Event
	bus.Subscribe("saved", func(ev Event) { got = ev })

	bus.EmitError("saved", map[string]any{"status": 500.0}, nil)

	assert.True(t, got.Failed())
	assert.Equal(t, map[string]any{"status": 500.0}, got.Data)
}

func TestHandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(nil)
	called := false
	bus.Subscribe("x", func(Event) { panic("boom") })
	bus.Subscribe("x", func(Event) { called = true })

	assert.NotPanics(t, func() { bus.Emit("x", nil) })
	assert.True(t, called)
}

func TestNext(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Next("done")
	defer cancel()

	go bus.Emit("done", 42)

	select {
	case ev := <-ch:
		assert.Equal(t, 42, ev.Data)
	case <-time.After(time.Second):
		require.FailNow(t, "event not delivered")
	}
}

func TestClear(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	bus.Subscribe("x", func(Event) { calls++ })
	bus.Clear()

	assert.Equal(t, 0, bus.Emit("x", nil))
	assert.Equal(t, 0, calls)
}
