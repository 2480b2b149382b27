package actions

import (
	"context"
	"errors"
	"time"
)

type eventFields struct {
	Event   string        `yaml:"event" validate:"required"`
	WaitFor string        `yaml:"waitFor"`
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
	// Error marks the emitted event as a failure for its listeners.
	Error bool `yaml:"error"`
}

// event emits its input on the session bus, marked as a failure when error
// is set. With waitFor it then blocks until
// that event is emitted and resolves with its payload; an emission carrying an
// error marker fails the dispatch with an *EventError.
func eventFactory(b *Builder, def *Definition) (Action, error) {
	var f eventFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	s := b.Session()
	return New(TypeEvent, func(ctx context.Context, data any) (any, error) {
		if s.Bus == nil {
			return nil, NewActionErrorf("no event bus").WithCode(ErrorCodeNotAvailable)
		}
		emit := func() {
			if f.Error {
				s.Bus.EmitError(f.Event, data, true)
			} else {
				s.Bus.Emit(f.Event, data)
			}
		}
		if f.WaitFor == "" {
			emit()
			return data, nil
		}

		// Subscribe first so a synchronous reply to the emit is not missed.
		ch, cancel := s.Bus.Next(f.WaitFor)
		defer cancel()
		emit()

		var timeout <-chan time.Time
		if f.Timeout > 0 {
			timer := time.NewTimer(f.Timeout)
			defer timer.Stop()
			timeout = timer.C
		}

		select {
		case ev := <-ch:
			if ev.Failed() {
				return nil, &EventError{Event: ev.Name, Payload: ev.Data, Marker: ev.Error}
			}
			return ev.Data, nil
		case <-timeout:
			return nil, NewActionErrorf("timed out waiting for event %q", f.WaitFor).
				WithType(ErrorTypeTimeout).
				WithCode(ErrorCodeTimeout)
		case <-ctx.Done():
			code := ErrorCodeCancelled
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				code = ErrorCodeTimeout
			}
			return nil, NewActionError(ctx.Err()).WithCode(code)
		}
	}), nil
}
