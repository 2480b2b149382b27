package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsemble/apprunner/runtime/flow"
	"github.com/appsemble/apprunner/runtime/remapper"
)

func TestMount_Dispatch(t *testing.T) {
	app := newSignupApp(t)
	m, err := app.Mount(nil, "home", map[string]any{"id": 3})
	require.NoError(t, err)
	defer m.Close()

	assert.Nil(t, m.Flow)
	assert.Equal(t, map[string]any{"id": 3}, m.Page.Params)
	assert.Equal(t, []string{"fail", "greet", "onLoad"}, m.Actions())

	result, err := m.Dispatch(context.Background(), "onLoad", nil)
	require.NoError(t, err)
	assert.Equal(t, "loaded", result)

	exec := NewExecution(context.Background())
	_, err = m.Dispatch(exec, "greet", "ignored")
	require.NoError(t, err)
	messages := exec.Effects().Messages
	require.Len(t, messages, 1)
	assert.Equal(t, "Welkom", messages[0].Body)

	_, err = m.Dispatch(context.Background(), "fail", "nope")
	assert.Equal(t, ErrorCodeThrown, ToHostError(err).Code)

	_, err = m.Dispatch(context.Background(), "onClick", nil)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestMount_UnknownPage(t *testing.T) {
	app := newSignupApp(t)
	_, err := app.Mount(nil, "settings", nil)
	assert.ErrorIs(t, err, ErrUnknownPage)
}

func TestMount_Flow(t *testing.T) {
	app := newSignupApp(t)
	m, err := app.Mount(nil, "register", nil)
	require.NoError(t, err)
	defer m.Close()

	require.NotNil(t, m.Flow)
	assert.Equal(t, "details", m.Flow.State().Step)

	// The details step rejects data without a name.
	_, err = dispatchWithin(t, m, "next", map[string]any{"email": "ada@example.com"})
	var stepErr *StepValidationError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "details", stepErr.Step)
	assert.Equal(t, "details", m.Flow.State().Step)

	_, err = dispatchWithin(t, m, "next", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "confirm", m.Flow.State().Step)

	// On the confirm step its own next action shadows the page's.
	exec := NewExecution(context.Background())
	result, err := m.Dispatch(exec, "next", nil)
	require.NoError(t, err)

	payload, ok := result.(*remapper.Object)
	require.True(t, ok, "expected the merged payload, got %T", result)
	assert.Equal(t, []string{"email", "name"}, payload.Keys())

	messages := exec.Effects().Messages
	require.Len(t, messages, 1)
	assert.Equal(t, "Ada", messages[0].Body)
	assert.Equal(t, flow.StatusFinished, m.Flow.State().Status)

	_, err = m.Dispatch(context.Background(), "back", nil)
	assert.ErrorIs(t, err, flow.ErrClosed)
}

func TestMount_FlowBackAtStart(t *testing.T) {
	app := newSignupApp(t)
	m, err := app.Mount(nil, "register", nil)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Dispatch(context.Background(), "back", nil)
	assert.ErrorIs(t, err, flow.ErrAtStart)
	assert.Equal(t, flow.StatusActive, m.Flow.State().Status)
}

func TestMount_SessionsAreIsolated(t *testing.T) {
	app := newSignupApp(t)
	a, err := app.Mount(nil, "register", nil)
	require.NoError(t, err)
	b, err := app.Mount(nil, "register", nil)
	require.NoError(t, err)

	_, err = dispatchWithin(t, a, "next", map[string]any{"name": "Ada"})
	require.NoError(t, err)

	assert.Equal(t, "confirm", a.Flow.State().Step)
	assert.Equal(t, "details", b.Flow.State().Step)
	assert.NotEqual(t, a.Session.ID, b.Session.ID)
}

const checkoutApp = `
id: checkout
pages:
  - name: order
    type: flow
    actions:
      next:
        type: flow.next
    steps:
      - name: address
        validate: {prop: street}
      - name: payment
        validate:
          equals:
            - {context: flow.street}
            - {prop: confirmStreet}
      - name: done
`

// dispatchWithin fails the test when the dispatch does not return in time.
func dispatchWithin(t *testing.T, m *Mount, action string, data any) (any, error) {
	t.Helper()
	type outcome struct {
		result any
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := m.Dispatch(context.Background(), action, data)
		ch <- outcome{result, err}
	}()
	select {
	case o := <-ch:
		return o.result, o.err
	case <-time.After(2 * time.Second):
		t.Fatalf("dispatch of %q did not return", action)
		return nil, nil
	}
}

func TestMount_FlowStepValidation(t *testing.T) {
	app, err := NewApp(mustParseApp(t, checkoutApp), nil, nil)
	require.NoError(t, err)
	m, err := app.Mount(nil, "order", nil)
	require.NoError(t, err)
	defer m.Close()

	t.Run("failing predicate keeps the step", func(t *testing.T) {
		_, err := dispatchWithin(t, m, "next", map[string]any{"city": "Utrecht"})
		var stepErr *StepValidationError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, "address", stepErr.Step)
		assert.Equal(t, "address", m.Flow.State().Step)
		assert.Equal(t, flow.StatusActive, m.Flow.State().Status)
	})

	t.Run("passing predicate advances", func(t *testing.T) {
		_, err := dispatchWithin(t, m, "next", map[string]any{"street": "Oudegracht"})
		require.NoError(t, err)
		assert.Equal(t, "payment", m.Flow.State().Step)
	})

	t.Run("predicate reads the flow payload", func(t *testing.T) {
		_, err := dispatchWithin(t, m, "next", map[string]any{"confirmStreet": "Neude"})
		require.Error(t, err)
		assert.Equal(t, "payment", m.Flow.State().Step)

		_, err = dispatchWithin(t, m, "next", map[string]any{"confirmStreet": "Oudegracht"})
		require.NoError(t, err)
		assert.Equal(t, "done", m.Flow.State().Step)
	})
}
