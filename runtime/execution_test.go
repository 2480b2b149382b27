package runtime

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsemble/apprunner/runtime/actions"
)

func TestExecution_ContextDelegation(t *testing.T) {
	type key struct{}
	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), key{}, "v"), time.Minute)
	exec := NewExecution(parent)

	_, ok := exec.Deadline()
	assert.True(t, ok)
	assert.Equal(t, "v", exec.Value(key{}))
	assert.NoError(t, exec.Err())

	cancel()
	<-exec.Done()
	assert.ErrorIs(t, exec.Err(), context.Canceled)
}

func TestExecutionFrom(t *testing.T) {
	exec := NewExecution(context.Background())

	derived, cancel := context.WithCancel(exec)
	defer cancel()

	found, ok := ExecutionFrom(derived)
	require.True(t, ok)
	assert.Same(t, exec, found)

	_, ok = ExecutionFrom(context.Background())
	assert.False(t, ok)
	_, ok = ExecutionFrom(nil)
	assert.False(t, ok)
}

func TestEffectSink_RecordsOnExecution(t *testing.T) {
	sink := &effectSink{l: slog.Default()}
	exec := NewExecution(context.Background())
	ctx, cancel := context.WithCancel(exec)
	defer cancel()

	require.NoError(t, sink.Show(ctx, actions.Message{Body: "Saved", Color: "success"}))
	require.NoError(t, sink.Navigate(ctx, actions.Navigation{Kind: actions.NavigateBack}))
	require.NoError(t, sink.Download(ctx, actions.Download{Filename: "a.csv", ContentType: "text/csv", Data: []byte("a,b")}))

	effects := exec.Effects()
	require.Len(t, effects.Messages, 1)
	assert.Equal(t, "Saved", effects.Messages[0].Body)
	require.Len(t, effects.Navigations, 1)
	assert.Equal(t, actions.NavigateBack, effects.Navigations[0].Kind)
	require.Len(t, effects.Downloads, 1)
	assert.Equal(t, []byte("a,b"), effects.Downloads[0].Content)

	// Effects returns a copy.
	effects.Messages[0].Body = "changed"
	assert.Equal(t, "Saved", exec.Effects().Messages[0].Body)
}

func TestEffectSink_LogsOutsideExecution(t *testing.T) {
	var buf bytes.Buffer
	sink := &effectSink{l: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, sink.Show(context.Background(), actions.Message{Body: "hello"}))
	assert.Contains(t, buf.String(), "body=hello")
}

func TestExecution_EmptyEffects(t *testing.T) {
	effects := NewExecution(nil).Effects()
	assert.NotNil(t, effects.Messages)
	assert.NotNil(t, effects.Navigations)
	assert.NotNil(t, effects.Downloads)
}
