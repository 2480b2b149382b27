package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsemble/apprunner/runtime/plugin"
)

func newTestPlugin(t *testing.T, cfg Config) (*RedisPlugin, *miniredis.Miniredis) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)

	cfg.URL = "redis://" + srv.Addr()
	if cfg.Prefix == "" {
		cfg.Prefix = "apprunner"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "test"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	p := &RedisPlugin{Config: cfg}
	require.NoError(t, p.Initialize(context.Background()))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, srv
}

func TestStorage_RoundTrip(t *testing.T) {
	p, srv := newTestPlugin(t, Config{})
	ctx := context.Background()

	_, found, err := p.Get(ctx, "draft")
	require.NoError(t, err)
	assert.False(t, found)

	value := plugin.NewObject().Set("title", "Broken lamp").Set("priority", 2)
	require.NoError(t, p.Set(ctx, "draft", value))
	assert.True(t, srv.Exists("apprunner:storage:test"))

	got, found, err := p.Get(ctx, "draft")
	require.NoError(t, err)
	require.True(t, found)
	obj, ok := got.(*plugin.Object)
	require.True(t, ok)
	assert.Equal(t, []string{"title", "priority"}, obj.Keys())
	assert.Equal(t, map[string]any{"title": "Broken lamp", "priority": float64(2)}, obj.Map())

	require.NoError(t, p.Remove(ctx, "draft"))
	_, found, err = p.Get(ctx, "draft")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStorage_NullIsStored(t *testing.T) {
	p, _ := newTestPlugin(t, Config{})
	ctx := context.Background()

	require.NoError(t, p.Set(ctx, "empty", nil))
	v, found, err := p.Get(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, v)
}

func TestStorage_ClearOnlyTouchesNamespace(t *testing.T) {
	p, srv := newTestPlugin(t, Config{})
	ctx := context.Background()

	srv.HSet("apprunner:storage:other", "k", `"kept"`)
	require.NoError(t, p.Set(ctx, "a", 1))
	require.NoError(t, p.Set(ctx, "b", 2))
	require.NoError(t, p.Clear(ctx))

	assert.False(t, srv.Exists("apprunner:storage:test"))
	assert.Equal(t, `"kept"`, srv.HGet("apprunner:storage:other", "k"))
}

func TestStorage_TTL(t *testing.T) {
	p, srv := newTestPlugin(t, Config{TTL: time.Minute})
	require.NoError(t, p.Set(context.Background(), "a", "x"))

	assert.Equal(t, time.Minute, srv.TTL("apprunner:storage:test"))
	srv.FastForward(2 * time.Minute)
	assert.False(t, srv.Exists("apprunner:storage:test"))
}

func TestPublish(t *testing.T) {
	p, srv := newTestPlugin(t, Config{})
	sub := srv.NewSubscriber()
	defer sub.Close()
	sub.Subscribe("apprunner:tickets")

	n, err := p.Publish(context.Background(), map[string]any{"channel": "tickets"}, map[string]any{"id": "t-1"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), n)

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "apprunner:tickets", msg.Channel)
		assert.JSONEq(t, `{"id":"t-1"}`, msg.Message)
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}

	_, err = p.Publish(context.Background(), map[string]any{}, nil)
	var ae *plugin.Error
	require.ErrorAs(t, err, &ae)
}

func TestIncr(t *testing.T) {
	p, _ := newTestPlugin(t, Config{})
	ctx := context.Background()

	n, err := p.Incr(ctx, map[string]any{"key": "visits"}, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(1), n)

	n, err = p.Incr(ctx, map[string]any{"key": "visits", "by": float64(5)}, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(6), n)
}

func TestNotInitialized(t *testing.T) {
	p := &RedisPlugin{}
	err := p.Set(context.Background(), "k", 1)

	var ae *plugin.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, plugin.ErrorCodeNotAvailable, ae.Code)
}
