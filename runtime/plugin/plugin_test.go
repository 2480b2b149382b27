package plugin_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsemble/apprunner/runtime"
	"github.com/appsemble/apprunner/runtime/plugin"
)

type counterPlugin struct {
	Config struct {
		Start float64 `yaml:"start" default:"10"`
	}
	ready bool
}

func (p *counterPlugin) Initialize(ctx context.Context) error {
	p.ready = true
	return nil
}

func (p *counterPlugin) Shutdown(ctx context.Context) error {
	p.ready = false
	return nil
}

func (p *counterPlugin) Add(ctx context.Context, args plugin.Args, data any) (any, error) {
	if !p.ready {
		return nil, plugin.NotInitialized("counter")
	}
	by, _ := args["by"].(float64)
	return plugin.NewObject().Set("total", p.Config.Start+by), nil
}

var (
	_ plugin.Lifecycle  = (*counterPlugin)(nil)
	_ plugin.ActionFunc = (*counterPlugin)(nil).Add
)

func TestFacadePluginRegisters(t *testing.T) {
	c := runtime.NewContainer()
	p := &counterPlugin{}
	require.NoError(t, c.RegisterPlugin("counter", p, nil))
	assert.Equal(t, 10.0, p.Config.Start)

	_, ok := c.Registry().Lookup("counter.add")
	assert.True(t, ok)

	require.NoError(t, c.Initialize(context.Background()))
	out, err := p.Add(context.Background(), plugin.Args{"by": 5.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": 15.0}, plugin.Plain(out))

	require.NoError(t, c.Shutdown(context.Background()))
	_, err = p.Add(context.Background(), nil, nil)
	var pe *plugin.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, plugin.ErrorCodeNotAvailable, pe.Code)
}

func TestDecodeJSONKeepsOrder(t *testing.T) {
	v, err := plugin.DecodeJSON([]byte(`{"z": 1, "a": [true]}`))
	require.NoError(t, err)

	obj, ok := v.(*plugin.Object)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a"}, obj.Keys())
}
