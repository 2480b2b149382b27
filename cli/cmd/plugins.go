package cmd

import (
	"fmt"
	"sort"

	httpplugin "github.com/appsemble/apprunner/plugins/http"
	"github.com/appsemble/apprunner/plugins/postgres"
	redisplugin "github.com/appsemble/apprunner/plugins/redis"
	"github.com/appsemble/apprunner/runtime"
)

// pluginCatalog lists the plugins a config file can enable.
var pluginCatalog = map[string]func() any{
	"http":     func() any { return &httpplugin.HTTPPlugin{} },
	"postgres": func() any { return &postgres.PostgresPlugin{} },
	"redis":    func() any { return &redisplugin.RedisPlugin{} },
}

// newContainer registers the plugins enabled in cfg. The http plugin is
// always present so request actions work without configuration.
func newContainer(cfg *runtime.ServerConfig) (*runtime.Container, error) {
	enabled := map[string]map[string]any{"http": nil}
	for name, raw := range cfg.Plugins {
		enabled[name] = raw
	}

	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)

	container := runtime.NewContainer()
	for _, name := range names {
		newPlugin, ok := pluginCatalog[name]
		if !ok {
			return nil, fmt.Errorf("unknown plugin %q", name)
		}
		if err := container.RegisterPlugin(name, newPlugin(), enabled[name]); err != nil {
			return nil, err
		}
	}
	return container, nil
}
