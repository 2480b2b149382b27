package runtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/appsemble/apprunner/runtime/actions"
	"github.com/appsemble/apprunner/runtime/remapper"
)

// Capabilities a plugin can provide to sessions.
const (
	InterfaceLifecycle = "Lifecycle"
	InterfaceRequester = "Requester"
	InterfaceStorage   = "Storage"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	mapType     = reflect.TypeOf(map[string]any(nil))
	anyType     = reflect.TypeOf((*any)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Container holds the plugins of a host and the action registry apps are
// built with. Plugin methods with the signature
//
//	func (p *Plugin) Name(ctx context.Context, args map[string]any, data any) (any, error)
//
// become action types named "<plugin>.<name>".
type Container struct {
	registry           *actions.Registry
	plugins            map[string]any
	pluginsByInterface map[string][]any
}

func NewContainer() *Container {
	return &Container{
		registry:           actions.NewRegistry(),
		plugins:            make(map[string]any),
		pluginsByInterface: make(map[string][]any),
	}
}

func (c *Container) Registry() *actions.Registry {
	return c.registry
}

// RegisterPlugin configures a plugin, detects the capabilities it provides
// and registers its action methods. rawConfig is applied to the plugin's
// exported Config field through InitializeConfig.
func (c *Container) RegisterPlugin(pluginName string, plugin any, rawConfig map[string]any) error {
	if plugin == nil {
		return fmt.Errorf("plugin cannot be nil")
	}
	if _, exists := c.plugins[pluginName]; exists {
		return fmt.Errorf("plugin %q is already registered", pluginName)
	}

	if err := configurePlugin(plugin, rawConfig); err != nil {
		return fmt.Errorf("plugin %q: %w", pluginName, err)
	}

	pluginType := reflect.TypeOf(plugin)
	pluginValue := reflect.ValueOf(plugin)

	for i := 0; i < pluginType.NumMethod(); i++ {
		method := pluginType.Method(i)
		if !method.IsExported() || !isValidActionSignature(method.Type) {
			continue
		}

		actionType := actions.Type(fmt.Sprintf("%s.%s", pluginName, toLowerFirst(method.Name)))
		if err := c.registry.Register(actionType, pluginFactory(pluginValue, method)); err != nil {
			return fmt.Errorf("plugin %q: %w", pluginName, err)
		}
	}

	c.plugins[pluginName] = plugin
	c.detectPluginInterfaces(plugin)
	return nil
}

func (c *Container) detectPluginInterfaces(plugin any) {
	if _, ok := plugin.(Lifecycle); ok {
		c.pluginsByInterface[InterfaceLifecycle] = append(c.pluginsByInterface[InterfaceLifecycle], plugin)
	}
	if _, ok := plugin.(actions.Requester); ok {
		c.pluginsByInterface[InterfaceRequester] = append(c.pluginsByInterface[InterfaceRequester], plugin)
	}
	if _, ok := plugin.(actions.Storage); ok {
		c.pluginsByInterface[InterfaceStorage] = append(c.pluginsByInterface[InterfaceStorage], plugin)
	}
}

func (c *Container) GetPlugin(name string) any {
	return c.plugins[name]
}

// Apply hands the first registered plugin of every capability to the
// session. Capabilities no plugin provides keep the session's defaults.
func (c *Container) Apply(s *actions.Session) {
	if p := c.pluginsByInterface[InterfaceRequester]; len(p) > 0 {
		s.Requester = p[0].(actions.Requester)
	}
	if p := c.pluginsByInterface[InterfaceStorage]; len(p) > 0 {
		s.Storage = p[0].(actions.Storage)
	}
}

// Initialize initializes Lifecycle plugins in registration order and stops
// at the first failure.
func (c *Container) Initialize(ctx context.Context) error {
	for i, plugin := range c.pluginsByInterface[InterfaceLifecycle] {
		if err := plugin.(Lifecycle).Initialize(ctx); err != nil {
			return fmt.Errorf("plugin #%d initialization failed: %w", i, err)
		}
	}
	return nil
}

// Shutdown shuts Lifecycle plugins down in reverse registration order.
func (c *Container) Shutdown(ctx context.Context) error {
	lifecyclePlugins := c.pluginsByInterface[InterfaceLifecycle]

	var errs []error
	for i := len(lifecyclePlugins) - 1; i >= 0; i-- {
		if err := lifecyclePlugins[i].(Lifecycle).Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("plugin #%d shutdown failed: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// configurePlugin prepares the plugin's Config field, when it has one.
func configurePlugin(plugin any, rawConfig map[string]any) error {
	v := reflect.ValueOf(plugin)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		if len(rawConfig) > 0 {
			return fmt.Errorf("plugin takes no configuration")
		}
		return nil
	}

	field := v.Elem().FieldByName("Config")
	if !field.IsValid() || field.Kind() != reflect.Struct || !field.CanAddr() {
		if len(rawConfig) > 0 {
			return fmt.Errorf("plugin takes no configuration")
		}
		return nil
	}

	resolved, err := ResolveEnv(rawConfig)
	if err != nil {
		return err
	}
	values, _ := resolved.(map[string]any)
	return InitializeConfig(field.Addr().Interface(), values)
}

func isValidActionSignature(methodType reflect.Type) bool {
	// receiver, ctx, args, data
	if methodType.NumIn() != 4 || methodType.NumOut() != 2 {
		return false
	}
	return methodType.In(1) == contextType &&
		methodType.In(2) == mapType &&
		methodType.In(3) == anyType &&
		methodType.Out(0) == anyType &&
		methodType.Out(1) == errorType
}

func toLowerFirst(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// pluginFactory builds actions backed by a plugin method. Every field of the
// definition is a remapper; the method receives their results as args and
// the action's input as data.
func pluginFactory(plugin reflect.Value, method reflect.Method) actions.Factory {
	return func(b *actions.Builder, def *actions.Definition) (actions.Action, error) {
		args := make(map[string]*remapper.Remapper, len(def.Fields))
		for key, node := range def.Fields {
			r, err := b.Remapper(def, key, node)
			if err != nil {
				return nil, err
			}
			args[key] = r
		}

		s, p := b.Session(), b.Page()
		return actions.New(def.Type, func(ctx context.Context, data any) (any, error) {
			rctx := s.RemapperContext(p)
			values := make(map[string]any, len(args))
			for key, r := range args {
				if r == nil {
					values[key] = nil
					continue
				}
				values[key] = remapper.Plain(r.Remap(data, rctx))
			}
			return callPlugin(ctx, plugin, method, values, data)
		}), nil
	}
}

func callPlugin(ctx context.Context, plugin reflect.Value, method reflect.Method, args map[string]any, data any) (any, error) {
	results := method.Func.Call([]reflect.Value{
		plugin,
		reflect.ValueOf(&ctx).Elem(),
		reflect.ValueOf(args),
		reflect.ValueOf(&data).Elem(),
	})

	var err error
	if !results[1].IsNil() {
		err = results[1].Interface().(error)
	}
	return results[0].Interface(), err
}
