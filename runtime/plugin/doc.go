// Package plugin is the surface plugin authors build against.
//
// A plugin is a struct registered with the host under a name. Its exported
// methods with the signature
//
//	func (p *MyPlugin) Method(ctx context.Context, args plugin.Args, data any) (any, error)
//
// become action types named "<name>.<method>", with the first letter of the
// method lowered:
//
//	type TicketsPlugin struct {
//	    Config Config
//	}
//
//	// Used in app definitions as:
//	//
//	//	type: tickets.close
//	//	id: {prop: id}
//	func (p *TicketsPlugin) Close(ctx context.Context, args plugin.Args, data any) (any, error) {
//	    id, _ := args["id"].(float64)
//	    ...
//	}
//
// Every field of the action definition other than the common action keys
// (type, remapBefore, remapAfter, onSuccess, onError, retry) is a remapper.
// The fields are evaluated against the action's input and handed to the
// method as args; data is the input itself.
//
// # Configuration
//
// A plugin with an exported Config struct field is configured from the host
// config file. Struct tags drive defaults and validation:
//
//	type Config struct {
//	    URL     string        `yaml:"url" default:"redis://localhost:6379" validate:"url_format"`
//	    Timeout time.Duration `yaml:"timeout" default:"2s"`
//	}
//
// Values of the form ${VAR} or ${VAR:default} are read from the environment
// before validation. Unknown keys are rejected.
//
// # Capabilities
//
// Plugins implementing Lifecycle are initialized when the host starts and shut
// down in reverse order when it stops. A plugin implementing Requester serves
// request, email and notify actions, and one implementing Storage backs the
// storage.* actions, for every session of every app.
//
// # Errors
//
// Return an *Error to control how failures are reported and retried:
//
//	return nil, plugin.Errorf("upstream unavailable").WithType(plugin.ErrorTypeTransient)
//
// Any other error is reported as a permanent runtime error.
package plugin
