package actions

import (
	"fmt"
	"sort"
	"sync"

	"github.com/appsemble/apprunner/runtime/remapper"
)

// Factory builds the action for one definition. Factories decode and
// validate their fields and compile any remappers up front; dispatch-time
// work happens in the returned Action.
type Factory func(b *Builder, def *Definition) (Action, error)

// Registry maps action types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Type]Factory
}

// NewRegistry returns a registry holding the built-in action types.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[Type]Factory, len(builtins))}
	for t, f := range builtins {
		r.factories[t] = f
	}
	return r
}

// Register adds a custom action type. Existing types cannot be replaced.
func (r *Registry) Register(t Type, f Factory) error {
	if t == "" || f == nil {
		return fmt.Errorf("action type and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[t]; exists {
		return fmt.Errorf("action type %q is already registered", t)
	}
	r.factories[t] = f
	return nil
}

func (r *Registry) Lookup(t Type) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[t]
	return f, ok
}

// Types lists all registered types in alphabetical order.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Build turns a definition into its action chain for a page of a session.
// A nil definition builds a noop.
func (r *Registry) Build(def *Definition, s *Session, p *Page) (Action, error) {
	if s == nil {
		s = NewSession(remapper.AppInfo{}, nil)
	}
	b := &Builder{registry: r, session: s, page: p}
	return b.Build(def)
}

// BuildAll builds a page's named actions.
func (r *Registry) BuildAll(defs map[string]*Definition, s *Session, p *Page) (map[string]Action, error) {
	if s == nil {
		s = NewSession(remapper.AppInfo{}, nil)
	}
	out := make(map[string]Action, len(defs))
	for name, def := range defs {
		b := &Builder{registry: r, session: s, page: p, path: name}
		a, err := b.Build(def)
		if err != nil {
			return nil, err
		}
		out[name] = a
	}
	return out, nil
}

// Builder is handed to factories so they can build nested actions and
// compile remappers with error paths pointing into the definition.
type Builder struct {
	registry *Registry
	session  *Session
	page     *Page
	path     string
}

func (b *Builder) Session() *Session {
	return b.session
}

func (b *Builder) Page() *Page {
	return b.page
}

// Build builds a nested definition at the builder's current path.
func (b *Builder) Build(def *Definition) (Action, error) {
	if def == nil {
		def = &Definition{Type: TypeNoop}
	}
	factory, ok := b.registry.Lookup(def.Type)
	if !ok {
		return nil, &ConfigError{Type: string(def.Type), Path: b.path, Message: "unknown action type"}
	}

	inner, err := factory(b, def)
	if err != nil {
		if IsConfigError(err) {
			return nil, err
		}
		return nil, &ConfigError{Type: string(def.Type), Path: b.path, Err: err}
	}

	c := &chain{
		action:  inner,
		retry:   def.Retry,
		session: b.session,
		page:    b.page,
		path:    b.path,
	}
	if c.before, err = b.compile(def, "remapBefore", def.RemapBefore); err != nil {
		return nil, err
	}
	if c.after, err = b.compile(def, "remapAfter", def.RemapAfter); err != nil {
		return nil, err
	}
	if def.OnSuccess != nil {
		if c.onSuccess, err = b.at("onSuccess").Build(def.OnSuccess); err != nil {
			return nil, err
		}
	}
	if def.OnError != nil {
		if c.onError, err = b.at("onError").Build(def.OnError); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BuildField parses and builds a nested action definition held in a field.
func (b *Builder) BuildField(field string, node any) (Action, error) {
	path := joinPath(b.path, field)
	def, err := parseDefinition(node, path)
	if err != nil {
		return nil, err
	}
	return (&Builder{registry: b.registry, session: b.session, page: b.page, path: path}).Build(def)
}

// Remapper compiles a remapper held in a field. A nil node compiles to nil,
// which passes data through.
func (b *Builder) Remapper(def *Definition, field string, node remapper.Node) (*remapper.Remapper, error) {
	return b.compile(def, field, node)
}

// Decode fills target from the definition's fields.
func (b *Builder) Decode(def *Definition, target any) error {
	if err := decodeFields(def.Fields, target); err != nil {
		return &ConfigError{Type: string(def.Type), Path: b.path, Err: err}
	}
	return nil
}

func (b *Builder) compile(def *Definition, field string, node remapper.Node) (*remapper.Remapper, error) {
	if node == nil {
		return nil, nil
	}
	r, err := remapper.Compile(node)
	if err != nil {
		return nil, &ConfigError{Type: string(def.Type), Path: joinPath(b.path, field), Err: err}
	}
	return r, nil
}

func (b *Builder) at(segment string) *Builder {
	return &Builder{registry: b.registry, session: b.session, page: b.page, path: joinPath(b.path, segment)}
}
