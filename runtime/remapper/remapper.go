// Package remapper compiles and evaluates remappers: declarative,
// JSON-serializable expressions that transform one value into another.
//
// A remapper node is one of:
//
//   - nil: passes the input through unchanged
//   - a string, number or boolean: a literal value
//   - an array: a sequence, where every element receives the output of the
//     previous one and the first element receives the original input
//   - an object with exactly one key: an operator call, for example
//     {"prop": "name"} or {"if": {"condition": ..., "then": ..., "else": ...}}
//
// Compilation validates the whole tree up front, so a malformed definition is
// reported before any data flows through it. Evaluation is pure: it never
// mutates the input or the context and gives equal results for equal inputs.
package remapper

import (
	"reflect"
	"sort"
	"strconv"
)

// Node is a remapper definition as decoded from YAML or JSON.
type Node = any

// Func is a compiled remapper step.
type Func func(input any, s *Scope) any

// Remapper is a compiled remapper tree. It is safe for concurrent use.
type Remapper struct {
	fn Func
}

// Compile validates node and returns its compiled form.
func Compile(node Node) (*Remapper, error) {
	c := &Compiler{operators: snapshotOperators()}
	fn, err := c.compile(node, "")
	if err != nil {
		return nil, err
	}
	return &Remapper{fn: fn}, nil
}

// Evaluate compiles node and applies it to input.
func Evaluate(node Node, input any, ctx *Context) (any, error) {
	r, err := Compile(node)
	if err != nil {
		return nil, err
	}
	return r.Remap(input, ctx), nil
}

// Remap applies the remapper to input. A nil remapper returns input as is.
func (r *Remapper) Remap(input any, ctx *Context) any {
	if r == nil || r.fn == nil {
		return input
	}
	if ctx == nil {
		ctx = &Context{}
	}
	return r.fn(input, &Scope{ctx: ctx, root: input})
}

// Compiler turns remapper nodes into Funcs. Operator factories receive it so
// they can compile their nested remappers.
type Compiler struct {
	operators map[string]Factory
	path      string
}

// Compile compiles a nested node below the operator currently being built.
func (c *Compiler) Compile(node Node) (Func, error) {
	return c.compile(node, c.path)
}

// CompileAt compiles a nested node, recording segment in error paths.
func (c *Compiler) CompileAt(segment string, node Node) (Func, error) {
	return c.compile(node, joinPath(c.path, segment))
}

// Errorf builds a RemapperError for the operator currently being built.
func (c *Compiler) Errorf(operator, format string, args ...any) *RemapperError {
	return NewRemapperErrorf(format, args...).AddOperator(operator).AddPath(c.path)
}

func (c *Compiler) compile(node Node, path string) (Func, error) {
	switch n := node.(type) {
	case nil:
		return identity, nil
	case string, bool:
		return literal(n), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return literal(n), nil
	case []any:
		return c.compileSequence(n, path)
	case *Object:
		if n.Len() != 1 {
			return nil, NewRemapperErrorf("remapper must have exactly one key, got %d", n.Len()).AddPath(path)
		}
		key := n.Keys()[0]
		arg, _ := n.Get(key)
		return c.compileOperator(key, arg, path)
	case map[string]any:
		if len(n) != 1 {
			return nil, NewRemapperErrorf("remapper must have exactly one key, got %d", len(n)).AddPath(path)
		}
		for key, arg := range n {
			return c.compileOperator(key, arg, path)
		}
	}

	normalized, ok := normalizeNode(node)
	if !ok {
		return nil, NewRemapperErrorf("unsupported remapper node of type %T", node).AddPath(path)
	}
	return c.compile(normalized, path)
}

func (c *Compiler) compileSequence(nodes []any, path string) (Func, error) {
	steps := make([]Func, 0, len(nodes))
	for i, n := range nodes {
		fn, err := c.compile(n, joinPath(path, "["+strconv.Itoa(i)+"]"))
		if err != nil {
			return nil, err
		}
		steps = append(steps, fn)
	}

	switch len(steps) {
	case 0:
		return identity, nil
	case 1:
		return steps[0], nil
	}

	return func(input any, s *Scope) any {
		result := input
		for _, step := range steps {
			result = step(result, s)
		}
		return result
	}, nil
}

func (c *Compiler) compileOperator(key string, arg any, path string) (Func, error) {
	factory, ok := c.operators[key]
	if !ok {
		return nil, NewRemapperError("unknown remapper").AddOperator(key).AddPath(path)
	}

	child := &Compiler{operators: c.operators, path: joinPath(path, key)}
	fn, err := factory(child, arg)
	if err != nil {
		return nil, WrapRemapperError(err).AddOperator(key)
	}
	return fn, nil
}

func identity(input any, _ *Scope) any {
	return input
}

func literal(v any) Func {
	return func(any, *Scope) any {
		return v
	}
}

func joinPath(path, segment string) string {
	if path == "" {
		return segment
	}
	if len(segment) > 0 && segment[0] == '[' {
		return path + segment
	}
	return path + "." + segment
}

// normalizeNode converts typed Go slices and maps (for example []string or
// map[string]string built in code) into the generic shapes the compiler knows.
func normalizeNode(node any) (any, bool) {
	rv := reflect.ValueOf(node)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
		}
		return obj, true
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, true
		}
		return normalizeNode(rv.Elem().Interface())
	}
	return nil, false
}
