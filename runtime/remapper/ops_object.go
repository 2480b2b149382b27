package remapper

var objectOperators = map[string]Factory{
	"object.from":   objectFromOperator,
	"object.assign": objectAssignOperator,
	"object.omit":   objectOmitOperator,
}

type objectField struct {
	key string
	fn  Func
}

func compileFields(c *Compiler, op string, arg any) ([]objectField, error) {
	obj, ok := AsObject(arg)
	if !ok {
		return nil, c.Errorf(op, "expected an object of remappers, got %T", arg)
	}
	fields := make([]objectField, 0, obj.Len())
	for _, key := range obj.Keys() {
		node, _ := obj.Get(key)
		fn, err := c.CompileAt(key, node)
		if err != nil {
			return nil, err
		}
		fields = append(fields, objectField{key: key, fn: fn})
	}
	return fields, nil
}

// objectFromOperator builds a new object. Every property remapper receives the
// constructor's own input, never a sibling's output.
func objectFromOperator(c *Compiler, arg any) (Func, error) {
	fields, err := compileFields(c, "object.from", arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		out := NewObject()
		for _, f := range fields {
			out.Set(f.key, f.fn(input, s))
		}
		return out
	}, nil
}

// objectAssignOperator copies the input object and sets the given properties.
// A non-object input is treated as an empty object.
func objectAssignOperator(c *Compiler, arg any) (Func, error) {
	fields, err := compileFields(c, "object.assign", arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		out := NewObject()
		if src, ok := AsObject(input); ok {
			out = src.Clone()
		}
		for _, f := range fields {
			out.Set(f.key, f.fn(input, s))
		}
		return out
	}, nil
}

// objectOmitOperator removes properties from a copy of the input. Each entry
// is a key or an array describing a nested path.
func objectOmitOperator(c *Compiler, arg any) (Func, error) {
	entries, ok := asSlice(arg)
	if !ok {
		return nil, c.Errorf("object.omit", "expected an array of keys, got %T", arg)
	}
	paths := make([][]string, 0, len(entries))
	for _, e := range entries {
		switch k := e.(type) {
		case string:
			paths = append(paths, []string{k})
		case []any:
			p := make([]string, 0, len(k))
			for _, part := range k {
				p = append(p, stringify(part))
			}
			if len(p) > 0 {
				paths = append(paths, p)
			}
		default:
			return nil, c.Errorf("object.omit", "expected a key or key path, got %T", e)
		}
	}
	return func(input any, _ *Scope) any {
		src, ok := AsObject(input)
		if !ok {
			return input
		}
		out := cloneValue(src).(*Object)
		for _, p := range paths {
			omitPath(out, p)
		}
		return out
	}, nil
}

func omitPath(obj *Object, path []string) {
	if len(path) == 1 {
		obj.Delete(path[0])
		return
	}
	next, ok := obj.Get(path[0])
	if !ok {
		return
	}
	switch child := next.(type) {
	case *Object:
		omitPath(child, path[1:])
	case map[string]any:
		converted := ObjectFromMap(child)
		omitPath(converted, path[1:])
		obj.Set(path[0], converted)
	}
}
