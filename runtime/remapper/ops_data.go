package remapper

import (
	"strings"
)

var dataOperators = map[string]Factory{
	"static":    staticOperator,
	"prop":      propOperator,
	"variable":  variableOperator,
	"root":      rootOperator,
	"context":   contextOperator,
	"app":       appOperator,
	"page":      pageOperator,
	"user":      userOperator,
	"translate": translateOperator,
	"array":     arrayOperator,
}

// staticOperator returns its argument verbatim, ignoring the input.
func staticOperator(_ *Compiler, arg any) (Func, error) {
	return func(any, *Scope) any {
		return cloneValue(arg)
	}, nil
}

// propOperator reads a property path from the input. The argument is a
// dot-separated string, an array index, an array of literal keys, or a
// remapper computing one of those. Missing properties resolve to nil.
func propOperator(c *Compiler, arg any) (Func, error) {
	switch a := arg.(type) {
	case string:
		keys := splitPath(a)
		return func(input any, _ *Scope) any {
			return getPath(input, keys)
		}, nil
	case []any:
		keys := make([]any, len(a))
		for i, k := range a {
			if _, isNum := toFloat(k); !isNum {
				if _, isStr := k.(string); !isStr {
					return nil, c.Errorf("prop", "path elements must be strings or numbers, got %T", k)
				}
			}
			keys[i] = k
		}
		return func(input any, _ *Scope) any {
			return getPath(input, keys)
		}, nil
	case *Object, map[string]any:
		keyFn, err := c.Compile(a)
		if err != nil {
			return nil, err
		}
		return func(input any, s *Scope) any {
			switch k := keyFn(input, s).(type) {
			case string:
				return getPath(input, splitPath(k))
			case []any:
				return getPath(input, k)
			default:
				if _, ok := toFloat(k); ok {
					return getPath(input, []any{k})
				}
				return nil
			}
		}, nil
	}

	if _, ok := toFloat(arg); ok {
		keys := []any{arg}
		return func(input any, _ *Scope) any {
			return getPath(input, keys)
		}, nil
	}
	return nil, c.Errorf("prop", "expected a string, number, array or remapper, got %T", arg)
}

func splitPath(p string) []any {
	parts := strings.Split(p, ".")
	keys := make([]any, len(parts))
	for i, part := range parts {
		keys[i] = part
	}
	return keys
}

func getPath(v any, keys []any) any {
	current := v
	for _, k := range keys {
		next, ok := lookup(current, k)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// variableOperator reads an app variable. Unknown variables resolve to nil.
func variableOperator(c *Compiler, arg any) (Func, error) {
	name, ok := arg.(string)
	if !ok || name == "" {
		return nil, c.Errorf("variable", "expected a variable name, got %T", arg)
	}
	return func(_ any, s *Scope) any {
		vars := s.ctx.Variables
		if vars == nil {
			return nil
		}
		v, ok := vars.Get(name)
		if !ok {
			return nil
		}
		return cloneValue(v)
	}, nil
}

func rootOperator(_ *Compiler, _ any) (Func, error) {
	return func(_ any, s *Scope) any {
		return s.root
	}, nil
}

// contextOperator reads a dot-separated path from the context's extra data.
func contextOperator(c *Compiler, arg any) (Func, error) {
	p, ok := arg.(string)
	if !ok {
		return nil, c.Errorf("context", "expected a string path, got %T", arg)
	}
	keys := splitPath(p)
	return func(_ any, s *Scope) any {
		if s.ctx.Extra == nil {
			return nil
		}
		return cloneValue(getPath(s.ctx.Extra, keys))
	}, nil
}

func appOperator(c *Compiler, arg any) (Func, error) {
	field, _ := arg.(string)
	switch field {
	case "id":
		return func(_ any, s *Scope) any { return s.ctx.App.ID }, nil
	case "url":
		return func(_ any, s *Scope) any { return s.ctx.App.URL }, nil
	case "locale":
		return func(_ any, s *Scope) any { return s.ctx.Locale }, nil
	}
	return nil, c.Errorf("app", "expected one of id, url, locale, got %v", arg)
}

func pageOperator(c *Compiler, arg any) (Func, error) {
	p, ok := arg.(string)
	if !ok {
		return nil, c.Errorf("page", "expected a string path, got %T", arg)
	}
	keys := splitPath(p)
	return func(_ any, s *Scope) any {
		if s.ctx.Page == nil {
			return nil
		}
		return cloneValue(getPath(s.ctx.Page, keys))
	}, nil
}

func userOperator(c *Compiler, arg any) (Func, error) {
	field, ok := arg.(string)
	if !ok {
		return nil, c.Errorf("user", "expected a field name, got %T", arg)
	}
	switch field {
	case "sub", "id", "name", "email", "email_verified", "role", "locale", "properties":
	default:
		return nil, c.Errorf("user", "unknown member field %q", field)
	}
	return func(_ any, s *Scope) any {
		return s.ctx.Member.Field(field)
	}, nil
}

// translateOperator looks a message up in the context's translations. When no
// translation exists the message id itself is returned.
func translateOperator(c *Compiler, arg any) (Func, error) {
	id, ok := arg.(string)
	if !ok || id == "" {
		return nil, c.Errorf("translate", "expected a message id, got %T", arg)
	}
	return func(_ any, s *Scope) any {
		if msg, ok := s.ctx.translate(id); ok {
			return msg
		}
		return id
	}, nil
}

// arrayOperator exposes the iteration an array operator is running. Outside
// of an iteration it resolves to nil.
func arrayOperator(c *Compiler, arg any) (Func, error) {
	field, _ := arg.(string)
	var get func(f *frame) any
	switch field {
	case "index":
		get = func(f *frame) any { return f.index }
	case "length":
		get = func(f *frame) any { return len(f.items) }
	case "item":
		get = func(f *frame) any { return f.items[f.index] }
	case "prevItem":
		get = func(f *frame) any {
			if f.index == 0 {
				return nil
			}
			return f.items[f.index-1]
		}
	case "nextItem":
		get = func(f *frame) any {
			if f.index+1 >= len(f.items) {
				return nil
			}
			return f.items[f.index+1]
		}
	default:
		return nil, c.Errorf("array", "expected one of index, length, item, prevItem, nextItem, got %v", arg)
	}
	return func(_ any, s *Scope) any {
		if s.frame == nil {
			return nil
		}
		return get(s.frame)
	}, nil
}
