package remapper

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var miscOperators = map[string]Factory{
	"len":        lenOperator,
	"type":       typeOperator,
	"null.strip": nullStripOperator,
	"log":        logOperator,
	"expr":       exprOperator,
}

// lenOperator counts runes of a string, elements of an array or keys of an
// object. Anything else has length 0.
func lenOperator(_ *Compiler, _ any) (Func, error) {
	return func(input any, _ *Scope) any {
		switch v := input.(type) {
		case string:
			return utf8.RuneCountInString(v)
		case *Object:
			return v.Len()
		case map[string]any:
			return len(v)
		}
		if items, ok := asSlice(input); ok {
			return len(items)
		}
		return 0
	}, nil
}

func typeOperator(_ *Compiler, _ any) (Func, error) {
	return func(input any, _ *Scope) any {
		return typeName(input)
	}, nil
}

// nullStripOperator removes nil entries from objects and arrays. The optional
// argument {"depth": n} limits how deep it descends; the default is unlimited.
func nullStripOperator(c *Compiler, arg any) (Func, error) {
	depth := -1
	if arg != nil {
		obj, ok := AsObject(arg)
		if !ok {
			return nil, c.Errorf("null.strip", "expected nil or {depth: n}, got %T", arg)
		}
		if v, ok := obj.Get("depth"); ok {
			n, ok := toInt(v)
			if !ok || n < 1 {
				return nil, c.Errorf("null.strip", "depth must be a positive integer")
			}
			depth = n
		}
	}
	return func(input any, _ *Scope) any {
		return stripNulls(input, depth)
	}, nil
}

func stripNulls(v any, depth int) any {
	if depth == 0 {
		return v
	}
	if obj, ok := AsObject(v); ok {
		out := NewObject()
		for _, k := range obj.Keys() {
			val, _ := obj.Get(k)
			if val == nil {
				continue
			}
			out.Set(k, stripNulls(val, depth-1))
		}
		return out
	}
	if items, ok := v.([]any); ok {
		out := make([]any, 0, len(items))
		for _, item := range items {
			if item == nil {
				continue
			}
			out = append(out, stripNulls(item, depth-1))
		}
		return out
	}
	return v
}

// logOperator writes the input to the context logger and returns it as is.
func logOperator(c *Compiler, arg any) (Func, error) {
	level := slog.LevelInfo
	if arg != nil {
		name, _ := arg.(string)
		if err := level.UnmarshalText([]byte(name)); err != nil {
			return nil, c.Errorf("log", "unknown level %v", arg)
		}
	}
	path := c.path
	return func(input any, s *Scope) any {
		s.ctx.logger().Log(context.Background(), level, "remapper log",
			"path", path,
			"input", Plain(input),
		)
		return input
	}, nil
}

var exprFunctions = []expr.Option{
	expr.Function("base64_encode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	}, new(func(string) string)),
	expr.Function("lower", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		return strings.ToLower(s), nil
	}, new(func(string) string)),
}

// exprOperator evaluates an expr-lang expression. The program is compiled
// with the definition; runtime failures resolve to nil and are logged at
// debug level.
//
// Environment: input, root, locale, now, member, and variable(name).
func exprOperator(c *Compiler, arg any) (Func, error) {
	source, ok := arg.(string)
	if !ok || strings.TrimSpace(source) == "" {
		return nil, c.Errorf("expr", "expected an expression string, got %T", arg)
	}

	// expr.Env must come before AllowUndefinedVariables.
	opts := []expr.Option{
		expr.Env(exprEnv(nil, &Scope{ctx: &Context{}})),
		expr.AllowUndefinedVariables(),
	}
	opts = append(opts, exprFunctions...)

	program, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, c.Errorf("expr", "%v", err)
	}
	return func(input any, s *Scope) any {
		return runExpr(program, input, s)
	}, nil
}

func runExpr(program *vm.Program, input any, s *Scope) any {
	out, err := expr.Run(program, exprEnv(input, s))
	if err != nil {
		s.ctx.logger().Debug("expr evaluation failed", "error", err)
		return nil
	}
	return out
}

func exprEnv(input any, s *Scope) map[string]any {
	var member map[string]any
	if m := s.ctx.Member; m != nil {
		member = map[string]any{
			"id":    m.ID,
			"name":  m.Name,
			"email": m.Email,
			"role":  m.Role,
		}
	}
	return map[string]any{
		"input":  Plain(input),
		"root":   Plain(s.root),
		"locale": s.ctx.Locale,
		"now":    s.ctx.now().UTC().Format(dateLayout),
		"member": member,
		"variable": func(name string) any {
			if s.ctx.Variables == nil {
				return nil
			}
			v, _ := s.ctx.Variables.Get(name)
			return Plain(v)
		},
	}
}
