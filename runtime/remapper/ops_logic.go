package remapper

import (
	"strings"
)

var logicOperators = map[string]Factory{
	"if":     ifOperator,
	"match":  matchOperator,
	"equals": equalsOperator,
	"not":    notOperator,
	"and":    andOperator,
	"or":     orOperator,
	"gt":     compareOperator("gt", func(c int) bool { return c > 0 }),
	"gte":    compareOperator("gte", func(c int) bool { return c >= 0 }),
	"lt":     compareOperator("lt", func(c int) bool { return c < 0 }),
	"lte":    compareOperator("lte", func(c int) bool { return c <= 0 }),
}

// ifOperator evaluates condition against the input and then exactly one of
// the then and else branches.
func ifOperator(c *Compiler, arg any) (Func, error) {
	obj, ok := AsObject(arg)
	if !ok {
		return nil, c.Errorf("if", "expected an object with condition, then and else, got %T", arg)
	}
	for _, key := range obj.Keys() {
		switch key {
		case "condition", "then", "else":
		default:
			return nil, c.Errorf("if", "unknown key %q", key)
		}
	}

	condNode, ok := obj.Get("condition")
	if !ok {
		return nil, c.Errorf("if", "missing condition")
	}
	thenNode, ok := obj.Get("then")
	if !ok {
		return nil, c.Errorf("if", "missing then")
	}
	elseNode, ok := obj.Get("else")
	if !ok {
		return nil, c.Errorf("if", "missing else")
	}

	cond, err := c.CompileAt("condition", condNode)
	if err != nil {
		return nil, err
	}
	thenFn, err := c.CompileAt("then", thenNode)
	if err != nil {
		return nil, err
	}
	elseFn, err := c.CompileAt("else", elseNode)
	if err != nil {
		return nil, err
	}

	return func(input any, s *Scope) any {
		if Truthy(cond(input, s)) {
			return thenFn(input, s)
		}
		return elseFn(input, s)
	}, nil
}

// matchOperator returns the value of the first case whose remapper is truthy,
// or nil when none match.
func matchOperator(c *Compiler, arg any) (Func, error) {
	entries, ok := asSlice(arg)
	if !ok {
		return nil, c.Errorf("match", "expected an array of cases, got %T", arg)
	}
	type matchCase struct {
		when  Func
		value Func
	}
	cases := make([]matchCase, 0, len(entries))
	for i, e := range entries {
		obj, ok := AsObject(e)
		if !ok {
			return nil, c.Errorf("match", "case %d must be an object with case and value", i)
		}
		caseNode, hasCase := obj.Get("case")
		valueNode, hasValue := obj.Get("value")
		if !hasCase || !hasValue {
			return nil, c.Errorf("match", "case %d must define case and value", i)
		}
		when, err := c.Compile(caseNode)
		if err != nil {
			return nil, err
		}
		value, err := c.Compile(valueNode)
		if err != nil {
			return nil, err
		}
		cases = append(cases, matchCase{when: when, value: value})
	}
	return func(input any, s *Scope) any {
		for _, mc := range cases {
			if Truthy(mc.when(input, s)) {
				return mc.value(input, s)
			}
		}
		return nil
	}, nil
}

// equalsOperator is true when all its remappers produce equal values.
func equalsOperator(c *Compiler, arg any) (Func, error) {
	fns, err := compileList(c, "equals", arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		return allEqual(fns, input, s)
	}, nil
}

func allEqual(fns []Func, input any, s *Scope) bool {
	if len(fns) < 2 {
		return true
	}
	first := fns[0](input, s)
	for _, fn := range fns[1:] {
		if !Equal(first, fn(input, s)) {
			return false
		}
	}
	return true
}

// notOperator negates. With a single remapper it negates truthiness; with
// several it is true when their values are not all equal.
func notOperator(c *Compiler, arg any) (Func, error) {
	if _, isList := asSlice(arg); !isList {
		fn, err := c.Compile(arg)
		if err != nil {
			return nil, err
		}
		return func(input any, s *Scope) any {
			return !Truthy(fn(input, s))
		}, nil
	}

	fns, err := compileList(c, "not", arg)
	if err != nil {
		return nil, err
	}
	if len(fns) == 1 {
		return func(input any, s *Scope) any {
			return !Truthy(fns[0](input, s))
		}, nil
	}
	return func(input any, s *Scope) any {
		return !allEqual(fns, input, s)
	}, nil
}

func andOperator(c *Compiler, arg any) (Func, error) {
	fns, err := compileList(c, "and", arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		for _, fn := range fns {
			if !Truthy(fn(input, s)) {
				return false
			}
		}
		return true
	}, nil
}

func orOperator(c *Compiler, arg any) (Func, error) {
	fns, err := compileList(c, "or", arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		for _, fn := range fns {
			if Truthy(fn(input, s)) {
				return true
			}
		}
		return false
	}, nil
}

// compareOperator orders two values. Numbers compare numerically, dates
// chronologically and other strings lexically; anything else is false.
func compareOperator(name string, accept func(int) bool) Factory {
	return func(c *Compiler, arg any) (Func, error) {
		fns, err := compileList(c, name, arg)
		if err != nil {
			return nil, err
		}
		if len(fns) != 2 {
			return nil, c.Errorf(name, "expected exactly 2 remappers, got %d", len(fns))
		}
		return func(input any, s *Scope) any {
			cmp, ok := compareValues(fns[0](input, s), fns[1](input, s))
			return ok && accept(cmp)
		}, nil
	}
}

func compareValues(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return 0, false
	}
	if at, ok := parseDate(as, ""); ok {
		if bt, ok := parseDate(bs, ""); ok {
			return at.Compare(bt), true
		}
	}
	return strings.Compare(as, bs), true
}
