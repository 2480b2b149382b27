package remapper

import (
	"strconv"
)

var arrayOperators = map[string]Factory{
	"array.from":    arrayFromOperator,
	"array.append":  arrayAppendOperator,
	"array.omit":    arrayOmitOperator,
	"array.map":     arrayMapOperator,
	"array.filter":  arrayFilterOperator,
	"array.find":    arrayFindOperator,
	"array.unique":  arrayUniqueOperator,
	"array.flatten": arrayFlattenOperator,
}

func compileList(c *Compiler, op string, arg any) ([]Func, error) {
	nodes, ok := asSlice(arg)
	if !ok {
		return nil, c.Errorf(op, "expected an array of remappers, got %T", arg)
	}
	fns := make([]Func, 0, len(nodes))
	for i, n := range nodes {
		fn, err := c.CompileAt("["+strconv.Itoa(i)+"]", n)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

// arrayFromOperator builds an array; each element sees the original input.
func arrayFromOperator(c *Compiler, arg any) (Func, error) {
	fns, err := compileList(c, "array.from", arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		out := make([]any, len(fns))
		for i, fn := range fns {
			out[i] = fn(input, s)
		}
		return out
	}, nil
}

// arrayAppendOperator returns a copy of the input array with extra elements.
// A non-array input is returned unchanged.
func arrayAppendOperator(c *Compiler, arg any) (Func, error) {
	fns, err := compileList(c, "array.append", arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		items, ok := asSlice(input)
		if !ok {
			return input
		}
		out := make([]any, 0, len(items)+len(fns))
		out = append(out, items...)
		for _, fn := range fns {
			out = append(out, fn(input, s))
		}
		return out
	}, nil
}

// arrayOmitOperator drops the elements at the indices its remappers produce.
func arrayOmitOperator(c *Compiler, arg any) (Func, error) {
	fns, err := compileList(c, "array.omit", arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		items, ok := asSlice(input)
		if !ok {
			return input
		}
		drop := make(map[int]bool, len(fns))
		for _, fn := range fns {
			if i, ok := toInt(fn(input, s)); ok {
				if i < 0 {
					i += len(items)
				}
				drop[i] = true
			}
		}
		out := make([]any, 0, len(items))
		for i, item := range items {
			if !drop[i] {
				out = append(out, item)
			}
		}
		return out
	}, nil
}

// arrayMapOperator applies its remapper to every element. A non-array input
// yields an empty array.
func arrayMapOperator(c *Compiler, arg any) (Func, error) {
	fn, err := c.Compile(arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		items, ok := asSlice(input)
		if !ok {
			return []any{}
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = fn(item, s.Iterate(items, i))
		}
		return out
	}, nil
}

// arrayFilterOperator keeps the elements for which the remapper is truthy,
// preserving their order.
func arrayFilterOperator(c *Compiler, arg any) (Func, error) {
	fn, err := c.Compile(arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		items, ok := asSlice(input)
		if !ok {
			return []any{}
		}
		out := make([]any, 0, len(items))
		for i, item := range items {
			if Truthy(fn(item, s.Iterate(items, i))) {
				out = append(out, item)
			}
		}
		return out
	}, nil
}

func arrayFindOperator(c *Compiler, arg any) (Func, error) {
	fn, err := c.Compile(arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		items, ok := asSlice(input)
		if !ok {
			return nil
		}
		for i, item := range items {
			if Truthy(fn(item, s.Iterate(items, i))) {
				return item
			}
		}
		return nil
	}, nil
}

// arrayUniqueOperator keeps the first element for every distinct value. With a
// remapper argument, uniqueness is decided on the remapper's output.
func arrayUniqueOperator(c *Compiler, arg any) (Func, error) {
	fn, err := c.Compile(arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		items, ok := asSlice(input)
		if !ok {
			return input
		}
		seen := make([]any, 0, len(items))
		out := make([]any, 0, len(items))
	outer:
		for i, item := range items {
			key := fn(item, s.Iterate(items, i))
			for _, prev := range seen {
				if Equal(prev, key) {
					continue outer
				}
			}
			seen = append(seen, key)
			out = append(out, item)
		}
		return out
	}, nil
}

// arrayFlattenOperator flattens nested arrays. The argument is the depth; nil
// flattens completely.
func arrayFlattenOperator(c *Compiler, arg any) (Func, error) {
	depth := -1
	if arg != nil {
		d, ok := toInt(arg)
		if !ok || d < 0 {
			return nil, c.Errorf("array.flatten", "depth must be a non-negative integer, got %v", arg)
		}
		depth = d
	}
	return func(input any, _ *Scope) any {
		items, ok := asSlice(input)
		if !ok {
			return input
		}
		return flatten(items, depth)
	}, nil
}

func flatten(items []any, depth int) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		if nested, ok := item.([]any); ok && depth != 0 {
			out = append(out, flatten(nested, depth-1)...)
			continue
		}
		out = append(out, item)
	}
	return out
}
