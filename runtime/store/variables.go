// Package store holds per-app state: the named variables remappers read and
// an in-memory key/value Storage for actions.
package store

import (
	"strings"

	"github.com/appsemble/apprunner/runtime/remapper"
)

// Variables holds an app's variables as nested maps so dotted names address
// nested values ("filter.status" reads filter -> status). The values are
// fixed when the session starts and are safe to read concurrently.
type Variables struct {
	values map[string]any
}

func NewVariables(initial map[string]any) *Variables {
	v := &Variables{values: make(map[string]any, len(initial))}
	for k, val := range initial {
		plain := remapper.Plain(val)
		if nested, ok := plain.(map[string]any); ok {
			plain = copyMap(nested)
		}
		v.values[k] = plain
	}
	return v
}

// Get reads the value at a dot-separated path.
func (s *Variables) Get(key string) (any, bool) {
	parts := strings.Split(key, ".")
	current := s.values
	for _, part := range parts[:len(parts)-1] {
		m, ok := current[part].(map[string]any)
		if !ok {
			return nil, false
		}
		current = m
	}
	v, ok := current[parts[len(parts)-1]]
	return v, ok
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
