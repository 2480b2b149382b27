package remapper

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds the Func for one operator from its argument.
type Factory func(c *Compiler, arg any) (Func, error)

var (
	operatorsMu sync.RWMutex
	operators   = map[string]Factory{}
)

func init() {
	for _, group := range []map[string]Factory{
		dataOperators,
		objectOperators,
		arrayOperators,
		logicOperators,
		stringOperators,
		numberOperators,
		dateOperators,
		miscOperators,
	} {
		for name, factory := range group {
			operators[name] = factory
		}
	}
}

// Register adds a custom operator. Built-in operators cannot be replaced.
func Register(name string, factory Factory) error {
	operatorsMu.Lock()
	defer operatorsMu.Unlock()

	if _, exists := operators[name]; exists {
		return fmt.Errorf("remapper operator %q is already registered", name)
	}
	operators[name] = factory
	return nil
}

// Operators lists the names of all registered operators.
func Operators() []string {
	operatorsMu.RLock()
	defer operatorsMu.RUnlock()

	names := make([]string, 0, len(operators))
	for name := range operators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func snapshotOperators() map[string]Factory {
	operatorsMu.RLock()
	defer operatorsMu.RUnlock()

	out := make(map[string]Factory, len(operators))
	for k, v := range operators {
		out[k] = v
	}
	return out
}
