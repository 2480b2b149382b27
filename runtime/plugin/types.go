package plugin

import (
	"context"

	"github.com/appsemble/apprunner/runtime/remapper"
)

// Args are the evaluated fields of an action definition.
type Args = map[string]any

// ActionFunc is the signature of plugin methods exposed as actions.
type ActionFunc = func(ctx context.Context, args Args, data any) (any, error)

// Object is a JSON object that keeps its key order. Return it instead of a
// map when the order of keys matters to the app.
type Object = remapper.Object

func NewObject() *Object {
	return remapper.NewObject()
}

// DecodeJSON decodes JSON with objects as *Object and numbers as float64.
func DecodeJSON(data []byte) (any, error) {
	return remapper.DecodeJSON(data)
}

// Plain converts *Object values, at any depth, to plain maps.
func Plain(v any) any {
	return remapper.Plain(v)
}
