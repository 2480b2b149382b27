// Package actions builds and dispatches app actions.
//
// An action definition names a type plus type-specific fields and may wrap
// the action in remappers and success or error branches. Definitions are
// built once per page load into Actions, which are safe to dispatch
// concurrently. Building fails eagerly with a *ConfigError for unknown types
// or malformed fields anywhere in the tree.
package actions

import (
	"context"
)

// Action is a built, dispatchable action.
type Action interface {
	Type() Type
	// Dispatch runs the action with data as input. Failures are returned as
	// errors; Dispatch never panics.
	Dispatch(ctx context.Context, data any) (any, error)
}

// Type identifies an action implementation.
type Type string

const (
	TypeNoop          Type = "noop"
	TypeStatic        Type = "static"
	TypeThrow         Type = "throw"
	TypeLog           Type = "log"
	TypeEvent         Type = "event"
	TypeFlowNext      Type = "flow.next"
	TypeFlowBack      Type = "flow.back"
	TypeFlowSkip      Type = "flow.skip"
	TypeFlowFinish    Type = "flow.finish"
	TypeFlowCancel    Type = "flow.cancel"
	TypeFlowTo        Type = "flow.to"
	TypeMessage       Type = "message"
	TypeEmail         Type = "email"
	TypeNotify        Type = "notify"
	TypeDownload      Type = "download"
	TypeRequest       Type = "request"
	TypeLink          Type = "link"
	TypeLinkBack      Type = "link.back"
	TypeLinkNext      Type = "link.next"
	TypeCondition     Type = "condition"
	TypeMatch         Type = "match"
	TypeEach          Type = "each"
	TypeStorageRead   Type = "storage.read"
	TypeStorageWrite  Type = "storage.write"
	TypeStorageAppend Type = "storage.append"
	TypeStorageDelete Type = "storage.delete"
	TypeStorageClear  Type = "storage.clear"
)

// Func adapts a function to the Action interface.
type Func func(ctx context.Context, data any) (any, error)

type funcAction struct {
	t  Type
	fn Func
}

// New returns an Action of type t backed by fn.
func New(t Type, fn Func) Action {
	return &funcAction{t: t, fn: fn}
}

func (a *funcAction) Type() Type {
	return a.t
}

func (a *funcAction) Dispatch(ctx context.Context, data any) (any, error) {
	return a.fn(ctx, data)
}
