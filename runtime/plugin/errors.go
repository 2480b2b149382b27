package plugin

import "github.com/appsemble/apprunner/runtime/actions"

// Error is a failure with a type that drives retries and a code that is
// reported to onError branches and host clients.
type Error = actions.ActionError

type ErrorType = actions.ErrorType

const (
	ErrorTypeTransient = actions.ErrorTypeTransient
	ErrorTypePermanent = actions.ErrorTypePermanent
	ErrorTypeTimeout   = actions.ErrorTypeTimeout
)

const (
	ErrorCodeRuntime      = actions.ErrorCodeRuntime
	ErrorCodeHTTP         = actions.ErrorCodeHTTP
	ErrorCodeNotAvailable = actions.ErrorCodeNotAvailable
)

// NewError wraps err as a permanent runtime error.
func NewError(err error) *Error {
	return actions.NewActionError(err)
}

func Errorf(format string, args ...any) *Error {
	return actions.NewActionErrorf(format, args...)
}

// NotInitialized is returned by plugins used before Initialize succeeded.
func NotInitialized(name string) *Error {
	return Errorf("%s plugin is not initialized", name).WithCode(ErrorCodeNotAvailable)
}
