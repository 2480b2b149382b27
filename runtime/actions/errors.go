package actions

import (
	"errors"
	"fmt"
)

// ConfigError reports a malformed action definition. It is raised while
// building actions, never while dispatching them.
type ConfigError struct {
	Type    string
	Path    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	switch {
	case e.Type != "" && e.Path != "":
		return fmt.Sprintf("action '%s' at '%s': %s", e.Type, e.Path, msg)
	case e.Type != "":
		return fmt.Sprintf("action '%s': %s", e.Type, msg)
	case e.Path != "":
		return fmt.Sprintf("action at '%s': %s", e.Path, msg)
	}
	return "action: " + msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ErrorType classifies dispatch failures for retry decisions.
type ErrorType string

const (
	ErrorTypeTransient ErrorType = "transient"
	ErrorTypePermanent ErrorType = "permanent"
	ErrorTypeTimeout   ErrorType = "timeout"
)

// Framework error codes. Collaborators may use any other code.
const (
	ErrorCodeRuntime      = "RUNTIME_ERROR"
	ErrorCodePanic        = "PANIC"
	ErrorCodeTimeout      = "TIMEOUT"
	ErrorCodeCancelled    = "CONTEXT_CANCELLED"
	ErrorCodeHTTP         = "HTTP_ERROR"
	ErrorCodeNotAvailable = "NOT_AVAILABLE"
)

// ActionError is a dispatch failure raised by an action or its collaborator.
// Metadata carries retry hints and transport details.
type ActionError struct {
	Err      error
	Action   string
	Type     ErrorType
	Code     string
	Status   int
	Body     any
	Metadata map[string]any
}

func NewActionError(err error) *ActionError {
	return &ActionError{
		Err:      err,
		Type:     ErrorTypePermanent,
		Code:     ErrorCodeRuntime,
		Metadata: make(map[string]any),
	}
}

func NewActionErrorf(format string, args ...any) *ActionError {
	return NewActionError(fmt.Errorf(format, args...))
}

func (e *ActionError) Error() string {
	msg := "action failed"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Action != "" {
		return fmt.Sprintf("[%s/%s] %s: %s", e.Type, e.Code, e.Action, msg)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Type, e.Code, msg)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func (e *ActionError) WithCode(code string) *ActionError {
	e.Code = code
	return e
}

func (e *ActionError) WithType(t ErrorType) *ActionError {
	e.Type = t
	return e
}

func (e *ActionError) WithStatus(status int, body any) *ActionError {
	e.Status = status
	e.Body = body
	return e
}

func (e *ActionError) WithMetadata(key string, value any) *ActionError {
	e.Metadata[key] = value
	return e
}

// WithRetryHint marks the error as retryable or not, overriding the type.
func (e *ActionError) WithRetryHint(retryable bool) *ActionError {
	e.Metadata["retryable"] = retryable
	return e
}

// IsRetryable honours an explicit retry hint and otherwise retries transient
// and timeout failures.
func (e *ActionError) IsRetryable() bool {
	if v, ok := e.Metadata["retryable"].(bool); ok {
		return v
	}
	return e.Type == ErrorTypeTransient || e.Type == ErrorTypeTimeout
}

// ToMap is the value onError branches receive for this error.
func (e *ActionError) ToMap() map[string]any {
	m := map[string]any{
		"type":    string(e.Type),
		"code":    e.Code,
		"message": e.Error(),
	}
	if e.Err != nil {
		m["message"] = e.Err.Error()
	}
	if e.Action != "" {
		m["action"] = e.Action
	}
	if e.Status != 0 {
		m["status"] = e.Status
	}
	if e.Body != nil {
		m["body"] = e.Body
	}
	return m
}

// ThrownError carries the value given to the throw action. onError receives
// that value unwrapped.
type ThrownError struct {
	Value any
}

func (e *ThrownError) Error() string {
	return fmt.Sprintf("thrown: %v", e.Value)
}

// EventError is returned when an awaited event was emitted with an error
// marker. onError receives the event payload.
type EventError struct {
	Event   string
	Payload any
	Marker  any
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event '%s' reported an error: %v", e.Event, e.Marker)
}

// ErrorValue converts a dispatch error into the input of an onError branch.
func ErrorValue(err error) any {
	var thrown *ThrownError
	if errors.As(err, &thrown) {
		return thrown.Value
	}
	var eventErr *EventError
	if errors.As(err, &eventErr) {
		return eventErr.Payload
	}
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return actionErr.ToMap()
	}
	return map[string]any{"message": err.Error()}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
