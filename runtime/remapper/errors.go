package remapper

import (
	"errors"
	"fmt"
	"strings"
)

// RemapperError reports a malformed remapper definition. It is a configuration
// error: the app definition must be fixed, so it is always surfaced.
type RemapperError struct {
	Operator string
	Path     string
	Message  string
}

func NewRemapperError(msg string) *RemapperError {
	return &RemapperError{Message: msg}
}

func NewRemapperErrorf(format string, args ...any) *RemapperError {
	return &RemapperError{Message: fmt.Sprintf(format, args...)}
}

// WrapRemapperError converts err into a RemapperError, keeping an existing one.
func WrapRemapperError(err error) *RemapperError {
	if err == nil {
		return nil
	}

	var re *RemapperError
	if errors.As(err, &re) {
		return re
	}

	return &RemapperError{Message: err.Error()}
}

func (e *RemapperError) Error() string {
	parts := []string{}
	if e.Operator != "" {
		parts = append(parts, fmt.Sprintf("remapper '%s'", e.Operator))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("at '%s'", e.Path))
	}

	if len(parts) == 0 {
		return e.Message
	}

	return strings.Join(parts, " ") + ": " + e.Message
}

// AddOperator sets the operator name unless a nested operator already did.
func (e *RemapperError) AddOperator(op string) *RemapperError {
	if e.Operator == "" {
		e.Operator = op
	}
	return e
}

// AddPath sets the definition path unless a nested operator already did.
func (e *RemapperError) AddPath(path string) *RemapperError {
	if e.Path == "" {
		e.Path = path
	}
	return e
}

func IsRemapperError(err error) bool {
	var re *RemapperError
	return errors.As(err, &re)
}
