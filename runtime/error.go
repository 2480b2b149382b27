package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/appsemble/apprunner/runtime/actions"
	"github.com/appsemble/apprunner/runtime/flow"
	"github.com/appsemble/apprunner/runtime/remapper"
)

var (
	ErrUnknownApp    = errors.New("unknown app")
	ErrUnknownPage   = errors.New("unknown page")
	ErrUnknownMount  = errors.New("unknown mount")
	ErrUnknownAction = errors.New("unknown action")
)

// Host error codes.
const (
	ErrorCodeNotFound        = "NOT_FOUND"
	ErrorCodeBadRequest      = "BAD_REQUEST"
	ErrorCodeConfig          = "CONFIG_ERROR"
	ErrorCodeRemapper        = "REMAPPER_ERROR"
	ErrorCodeThrown          = "THROWN"
	ErrorCodeEvent           = "EVENT_ERROR"
	ErrorCodeInvalidStep     = "INVALID_STEP_DATA"
	ErrorCodeFlowClosed      = "FLOW_CLOSED"
	ErrorCodeFlowAtStart     = "FLOW_AT_START"
	ErrorCodeDeadline        = "DEADLINE_EXCEEDED"
	ErrorCodeContextCanceled = actions.ErrorCodeCancelled
)

// StepValidationError is returned when a flow step's validate remapper
// rejects the submitted data.
type StepValidationError struct {
	Step string
}

func (e *StepValidationError) Error() string {
	return fmt.Sprintf("data for step '%s' is invalid", e.Step)
}

// HostError is the body the HTTP host answers failed requests with.
type HostError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *HostError) Error() string {
	return fmt.Sprintf("[%d/%s] %s", e.Status, e.Code, e.Message)
}

// ToMap converts the error to the JSON object sent to clients.
func (e *HostError) ToMap() map[string]any {
	m := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if e.Details != nil {
		m["details"] = remapper.Plain(e.Details)
	}
	return m
}

// ToHostError classifies err into an HTTP status and response body.
func ToHostError(err error) *HostError {
	if err == nil {
		return nil
	}

	var hostErr *HostError
	if errors.As(err, &hostErr) {
		return hostErr
	}

	he := &HostError{Status: http.StatusInternalServerError, Code: actions.ErrorCodeRuntime, Message: err.Error()}

	var (
		configErr   *actions.ConfigError
		remapErr    *remapper.RemapperError
		thrown      *actions.ThrownError
		eventErr    *actions.EventError
		actionErr   *actions.ActionError
		validateErr *StepValidationError
	)
	switch {
	case errors.Is(err, ErrUnknownApp), errors.Is(err, ErrUnknownPage),
		errors.Is(err, ErrUnknownMount), errors.Is(err, ErrUnknownAction):
		he.Status, he.Code = http.StatusNotFound, ErrorCodeNotFound
	case errors.Is(err, flow.ErrClosed), errors.Is(err, flow.ErrStepChanged):
		he.Status, he.Code = http.StatusConflict, ErrorCodeFlowClosed
	case errors.Is(err, flow.ErrAtStart):
		he.Status, he.Code = http.StatusConflict, ErrorCodeFlowAtStart
	case errors.Is(err, flow.ErrUnknownStep):
		he.Status, he.Code = http.StatusBadRequest, ErrorCodeBadRequest
	case errors.As(err, &configErr):
		he.Status, he.Code = http.StatusBadRequest, ErrorCodeConfig
	case errors.As(err, &remapErr):
		he.Status, he.Code = http.StatusBadRequest, ErrorCodeRemapper
	case errors.As(err, &validateErr):
		he.Status, he.Code = http.StatusUnprocessableEntity, ErrorCodeInvalidStep
	case errors.As(err, &thrown):
		he.Status, he.Code, he.Details = http.StatusUnprocessableEntity, ErrorCodeThrown, thrown.Value
	case errors.As(err, &eventErr):
		he.Status, he.Code, he.Details = http.StatusUnprocessableEntity, ErrorCodeEvent, eventErr.Payload
	case errors.Is(err, context.DeadlineExceeded):
		he.Status, he.Code = http.StatusGatewayTimeout, ErrorCodeDeadline
	case errors.Is(err, context.Canceled):
		he.Status, he.Code = http.StatusServiceUnavailable, ErrorCodeContextCanceled
	case errors.As(err, &actionErr):
		he.Status, he.Details = http.StatusBadGateway, actionErr.ToMap()
		if actionErr.Code != "" {
			he.Code = actionErr.Code
		}
		if actionErr.Code == actions.ErrorCodeNotAvailable {
			he.Status = http.StatusNotImplemented
		}
	}
	return he
}
