package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/appsemble/apprunner/runtime/remapper"
)

const instrumentationName = "github.com/appsemble/apprunner/runtime/actions"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	dispatchCounter  metric.Int64Counter     = noop.Int64Counter{}
	dispatchDuration metric.Float64Histogram = noop.Float64Histogram{}
)

func init() {
	counter, err := meter.Int64Counter("apprunner.action.dispatches",
		metric.WithDescription("Number of action dispatches by type and outcome"))
	if err != nil {
		slog.Error("failed to create action dispatch counter", "error", err)
	} else {
		dispatchCounter = counter
	}

	histogram, err := meter.Float64Histogram("apprunner.action.duration",
		metric.WithDescription("Duration of action dispatches"),
		metric.WithUnit("ms"))
	if err != nil {
		slog.Error("failed to create action duration histogram", "error", err)
	} else {
		dispatchDuration = histogram
	}
}

// chain is the composed lifecycle of one definition:
// remapBefore -> action -> onSuccess or onError -> remapAfter.
// It holds no per-dispatch state.
type chain struct {
	action    Action
	before    *remapper.Remapper
	after     *remapper.Remapper
	onSuccess Action
	onError   Action
	retry     *RetryConfig
	session   *Session
	page      *Page
	path      string
}

func (c *chain) Type() Type {
	return c.action.Type()
}

func (c *chain) Dispatch(ctx context.Context, data any) (result any, err error) {
	t := string(c.action.Type())
	ctx, span := tracer.Start(ctx, "action "+t, trace.WithAttributes(
		attribute.String("action.type", t),
		attribute.String("action.path", c.path),
	))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			ae := NewActionErrorf("panic: %v", r).WithCode(ErrorCodePanic)
			ae.Action = t
			result, err = nil, ae
		}
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		attrs := metric.WithAttributes(
			attribute.String("action.type", t),
			attribute.String("outcome", outcome),
		)
		dispatchCounter.Add(ctx, 1, attrs)
		dispatchDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
		span.End()
	}()

	input := data
	if c.before != nil {
		input = c.before.Remap(data, c.session.RemapperContext(c.page))
	}

	out, err := c.dispatchWithRetry(ctx, input)
	switch {
	case err != nil && c.onError != nil:
		c.session.logger().DebugContext(ctx, "action failed, running onError",
			"action", t,
			"path", c.path,
			"error", err)
		out, err = c.onError.Dispatch(ctx, ErrorValue(err))
	case err == nil && c.onSuccess != nil:
		out, err = c.onSuccess.Dispatch(ctx, out)
	}
	if err != nil {
		return nil, err
	}

	if c.after != nil {
		out = c.after.Remap(out, c.session.RemapperContext(c.page))
	}
	return out, nil
}

func (c *chain) dispatchWithRetry(ctx context.Context, data any) (any, error) {
	out, err := c.safeDispatch(ctx, data)
	if err == nil || c.retry == nil {
		return out, err
	}

	for attempt := 1; attempt < c.retry.MaxAttempts; attempt++ {
		if !c.retryable(err) {
			return nil, err
		}
		delay := retryDelay(c.retry, attempt)
		c.session.logger().InfoContext(ctx, fmt.Sprintf("[%d/%d] Retrying action: %s", attempt+1, c.retry.MaxAttempts, c.action.Type()),
			"path", c.path,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, NewActionError(ctx.Err()).WithCode(ErrorCodeCancelled)
		case <-timer.C:
		}

		if out, err = c.safeDispatch(ctx, data); err == nil {
			return out, nil
		}
	}
	return nil, err
}

// retryable excludes intentional failures, configuration problems and
// permanent action errors. Errors that are not ActionErrors are retried.
func (c *chain) retryable(err error) bool {
	var thrown *ThrownError
	var eventErr *EventError
	if errors.As(err, &thrown) || errors.As(err, &eventErr) || IsConfigError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return !slices.Contains(c.retry.NonRetryable, actionErr.Code) && actionErr.IsRetryable()
	}
	return true
}

func retryDelay(cfg *RetryConfig, attempt int) time.Duration {
	base := time.Duration(cfg.Delay) * time.Millisecond
	delay := base
	switch cfg.Backoff {
	case "linear":
		delay = base * time.Duration(attempt)
	case "exponential":
		delay = time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	}
	if cfg.MaxDelay > 0 {
		if limit := time.Duration(cfg.MaxDelay) * time.Millisecond; delay > limit {
			delay = limit
		}
	}
	return delay
}

// safeDispatch turns panics in the underlying action into errors.
func (c *chain) safeDispatch(ctx context.Context, data any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.session.logger().ErrorContext(ctx, "action panicked",
				"action", c.action.Type(),
				"path", c.path,
				"panic", r,
				"stack", string(debug.Stack()))
			ae := NewActionErrorf("panic: %v", r).WithCode(ErrorCodePanic)
			ae.Action = string(c.action.Type())
			out, err = nil, ae
		}
	}()
	return c.action.Dispatch(ctx, data)
}
