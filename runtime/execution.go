package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appsemble/apprunner/runtime/actions"
)

var _ context.Context = &Execution{}

type executionKey struct{}

// DownloadEffect is a file offered to the user during an execution.
type DownloadEffect struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"content"`
}

// Effects are the user-visible results of an execution, in the order the
// actions produced them.
type Effects struct {
	Messages    []actions.Message    `json:"messages"`
	Navigations []actions.Navigation `json:"navigations"`
	Downloads   []DownloadEffect     `json:"downloads"`
}

// Execution is the context of one action dispatch made by the host. Actions
// reach it through their ctx; anything they show the user is recorded on it.
type Execution struct {
	ID      string
	Started time.Time

	ctx     context.Context
	mu      sync.Mutex
	effects Effects
}

func NewExecution(ctx context.Context) *Execution {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Execution{
		ID:      uuid.New().String(),
		Started: time.Now(),
		ctx:     ctx,
	}
}

// context.Context implementation, delegating to the wrapped ctx so request
// deadlines and cancellation reach every action.

func (e *Execution) Deadline() (deadline time.Time, ok bool) {
	return e.ctx.Deadline()
}

func (e *Execution) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Execution) Err() error {
	return e.ctx.Err()
}

func (e *Execution) Value(key any) any {
	if _, ok := key.(executionKey); ok {
		return e
	}
	return e.ctx.Value(key)
}

// ExecutionFrom finds the execution a context was derived from.
func ExecutionFrom(ctx context.Context) (*Execution, bool) {
	if ctx == nil {
		return nil, false
	}
	e, ok := ctx.Value(executionKey{}).(*Execution)
	return e, ok
}

// Effects returns a copy of what has been recorded so far.
func (e *Execution) Effects() Effects {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Effects{
		Messages:    append([]actions.Message{}, e.effects.Messages...),
		Navigations: append([]actions.Navigation{}, e.effects.Navigations...),
		Downloads:   append([]DownloadEffect{}, e.effects.Downloads...),
	}
}

func (e *Execution) record(fn func(*Effects)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.effects)
}

// effectSink routes a session's user-facing collaborators to the execution
// found in the dispatch context. Effects outside an execution are logged.
type effectSink struct {
	l *slog.Logger
}

func (s *effectSink) Show(ctx context.Context, msg actions.Message) error {
	if e, ok := ExecutionFrom(ctx); ok {
		e.record(func(ef *Effects) { ef.Messages = append(ef.Messages, msg) })
		return nil
	}
	s.l.InfoContext(ctx, "Message", "body", msg.Body, "color", msg.Color)
	return nil
}

func (s *effectSink) Navigate(ctx context.Context, nav actions.Navigation) error {
	if e, ok := ExecutionFrom(ctx); ok {
		e.record(func(ef *Effects) { ef.Navigations = append(ef.Navigations, nav) })
		return nil
	}
	s.l.InfoContext(ctx, "Navigation", "kind", nav.Kind, "target", nav.Target)
	return nil
}

func (s *effectSink) Download(ctx context.Context, d actions.Download) error {
	if e, ok := ExecutionFrom(ctx); ok {
		e.record(func(ef *Effects) {
			ef.Downloads = append(ef.Downloads, DownloadEffect{
				Filename:    d.Filename,
				ContentType: d.ContentType,
				Content:     d.Data,
			})
		})
		return nil
	}
	s.l.InfoContext(ctx, "Download", "filename", d.Filename, "size", len(d.Data))
	return nil
}
