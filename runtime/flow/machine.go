// Package flow implements the state machine behind multi-step flow pages.
//
// A Machine starts at the first step with an empty payload. Next and Skip move
// forward, Back moves backward, and the machine becomes terminal once it
// finishes or is cancelled. Each step keeps its own snapshot of the data
// submitted on it; the finish handler receives all snapshots merged in step
// order.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/appsemble/apprunner/runtime/remapper"
)

var (
	ErrClosed      = errors.New("flow is no longer active")
	ErrAtStart     = errors.New("flow is at its first step")
	ErrUnknownStep = errors.New("unknown flow step")
	ErrNoSteps     = errors.New("flow has no steps")
	ErrStepChanged = errors.New("flow step changed")
)

// BackPolicy decides what Back does with the data it receives.
type BackPolicy int

const (
	// BackMerge merges the data into the step being left.
	BackMerge BackPolicy = iota
	// BackDiscard drops it.
	BackDiscard
)

// AtStartPolicy decides what Back does on the first step.
type AtStartPolicy int

const (
	// AtStartCancel cancels the flow and runs the cancel handler.
	AtStartCancel AtStartPolicy = iota
	// AtStartNoop leaves the machine on the first step.
	AtStartNoop
	// AtStartError fails with ErrAtStart.
	AtStartError
)

func ParseBackPolicy(s string) (BackPolicy, error) {
	switch s {
	case "", "merge":
		return BackMerge, nil
	case "discard":
		return BackDiscard, nil
	}
	return 0, fmt.Errorf("unknown back policy %q", s)
}

func ParseAtStartPolicy(s string) (AtStartPolicy, error) {
	switch s {
	case "", "cancel":
		return AtStartCancel, nil
	case "noop":
		return AtStartNoop, nil
	case "error":
		return AtStartError, nil
	}
	return 0, fmt.Errorf("unknown back-at-start policy %q", s)
}

type Status string

const (
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
	StatusClosed    Status = "closed"
)

// Handler runs when the flow finishes or is cancelled.
type Handler func(ctx context.Context, data any) (any, error)

// Step is one page of the flow.
type Step struct {
	Name string
	// Validate, when set, must accept the step's merged data before Next
	// advances. Skip does not call it. It runs without the machine's lock
	// held, so it may call Payload or State.
	Validate func(data any) error
}

type Config struct {
	Steps    []Step
	OnFinish Handler
	OnCancel Handler
	Back     BackPolicy
	AtStart  AtStartPolicy
	Logger   *slog.Logger
}

// State is a point-in-time copy of the machine.
type State struct {
	Status  Status             `json:"status"`
	Index   int                `json:"index"`
	Step    string             `json:"step"`
	Steps   []string           `json:"steps"`
	Data    []*remapper.Object `json:"data"`
	History []int              `json:"history"`
	Result  any                `json:"result,omitempty"`
}

// Machine is scoped to one mounted flow page. It is safe for concurrent use;
// the finish and cancel handlers run without the machine's lock held.
type Machine struct {
	mu        sync.Mutex
	cfg       Config
	index     int
	snapshots []*remapper.Object
	history   []int
	status    Status
	result    any
	err       error
	done      chan struct{}
	doneOnce  sync.Once
	l         *slog.Logger
}

func New(cfg Config) (*Machine, error) {
	if len(cfg.Steps) == 0 {
		return nil, ErrNoSteps
	}
	seen := make(map[string]struct{}, len(cfg.Steps))
	for i, s := range cfg.Steps {
		if s.Name == "" {
			return nil, fmt.Errorf("flow step %d has no name", i)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("duplicate flow step %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	snapshots := make([]*remapper.Object, len(cfg.Steps))
	for i := range snapshots {
		snapshots[i] = remapper.NewObject()
	}
	return &Machine{
		cfg:       cfg,
		snapshots: snapshots,
		history:   []int{0},
		status:    StatusActive,
		done:      make(chan struct{}),
		l:         l,
	}, nil
}

// Next merges data into the current step and advances. On the last step it
// finishes the flow and returns the finish handler's result.
func (m *Machine) Next(ctx context.Context, data any) (any, error) {
	return m.forward(ctx, data, true)
}

// Skip is Next without step validation.
func (m *Machine) Skip(ctx context.Context, data any) (any, error) {
	return m.forward(ctx, data, false)
}

func (m *Machine) forward(ctx context.Context, data any, validate bool) (any, error) {
	m.mu.Lock()
	if m.status != StatusActive {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	index := m.index
	step := m.cfg.Steps[index]
	merged := m.mergeInto(index, data)

	// Validate runs unlocked so it may read the machine's payload.
	if validate && step.Validate != nil {
		m.mu.Unlock()
		if err := step.Validate(remapper.Plain(merged)); err != nil {
			return nil, fmt.Errorf("flow step %q: %w", step.Name, err)
		}
		m.mu.Lock()
		if m.status != StatusActive {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		if m.index != index {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: flow left step %q during validation", ErrStepChanged, step.Name)
		}
	}

	if index == len(m.cfg.Steps)-1 {
		return m.terminate(ctx, StatusFinished, m.cfg.OnFinish)
	}

	m.moveTo(index + 1)
	m.l.DebugContext(ctx, "flow advanced", "step", m.cfg.Steps[m.index].Name)
	m.mu.Unlock()
	return merged, nil
}

// Back moves to the previous step. On the first step the AtStart policy
// applies.
func (m *Machine) Back(ctx context.Context, data any) (any, error) {
	m.mu.Lock()
	if m.status != StatusActive {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	if m.cfg.Back == BackMerge {
		m.mergeInto(m.index, data)
	}

	if m.index == 0 {
		switch m.cfg.AtStart {
		case AtStartNoop:
			snapshot := m.snapshots[0].Clone()
			m.mu.Unlock()
			return snapshot, nil
		case AtStartError:
			m.mu.Unlock()
			return nil, ErrAtStart
		}
		return m.terminate(ctx, StatusCancelled, m.cfg.OnCancel)
	}

	m.moveTo(m.index - 1)
	m.l.DebugContext(ctx, "flow went back", "step", m.cfg.Steps[m.index].Name)
	snapshot := m.snapshots[m.index].Clone()
	m.mu.Unlock()
	return snapshot, nil
}

// Finish merges data into the current step and finishes from any step.
func (m *Machine) Finish(ctx context.Context, data any) (any, error) {
	m.mu.Lock()
	if m.status != StatusActive {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.mergeInto(m.index, data)
	return m.terminate(ctx, StatusFinished, m.cfg.OnFinish)
}

// Cancel merges data into the current step and cancels the flow.
func (m *Machine) Cancel(ctx context.Context, data any) (any, error) {
	m.mu.Lock()
	if m.status != StatusActive {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.mergeInto(m.index, data)
	return m.terminate(ctx, StatusCancelled, m.cfg.OnCancel)
}

// To merges data into the current step and jumps to the named step.
func (m *Machine) To(ctx context.Context, name string, data any) (any, error) {
	m.mu.Lock()
	if m.status != StatusActive {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	target := -1
	for i, s := range m.cfg.Steps {
		if s.Name == name {
			target = i
			break
		}
	}
	if target < 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, name)
	}
	merged := m.mergeInto(m.index, data)
	m.moveTo(target)
	m.l.DebugContext(ctx, "flow jumped", "step", name)
	m.mu.Unlock()
	return merged, nil
}

// Close ends the machine when its page unmounts. Handlers are not run.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.status == StatusActive {
		m.status = StatusClosed
	}
	m.mu.Unlock()
	m.doneOnce.Do(func() { close(m.done) })
}

// Done is closed once the flow finished, was cancelled or was closed, after
// any handler has returned.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Err returns the error of the finish or cancel handler, if any.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.cfg.Steps))
	for i, s := range m.cfg.Steps {
		names[i] = s.Name
	}
	data := make([]*remapper.Object, len(m.snapshots))
	for i, s := range m.snapshots {
		data[i] = s.Clone()
	}
	return State{
		Status:  m.status,
		Index:   m.index,
		Step:    m.cfg.Steps[m.index].Name,
		Steps:   names,
		Data:    data,
		History: append([]int(nil), m.history...),
		Result:  m.result,
	}
}

// Payload returns the snapshots of all steps merged in step order.
func (m *Machine) Payload() *remapper.Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payload()
}

func (m *Machine) payload() *remapper.Object {
	out := remapper.NewObject()
	for _, s := range m.snapshots {
		for _, k := range s.Keys() {
			v, _ := s.Get(k)
			out.Set(k, v)
		}
	}
	return out
}

// mergeInto shallow-merges data into a step's snapshot. Object data is merged
// key by key; any other non-nil value is stored under the step's name.
func (m *Machine) mergeInto(index int, data any) *remapper.Object {
	snapshot := m.snapshots[index].Clone()
	if obj, ok := remapper.AsObject(data); ok {
		for _, k := range obj.Keys() {
			v, _ := obj.Get(k)
			snapshot.Set(k, v)
		}
	} else if data != nil {
		snapshot.Set(m.cfg.Steps[index].Name, data)
	}
	m.snapshots[index] = snapshot
	return snapshot.Clone()
}

func (m *Machine) moveTo(index int) {
	m.index = index
	m.history = append(m.history, index)
}

// terminate must be called with m.mu held; it releases the lock before
// running the handler.
func (m *Machine) terminate(ctx context.Context, status Status, h Handler) (any, error) {
	m.status = status
	payload := m.payload()
	m.l.InfoContext(ctx, "flow ended", "status", string(status), "step", m.cfg.Steps[m.index].Name)
	m.mu.Unlock()

	defer m.doneOnce.Do(func() { close(m.done) })

	if h == nil {
		m.mu.Lock()
		m.result = payload
		m.mu.Unlock()
		return payload, nil
	}

	result, err := h(ctx, payload)

	m.mu.Lock()
	m.result = result
	m.err = err
	m.mu.Unlock()
	return result, err
}
