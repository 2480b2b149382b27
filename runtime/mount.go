package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/appsemble/apprunner/runtime/actions"
	"github.com/appsemble/apprunner/runtime/flow"
	"github.com/appsemble/apprunner/runtime/remapper"
)

// Mount is a page of an app mounted in a session, with its actions built.
// Flow pages also own the state machine their flow actions drive.
type Mount struct {
	ID      string
	App     *App
	Session *actions.Session
	Page    *actions.Page
	Flow    *flow.Machine

	pageActions map[string]actions.Action
	stepActions map[string]map[string]actions.Action
	l           *slog.Logger
}

// Mount builds the named page for session s. A nil session starts a new one.
func (a *App) Mount(s *actions.Session, pageName string, params map[string]any) (*Mount, error) {
	def, ok := a.pages[pageName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPage, pageName)
	}

	if s == nil {
		s = a.NewSession("", nil)
	}
	l := s.Logger
	if l == nil {
		l = a.l
	}

	registry := a.Container.Registry()
	page := &actions.Page{Name: pageName, Params: params}

	pageActions, err := registry.BuildAll(def.Actions, s, page)
	if err != nil {
		return nil, fmt.Errorf("page %q: %w", pageName, err)
	}

	m := &Mount{
		ID:          uuid.New().String(),
		App:         a,
		Session:     s,
		Page:        page,
		pageActions: pageActions,
		l:           l.With("page", pageName),
	}
	if !def.IsFlow() {
		return m, nil
	}

	m.stepActions = make(map[string]map[string]actions.Action, len(def.Steps))
	steps := make([]flow.Step, len(def.Steps))
	for i, step := range def.Steps {
		built, err := registry.BuildAll(step.Actions, s, page)
		if err != nil {
			return nil, fmt.Errorf("page %q step %q: %w", pageName, step.Name, err)
		}
		m.stepActions[step.Name] = built
		steps[i] = flow.Step{Name: step.Name, Validate: m.stepValidator(a.validates[pageName][step.Name], step.Name)}
	}

	back, err := flow.ParseBackPolicy(def.Back)
	if err != nil {
		return nil, err
	}
	atStart, err := flow.ParseAtStartPolicy(def.AtStart)
	if err != nil {
		return nil, err
	}

	machine, err := flow.New(flow.Config{
		Steps:    steps,
		OnFinish: m.handler(ActionFlowFinish),
		OnCancel: m.handler(ActionFlowCancel),
		Back:     back,
		AtStart:  atStart,
		Logger:   m.l,
	})
	if err != nil {
		return nil, fmt.Errorf("page %q: %w", pageName, err)
	}
	page.Flow = machine
	m.Flow = machine
	return m, nil
}

func (m *Mount) handler(name string) flow.Handler {
	a, ok := m.pageActions[name]
	if !ok {
		return nil
	}
	return a.Dispatch
}

func (m *Mount) stepValidator(r *remapper.Remapper, step string) func(any) error {
	if r == nil {
		return nil
	}
	return func(data any) error {
		if !remapper.Truthy(r.Remap(data, m.Session.RemapperContext(m.Page))) {
			return &StepValidationError{Step: step}
		}
		return nil
	}
}

// Dispatch runs the named action with data. On flow pages the current
// step's actions shadow page actions of the same name.
func (m *Mount) Dispatch(ctx context.Context, name string, data any) (any, error) {
	action, ok := m.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}

	m.l.DebugContext(ctx, "Dispatching action", "action", name, "type", action.Type())
	return action.Dispatch(ctx, data)
}

func (m *Mount) lookup(name string) (actions.Action, bool) {
	if m.Flow != nil {
		if a, ok := m.stepActions[m.Flow.State().Step][name]; ok {
			return a, true
		}
	}
	a, ok := m.pageActions[name]
	return a, ok
}

// Actions lists the action names that can be dispatched right now.
func (m *Mount) Actions() []string {
	seen := make(map[string]struct{}, len(m.pageActions))
	for name := range m.pageActions {
		seen[name] = struct{}{}
	}
	if m.Flow != nil {
		for name := range m.stepActions[m.Flow.State().Step] {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close stops the mount's flow, if any. The session is left open.
func (m *Mount) Close() {
	if m.Flow != nil {
		m.Flow.Close()
	}
}
