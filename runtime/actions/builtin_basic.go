package actions

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/appsemble/apprunner/runtime/remapper"
)

// noop resolves with its input unchanged.
func noopFactory(b *Builder, def *Definition) (Action, error) {
	if err := b.Decode(def, &noFields{}); err != nil {
		return nil, err
	}
	return New(TypeNoop, func(_ context.Context, data any) (any, error) {
		return data, nil
	}), nil
}

type staticFields struct {
	Value any `yaml:"value"`
}

// static resolves with its configured value regardless of input.
func staticFactory(b *Builder, def *Definition) (Action, error) {
	var f staticFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	value, err := b.Remapper(def, "value", remapper.NewObject().Set("static", f.Value))
	if err != nil {
		return nil, err
	}
	return New(TypeStatic, func(_ context.Context, _ any) (any, error) {
		return value.Remap(nil, nil), nil
	}), nil
}

// throw fails with its input as the error value.
func throwFactory(b *Builder, def *Definition) (Action, error) {
	if err := b.Decode(def, &noFields{}); err != nil {
		return nil, err
	}
	return New(TypeThrow, func(_ context.Context, data any) (any, error) {
		return nil, &ThrownError{Value: data}
	}), nil
}

type logFields struct {
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
}

// log writes its input to the session logger and passes it through.
func logFactory(b *Builder, def *Definition) (Action, error) {
	var f logFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(f.Level)); err != nil {
		return nil, &ConfigError{Type: string(def.Type), Path: b.path, Err: err}
	}
	s := b.Session()
	return New(TypeLog, func(ctx context.Context, data any) (any, error) {
		s.logger().Log(ctx, level, "log action", "data", remapper.Plain(data))
		return data, nil
	}), nil
}

type conditionFields struct {
	If   remapper.Node `yaml:"if" validate:"required"`
	Then any           `yaml:"then" validate:"required"`
	Else any           `yaml:"else" validate:"required"`
}

// condition dispatches then or else depending on the truthiness of if.
func conditionFactory(b *Builder, def *Definition) (Action, error) {
	var f conditionFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	cond, err := b.Remapper(def, "if", f.If)
	if err != nil {
		return nil, err
	}
	thenAction, err := b.BuildField("then", f.Then)
	if err != nil {
		return nil, err
	}
	elseAction, err := b.BuildField("else", f.Else)
	if err != nil {
		return nil, err
	}
	s, p := b.Session(), b.Page()
	return New(TypeCondition, func(ctx context.Context, data any) (any, error) {
		if remapper.Truthy(cond.Remap(data, s.RemapperContext(p))) {
			return thenAction.Dispatch(ctx, data)
		}
		return elseAction.Dispatch(ctx, data)
	}), nil
}

type matchCase struct {
	Case   remapper.Node `yaml:"case"`
	Action any           `yaml:"action" validate:"required"`
}

type matchFields struct {
	Match []matchCase `yaml:"match" validate:"required,min=1,dive"`
}

type compiledCase struct {
	when   *remapper.Remapper
	action Action
}

// match dispatches the action of the first case whose remapper is truthy.
// Without a matching case the input is passed through.
func matchFactory(b *Builder, def *Definition) (Action, error) {
	var f matchFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	cases := make([]compiledCase, 0, len(f.Match))
	for i, mc := range f.Match {
		segment := "match[" + strconv.Itoa(i) + "]"
		when, err := b.Remapper(def, segment+".case", mc.Case)
		if err != nil {
			return nil, err
		}
		action, err := b.BuildField(segment+".action", mc.Action)
		if err != nil {
			return nil, err
		}
		cases = append(cases, compiledCase{when: when, action: action})
	}
	s, p := b.Session(), b.Page()
	return New(TypeMatch, func(ctx context.Context, data any) (any, error) {
		rctx := s.RemapperContext(p)
		for _, c := range cases {
			// A case without a remapper always matches.
			if c.when == nil || remapper.Truthy(c.when.Remap(data, rctx)) {
				return c.action.Dispatch(ctx, data)
			}
		}
		return data, nil
	}), nil
}

type eachFields struct {
	Do          any  `yaml:"do" validate:"required"`
	Parallel    bool `yaml:"parallel"`
	Concurrency int  `yaml:"concurrency" validate:"min=0"`
}

// each dispatches do once per element of an array input and resolves with
// the results in input order. Parallel runs stop at the first failure.
func eachFactory(b *Builder, def *Definition) (Action, error) {
	var f eachFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	do, err := b.BuildField("do", f.Do)
	if err != nil {
		return nil, err
	}
	return New(TypeEach, func(ctx context.Context, data any) (any, error) {
		items, ok := data.([]any)
		if !ok {
			return nil, NewActionErrorf("each expects an array, got %T", data)
		}
		results := make([]any, len(items))

		if !f.Parallel {
			for i, item := range items {
				out, err := do.Dispatch(ctx, item)
				if err != nil {
					return nil, err
				}
				results[i] = out
			}
			return results, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		if f.Concurrency > 0 {
			g.SetLimit(f.Concurrency)
		}
		for i, item := range items {
			g.Go(func() error {
				out, err := do.Dispatch(gctx, item)
				if err != nil {
					return err
				}
				results[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	}), nil
}
