package actions

import (
	"context"
)

// flowFactory builds the transitions that delegate to the page's flow.
func flowFactory(t Type) Factory {
	return func(b *Builder, def *Definition) (Action, error) {
		if err := b.Decode(def, &noFields{}); err != nil {
			return nil, err
		}
		p := b.Page()
		return New(t, func(ctx context.Context, data any) (any, error) {
			if p == nil || p.Flow == nil {
				return nil, NewActionErrorf("%s used outside a flow page", t).WithCode(ErrorCodeNotAvailable)
			}
			switch t {
			case TypeFlowNext:
				return p.Flow.Next(ctx, data)
			case TypeFlowBack:
				return p.Flow.Back(ctx, data)
			case TypeFlowSkip:
				return p.Flow.Skip(ctx, data)
			case TypeFlowFinish:
				return p.Flow.Finish(ctx, data)
			}
			return p.Flow.Cancel(ctx, data)
		}), nil
	}
}

type flowToFields struct {
	Step string `yaml:"step" validate:"required"`
}

func flowToFactory(b *Builder, def *Definition) (Action, error) {
	var f flowToFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	p := b.Page()
	return New(TypeFlowTo, func(ctx context.Context, data any) (any, error) {
		if p == nil || p.Flow == nil {
			return nil, NewActionErrorf("%s used outside a flow page", TypeFlowTo).WithCode(ErrorCodeNotAvailable)
		}
		return p.Flow.To(ctx, f.Step, data)
	}), nil
}
