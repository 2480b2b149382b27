package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/appsemble/apprunner/runtime/remapper"
)

type messageFields struct {
	Body        remapper.Node `yaml:"body" validate:"required"`
	Color       string        `yaml:"color" default:"info" validate:"oneof=dark primary link success info warning danger"`
	Layout      string        `yaml:"layout" default:"bottom" validate:"oneof=top bottom"`
	Dismissable bool          `yaml:"dismissable"`
	Timeout     time.Duration `yaml:"timeout" default:"5s" validate:"min=0"`
}

// message shows a notification built from its input and passes the input
// through.
func messageFactory(b *Builder, def *Definition) (Action, error) {
	var f messageFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	body, err := b.Remapper(def, "body", f.Body)
	if err != nil {
		return nil, err
	}
	s, p := b.Session(), b.Page()
	return New(TypeMessage, func(ctx context.Context, data any) (any, error) {
		if s.Messenger == nil {
			return nil, NewActionErrorf("no messenger").WithCode(ErrorCodeNotAvailable)
		}
		msg := Message{
			Body:        toText(body.Remap(data, s.RemapperContext(p))),
			Color:       f.Color,
			Layout:      f.Layout,
			Dismissable: f.Dismissable,
			Timeout:     f.Timeout,
		}
		if err := s.Messenger.Show(ctx, msg); err != nil {
			return nil, wrapCollaborator(TypeMessage, err)
		}
		return data, nil
	}), nil
}

type linkFields struct {
	To remapper.Node `yaml:"to" validate:"required"`
}

// link navigates to a page, or to a URL when the target contains a scheme.
// The input is handed to the target page.
func linkFactory(b *Builder, def *Definition) (Action, error) {
	var f linkFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	to, err := b.Remapper(def, "to", f.To)
	if err != nil {
		return nil, err
	}
	s, p := b.Session(), b.Page()
	return New(TypeLink, func(ctx context.Context, data any) (any, error) {
		if s.Navigator == nil {
			return nil, NewActionErrorf("no navigator").WithCode(ErrorCodeNotAvailable)
		}
		target := linkTarget(to.Remap(data, s.RemapperContext(p)))
		if target == "" {
			return nil, NewActionErrorf("link target resolved to an empty value")
		}
		nav := Navigation{Kind: NavigatePage, Target: target, Data: remapper.Plain(data)}
		if strings.Contains(target, "://") || strings.HasPrefix(target, "mailto:") {
			nav.Kind = NavigateURL
		}
		if err := s.Navigator.Navigate(ctx, nav); err != nil {
			return nil, wrapCollaborator(TypeLink, err)
		}
		return data, nil
	}), nil
}

// linkTarget joins page and sub-page names given as an array.
func linkTarget(v any) string {
	if parts, ok := v.([]any); ok {
		names := make([]string, 0, len(parts))
		for _, part := range parts {
			names = append(names, toText(part))
		}
		return strings.Join(names, "/")
	}
	return toText(v)
}

func linkStepFactory(t Type, kind NavigationKind) Factory {
	return func(b *Builder, def *Definition) (Action, error) {
		if err := b.Decode(def, &noFields{}); err != nil {
			return nil, err
		}
		s := b.Session()
		return New(t, func(ctx context.Context, data any) (any, error) {
			if s.Navigator == nil {
				return nil, NewActionErrorf("no navigator").WithCode(ErrorCodeNotAvailable)
			}
			if err := s.Navigator.Navigate(ctx, Navigation{Kind: kind}); err != nil {
				return nil, wrapCollaborator(t, err)
			}
			return data, nil
		}), nil
	}
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool, int, int64, float64:
		return fmt.Sprint(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(remapper.Plain(v))
	}
	return string(data)
}

// wrapCollaborator tags a collaborator failure with the action type. Errors
// that already are ActionErrors keep their classification.
func wrapCollaborator(t Type, err error) error {
	if ae, ok := err.(*ActionError); ok {
		if ae.Action == "" {
			ae.Action = string(t)
		}
		return ae
	}
	ae := NewActionError(err).WithType(ErrorTypeTransient)
	ae.Action = string(t)
	return ae
}
