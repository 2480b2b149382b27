package actions

import (
	"context"

	"github.com/appsemble/apprunner/runtime/remapper"
)

type storageKeyFields struct {
	Key remapper.Node `yaml:"key" validate:"required"`
}

type storageWriteFields struct {
	Key   remapper.Node `yaml:"key" validate:"required"`
	Value remapper.Node `yaml:"value"`
}

func storageKey(b *Builder, def *Definition, node remapper.Node) (func(data any) (string, error), error) {
	r, err := b.Remapper(def, "key", node)
	if err != nil {
		return nil, err
	}
	s, p := b.Session(), b.Page()
	return func(data any) (string, error) {
		key := toText(r.Remap(data, s.RemapperContext(p)))
		if key == "" {
			return "", NewActionErrorf("storage key resolved to an empty value")
		}
		return key, nil
	}, nil
}

func storageOf(s *Session) (Storage, error) {
	if s.Storage == nil {
		return nil, NewActionErrorf("no storage").WithCode(ErrorCodeNotAvailable)
	}
	return s.Storage, nil
}

// storage.read resolves with the stored value, or nil when the key is absent.
func storageReadFactory(b *Builder, def *Definition) (Action, error) {
	var f storageKeyFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	key, err := storageKey(b, def, f.Key)
	if err != nil {
		return nil, err
	}
	s := b.Session()
	return New(TypeStorageRead, func(ctx context.Context, data any) (any, error) {
		st, err := storageOf(s)
		if err != nil {
			return nil, err
		}
		k, err := key(data)
		if err != nil {
			return nil, err
		}
		v, _, err := st.Get(ctx, k)
		if err != nil {
			return nil, wrapCollaborator(TypeStorageRead, err)
		}
		return v, nil
	}), nil
}

// storage.write stores value (the input when omitted) under key. In append
// mode the value is added to the array stored under key; a stored non-array
// value becomes the first element. Both pass the input through.
func storageWriteFactory(t Type, appendMode bool) Factory {
	return func(b *Builder, def *Definition) (Action, error) {
		var f storageWriteFields
		if err := b.Decode(def, &f); err != nil {
			return nil, err
		}
		key, err := storageKey(b, def, f.Key)
		if err != nil {
			return nil, err
		}
		value, err := b.Remapper(def, "value", f.Value)
		if err != nil {
			return nil, err
		}
		s, p := b.Session(), b.Page()
		return New(t, func(ctx context.Context, data any) (any, error) {
			st, err := storageOf(s)
			if err != nil {
				return nil, err
			}
			k, err := key(data)
			if err != nil {
				return nil, err
			}
			v := remapper.Plain(value.Remap(data, s.RemapperContext(p)))

			if appendMode {
				existing, ok, err := st.Get(ctx, k)
				if err != nil {
					return nil, wrapCollaborator(t, err)
				}
				var items []any
				switch e := existing.(type) {
				case []any:
					items = append(append(items, e...), v)
				case nil:
					items = []any{v}
					if ok {
						items = []any{nil, v}
					}
				default:
					items = []any{e, v}
				}
				v = items
			}

			if err := st.Set(ctx, k, v); err != nil {
				return nil, wrapCollaborator(t, err)
			}
			return data, nil
		}), nil
	}
}

func storageDeleteFactory(b *Builder, def *Definition) (Action, error) {
	var f storageKeyFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	key, err := storageKey(b, def, f.Key)
	if err != nil {
		return nil, err
	}
	s := b.Session()
	return New(TypeStorageDelete, func(ctx context.Context, data any) (any, error) {
		st, err := storageOf(s)
		if err != nil {
			return nil, err
		}
		k, err := key(data)
		if err != nil {
			return nil, err
		}
		if err := st.Remove(ctx, k); err != nil {
			return nil, wrapCollaborator(TypeStorageDelete, err)
		}
		return data, nil
	}), nil
}

func storageClearFactory(b *Builder, def *Definition) (Action, error) {
	if err := b.Decode(def, &noFields{}); err != nil {
		return nil, err
	}
	s := b.Session()
	return New(TypeStorageClear, func(ctx context.Context, data any) (any, error) {
		st, err := storageOf(s)
		if err != nil {
			return nil, err
		}
		if err := st.Clear(ctx); err != nil {
			return nil, wrapCollaborator(TypeStorageClear, err)
		}
		return data, nil
	}), nil
}
