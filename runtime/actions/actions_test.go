package actions

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/appsemble/apprunner/runtime/events"
	"github.com/appsemble/apprunner/runtime/flow"
	"github.com/appsemble/apprunner/runtime/remapper"
)

func parse(t *testing.T, src string) *Definition {
	t.Helper()
	var def Definition
	require.NoError(t, yaml.Unmarshal([]byte(src), &def))
	return &def
}

func build(t *testing.T, src string, s *Session) Action {
	t.Helper()
	if s == nil {
		s = NewSession(remapper.AppInfo{ID: "1"}, nil)
	}
	a, err := NewRegistry().Build(parse(t, src), s, nil)
	require.NoError(t, err)
	return a
}

func TestNoopReturnsInput(t *testing.T) {
	a := build(t, "type: noop", nil)
	for _, in := range []any{nil, map[string]any{}, []any{1.0, 2.0, 3.0}, "x"} {
		out, err := a.Dispatch(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestStaticIgnoresInput(t *testing.T) {
	a := build(t, "type: static\nvalue: {a: 1}", nil)
	for _, in := range []any{nil, "anything", 42.0} {
		out, err := a.Dispatch(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": 1}, remapper.Plain(out))
	}
}

func TestThrowRejectsWithRawValue(t *testing.T) {
	a := build(t, "type: throw", nil)
	_, err := a.Dispatch(context.Background(), "payload")
	require.Error(t, err)

	var thrown *ThrownError
	require.True(t, errors.As(err, &thrown))
	assert.Equal(t, "payload", thrown.Value)
	assert.Equal(t, "payload", ErrorValue(err))
}

func TestChainRemapAfter(t *testing.T) {
	a := build(t, `
type: static
value: 1
remapAfter:
  math.multiply: [null, 2]
`, nil)
	out, err := a.Dispatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out)
}

func TestChainOrder(t *testing.T) {
	a := build(t, `
type: noop
remapBefore: {prop: value}
onSuccess:
  type: noop
  remapBefore:
    math.add: [null, 1]
remapAfter:
  object.from:
    result: null
`, nil)
	out, err := a.Dispatch(context.Background(), map[string]any{"value": 41.0})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": 42.0}, remapper.Plain(out))
}

func TestOnErrorReceivesThrownValue(t *testing.T) {
	a := build(t, `
type: throw
onError:
  type: noop
`, nil)
	out, err := a.Dispatch(context.Background(), map[string]any{"reason": "nope"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"reason": "nope"}, out)
}

func TestOnErrorFailurePropagates(t *testing.T) {
	a := build(t, `
type: throw
onError:
  type: throw
  remapBefore: {static: second}
`, nil)
	_, err := a.Dispatch(context.Background(), "first")
	assert.Equal(t, "second", ErrorValue(err))
}

func TestUnknownTypeIsConfigError(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"top level", "type: nope"},
		{"onSuccess", "type: noop\nonSuccess: {type: nope}"},
		{"onError", "type: noop\nonError: {type: nope}"},
		{"nested", "type: condition\nif: true\nthen: {type: noop}\nelse: {type: nope}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry().Build(parse(t, tt.src), nil, nil)
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestMalformedFieldsAreConfigErrors(t *testing.T) {
	tests := []string{
		"type: noop\nunexpected: 1",
		"type: log\nlevel: loud",
		"type: event",
		"type: static\nvalue: 1\nremapAfter: {nope: 1}",
		"type: request\nurl: /x\nmethod: TRACE",
		"type: download\nfilename: ../escape.json",
	}
	for _, src := range tests {
		_, err := NewRegistry().Build(parse(t, src), nil, nil)
		assert.True(t, IsConfigError(err), "%q: %v", src, err)
	}
}

func TestEventWaitFor(t *testing.T) {
	s := NewSession(remapper.AppInfo{}, nil)
	s.Bus.Subscribe("ping", func(ev events.Event) {
		go s.Bus.Emit("pong", map[string]any{"echo": ev.Data})
	})

	a := build(t, "type: event\nevent: ping\nwaitFor: pong\ntimeout: 1s", s)
	out, err := a.Dispatch(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": "hi"}, out)
}

func TestEventWaitForSynchronousReply(t *testing.T) {
	s := NewSession(remapper.AppInfo{}, nil)
	s.Bus.Subscribe("ping", func(events.Event) { s.Bus.Emit("pong", "sync") })

	a := build(t, "type: event\nevent: ping\nwaitFor: pong", s)
	out, err := a.Dispatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "sync", out)
}

func TestEventWaitForError(t *testing.T) {
	s := NewSession(remapper.AppInfo{}, nil)
	s.Bus.Subscribe("save", func(events.Event) {
		s.Bus.EmitError("saved", map[string]any{"status": 409.0}, "conflict")
	})

	a := build(t, "type: event\nevent: save\nwaitFor: saved", s)
	_, err := a.Dispatch(context.Background(), nil)
	var eventErr *EventError
	require.True(t, errors.As(err, &eventErr))
	assert.Equal(t, "conflict", eventErr.Marker)

	handled := build(t, "type: event\nevent: save\nwaitFor: saved\nonError: {type: noop}", s)
	out, err := handled.Dispatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": 409.0}, out)
}

func TestEventEmitsError(t *testing.T) {
	s := NewSession(remapper.AppInfo{}, nil)
	reply := build(t, "type: event\nevent: saved\nerror: true", s)
	s.Bus.Subscribe("save", func(ev events.Event) {
		_, _ = reply.Dispatch(context.Background(), map[string]any{"reason": "conflict"})
	})

	var got events.Event
	dispose := s.Bus.Subscribe("saved", func(ev events.Event) { got = ev })
	a := build(t, "type: event\nevent: save\nwaitFor: saved", s)
	_, err := a.Dispatch(context.Background(), nil)
	dispose()

	var eventErr *EventError
	require.ErrorAs(t, err, &eventErr)
	assert.Equal(t, map[string]any{"reason": "conflict"}, eventErr.Payload)
	assert.True(t, got.Failed())
}

func TestEventWaitForTimeout(t *testing.T) {
	a := build(t, "type: event\nevent: ping\nwaitFor: never\ntimeout: 10", nil)
	_, err := a.Dispatch(context.Background(), nil)

	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, ErrorCodeTimeout, actionErr.Code)
}

func TestEventWaitForCancelled(t *testing.T) {
	a := build(t, "type: event\nevent: ping\nwaitFor: never", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Dispatch(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func flaky(failures int32, calls *atomic.Int32) Factory {
	return func(_ *Builder, _ *Definition) (Action, error) {
		return New("flaky", func(_ context.Context, data any) (any, error) {
			if calls.Add(1) <= failures {
				return nil, NewActionErrorf("temporarily down").WithType(ErrorTypeTransient)
			}
			return data, nil
		}), nil
	}
}

func TestRetry(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register("flaky", flaky(2, &calls)))

	a, err := r.Build(parse(t, "type: flaky\nretry: {maxAttempts: 3, delay: 0}"), nil, nil)
	require.NoError(t, err)

	out, err := a.Dispatch(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register("flaky", flaky(5, &calls)))

	a, err := r.Build(parse(t, "type: flaky\nretry: {maxAttempts: 2, delay: 0}"), nil, nil)
	require.NoError(t, err)

	_, err = a.Dispatch(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestThrowIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register("counted.throw", func(_ *Builder, _ *Definition) (Action, error) {
		return New("counted.throw", func(_ context.Context, data any) (any, error) {
			calls.Add(1)
			return nil, &ThrownError{Value: data}
		}), nil
	}))

	a, err := r.Build(parse(t, "type: counted.throw\nretry: {maxAttempts: 5, delay: 0}"), nil, nil)
	require.NoError(t, err)
	_, err = a.Dispatch(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	tests := []struct {
		name  string
		err   *ActionError
		calls int32
	}{
		{"permanent", NewActionErrorf("bad request"), 1},
		{"permanent with retry hint", NewActionErrorf("rate limited").WithRetryHint(true), 3},
		{"transient with no-retry hint", NewActionErrorf("gone").WithType(ErrorTypeTransient).WithRetryHint(false), 1},
		{"timeout", NewActionErrorf("slow").WithType(ErrorTypeTimeout), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			r := NewRegistry()
			require.NoError(t, r.Register("failing", func(_ *Builder, _ *Definition) (Action, error) {
				return New("failing", func(context.Context, any) (any, error) {
					calls.Add(1)
					return nil, tt.err
				}), nil
			}))

			a, err := r.Build(parse(t, "type: failing\nretry: {maxAttempts: 3, delay: 0}"), nil, nil)
			require.NoError(t, err)
			_, err = a.Dispatch(context.Background(), nil)
			assert.Error(t, err)
			assert.Equal(t, tt.calls, calls.Load())
		})
	}
}

func TestNonRetryableCode(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register("failing", func(_ *Builder, _ *Definition) (Action, error) {
		return New("failing", func(context.Context, any) (any, error) {
			calls.Add(1)
			return nil, NewActionErrorf("quota").WithType(ErrorTypeTransient).WithCode("QUOTA")
		}), nil
	}))

	a, err := r.Build(parse(t, "type: failing\nretry: {maxAttempts: 3, delay: 0, nonRetryable: [QUOTA]}"), nil, nil)
	require.NoError(t, err)
	_, err = a.Dispatch(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryDelay(t *testing.T) {
	cfg := &RetryConfig{Delay: 100, Backoff: "exponential", MaxDelay: 300}
	assert.Equal(t, 100*time.Millisecond, retryDelay(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, retryDelay(cfg, 2))
	assert.Equal(t, 300*time.Millisecond, retryDelay(cfg, 3))

	cfg.Backoff = "linear"
	assert.Equal(t, 200*time.Millisecond, retryDelay(cfg, 2))
}

func TestPanicBecomesError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("panics", func(_ *Builder, _ *Definition) (Action, error) {
		return New("panics", func(context.Context, any) (any, error) { panic("boom") }), nil
	}))
	a, err := r.Build(parse(t, "type: panics"), nil, nil)
	require.NoError(t, err)

	var out any
	assert.NotPanics(t, func() { out, err = a.Dispatch(context.Background(), nil) })
	assert.Nil(t, out)

	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, ErrorCodePanic, actionErr.Code)
}

func TestConditionMatchEach(t *testing.T) {
	cond := build(t, `
type: condition
if: {prop: ok}
then: {type: static, value: yes}
else: {type: static, value: no}
`, nil)
	out, _ := cond.Dispatch(context.Background(), map[string]any{"ok": true})
	assert.Equal(t, "yes", out)
	out, _ = cond.Dispatch(context.Background(), map[string]any{"ok": false})
	assert.Equal(t, "no", out)

	match := build(t, `
type: match
match:
  - case: {equals: [null, a]}
    action: {type: static, value: first}
  - action: {type: static, value: fallback}
`, nil)
	out, _ = match.Dispatch(context.Background(), "a")
	assert.Equal(t, "first", out)
	out, _ = match.Dispatch(context.Background(), "z")
	assert.Equal(t, "fallback", out)

	for _, parallel := range []string{"false", "true"} {
		each := build(t, "type: each\nparallel: "+parallel+"\ndo:\n  type: noop\n  remapAfter: {math.multiply: [null, 10]}", nil)
		out, err := each.Dispatch(context.Background(), []any{1.0, 2.0, 3.0})
		require.NoError(t, err)
		assert.Equal(t, []any{10.0, 20.0, 30.0}, out)
	}
}

func TestStorage(t *testing.T) {
	s := NewSession(remapper.AppInfo{}, nil)
	ctx := context.Background()

	write := build(t, "type: storage.write\nkey: cart", s)
	appendItem := build(t, "type: storage.append\nkey: cart\nvalue: {prop: id}", s)
	read := build(t, "type: storage.read\nkey: cart", s)
	del := build(t, "type: storage.delete\nkey: cart", s)

	_, err := write.Dispatch(ctx, []any{"a"})
	require.NoError(t, err)
	_, err = appendItem.Dispatch(ctx, map[string]any{"id": "b"})
	require.NoError(t, err)

	out, err := read.Dispatch(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out)

	_, err = del.Dispatch(ctx, nil)
	require.NoError(t, err)
	out, err = read.Dispatch(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

type fakeRequester struct {
	last  Request
	resp  *Response
	calls int
}

func (f *fakeRequester) Do(_ context.Context, req Request) (*Response, error) {
	f.last = req
	f.calls++
	return f.resp, nil
}

func TestRequestRetriesByStatus(t *testing.T) {
	tests := []struct {
		status int
		calls  int
	}{
		{400, 1},
		{404, 1},
		{429, 3},
		{503, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			req := &fakeRequester{resp: &Response{Status: tt.status}}
			s := NewSession(remapper.AppInfo{}, nil)
			s.Requester = req

			a := build(t, "type: request\nurl: https://api.example/items\nretry: {maxAttempts: 3, delay: 0}", s)
			_, err := a.Dispatch(context.Background(), nil)
			require.Error(t, err)
			assert.Equal(t, tt.calls, req.calls)
		})
	}
}

func TestRequest(t *testing.T) {
	req := &fakeRequester{resp: &Response{Status: 200, Body: map[string]any{"id": 1.0}}}
	s := NewSession(remapper.AppInfo{}, nil)
	s.Requester = req

	a := build(t, `
type: request
method: post
url: {string.format: {template: "https://api.example/items/{id}", values: {id: {prop: id}}}}
query: {object.from: {draft: true}}
`, s)
	out, err := a.Dispatch(context.Background(), map[string]any{"id": 7.0})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 1.0}, out)
	assert.Equal(t, "POST", req.last.Method)
	assert.Equal(t, "https://api.example/items/7", req.last.URL)
	assert.Equal(t, map[string]string{"draft": "true"}, req.last.Query)
	assert.Equal(t, map[string]any{"id": 7.0}, req.last.Body)
}

func TestRequestErrorStatus(t *testing.T) {
	s := NewSession(remapper.AppInfo{}, nil)
	s.Requester = &fakeRequester{resp: &Response{Status: 404, Body: "missing"}}

	a := build(t, "type: request\nurl: /x\nonError: {type: noop}", s)
	out, err := a.Dispatch(context.Background(), nil)
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 404, m["status"])
	assert.Equal(t, "missing", m["body"])
	assert.Equal(t, ErrorCodeHTTP, m["code"])
}

func TestMissingCollaborator(t *testing.T) {
	a := build(t, "type: message\nbody: hi", nil)
	_, err := a.Dispatch(context.Background(), nil)

	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, ErrorCodeNotAvailable, actionErr.Code)
}

type recorder struct {
	messages    []Message
	navigations []Navigation
	downloads   []Download
}

func (r *recorder) Show(_ context.Context, m Message) error {
	r.messages = append(r.messages, m)
	return nil
}

func (r *recorder) Navigate(_ context.Context, n Navigation) error {
	r.navigations = append(r.navigations, n)
	return nil
}

func (r *recorder) Download(_ context.Context, d Download) error {
	r.downloads = append(r.downloads, d)
	return nil
}

func TestUserVisibleEffects(t *testing.T) {
	rec := &recorder{}
	s := NewSession(remapper.AppInfo{}, nil)
	s.Messenger, s.Navigator, s.Downloader = rec, rec, rec
	ctx := context.Background()

	msg := build(t, "type: message\nbody: {string.format: {template: 'Saved {n}', values: {n: {prop: n}}}}\ncolor: success", s)
	out, err := msg.Dispatch(ctx, map[string]any{"n": 3.0})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": 3.0}, out)
	require.Len(t, rec.messages, 1)
	assert.Equal(t, "Saved 3", rec.messages[0].Body)
	assert.Equal(t, "success", rec.messages[0].Color)

	link := build(t, "type: link\nto: {array.from: [orders, details]}", s)
	_, err = link.Dispatch(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, Navigation{Kind: NavigatePage, Target: "orders/details"}, rec.navigations[0])

	back := build(t, "type: link.back", s)
	_, err = back.Dispatch(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, NavigateBack, rec.navigations[1].Kind)

	dl := build(t, "type: download\nfilename: rows.csv", s)
	_, err = dl.Dispatch(ctx, []any{
		map[string]any{"a": 1.0, "b": "x"},
		map[string]any{"a": 2.0, "c": true},
	})
	require.NoError(t, err)
	require.Len(t, rec.downloads, 1)
	assert.Equal(t, "text/csv", rec.downloads[0].ContentType)
	assert.Equal(t, "a,b,c\n1,x,\n2,,true\n", string(rec.downloads[0].Data))
}

func TestEmailPostsToAPI(t *testing.T) {
	req := &fakeRequester{resp: &Response{Status: 204}}
	s := NewSession(remapper.AppInfo{ID: "42"}, nil)
	s.Requester = req
	s.APIURL = "https://apps.example/api/"

	a := build(t, "type: email\nto: {prop: email}\nsubject: Hello\nbody: {static: Welcome}", s)
	out, err := a.Dispatch(context.Background(), map[string]any{"email": "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"email": "ada@example.com"}, out)
	assert.Equal(t, "https://apps.example/api/apps/42/email", req.last.URL)
	assert.Equal(t, map[string]any{"to": "ada@example.com", "subject": "Hello", "body": "Welcome"}, req.last.Body)
}

func TestFlowActions(t *testing.T) {
	s := NewSession(remapper.AppInfo{}, nil)
	page := &Page{Name: "wizard"}
	r := NewRegistry()

	var finished any
	m, err := flow.New(flow.Config{
		Steps: []flow.Step{{Name: "one"}, {Name: "two"}},
		OnFinish: func(_ context.Context, data any) (any, error) {
			finished = remapper.Plain(data)
			return data, nil
		},
	})
	require.NoError(t, err)
	page.Flow = m

	next, err := r.Build(parse(t, "type: flow.next"), s, page)
	require.NoError(t, err)

	_, err = next.Dispatch(context.Background(), map[string]any{"a": 1.0})
	require.NoError(t, err)
	_, err = next.Dispatch(context.Background(), map[string]any{"b": 2.0})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, finished)
}

func TestFlowActionOutsideFlow(t *testing.T) {
	a := build(t, "type: flow.back", nil)
	_, err := a.Dispatch(context.Background(), nil)

	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, ErrorCodeNotAvailable, actionErr.Code)
}

func TestDefinitionJSON(t *testing.T) {
	var def Definition
	require.NoError(t, def.UnmarshalJSON([]byte(`{"type":"static","value":1,"onError":{"type":"noop"}}`)))
	assert.Equal(t, TypeStatic, def.Type)
	assert.Equal(t, 1.0, def.Fields["value"])
	require.NotNil(t, def.OnError)
	assert.Equal(t, TypeNoop, def.OnError.Type)

	data, err := def.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"static","value":1,"onError":{"type":"noop"}}`, string(data))
}

func TestRegistryTypes(t *testing.T) {
	r := NewRegistry()
	assert.Contains(t, r.Types(), TypeNoop)
	assert.Error(t, r.Register(TypeNoop, noopFactory))
}
