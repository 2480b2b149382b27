package actions

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/appsemble/apprunner/runtime/events"
	"github.com/appsemble/apprunner/runtime/remapper"
	"github.com/appsemble/apprunner/runtime/store"
)

// Request is an outgoing HTTP request made on behalf of an action.
type Request struct {
	Method  string
	URL     string
	Query   map[string]string
	Headers map[string]string
	Body    any
}

// Response is the decoded reply to a Request. Body is the JSON-decoded
// payload, or the raw text when the reply is not JSON.
type Response struct {
	Status  int
	Headers map[string]string
	Body    any
}

type Requester interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

type NavigationKind string

const (
	NavigatePage NavigationKind = "page"
	NavigateURL  NavigationKind = "url"
	NavigateBack NavigationKind = "back"
	NavigateNext NavigationKind = "next"
)

type Navigation struct {
	Kind   NavigationKind `json:"kind"`
	Target string         `json:"target,omitempty"`
	Data   any            `json:"data,omitempty"`
}

type Navigator interface {
	Navigate(ctx context.Context, nav Navigation) error
}

// Message is a transient notification shown to the user.
type Message struct {
	Body        string        `json:"body"`
	Color       string        `json:"color"`
	Layout      string        `json:"layout"`
	Dismissable bool          `json:"dismissable"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

type Messenger interface {
	Show(ctx context.Context, msg Message) error
}

// Storage is the key/value store behind the storage.* actions.
type Storage interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Download is a file handed to the user.
type Download struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"-"`
}

type Downloader interface {
	Download(ctx context.Context, d Download) error
}

// Session is the state of one running app instance. Every action built for
// the app shares it. Collaborators left nil make the actions that need them
// fail with a NOT_AVAILABLE ActionError.
type Session struct {
	ID           string
	App          remapper.AppInfo
	Locale       string
	Member       *remapper.Member
	Translations map[string]map[string]string
	// APIURL is the base URL email and notify requests are sent to.
	APIURL string

	Variables *store.Variables
	Bus       *events.Bus
	Storage   Storage

	Requester  Requester
	Navigator  Navigator
	Messenger  Messenger
	Downloader Downloader

	Logger *slog.Logger
	Now    func() time.Time
}

// NewSession creates a session with its own variables, event bus and
// in-memory storage.
func NewSession(app remapper.AppInfo, l *slog.Logger) *Session {
	if l == nil {
		l = slog.Default()
	}
	id := uuid.New().String()
	l = l.With("session", id, "app", app.ID)
	return &Session{
		ID:        id,
		App:       app,
		Variables: store.NewVariables(nil),
		Bus:       events.NewBus(l),
		Storage:   store.NewMemory(),
		Logger:    l,
		Now:       time.Now,
	}
}

// Close releases the session's event subscriptions.
func (s *Session) Close() {
	if s.Bus != nil {
		s.Bus.Clear()
	}
}

func (s *Session) logger() *slog.Logger {
	if s == nil || s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// RemapperContext returns the environment remappers are evaluated in for
// the given page. p may be nil.
func (s *Session) RemapperContext(p *Page) *remapper.Context {
	if s == nil {
		return &remapper.Context{}
	}
	ctx := &remapper.Context{
		Now:          s.Now,
		Locale:       s.Locale,
		Member:       s.Member,
		App:          s.App,
		Translations: s.Translations,
		Logger:       s.Logger,
	}
	if s.Variables != nil {
		ctx.Variables = s.Variables
	}
	if p != nil {
		ctx.Page = map[string]any{
			"name":   p.Name,
			"params": p.Params,
		}
		if f := p.Flow; f != nil {
			ctx.Extra = map[string]any{"flow": f.Payload().Map()}
		}
	}
	return ctx
}

// Flow is the flow page state machine actions delegate to.
type Flow interface {
	Next(ctx context.Context, data any) (any, error)
	Back(ctx context.Context, data any) (any, error)
	Skip(ctx context.Context, data any) (any, error)
	Finish(ctx context.Context, data any) (any, error)
	Cancel(ctx context.Context, data any) (any, error)
	To(ctx context.Context, name string, data any) (any, error)
	Payload() *remapper.Object
}

// Page is the page an action was built for. Flow is set for flow pages once
// their state machine exists and must not change afterwards.
type Page struct {
	Name   string
	Params map[string]any
	Flow   Flow
}
