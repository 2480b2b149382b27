package remapper

import (
	"log/slog"
	"time"

	"golang.org/x/text/language"
)

// VariableLookup resolves app-level named variables.
type VariableLookup interface {
	Get(name string) (any, bool)
}

// Member is the identity of the current app member.
type Member struct {
	ID         string         `json:"sub" yaml:"id"`
	Name       string         `json:"name,omitempty" yaml:"name"`
	Email      string         `json:"email,omitempty" yaml:"email"`
	Verified   bool           `json:"email_verified" yaml:"verified"`
	Role       string         `json:"role,omitempty" yaml:"role"`
	Locale     string         `json:"locale,omitempty" yaml:"locale"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties"`
}

// Field returns a member attribute by its remapper name.
func (m *Member) Field(name string) any {
	if m == nil {
		return nil
	}
	switch name {
	case "sub", "id":
		return m.ID
	case "name":
		return m.Name
	case "email":
		return m.Email
	case "email_verified":
		return m.Verified
	case "role":
		return m.Role
	case "locale":
		return m.Locale
	case "properties":
		if m.Properties == nil {
			return nil
		}
		return cloneValue(m.Properties)
	}
	return nil
}

// AppInfo describes the running app.
type AppInfo struct {
	ID  string
	URL string
}

// Context is the read-only environment a remapper is evaluated in.
type Context struct {
	// Now is the evaluation clock. Nil means time.Now.
	Now func() time.Time
	// Locale is a BCP 47 tag used by every formatting operator.
	// An empty locale formats with neutral (root) conventions.
	Locale    string
	Variables VariableLookup
	Member    *Member
	App       AppInfo
	// Page holds the current page's data and parameters.
	Page map[string]any
	// Translations maps locale -> message id -> message.
	Translations map[string]map[string]string
	// Extra is exposed through the context operator.
	Extra  map[string]any
	Logger *slog.Logger
}

func (c *Context) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Context) tag() language.Tag {
	if c.Locale == "" {
		return language.Und
	}
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.Und
	}
	return tag
}

func (c *Context) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// translate finds a message for id, falling back from a regional locale to
// its base language.
func (c *Context) translate(id string) (string, bool) {
	if len(c.Translations) == 0 {
		return "", false
	}
	if msgs, ok := c.Translations[c.Locale]; ok {
		if msg, ok := msgs[id]; ok {
			return msg, true
		}
	}
	base, _ := c.tag().Base()
	if msgs, ok := c.Translations[base.String()]; ok {
		if msg, ok := msgs[id]; ok {
			return msg, true
		}
	}
	return "", false
}

// Scope carries the per-evaluation state: the context, the root input and the
// array iteration a step runs in, if any.
type Scope struct {
	ctx   *Context
	root  any
	frame *frame
}

type frame struct {
	items  []any
	index  int
	parent *frame
}

func (s *Scope) Context() *Context {
	return s.ctx
}

// Root returns the input the top-level remapper was applied to.
func (s *Scope) Root() any {
	return s.root
}

// Iterate returns a child scope for element index of items.
func (s *Scope) Iterate(items []any, index int) *Scope {
	return &Scope{
		ctx:   s.ctx,
		root:  s.root,
		frame: &frame{items: items, index: index, parent: s.frame},
	}
}
