package runtime

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/Jeffail/gabs/v2"
	"github.com/gin-gonic/gin"

	"github.com/appsemble/apprunner/runtime/remapper"
	"github.com/appsemble/apprunner/runtime/store"
)

// Server exposes loaded apps over HTTP. Every mount runs in its own session.
type Server struct {
	apps   map[string]*App
	l      *slog.Logger
	mu     sync.Mutex
	mounts map[string]*Mount
}

func NewServer(apps map[string]*App, l *slog.Logger) *Server {
	if l == nil {
		l = slog.Default()
	}
	return &Server{apps: apps, l: l, mounts: make(map[string]*Mount)}
}

// Register adds the host routes to g.
func (s *Server) Register(g gin.IRouter) {
	g.GET("/apps", s.listApps)
	g.POST("/apps/:app/pages/:page/mount", s.mount)
	g.DELETE("/apps/:app/mounts/:mount", s.unmount)
	g.POST("/apps/:app/mounts/:mount/actions/:action", s.dispatch)
	g.GET("/apps/:app/mounts/:mount/flow", s.flowState)
	g.POST("/remap", s.remap)
}

// Close unmounts everything.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.mounts {
		m.Close()
		m.Session.Close()
		delete(s.mounts, id)
	}
}

func (s *Server) listApps(c *gin.Context) {
	ids := make([]string, 0, len(s.apps))
	for id := range s.apps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		out = append(out, gin.H{"id": id, "pages": s.apps[id].PageNames()})
	}
	c.JSON(http.StatusOK, gin.H{"apps": out})
}

type mountRequest struct {
	Params map[string]any   `json:"params"`
	Locale string           `json:"locale"`
	Member *remapper.Member `json:"member"`
}

func (s *Server) mount(c *gin.Context) {
	app, ok := s.apps[c.Param("app")]
	if !ok {
		s.fail(c, fmt.Errorf("%w: %s", ErrUnknownApp, c.Param("app")))
		return
	}

	var req mountRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, &HostError{Status: http.StatusBadRequest, Code: ErrorCodeBadRequest, Message: "Wrong request body format"})
			return
		}
	}

	session := app.NewSession(req.Locale, req.Member)
	m, err := app.Mount(session, c.Param("page"), req.Params)
	if err != nil {
		session.Close()
		s.fail(c, err)
		return
	}

	s.mu.Lock()
	s.mounts[m.ID] = m
	s.mu.Unlock()

	s.l.InfoContext(c, "Page mounted", "app", app.ID(), "page", m.Page.Name, "mount", m.ID)

	out := gabs.New()
	out.Set(m.ID, "mount")
	out.Set(session.ID, "session")
	out.Set(m.Page.Name, "page")
	out.Set(m.Actions(), "actions")
	if m.Flow != nil {
		out.Set(m.Flow.State(), "flow")
	}
	c.Data(http.StatusCreated, "application/json; charset=utf-8", out.Bytes())
}

func (s *Server) unmount(c *gin.Context) {
	m, err := s.lookup(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.mu.Lock()
	delete(s.mounts, m.ID)
	s.mu.Unlock()

	m.Close()
	m.Session.Close()
	c.Status(http.StatusNoContent)
}

func (s *Server) dispatch(c *gin.Context) {
	m, err := s.lookup(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	body, err := readBody(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var data any
	if obj, ok := body.(*remapper.Object); ok {
		data, _ = obj.Get("data")
	}

	action := c.Param("action")
	exec := NewExecution(c.Request.Context())
	result, err := m.Dispatch(exec, action, data)

	out := gabs.New()
	out.Set(exec.ID, "execution")
	out.Set(exec.Effects(), "effects")
	if m.Flow != nil {
		out.Set(m.Flow.State(), "flow")
	}

	if err != nil {
		he := ToHostError(err)
		s.l.ErrorContext(c, "Action dispatch failed",
			"app", m.App.ID(),
			"mount", m.ID,
			"action", action,
			"execution", exec.ID,
			"error", err.Error())
		out.Set(he.ToMap(), "error")
		c.Data(he.Status, "application/json; charset=utf-8", out.Bytes())
		return
	}

	out.Set(result, "result")
	c.Data(http.StatusOK, "application/json; charset=utf-8", out.Bytes())
}

func (s *Server) flowState(c *gin.Context) {
	m, err := s.lookup(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if m.Flow == nil {
		s.fail(c, &HostError{Status: http.StatusNotFound, Code: ErrorCodeNotFound, Message: fmt.Sprintf("page %q is not a flow page", m.Page.Name)})
		return
	}
	c.JSON(http.StatusOK, m.Flow.State())
}

// remap evaluates an ad-hoc remapper:
// {"remapper": ..., "input": ..., "locale": "nl", "variables": {...}}.
func (s *Server) remap(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	obj, ok := body.(*remapper.Object)
	if !ok {
		s.fail(c, &HostError{Status: http.StatusBadRequest, Code: ErrorCodeBadRequest, Message: "expected a JSON object"})
		return
	}

	node, _ := obj.Get("remapper")
	input, _ := obj.Get("input")
	rctx := &remapper.Context{}
	if locale, ok := obj.Get("locale"); ok {
		rctx.Locale, _ = locale.(string)
	}
	if vars, ok := obj.Get("variables"); ok {
		if m, ok := remapper.Plain(vars).(map[string]any); ok {
			rctx.Variables = store.NewVariables(m)
		}
	}

	result, err := remapper.Evaluate(node, input, rctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := gabs.New()
	out.Set(result, "result")
	c.Data(http.StatusOK, "application/json; charset=utf-8", out.Bytes())
}

func (s *Server) lookup(c *gin.Context) (*Mount, error) {
	s.mu.Lock()
	m, ok := s.mounts[c.Param("mount")]
	s.mu.Unlock()

	if !ok || m.App.ID() != c.Param("app") {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMount, c.Param("mount"))
	}
	return m, nil
}

func (s *Server) fail(c *gin.Context, err error) {
	he := ToHostError(err)
	if he.Status >= http.StatusInternalServerError {
		s.l.ErrorContext(c, "Request failed", "path", c.Request.URL.Path, "error", err.Error())
	}
	c.JSON(he.Status, gin.H{"error": he.ToMap()})
}

// readBody decodes a JSON request body keeping object key order. An empty
// body decodes to nil.
func readBody(c *gin.Context) (any, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, &HostError{Status: http.StatusBadRequest, Code: ErrorCodeBadRequest, Message: "Wrong request body format"}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	v, err := remapper.DecodeJSON(raw)
	if err != nil {
		return nil, &HostError{Status: http.StatusBadRequest, Code: ErrorCodeBadRequest, Message: "Wrong request body format"}
	}
	return v, nil
}
