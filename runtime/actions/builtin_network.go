package actions

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/appsemble/apprunner/runtime/remapper"
)

type requestFields struct {
	Method  string            `yaml:"method" default:"GET"`
	URL     remapper.Node     `yaml:"url" validate:"required"`
	Query   remapper.Node     `yaml:"query"`
	Body    remapper.Node     `yaml:"body"`
	Headers map[string]string `yaml:"headers"`
}

var requestMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodHead: true,
}

// request performs an HTTP call through the session's Requester and resolves
// with the decoded response body. Without a body remapper, methods that carry
// a body send the input.
func requestFactory(b *Builder, def *Definition) (Action, error) {
	var f requestFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	method := strings.ToUpper(f.Method)
	if !requestMethods[method] {
		return nil, &ConfigError{Type: string(def.Type), Path: b.path, Message: fmt.Sprintf("unsupported method %q", f.Method)}
	}
	url, err := b.Remapper(def, "url", f.URL)
	if err != nil {
		return nil, err
	}
	query, err := b.Remapper(def, "query", f.Query)
	if err != nil {
		return nil, err
	}
	body, err := b.Remapper(def, "body", f.Body)
	if err != nil {
		return nil, err
	}

	s, p := b.Session(), b.Page()
	return New(TypeRequest, func(ctx context.Context, data any) (any, error) {
		rctx := s.RemapperContext(p)
		req := Request{
			Method:  method,
			URL:     toText(url.Remap(data, rctx)),
			Headers: f.Headers,
		}
		if query != nil {
			req.Query = toStringMap(query.Remap(data, rctx))
		}
		switch {
		case body != nil:
			req.Body = remapper.Plain(body.Remap(data, rctx))
		case method != http.MethodGet && method != http.MethodHead && method != http.MethodDelete:
			req.Body = remapper.Plain(data)
		}
		return send(ctx, s, TypeRequest, req)
	}), nil
}

func send(ctx context.Context, s *Session, t Type, req Request) (any, error) {
	if s.Requester == nil {
		return nil, NewActionErrorf("no requester").WithCode(ErrorCodeNotAvailable)
	}
	resp, err := s.Requester.Do(ctx, req)
	if err != nil {
		return nil, wrapCollaborator(t, err)
	}
	if resp.Status >= http.StatusBadRequest {
		errType := ErrorTypePermanent
		if resp.Status >= http.StatusInternalServerError || resp.Status == http.StatusTooManyRequests {
			errType = ErrorTypeTransient
		}
		ae := NewActionErrorf("%s %s returned status %d", req.Method, req.URL, resp.Status).
			WithType(errType).
			WithCode(ErrorCodeHTTP).
			WithStatus(resp.Status, resp.Body)
		ae.Action = string(t)
		return nil, ae
	}
	return resp.Body, nil
}

func toStringMap(v any) map[string]string {
	obj, ok := remapper.AsObject(v)
	if !ok {
		return nil
	}
	out := make(map[string]string, obj.Len())
	for _, k := range obj.Keys() {
		val, _ := obj.Get(k)
		if val == nil {
			continue
		}
		out[k] = toText(val)
	}
	return out
}

type emailFields struct {
	To          remapper.Node `yaml:"to" validate:"required"`
	Cc          remapper.Node `yaml:"cc"`
	Bcc         remapper.Node `yaml:"bcc"`
	Subject     remapper.Node `yaml:"subject" validate:"required"`
	Body        remapper.Node `yaml:"body" validate:"required"`
	Attachments remapper.Node `yaml:"attachments"`
}

// email asks the app API to send an email and passes the input through.
func emailFactory(b *Builder, def *Definition) (Action, error) {
	var f emailFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	fields, err := compileNamed(b, def, map[string]remapper.Node{
		"to": f.To, "cc": f.Cc, "bcc": f.Bcc,
		"subject": f.Subject, "body": f.Body, "attachments": f.Attachments,
	})
	if err != nil {
		return nil, err
	}
	return apiAction(b, TypeEmail, "email", fields), nil
}

type notifyFields struct {
	To    remapper.Node `yaml:"to"`
	Title remapper.Node `yaml:"title" validate:"required"`
	Body  remapper.Node `yaml:"body" validate:"required"`
}

// notify asks the app API to push a notification and passes the input
// through. Without to, all subscribers are notified.
func notifyFactory(b *Builder, def *Definition) (Action, error) {
	var f notifyFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	to := f.To
	if to == nil {
		to = remapper.NewObject().Set("static", "all")
	}
	fields, err := compileNamed(b, def, map[string]remapper.Node{
		"to": to, "title": f.Title, "body": f.Body,
	})
	if err != nil {
		return nil, err
	}
	return apiAction(b, TypeNotify, "notify", fields), nil
}

func compileNamed(b *Builder, def *Definition, nodes map[string]remapper.Node) (map[string]*remapper.Remapper, error) {
	out := make(map[string]*remapper.Remapper, len(nodes))
	for name, node := range nodes {
		if node == nil {
			continue
		}
		r, err := b.Remapper(def, name, node)
		if err != nil {
			return nil, err
		}
		out[name] = r
	}
	return out, nil
}

func apiAction(b *Builder, t Type, endpoint string, fields map[string]*remapper.Remapper) Action {
	s, p := b.Session(), b.Page()
	return New(t, func(ctx context.Context, data any) (any, error) {
		rctx := s.RemapperContext(p)
		payload := make(map[string]any, len(fields))
		for name, r := range fields {
			payload[name] = remapper.Plain(r.Remap(data, rctx))
		}
		url := strings.TrimSuffix(s.APIURL, "/") + "/apps/" + s.App.ID + "/" + endpoint
		if _, err := send(ctx, s, t, Request{Method: http.MethodPost, URL: url, Body: payload}); err != nil {
			return nil, err
		}
		return data, nil
	})
}

type downloadFields struct {
	Filename string `yaml:"filename" validate:"required"`
}

// download serializes its input to a file named filename and hands it to the
// Downloader. The format follows the extension: .csv writes a table,
// anything else JSON.
func downloadFactory(b *Builder, def *Definition) (Action, error) {
	var f downloadFields
	if err := b.Decode(def, &f); err != nil {
		return nil, err
	}
	if path.Base(f.Filename) != f.Filename {
		return nil, &ConfigError{Type: string(def.Type), Path: b.path, Message: "filename must not contain a path"}
	}
	s := b.Session()
	return New(TypeDownload, func(ctx context.Context, data any) (any, error) {
		if s.Downloader == nil {
			return nil, NewActionErrorf("no downloader").WithCode(ErrorCodeNotAvailable)
		}
		d := Download{Filename: f.Filename}
		var err error
		if strings.EqualFold(path.Ext(f.Filename), ".csv") {
			d.ContentType = "text/csv"
			d.Data, err = toCSV(data)
		} else {
			d.ContentType = "application/json"
			d.Data, err = json.MarshalIndent(data, "", "  ")
		}
		if err != nil {
			return nil, NewActionErrorf("serialize download: %w", err)
		}
		if err := s.Downloader.Download(ctx, d); err != nil {
			return nil, wrapCollaborator(TypeDownload, err)
		}
		return data, nil
	}), nil
}

// toCSV writes an array of objects as a table. Columns appear in the order
// keys are first seen.
func toCSV(data any) ([]byte, error) {
	rows, ok := data.([]any)
	if !ok {
		rows = []any{data}
	}

	var columns []string
	seen := map[string]bool{}
	objects := make([]*remapper.Object, 0, len(rows))
	for _, row := range rows {
		obj, ok := remapper.AsObject(row)
		if !ok {
			return nil, fmt.Errorf("csv rows must be objects, got %T", row)
		}
		for _, k := range obj.Keys() {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
		objects = append(objects, obj)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	for _, obj := range objects {
		record := make([]string, len(columns))
		for i, col := range columns {
			v, _ := obj.Get(col)
			record[i] = toText(v)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
