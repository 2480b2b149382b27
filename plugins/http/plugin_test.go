package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsemble/apprunner/runtime/plugin"
)

func newPlugin(t *testing.T, cfg Config) *HTTPPlugin {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	p := &HTTPPlugin{Config: cfg}
	require.NoError(t, p.Initialize(context.Background()))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func TestDo_GetWithQueryAndHeaders(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, nethttp.MethodGet, r.Method)
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		assert.Equal(t, "apprunner", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"z": 1, "a": [true, null]}`)
	}))
	defer srv.Close()

	p := newPlugin(t, Config{Headers: map[string]string{"User-Agent": "apprunner"}})
	resp, err := p.Do(context.Background(), plugin.Request{
		Method:  "GET",
		URL:     srv.URL + "/tickets",
		Query:   map[string]string{"status": "open"},
		Headers: map[string]string{"X-Token": "secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)

	body, ok := resp.Body.(*plugin.Object)
	require.True(t, ok, "JSON bodies decode to ordered objects")
	assert.Equal(t, []string{"z", "a"}, body.Keys())
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestDo_PostKeepsBodyOrder(t *testing.T) {
	var got string
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		raw, _ := io.ReadAll(r.Body)
		got = string(raw)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		w.WriteHeader(nethttp.StatusCreated)
	}))
	defer srv.Close()

	p := newPlugin(t, Config{})
	body := plugin.NewObject().Set("name", "Ada").Set("age", 36)
	resp, err := p.Do(context.Background(), plugin.Request{Method: "POST", URL: srv.URL, Body: body})
	require.NoError(t, err)

	assert.Equal(t, nethttp.StatusCreated, resp.Status)
	assert.Nil(t, resp.Body)
	assert.JSONEq(t, `{"name":"Ada","age":36}`, got)
	assert.Less(t, strings.Index(got, `"name"`), strings.Index(got, `"age"`))
}

func TestDo_ErrorStatusIsAResponse(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(nethttp.StatusServiceUnavailable)
		io.WriteString(w, "maintenance")
	}))
	defer srv.Close()

	p := newPlugin(t, Config{})
	resp, err := p.Do(context.Background(), plugin.Request{Method: "GET", URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, "maintenance", resp.Body)
}

func TestDo_BaseURL(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "/api/items", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]int{1, 2})
	}))
	defer srv.Close()

	p := newPlugin(t, Config{BaseURL: srv.URL + "/api"})
	resp, err := p.Do(context.Background(), plugin.Request{Method: "GET", URL: "/items"})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, resp.Body)
}

func TestDo_FormBody(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
	}))
	defer srv.Close()

	p := newPlugin(t, Config{})
	_, err := p.Do(context.Background(), plugin.Request{
		Method:  "POST",
		URL:     srv.URL,
		Headers: map[string]string{"Content-Type": formContentType},
		Body: plugin.NewObject().
			Set("amount", 1099).
			Set("metadata", plugin.NewObject().Set("order_id", "o-1")),
	})
	require.NoError(t, err)
	assert.Equal(t, "1099", form.Get("amount"))
	assert.Equal(t, "o-1", form.Get("metadata[order_id]"))
}

func TestDo_TransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {}))
	addr := srv.URL
	srv.Close()

	p := newPlugin(t, Config{})
	_, err := p.Do(context.Background(), plugin.Request{Method: "GET", URL: addr})
	require.Error(t, err)

	var ae *plugin.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, plugin.ErrorTypeTransient, ae.Type)
	assert.True(t, ae.IsRetryable())
}

func TestDo_NotInitialized(t *testing.T) {
	p := &HTTPPlugin{}
	_, err := p.Do(context.Background(), plugin.Request{Method: "GET", URL: "http://localhost"})

	var ae *plugin.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, plugin.ErrorCodeNotAvailable, ae.Code)
}

func TestFlattenToFormData(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]any
		expected map[string]string
	}{
		{
			name:     "simple values",
			input:    map[string]any{"amount": 1099, "currency": "eur"},
			expected: map[string]string{"amount": "1099", "currency": "eur"},
		},
		{
			name: "nested map",
			input: map[string]any{
				"metadata": map[string]any{"order_id": "12345", "user": "ada"},
			},
			expected: map[string]string{
				"metadata[order_id]": "12345",
				"metadata[user]":     "ada",
			},
		},
		{
			name: "array of objects",
			input: map[string]any{
				"lines": []any{
					map[string]any{"sku": "a", "qty": 2},
					map[string]any{"sku": "b", "qty": 1},
				},
			},
			expected: map[string]string{
				"lines[0][sku]": "a",
				"lines[0][qty]": "2",
				"lines[1][sku]": "b",
				"lines[1][qty]": "1",
			},
		},
		{
			name:     "floats, booleans and null",
			input:    map[string]any{"rate": 0.15, "enabled": true, "note": nil},
			expected: map[string]string{"rate": "0.15", "enabled": "true", "note": ""},
		},
		{
			name:     "empty map",
			input:    map[string]any{},
			expected: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, flattenToFormData(tt.input, ""))
		})
	}
}
