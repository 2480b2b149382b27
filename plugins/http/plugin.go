// Package http provides the Requester behind the request, email and notify
// actions, backed by resty.
package http

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/appsemble/apprunner/runtime/plugin"
)

const formContentType = "application/x-www-form-urlencoded"

type Config struct {
	Timeout     time.Duration     `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int               `yaml:"maxRetries" default:"0" validate:"gte=0,lte=10"`
	RetryWaitMS int               `yaml:"retryWaitMs" default:"100" validate:"gte=0,lte=10000"`
	BaseURL     string            `yaml:"baseUrl" validate:"omitempty,url"`
	Headers     map[string]string `yaml:"headers"`
	Debug       bool              `yaml:"debug"`
}

// HTTPPlugin sends action requests over HTTP.
type HTTPPlugin struct {
	Config Config
	client *resty.Client
}

var _ plugin.Requester = (*HTTPPlugin)(nil)

// Initialize creates the client from the prepared Config.
func (h *HTTPPlugin) Initialize(ctx context.Context) error {
	h.client = resty.New().
		SetTimeout(h.Config.Timeout).
		SetRetryCount(h.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(h.Config.RetryWaitMS) * time.Millisecond).
		SetHeaders(h.Config.Headers).
		SetDebug(h.Config.Debug)
	if h.Config.BaseURL != "" {
		h.client.SetBaseURL(h.Config.BaseURL)
	}
	return nil
}

func (h *HTTPPlugin) Shutdown(ctx context.Context) error {
	h.client = nil
	return nil
}

// Do sends req. Error statuses are returned as responses; only transport
// failures are errors.
func (h *HTTPPlugin) Do(ctx context.Context, req plugin.Request) (*plugin.Response, error) {
	if h.client == nil {
		return nil, plugin.NotInitialized("http")
	}

	r := h.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers).
		SetQueryParams(req.Query)

	if req.Body != nil {
		if isForm(req.Headers) {
			if m, ok := plugin.Plain(req.Body).(map[string]any); ok {
				r.SetFormData(flattenToFormData(m, ""))
			} else {
				r.SetBody(fmt.Sprint(req.Body))
			}
		} else {
			r.SetBody(req.Body)
		}
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, plugin.NewError(fmt.Errorf("HTTP request failed: %w", err)).
			WithType(plugin.ErrorTypeTransient).
			WithRetryHint(true)
	}

	headers := make(map[string]string, len(resp.Header()))
	for key := range resp.Header() {
		headers[key] = resp.Header().Get(key)
	}

	return &plugin.Response{
		Status:  resp.StatusCode(),
		Headers: headers,
		Body:    decodeBody(resp.Header().Get("Content-Type"), resp.Body()),
	}, nil
}

func isForm(headers map[string]string) bool {
	for key, value := range headers {
		if strings.EqualFold(key, "Content-Type") {
			return strings.HasPrefix(strings.ToLower(value), formContentType)
		}
	}
	return false
}

// decodeBody keeps JSON key order. Anything that is not JSON is returned as
// text; an empty body is nil.
func decodeBody(contentType string, body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") {
		if v, err := plugin.DecodeJSON(body); err == nil {
			return v
		}
	}
	return string(body)
}

// flattenToFormData flattens nested maps and arrays into bracketed form keys:
// {"a": {"b": 1}, "c": [2]} becomes a[b]=1, c[0]=2.
func flattenToFormData(data map[string]any, prefix string) map[string]string {
	out := make(map[string]string)

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "[" + k + "]"
		}
		flattenValue(out, key, data[k])
	}
	return out
}

func flattenValue(out map[string]string, key string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for fk, fv := range flattenToFormData(v, key) {
			out[fk] = fv
		}
	case []any:
		for i, item := range v {
			flattenValue(out, key+"["+strconv.Itoa(i)+"]", item)
		}
	case nil:
		out[key] = ""
	case float64:
		out[key] = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		out[key] = fmt.Sprint(v)
	}
}
