package actions

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/appsemble/apprunner/runtime/remapper"
)

// RetryConfig re-dispatches a failing action before its onError branch is
// considered. Delays are in milliseconds.
type RetryConfig struct {
	MaxAttempts  int      `yaml:"maxAttempts" default:"3" validate:"min=1,max=20"`
	Delay        int      `yaml:"delay" default:"100" validate:"min=0"`
	Backoff      string   `yaml:"backoff" default:"none" validate:"oneof=none linear exponential"`
	MaxDelay     int      `yaml:"maxDelay" validate:"min=0"`
	NonRetryable []string `yaml:"nonRetryable"`
}

// Definition is a parsed action definition. It is not modified after parsing.
type Definition struct {
	Type        Type
	Fields      map[string]any
	RemapBefore remapper.Node
	RemapAfter  remapper.Node
	OnSuccess   *Definition
	OnError     *Definition
	Retry       *RetryConfig
}

// ParseDefinition reads a definition from its decoded form, usually an
// ordered *remapper.Object produced by the YAML or JSON decoders. A nil node
// yields a nil definition.
func ParseDefinition(node any) (*Definition, error) {
	return parseDefinition(node, "")
}

func parseDefinition(node any, path string) (*Definition, error) {
	if node == nil {
		return nil, nil
	}
	obj, ok := remapper.AsObject(node)
	if !ok {
		return nil, &ConfigError{Path: path, Message: fmt.Sprintf("expected an object, got %T", node)}
	}

	rawType, _ := obj.Get("type")
	t, ok := rawType.(string)
	if !ok || t == "" {
		return nil, &ConfigError{Path: path, Message: "missing action type"}
	}

	def := &Definition{Type: Type(t), Fields: make(map[string]any)}
	for _, key := range obj.Keys() {
		value, _ := obj.Get(key)
		switch key {
		case "type":
		case "remapBefore", "remap":
			def.RemapBefore = value
		case "remapAfter":
			def.RemapAfter = value
		case "onSuccess":
			sub, err := parseDefinition(value, joinPath(path, "onSuccess"))
			if err != nil {
				return nil, err
			}
			def.OnSuccess = sub
		case "onError":
			sub, err := parseDefinition(value, joinPath(path, "onError"))
			if err != nil {
				return nil, err
			}
			def.OnError = sub
		case "retry":
			retry := &RetryConfig{}
			raw, _ := remapper.Plain(value).(map[string]any)
			if value != nil && raw == nil {
				return nil, &ConfigError{Type: t, Path: joinPath(path, "retry"), Message: "expected an object"}
			}
			if err := decodeFields(raw, retry); err != nil {
				return nil, &ConfigError{Type: t, Path: joinPath(path, "retry"), Err: err}
			}
			def.Retry = retry
		default:
			def.Fields[key] = value
		}
	}
	return def, nil
}

func (d *Definition) UnmarshalYAML(value *yaml.Node) error {
	node, err := remapper.FromYAML(value)
	if err != nil {
		return err
	}
	parsed, err := ParseDefinition(node)
	if err != nil {
		return err
	}
	if parsed == nil {
		return &ConfigError{Message: "empty action definition"}
	}
	*d = *parsed
	return nil
}

func (d *Definition) UnmarshalJSON(data []byte) error {
	node, err := remapper.DecodeJSON(data)
	if err != nil {
		return err
	}
	parsed, err := ParseDefinition(node)
	if err != nil {
		return err
	}
	if parsed == nil {
		return &ConfigError{Message: "empty action definition"}
	}
	*d = *parsed
	return nil
}

// Node converts the definition back into its ordered object form.
func (d *Definition) Node() *remapper.Object {
	obj := remapper.NewObject().Set("type", string(d.Type))
	for _, k := range sortedKeys(d.Fields) {
		obj.Set(k, d.Fields[k])
	}
	if d.RemapBefore != nil {
		obj.Set("remapBefore", d.RemapBefore)
	}
	if d.RemapAfter != nil {
		obj.Set("remapAfter", d.RemapAfter)
	}
	if d.OnSuccess != nil {
		obj.Set("onSuccess", d.OnSuccess.Node())
	}
	if d.OnError != nil {
		obj.Set("onError", d.OnError.Node())
	}
	if d.Retry != nil {
		obj.Set("retry", map[string]any{
			"maxAttempts": d.Retry.MaxAttempts,
			"delay":       d.Retry.Delay,
			"backoff":     d.Retry.Backoff,
			"maxDelay":    d.Retry.MaxDelay,
		})
	}
	return obj
}

func (d *Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Node())
}

func joinPath(path, segment string) string {
	if path == "" {
		return segment
	}
	return path + "." + segment
}
