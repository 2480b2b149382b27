package actions

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/appsemble/apprunner/runtime/remapper"
)

var validate = validator.New()

// decodeFields fills target from raw definition fields: defaults first, then
// the raw values, then validation. Remapper-typed fields (interface targets)
// keep their ordered object form; struct and map targets get maps.
func decodeFields(raw map[string]any, target any) error {
	if err := defaults.Set(target); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	if len(raw) > 0 {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:  target,
			TagName: "yaml",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				objectToMapHook,
				millisecondsHook,
				mapstructure.StringToTimeDurationHookFunc(),
			),
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return fmt.Errorf("failed to create decoder: %w", err)
		}
		if err := decoder.Decode(raw); err != nil {
			return err
		}
	}

	if err := validate.Struct(target); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var msgs []string
			for _, fieldErr := range validationErrors {
				msgs = append(msgs, fmt.Sprintf("field '%s' failed validation (rule: %s)", fieldErr.Field(), fieldErr.Tag()))
			}
			return fmt.Errorf("%s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

func objectToMapHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	obj, ok := data.(*remapper.Object)
	if !ok {
		return data, nil
	}
	if to.Kind() == reflect.Interface {
		return data, nil
	}
	// Shallow, so nested remapper fields keep their key order.
	m := make(map[string]any, obj.Len())
	for _, k := range obj.Keys() {
		m[k], _ = obj.Get(k)
	}
	return m, nil
}

// millisecondsHook reads plain numbers as milliseconds when the target is a
// time.Duration.
func millisecondsHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Int, reflect.Int64, reflect.Float64:
		ms := reflect.ValueOf(data).Convert(reflect.TypeOf(float64(0))).Float()
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	return data, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
