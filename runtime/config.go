package runtime

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	registerCustomValidators()
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Addr     string `yaml:"addr" default:":8080" validate:"required"`
	AppsDir  string `yaml:"appsDir" default:"apps" validate:"required"`
	APIURL   string `yaml:"apiUrl" validate:"omitempty,url_format"`
	Locale   string `yaml:"locale" default:"en"`
	LogLevel string `yaml:"logLevel" default:"info" validate:"oneof=debug info warn error"`
	GinMode  string `yaml:"ginMode" default:"release" validate:"oneof=debug release test"`

	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Plugins holds the raw configuration of every enabled plugin, keyed by
	// plugin name. Values may reference environment variables.
	Plugins map[string]map[string]any `yaml:"plugins"`
}

// LoadServerConfig reads a YAML config file. An empty path yields the
// defaults. Environment references are resolved before validation.
func LoadServerConfig(path string) (*ServerConfig, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("error unmarshalling config file: %w", err)
		}
	}

	resolved, err := ResolveEnv(raw)
	if err != nil {
		return nil, err
	}

	cfg := &ServerConfig{}
	if err := InitializeConfig(cfg, resolved.(map[string]any)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitializeConfig prepares a config struct: defaults from struct tags, then
// rawValues merged over them, then validation.
func InitializeConfig(config any, rawValues map[string]any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := ApplyDefaults(config); err != nil {
		slog.Error("Config: failed to apply defaults",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	if len(rawValues) > 0 {
		if err := mapToStructFromYAML(rawValues, config); err != nil {
			slog.Error("Config: failed to apply config values",
				"config_type", reflect.TypeOf(config).String(),
				"error", err)
			return fmt.Errorf("failed to apply config values: %w", err)
		}
	}

	configValue := reflect.ValueOf(config)
	if configValue.Kind() == reflect.Ptr {
		configValue = configValue.Elem()
	}

	if err := validateConfig(configValue.Interface()); err != nil {
		slog.Error("Config validation failed",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

func registerCustomValidators() {
	// hostname_port accepts "host:port" with a known numeric or named port.
	validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		host, port, err := net.SplitHostPort(fl.Field().String())
		if err != nil || host == "" || port == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		return err == nil && u.Scheme != "" && u.Host != ""
	})

	// dsn accepts URL style (postgres://...) and key/value or user@host/db
	// connection strings.
	validate.RegisterValidation("dsn", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if strings.Contains(s, "://") {
			_, err := url.Parse(s)
			return err == nil
		}
		if strings.Contains(s, "host=") {
			return true
		}
		return strings.Contains(s, "@") && strings.Contains(s, "/")
	})
}

func ApplyDefaults(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("failed to apply default values: %w", err)
	}

	return nil
}

func validateConfig(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validate.Struct(config); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, fieldErr := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"field '%s' failed validation: %s (rule: %s)",
					fieldErr.Namespace(),
					fieldErr.Error(),
					fieldErr.Tag(),
				))
			}
			return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errMessages, "\n  - "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

func RegisterCustomValidator(tag string, fn validator.Func) error {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("failed to register custom validator '%s': %w", tag, err)
	}
	return nil
}
