package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/appsemble/apprunner/runtime"
	"github.com/appsemble/apprunner/runtime/remapper"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "apprunner",
	Short: "apprunner - app action runtime",
	Long: `apprunner loads app definitions, evaluates remappers and dispatches
page actions, either once from the command line or behind an HTTP host.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx available to subcommands.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the server and plugin config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")

	rootCmd.AddCommand(validateCmd, remapCmd, dispatchCmd, serveCmd)
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*runtime.ServerConfig, error) {
	cfg, err := runtime.LoadServerConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *runtime.ServerConfig, w io.Writer) (*slog.Logger, error) {
	level, err := runtime.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// parseValue reads a YAML or JSON value given inline or as @file. An empty
// string is nil.
func parseValue(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	data := []byte(s)
	if strings.HasPrefix(s, "@") {
		var err error
		data, err = os.ReadFile(strings.TrimPrefix(s, "@"))
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", s, err)
		}
	}
	return remapper.DecodeYAML(data)
}

func toPlainMap(v any) (map[string]any, bool) {
	m, ok := remapper.Plain(v).(map[string]any)
	return m, ok
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
