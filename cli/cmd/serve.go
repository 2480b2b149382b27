package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/appsemble/apprunner/runtime"
	"github.com/appsemble/apprunner/runtime/engine/yaml"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve [apps-dir]",
	Short: "Serve apps over HTTP",
	Long: `Serve loads every app in a directory and exposes mounting, action
dispatch, flow state and remapping over HTTP until interrupted.

Example:
  apprunner serve ./apps --addr :8080
  OTEL_EXPORTER_OTLP_ENDPOINT=localhost:4317 apprunner serve --config apprunner.yaml
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address; overrides the config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.AppsDir = args[0]
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	level, err := runtime.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	telemetry, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, level, os.Stdout)
	if err != nil {
		return err
	}
	logger := telemetry.Logger
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("Telemetry shutdown failed", "error", err)
		}
	}()

	container, err := newContainer(cfg)
	if err != nil {
		return err
	}
	if err := container.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		if err := container.Shutdown(context.Background()); err != nil {
			logger.Error("Plugin shutdown failed", "error", err)
		}
	}()

	apps, err := runtime.LoadApps(cfg.AppsDir, yaml.NewAppLoader(), container, logger)
	if err != nil {
		return err
	}
	for _, app := range apps {
		app.APIURL = cfg.APIURL
		if app.Definition.DefaultLocale == "" {
			app.Definition.DefaultLocale = cfg.Locale
		}
	}

	gin.SetMode(cfg.GinMode)
	g := gin.New()
	g.Use(gin.Recovery())

	server := runtime.NewServer(apps, logger)
	defer server.Close()
	server.Register(g)

	srv := &http.Server{Addr: cfg.Addr, Handler: g}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving apps", "addr", cfg.Addr, "apps", len(apps), "dir", cfg.AppsDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
