package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/Jeffail/gabs/v2"
	"github.com/spf13/cobra"

	"github.com/appsemble/apprunner/runtime"
	"github.com/appsemble/apprunner/runtime/engine/yaml"
)

var (
	dispatchData   string
	dispatchLocale string
	dispatchParams string
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <apps-dir> <app> <page> <action>",
	Short: "Mount a page and dispatch one of its actions",
	Long: `Dispatch loads the apps, mounts the page in a new session and runs the
named action with the given data. The result and any user-visible effects
(messages, navigation, downloads) are printed as JSON.

Example:
  apprunner dispatch ./apps tickets overview onLoad
  apprunner dispatch ./apps tickets create submit --data '{title: Broken lamp}'
`,
	Args: cobra.ExactArgs(4),
	RunE: runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVarP(&dispatchData, "data", "d", "", "Action input, inline YAML/JSON or @file")
	dispatchCmd.Flags().StringVar(&dispatchParams, "params", "", "Page parameters, inline YAML/JSON or @file")
	dispatchCmd.Flags().StringVar(&dispatchLocale, "locale", "", "Session locale")
}

func runDispatch(cmd *cobra.Command, args []string) (err error) {
	dir, appID, pageName, actionName := args[0], args[1], args[2], args[3]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	data, err := parseValue(dispatchData)
	if err != nil {
		return err
	}
	rawParams, err := parseValue(dispatchParams)
	if err != nil {
		return err
	}
	params, _ := toPlainMap(rawParams)

	container, err := newContainer(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := container.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		if shutdownErr := container.Shutdown(context.Background()); shutdownErr != nil {
			logger.Error("Plugin shutdown failed", "error", shutdownErr)
			if err == nil {
				err = fmt.Errorf("plugin shutdown: %w", shutdownErr)
			}
		}
	}()

	apps, err := runtime.LoadApps(dir, yaml.NewAppLoader(), container, logger)
	if err != nil {
		return err
	}
	app, ok := apps[appID]
	if !ok {
		return fmt.Errorf("%w: %s", runtime.ErrUnknownApp, appID)
	}
	app.APIURL = cfg.APIURL

	session := app.NewSession(dispatchLocale, nil)
	defer session.Close()
	m, err := app.Mount(session, pageName, params)
	if err != nil {
		return err
	}
	defer m.Close()

	exec := runtime.NewExecution(ctx)
	result, dispatchErr := m.Dispatch(exec, actionName, data)

	out := gabs.New()
	out.Set(exec.ID, "execution")
	out.Set(exec.Effects(), "effects")
	if dispatchErr != nil {
		out.Set(runtime.ToHostError(dispatchErr).ToMap(), "error")
	} else {
		out.Set(result, "result")
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.StringIndent("", "  "))
	return dispatchErr
}
