package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/appsemble/apprunner/runtime"
	"github.com/appsemble/apprunner/runtime/engine/yaml"
)

var validateCmd = &cobra.Command{
	Use:   "validate [apps-dir]",
	Short: "Check app definitions without running them",
	Long: `Validate loads every app definition in a directory and builds all of
its actions and remappers, reporting the first configuration error.

Example:
  apprunner validate ./apps
  apprunner validate ./apps --config apprunner.yaml
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.AppsDir
	if len(args) > 0 {
		dir = args[0]
	}

	container, err := newContainer(cfg)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, io.Discard)
	if err != nil {
		return err
	}

	apps, err := runtime.LoadApps(dir, yaml.NewAppLoader(), container, logger)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(apps))
	for id := range apps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := cmd.OutOrStdout()
	for _, id := range ids {
		fmt.Fprintf(out, "✓ %s (%d pages)\n", id, len(apps[id].PageNames()))
	}
	fmt.Fprintf(out, "%d app(s) valid\n", len(apps))
	return nil
}
