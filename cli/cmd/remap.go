package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/appsemble/apprunner/runtime/remapper"
)

var (
	remapNode   string
	remapInput  string
	remapLocale string
	remapList   bool
)

var remapCmd = &cobra.Command{
	Use:   "remap",
	Short: "Evaluate a remapper against an input value",
	Long: `Remap compiles a remapper and prints the result of applying it to the
input as JSON. Both may be given inline as YAML/JSON or as @file.

Example:
  apprunner remap --remapper '{prop: name}' --input '{name: Ada}'
  apprunner remap --remapper @remapper.yaml --input @data.json --locale nl
  apprunner remap --operators
`,
	Args: cobra.NoArgs,
	RunE: runRemap,
}

func init() {
	remapCmd.Flags().StringVarP(&remapNode, "remapper", "r", "", "Remapper definition, inline or @file")
	remapCmd.Flags().StringVarP(&remapInput, "input", "i", "", "Input value, inline or @file")
	remapCmd.Flags().StringVar(&remapLocale, "locale", "", "BCP 47 locale used for formatting")
	remapCmd.Flags().BoolVar(&remapList, "operators", false, "List the available remapper operators and exit")
}

func runRemap(cmd *cobra.Command, args []string) error {
	if remapList {
		for _, name := range remapper.Operators() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	}

	node, err := parseValue(remapNode)
	if err != nil {
		return err
	}
	input, err := parseValue(remapInput)
	if err != nil {
		return err
	}

	result, err := remapper.Evaluate(node, input, &remapper.Context{Locale: remapLocale})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}
