// Command xlvba embeds, inspects, and repairs VBA macro projects inside
// .xlsm/.xlam packages from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	xlvba "github.com/logicossoftware/go-xlvba"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "xlvba",
		Short:         "Embed, inspect, and repair VBA projects in spreadsheet packages",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newInspectCommand(),
		newEmbedCommand(),
		newImportCommand(),
		newUnquarantineCommand(),
	)
	return root
}

func newInspectCommand() *cobra.Command {
	var callback string
	cmd := &cobra.Command{
		Use:   "inspect <package>",
		Short: "Report macro-related facts about a package as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := xlvba.Inspect(args[0], xlvba.WithCallback(callback))
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&callback, "callback", xlvba.DefaultCallback, "callback symbol to probe for")
	return cmd
}

func newEmbedCommand() *cobra.Command {
	var (
		donor     string
		project   string
		callback  string
		overwrite bool
		noRibbon  bool
	)
	cmd := &cobra.Command{
		Use:   "embed <package>",
		Short: "Embed a VBA project binary and repair the registration metadata",
		Long: `Embed a VBA project binary into a .xlsm/.xlam package and repair its
registration metadata (content types, relationships, code names).

With --donor the project is copied whole from an existing macro-enabled
package. With --project the given vbaProject.bin file is used when the
target has none. With neither, an existing project part is kept and only
the metadata is repaired.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []xlvba.Option{
				xlvba.WithCallback(callback),
				xlvba.WithOverwrite(overwrite),
				xlvba.WithRibbon(!noRibbon),
			}
			if donor != "" {
				opts = append(opts, xlvba.WithDonor(donor))
			}
			if project != "" {
				opts = append(opts, xlvba.WithDefaultProject(func() ([]byte, error) {
					return os.ReadFile(project)
				}))
			}
			if err := xlvba.Embed(args[0], opts...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "embedded VBA project into %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&donor, "donor", "", "macro-enabled package to copy the project binary from")
	cmd.Flags().StringVar(&project, "project", "", "vbaProject.bin file to inject when the target has none")
	cmd.Flags().StringVar(&callback, "callback", xlvba.DefaultCallback, "callback symbol the project must define")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing project part")
	cmd.Flags().BoolVar(&noRibbon, "no-ribbon", false, "do not synthesize a ribbon button")
	return cmd
}

func newImportCommand() *cobra.Command {
	var (
		callback  string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "import <package> <module.bas>",
		Short: "Import module source through the host application (windows/darwin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := xlvba.EmbedModule(args[0], args[1],
				xlvba.WithCallback(callback),
				xlvba.WithOverwrite(overwrite))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s into %s\n", args[1], args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&callback, "callback", xlvba.DefaultCallback, "callback symbol guarding idempotence")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "fail instead of skipping when the symbol already exists")
	return cmd
}

func newUnquarantineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unquarantine <package>",
		Short: "Clear the download-quarantine marker (darwin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, ok := xlvba.QuarantineValue(args[0]); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "quarantine: %s\n", v)
			}
			if xlvba.ClearQuarantine(args[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), "quarantine cleared")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "no quarantine marker to clear")
			}
			return nil
		},
	}
}
