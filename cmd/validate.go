package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/smazurov/logwire/internal/logconfig"
	"github.com/smazurov/logwire/internal/logging"
)

// CreateValidateCmd creates the validate command.
func CreateValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [files...]",
		Short: "Validate logging configuration files",
		Long: `Parses, resolves and validates each file without applying it, then prints a summary. ` +
			`Reads standard input when no files are given.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formatFlag(cmd, "format")
			if err != nil {
				return err
			}
			sources, err := readSources(cmd, args)
			if err != nil {
				return err
			}

			loader := newCLILoader(logging.NewState())
			out := cmd.OutOrStdout()
			for _, src := range sources {
				cfg, err := loader.ParseBytes(src.data, logconfig.DetectFormat(src.path, format))
				if err != nil {
					return fmt.Errorf("%s: %w", src.name, err)
				}
				printHeading(out, len(sources), src.name)
				success.Fprintln(out, "Configuration is valid.")
				renderSummary(out, src.name, cfg.Summary())
			}
			return nil
		},
	}
	cmd.Flags().StringP("format", "f", "", "Input format (toml, yaml, json, json5), detected when empty")
	return cmd
}

func renderSummary(w io.Writer, name string, s logconfig.Summary) {
	fmt.Fprintln(w, "Configuration Summary")
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Field", "Value"})
	table.AppendBulk([][]string{
		{"Source", name},
		{"Sinks", strconv.Itoa(s.Sinks)},
		{"Levels", countList(s.Levels)},
		{"Extra keys", countList(s.ExtraKeys)},
		{"Patch", strconv.FormatBool(s.Patch)},
		{"Activation entries", strconv.Itoa(s.Activation)},
	})
	table.Render()
}

// countList renders "2 (A, B)" or "0".
func countList(items []string) string {
	if len(items) == 0 {
		return "0"
	}
	return fmt.Sprintf("%d (%s)", len(items), strings.Join(items, ", "))
}
