package cmd

import (
	"fmt"
	"math/rand/v2"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/smazurov/logwire/internal/logconfig"
	"github.com/smazurov/logwire/internal/logging"
)

var fortunes = []string{
	"You will find a new debugging insight today.",
	"A well-configured logger saves hours of tracing.",
	"Breakpoints cannot rival pristine log output.",
	"Logging clarity brings production serenity.",
	"Refactor fearlessly; the logs have your back.",
	"Verbose logs reveal the quietest bugs.",
	"Tracebacks tremble before tidy trace logs.",
	"A patient logger tells the story your tests forgot.",
	"Stack traces shine when log levels align.",
	"Tomorrow's outage is foiled by today's log review.",
	"May your log files roll gently and your metrics sing.",
}

// pickFortune is replaced in tests.
var pickFortune = func() string {
	return fortunes[rand.IntN(len(fortunes))]
}

// CreateTestCmd creates the test command.
func CreateTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test [files...]",
		Short: "Apply configurations and log a fortune at every level",
		Long: `Applies each configuration in turn, logs one random fortune per level through it, ` +
			`then removes its sinks and restores the built-in levels. Reads standard input when no files are given.`,
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

			state := logging.NewState()
			loader := newCLILoader(state)
			for _, src := range sources {
				if err := exercise(cmd, loader, src, format, len(sources)); err != nil {
					return fmt.Errorf("%s: %w", src.name, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringP("format", "f", "", "Input format (toml, yaml, json, json5), detected when empty")
	return cmd
}

func exercise(cmd *cobra.Command, loader *logconfig.Loader, src *source, format logconfig.Format, total int) error {
	cfg, err := loader.ParseBytes(src.data, logconfig.DetectFormat(src.path, format))
	if err != nil {
		return err
	}
	state := loader.State()
	defer func() {
		state.RemoveAll()
		state.ResetLevels()
	}()

	out := cmd.OutOrStdout()
	printHeading(out, total, src.name)
	res, err := loader.Apply(src.name, cfg)
	if err != nil {
		return err
	}
	success.Fprintf(out, "Configured logger with %d sinks from %s.\n", len(res.SinkIDs), src.name)

	fmt.Fprintln(out, "Fortune Log Messages")
	table := tablewriter.NewWriter(out)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Level", "Message"})
	for _, level := range levelNames(cfg) {
		msg := pickFortune()
		table.Append([]string{level, msg})
		if err := state.Log(cmd.Context(), level, "logwire.test", msg); err != nil {
			return err
		}
	}
	table.Render()
	return nil
}

// levelNames returns the levels a configuration defines, or the built-in
// levels when it defines none.
func levelNames(cfg *logconfig.Config) []string {
	var names []string
	for _, l := range cfg.Levels {
		names = append(names, l.Name)
	}
	if len(names) > 0 {
		return names
	}
	for _, l := range logging.DefaultLevels() {
		names = append(names, l.Name)
	}
	return names
}
