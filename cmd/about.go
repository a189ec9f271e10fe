package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/logwire/internal/version"
)

const aboutText = `Utilities for validating, converting and exercising logging configuration files.

  validate  check that a configuration parses, resolves and validates
  test      apply a configuration and log a fortune at every level
  convert   rewrite a configuration in another format

Run without a subcommand to start the daemon that applies the configured
logging document, reloads it on change and serves the HTTP API.`

// CreateAboutCmd creates the about command.
func CreateAboutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "about",
		Short: "Describe the logwire command line",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			heading.Fprintln(out, version.Get().Summary())
			fmt.Fprintln(out, aboutText)
		},
	}
}
