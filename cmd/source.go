package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/smazurov/logwire/internal/logconfig"
	"github.com/smazurov/logwire/internal/logging"
)

const stdinName = "stdin"

var (
	success = color.New(color.FgGreen)
	heading = color.New(color.FgBlue, color.Bold)
)

// source is one configuration document given on the command line.
type source struct {
	name string // path, or "stdin"
	path string // empty for stdin
	data []byte
}

// readSource reads path, or standard input when path is empty or "-".
func readSource(cmd *cobra.Command, path string) (*source, error) {
	if path == "" || path == "-" {
		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Reading configuration from standard input, end with Ctrl-D")
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("read standard input: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil, errors.New("no configuration data received from standard input")
		}
		return &source{name: stdinName, data: data}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &source{name: path, path: path, data: data}, nil
}

// readSources reads every path, or standard input when there are none.
func readSources(cmd *cobra.Command, paths []string) ([]*source, error) {
	if len(paths) == 0 {
		paths = []string{""}
	}
	sources := make([]*source, 0, len(paths))
	for _, p := range paths {
		src, err := readSource(cmd, p)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// newCLILoader builds a loader whose registry also carries the example
// modules, so documents written against them resolve from the command line.
func newCLILoader(state *logging.State) *logconfig.Loader {
	reg := logconfig.DefaultRegistry()
	logconfig.RegisterExampleModules(reg)
	return logconfig.NewLoader(state,
		logconfig.WithRegistry(reg),
		logconfig.WithLogger(logging.GetLogger("cli")),
	)
}

// formatFlag parses the value of a --format style flag.
func formatFlag(cmd *cobra.Command, name string) (logconfig.Format, error) {
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return logconfig.FormatAuto, err
	}
	format, err := logconfig.ParseFormat(value)
	if err != nil {
		return logconfig.FormatAuto, fmt.Errorf("--%s: %w", name, err)
	}
	return format, nil
}

// printHeading separates the output of several sources.
func printHeading(w io.Writer, total int, title string) {
	if total > 1 {
		heading.Fprintf(w, "── %s ──\n", title)
	}
}
