package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smazurov/logwire/internal/logconfig"
	"github.com/smazurov/logwire/internal/logging"
)

type conversion struct {
	input  string // empty or "-" for stdin
	output string // empty or "-" for stdout
}

// conversions pairs up paths: none means stdin to stdout, one means that
// file to stdout, otherwise input/output pairs.
func conversions(paths []string) ([]conversion, error) {
	switch {
	case len(paths) == 0:
		return []conversion{{}}, nil
	case len(paths) == 1:
		return []conversion{{input: paths[0]}}, nil
	case len(paths)%2 != 0:
		return nil, errors.New("provide input/output pairs when specifying multiple paths")
	}
	out := make([]conversion, 0, len(paths)/2)
	for i := 0; i < len(paths); i += 2 {
		out = append(out, conversion{input: paths[i], output: paths[i+1]})
	}
	return out, nil
}

// CreateConvertCmd creates the convert command.
func CreateConvertCmd() *cobra.Command {
	var indent int

	cmd := &cobra.Command{
		Use:   "convert [input [output]...]",
		Short: "Convert logging configurations between formats",
		Long: `Validates each input and rewrites it in another format. ` +
			`Reads standard input and writes standard output by default; several paths are taken as input/output pairs. ` +
			`The output format comes from --output-format, then the output extension, then the input format.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			inFormat, err := formatFlag(cmd, "input-format")
			if err != nil {
				return err
			}
			outFormat, err := formatFlag(cmd, "output-format")
			if err != nil {
				return err
			}
			pairs, err := conversions(args)
			if err != nil {
				return err
			}

			loader := newCLILoader(logging.NewState())
			for i, c := range pairs {
				if err := convertOne(cmd, loader, c, inFormat, outFormat, indent, i, len(pairs)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().String("input-format", "", "Input format (toml, yaml, json, json5), detected when empty")
	cmd.Flags().String("output-format", "", "Output format (toml, yaml, json, json5)")
	cmd.Flags().IntVar(&indent, "indent", 2, "Indentation for JSON, JSON5, YAML and TOML output")
	return cmd
}

func convertOne(cmd *cobra.Command, loader *logconfig.Loader, c conversion, inFormat, outFormat logconfig.Format, indent, index, total int) error {
	src, err := readSource(cmd, c.input)
	if err != nil {
		return err
	}
	doc, detected, err := logconfig.DecodeDocument(src.data, logconfig.DetectFormat(src.path, inFormat))
	if err != nil {
		return fmt.Errorf("%s: %w", src.name, err)
	}
	// Conversion works on the raw document, but only valid ones are converted.
	if _, err := loader.ParseDocument(doc); err != nil {
		return fmt.Errorf("%s: %w", src.name, err)
	}

	toStdout := c.output == "" || c.output == "-"
	target := outFormat
	if target == logconfig.FormatAuto && !toStdout {
		target = logconfig.DetectFormat(c.output, logconfig.FormatAuto)
	}
	if target == logconfig.FormatAuto {
		target = detected
	}

	rendered, err := logconfig.Encode(doc, target, indent)
	if err != nil {
		return fmt.Errorf("%s: %w", src.name, err)
	}

	out := cmd.OutOrStdout()
	printHeading(out, total, fmt.Sprintf("Conversion %d", index+1))
	if toStdout {
		_, err = out.Write(rendered)
		return err
	}
	if err := os.WriteFile(c.output, rendered, 0o644); err != nil {
		return err
	}
	success.Fprintf(out, "Converted %s configuration to %s at %s.\n",
		strings.ToUpper(string(detected)), strings.ToUpper(string(target)), c.output)
	return nil
}
