package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/smazurov/logwire/internal/logconfig"
)

const minimalJSON = `{"handlers": [{"sink": "ext://io.discard", "format": "{level} - {message}"}]}`

func run(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func fixedFortune(t *testing.T) {
	t.Helper()
	prev := pickFortune
	pickFortune = func() string { return fortunes[0] }
	t.Cleanup(func() { pickFortune = prev })
}

func TestAboutDescribesTool(t *testing.T) {
	out, err := run(t, CreateAboutCmd(), "")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"logwire", "Utilities for validating", "convert"} {
		if !strings.Contains(out, want) {
			t.Errorf("about output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateReadsStdin(t *testing.T) {
	out, err := run(t, CreateValidateCmd(), minimalJSON)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Configuration is valid.", "stdin", "Sinks", "Activation entries"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "one.json", minimalJSON)
	second := writeFile(t, dir, "two.yaml", "sinks:\n  - target: memory\nextra:\n  user: ext://my_module.secret.ENABLED\n")

	out, err := run(t, CreateValidateCmd(), "", first, second)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out, "Configuration is valid."); n != 2 {
		t.Errorf("valid count = %d, want 2:\n%s", n, out)
	}
	if !strings.Contains(out, "── "+second+" ──") || !strings.Contains(out, "1 (user)") {
		t.Errorf("missing heading or extra keys:\n%s", out)
	}
}

func TestValidateReportsPath(t *testing.T) {
	_, err := run(t, CreateValidateCmd(), `{"sinks": [{"target": "memory", "level": "LOUD"}]}`)
	if err == nil || !strings.Contains(err.Error(), "sinks[0].level") {
		t.Errorf("error = %v, want a sinks[0].level failure", err)
	}
}

func TestCommandsRejectMissingInput(t *testing.T) {
	tests := []struct {
		name string
		cmd  *cobra.Command
		args []string
	}{
		{"validate", CreateValidateCmd(), nil},
		{"test", CreateTestCmd(), nil},
		{"convert", CreateConvertCmd(), []string{"--output-format", "json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.cmd, "  \n", tt.args...)
			if err == nil || !strings.Contains(err.Error(), "no configuration data") {
				t.Errorf("error = %v, want missing input", err)
			}
		})
	}
}

func TestTestCommandReadsStdin(t *testing.T) {
	fixedFortune(t)
	out, err := run(t, CreateTestCmd(), minimalJSON)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Configured logger with 1 sinks from stdin.", "Fortune Log Messages", fortunes[0], "TRACE", "CRITICAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTestCommandCustomLevelsPerFile(t *testing.T) {
	fixedFortune(t)
	doc := `{"handlers": [{"sink": "ext://io.discard", "level": "NOTICE"}], "levels": [{"name": "NOTICE", "no": 15, "icon": "!", "color": ""}]}`
	dir := t.TempDir()
	first := writeFile(t, dir, "first.json", doc)
	second := writeFile(t, dir, "second.json", doc)

	out, err := run(t, CreateTestCmd(), "", first, second)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out, "Configured logger"); n != 2 {
		t.Errorf("configured count = %d, want 2:\n%s", n, out)
	}
	if !strings.Contains(out, "NOTICE") || strings.Contains(out, "CRITICAL") {
		t.Errorf("want only the document's levels:\n%s", out)
	}
}

func TestTestCommandResolvesExampleModules(t *testing.T) {
	fixedFortune(t)
	doc := "sinks:\n  - target: ext://io.discard\nextra:\n  client: ext://api.client.NAME\n"
	if _, err := run(t, CreateTestCmd(), doc); err != nil {
		t.Fatal(err)
	}
}

func TestConvertDefaultsToStdio(t *testing.T) {
	yamlDoc := "handlers:\n  - sink: ext://sys.stdout\n    format: \"{level} - {message}\"\n"
	out, err := run(t, CreateConvertCmd(), yamlDoc, "--output-format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var data struct {
		Handlers []map[string]string `json:"handlers"`
	}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(data.Handlers) != 1 || data.Handlers[0]["sink"] != "ext://sys.stdout" {
		t.Errorf("handlers = %+v", data.Handlers)
	}
}

func TestConvertKeepsInputFormatByDefault(t *testing.T) {
	out, err := run(t, CreateConvertCmd(), `{"sinks": [{"target": "memory"}]}`, "--indent", "4")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "\n    \"sinks\"") {
		t.Errorf("want 4-space JSON:\n%s", out)
	}
}

func TestConvertPairs(t *testing.T) {
	dir := t.TempDir()
	in1 := writeFile(t, dir, "a.yaml", "sinks:\n  - target: memory\n    level: DEBUG\n")
	in2 := writeFile(t, dir, "b.json", `{"extra": {"app": "x"}}`)
	out1 := filepath.Join(dir, "a.toml")
	out2 := filepath.Join(dir, "b.yml")

	out, err := run(t, CreateConvertCmd(), "", in1, out1, in2, out2)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Converted YAML configuration to TOML at "+out1) {
		t.Errorf("output:\n%s", out)
	}

	for path, format := range map[string]logconfig.Format{out1: logconfig.FormatTOML, out2: logconfig.FormatYAML} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := logconfig.ParseDocument(data, format); err != nil {
			t.Errorf("%s does not parse as %s: %v\n%s", path, format, err, data)
		}
	}
}

func TestConvertErrors(t *testing.T) {
	dir := t.TempDir()
	valid := writeFile(t, dir, "ok.json", minimalJSON)

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{"odd paths", "", []string{valid, filepath.Join(dir, "x.json"), valid}, "input/output pairs"},
		{"bad output format", minimalJSON, []string{"--output-format", "ini"}, "unsupported format"},
		{"invalid document", `{"sinks": [{"target": "memory", "mode": "x"}]}`, nil, "sinks[0]"},
		{"unparseable", "{{{", []string{"--input-format", "json"}, "FormatError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, CreateConvertCmd(), tt.stdin, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	got, err := conversions([]string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != (conversion{"a", "b"}) || got[1] != (conversion{"c", "d"}) {
		t.Errorf("conversions = %+v", got)
	}
	if got, _ := conversions(nil); len(got) != 1 || got[0] != (conversion{}) {
		t.Errorf("no paths = %+v", got)
	}
}
