package logconfig

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/smazurov/logwire/internal/logging"
)

func validateYAML(t *testing.T, src string, opts ValidateOptions) (*Config, error) {
	t.Helper()
	doc, err := ParseDocument([]byte(src), FormatYAML)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	return Validate(doc, opts)
}

func TestValidateSinkDefaults(t *testing.T) {
	cfg, err := validateYAML(t, "sinks:\n  - target: stdout\n", ValidateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.HasSinks || len(cfg.Sinks) != 1 {
		t.Fatalf("sinks = %d (present %v), want 1", len(cfg.Sinks), cfg.HasSinks)
	}
	s := cfg.Sinks[0]
	if s.Target != "stdout" {
		t.Errorf("target = %v", s.Target)
	}
	if s.Level.Name != "INFO" || s.Level.No != 20 {
		t.Errorf("level = %+v, want INFO/20", s.Level)
	}
	if s.Mode != "a" || s.Colorize || s.Serialize || s.Enqueue || s.Format != "" {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if cfg.HasLevels || cfg.HasExtra || cfg.HasPatch || cfg.HasActivation {
		t.Error("absent sections reported as present")
	}
}

func TestValidateMemoryBufferDefault(t *testing.T) {
	cfg, err := validateYAML(t, "sinks:\n  - target: memory\n  - target: memory\n    buffer_size: 50\n", ValidateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Sinks[0].BufferSize; got != 1000 {
		t.Errorf("default buffer_size = %d, want 1000", got)
	}
	if got := cfg.Sinks[1].BufferSize; got != 50 {
		t.Errorf("buffer_size = %d, want 50", got)
	}
}

func TestValidateUnknownKeys(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantPath string
	}{
		{"top level", "foo: 1\nsinks: []\n", "foo"},
		{"sink", "sinks:\n  - target: stdout\n    colour: true\n", "sinks[0].colour"},
		{"level entry", "levels:\n  AUDIT: {no: 35, glyph: x}\n", "levels.AUDIT.glyph"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateYAML(t, tt.src, ValidateOptions{})
			var cfgErr *Error
			if !errors.As(err, &cfgErr) || cfgErr.Kind != ValidationError {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if got := cfgErr.Path.String(); got != tt.wantPath {
				t.Errorf("path = %q, want %q", got, tt.wantPath)
			}
		})
	}

	cfg, err := validateYAML(t, "foo: 1\nsinks:\n  - target: stdout\n    colour: true\n", ValidateOptions{Lenient: true})
	if err != nil {
		t.Fatalf("lenient validation failed: %v", err)
	}
	if len(cfg.Sinks) != 1 {
		t.Errorf("lenient sinks = %d, want 1", len(cfg.Sinks))
	}
}

func TestValidateAliases(t *testing.T) {
	cfg, err := validateYAML(t, "handlers:\n  - sink: stderr\n    level: debug\n", ValidateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Target != "stderr" || cfg.Sinks[0].Level.Name != "DEBUG" {
		t.Errorf("handlers alias not honoured: %+v", cfg.Sinks)
	}

	tests := []struct {
		name     string
		src      string
		wantPath string
	}{
		{"sinks and handlers", "sinks: []\nhandlers: []\n", "handlers"},
		{"target and sink", "sinks:\n  - target: stdout\n    sink: stderr\n", "sinks[0].sink"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateYAML(t, tt.src, ValidateOptions{})
			var cfgErr *Error
			if !errors.As(err, &cfgErr) || cfgErr.Kind != ValidationError {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if got := cfgErr.Path.String(); got != tt.wantPath {
				t.Errorf("path = %q, want %q", got, tt.wantPath)
			}
		})
	}
}

func TestValidateLevelForms(t *testing.T) {
	want := []logging.Level{
		{Name: "AUDIT", No: 35},
		{Name: "NOTICE", No: 22, Color: "<blue>", Icon: "!"},
	}
	tests := []struct {
		name string
		src  string
	}{
		{"scalar and table", "levels:\n  AUDIT: 35\n  NOTICE: {no: 22, color: <blue>, icon: '!'}\n"},
		{"list", "levels:\n  - {name: AUDIT, no: 35}\n  - {name: NOTICE, no: 22, color: <blue>, icon: '!'}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := validateYAML(t, tt.src, ValidateOptions{})
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(want, cfg.Levels); diff != "" {
				t.Errorf("levels mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateCustomLevelUsableBySink(t *testing.T) {
	cfg, err := validateYAML(t, "levels:\n  AUDIT: 35\nsinks:\n  - target: stdout\n    level: audit\n", ValidateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Sinks[0].Level; got.Name != "AUDIT" || got.No != 35 {
		t.Errorf("sink level = %+v, want AUDIT/35", got)
	}

	cfg, err = validateYAML(t, "sinks:\n  - target: stdout\n    level: 15\n", ValidateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Sinks[0].Level.No; got != 15 {
		t.Errorf("numeric sink level = %d, want 15", got)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantPath string
		wantMsg  string
	}{
		{"sinks not a list", "sinks: stdout\n", "sinks", "sequence"},
		{"sink not a mapping", "sinks:\n  - stdout\n", "sinks[0]", "mapping"},
		{"missing target", "sinks:\n  - level: INFO\n", "sinks[0].target", "required"},
		{"empty target", "sinks:\n  - target: ''\n", "sinks[0].target", "empty"},
		{"unknown level", "sinks:\n  - target: stdout\n    level: LOUD\n", "sinks[0].level", "does not exist"},
		{"negative level", "sinks:\n  - target: stdout\n    level: -1\n", "sinks[0].level", "non-negative"},
		{"bad template", "sinks:\n  - target: stdout\n    format: '{nope}'\n", "sinks[0].format", "invalid format"},
		{"bad filter expression", "sinks:\n  - target: stdout\n    filter_expr: 'level.no >'\n", "sinks[0].filter_expr", "invalid filter expression"},
		{"filter expression not boolean", "sinks:\n  - target: stdout\n    filter_expr: 'message'\n", "sinks[0].filter_expr", "invalid filter expression"},
		{"bad CEL filter", "sinks:\n  - target: stdout\n    filter_cel: 'level.no >'\n", "sinks[0].filter_cel", "invalid CEL filter"},
		{"CEL filter not boolean", "sinks:\n  - target: stdout\n    filter_cel: 'message'\n", "sinks[0].filter_cel", "want bool"},
		{"CEL unknown variable", "sinks:\n  - target: stdout\n    filter_cel: 'severity > 3'\n", "sinks[0].filter_cel", "invalid CEL filter"},
		{"bad filter table level", "sinks:\n  - target: stdout\n    filter: {app: LOUD}\n", "sinks[0].filter", "LOUD"},
		{"time rotation", "sinks:\n  - target: app.log\n    rotation: daily\n", "sinks[0].rotation", "time-based"},
		{"clock rotation", "sinks:\n  - target: app.log\n    rotation: '12:00'\n", "sinks[0].rotation", "time-based"},
		{"rotation unit", "sinks:\n  - target: app.log\n    rotation: 10 parsecs\n", "sinks[0].rotation", "unknown size unit"},
		{"rotation on stream", "sinks:\n  - target: stdout\n    rotation: 10 MB\n", "sinks[0].rotation", "file targets"},
		{"retention unit", "sinks:\n  - target: app.log\n    retention: 3 fortnights\n", "sinks[0].retention", "unknown duration unit"},
		{"retention count", "sinks:\n  - target: app.log\n    retention: 0\n", "sinks[0].retention", "positive"},
		{"compression", "sinks:\n  - target: app.log\n    compression: zip\n", "sinks[0].compression", "oneof"},
		{"mode", "sinks:\n  - target: app.log\n    mode: x\n", "sinks[0].mode", "oneof"},
		{"buffer size on file", "sinks:\n  - target: app.log\n    buffer_size: 10\n", "sinks[0].buffer_size", "memory target"},
		{"negative severity", "levels:\n  AUDIT: -5\n", "levels.AUDIT", "non-negative"},
		{"redefined builtin", "levels:\n  INFO: 21\n", "levels.INFO", "cannot change"},
		{"level without no", "levels:\n  AUDIT: {color: <red>}\n", "levels.AUDIT.no", "required"},
		{"extra not mapping", "extra: [1, 2]\n", "extra", "mapping"},
		{"patch string", "patch: utc\n", "patch", "ext://"},
		{"activation not list", "activation: {a: true}\n", "activation", "pairs"},
		{"activation pair size", "activation:\n  - [a]\n", "activation[0]", "pair"},
		{"activation module", "activation:\n  - [1, true]\n", "activation[0][0]", "string"},
		{"activation flag", "activation:\n  - [a, yes please]\n", "activation[0][1]", "boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateYAML(t, tt.src, ValidateOptions{})
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			var cfgErr *Error
			errors.As(err, &cfgErr)
			if got := cfgErr.Path.String(); got != tt.wantPath {
				t.Errorf("path = %q, want %q", got, tt.wantPath)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidateFileOptions(t *testing.T) {
	cfg, err := validateYAML(t, `sinks:
  - target: logs/app.log
    rotation: 10 MB
    retention: 10 days
    compression: gz
    mode: w
  - target: logs/other.log
    rotation: 1 KiB
    retention: 3
`, ValidateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	a, b := cfg.Sinks[0], cfg.Sinks[1]
	if a.Rotation != 10_000_000 {
		t.Errorf("rotation = %d, want 10000000", a.Rotation)
	}
	if a.Retention.MaxAge != 240*time.Hour {
		t.Errorf("retention = %v, want 240h", a.Retention.MaxAge)
	}
	if a.Compression != "gz" || a.Mode != "w" {
		t.Errorf("compression/mode = %q/%q", a.Compression, a.Mode)
	}
	if b.Rotation != 1024 || b.Retention.Count != 3 || b.Mode != "a" {
		t.Errorf("second sink = %+v", b)
	}
}

func TestValidateFilters(t *testing.T) {
	cfg, err := validateYAML(t, `sinks:
  - target: stdout
    filter: app
  - target: stdout
    filter:
      app: WARNING
      app.db: DEBUG
      noisy: false
  - target: stdout
    filter_expr: 'level.no >= 30 && extra.user == "ann"'
  - target: stdout
    filter: app
    filter_cel: 'level.no >= 30 && message.startsWith("db")'
`, ValidateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	rec := func(name string, level logging.Level, extra map[string]any) *logging.Record {
		if extra == nil {
			extra = map[string]any{}
		}
		return &logging.Record{Name: name, Level: level, Extra: extra}
	}
	msg := func(r *logging.Record, m string) *logging.Record {
		r.Message = m
		return r
	}

	tests := []struct {
		name string
		sink int
		r    *logging.Record
		want bool
	}{
		{"prefix match", 0, rec("app.web", logging.LevelInfo, nil), true},
		{"prefix exact", 0, rec("app", logging.LevelInfo, nil), true},
		{"prefix sibling", 0, rec("apple", logging.LevelInfo, nil), false},
		{"table parent level", 1, rec("app.web", logging.LevelInfo, nil), false},
		{"table parent warning", 1, rec("app.web", logging.LevelWarning, nil), true},
		{"table longest wins", 1, rec("app.db.pool", logging.LevelDebug, nil), true},
		{"table disabled", 1, rec("noisy", logging.LevelCritical, nil), false},
		{"table unmatched", 1, rec("other", logging.LevelTrace, nil), true},
		{"expression match", 2, rec("x", logging.LevelError, map[string]any{"user": "ann"}), true},
		{"expression level", 2, rec("x", logging.LevelInfo, map[string]any{"user": "ann"}), false},
		{"expression missing extra", 2, rec("x", logging.LevelError, nil), false},
		{"cel match", 3, msg(rec("app.db", logging.LevelError, nil), "db down"), true},
		{"cel message", 3, msg(rec("app.db", logging.LevelError, nil), "cache down"), false},
		{"cel level", 3, msg(rec("app.db", logging.LevelInfo, nil), "db slow"), false},
		{"cel behind prefix", 3, msg(rec("other", logging.LevelError, nil), "db down"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := cfg.Sinks[tt.sink].Options().Filter
			if filter == nil {
				t.Fatal("filter is nil")
			}
			if got := filter(tt.r); got != tt.want {
				t.Errorf("filter(%s, %s) = %v, want %v", tt.r.Name, tt.r.Level.Name, got, tt.want)
			}
		})
	}
}

func TestValidateSectionsPresentButEmpty(t *testing.T) {
	cfg, err := validateYAML(t, "sinks: null\nextra: {}\nactivation: []\n", ValidateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.HasSinks || len(cfg.Sinks) != 0 {
		t.Errorf("null sinks: present %v, len %d", cfg.HasSinks, len(cfg.Sinks))
	}
	if !cfg.HasExtra || len(cfg.Extra) != 0 {
		t.Errorf("empty extra: present %v, %v", cfg.HasExtra, cfg.Extra)
	}
	if !cfg.HasActivation || len(cfg.Activation) != 0 {
		t.Errorf("empty activation: present %v, %v", cfg.HasActivation, cfg.Activation)
	}
}

func TestParseSizeAndDuration(t *testing.T) {
	sizes := map[string]int64{
		"100":    100,
		"500 B":  500,
		"1.5 KB": 1500,
		"10MB":   10_000_000,
		"2 MiB":  2 << 20,
		"1 gb":   1_000_000_000,
	}
	for in, want := range sizes {
		got, err := parseSize(in)
		if err != nil || got != want {
			t.Errorf("parseSize(%q) = %d, %v; want %d", in, got, err, want)
		}
	}

	durations := map[string]time.Duration{
		"90s":     90 * time.Second,
		"1h30m":   90 * time.Minute,
		"2 days":  48 * time.Hour,
		"1 week":  7 * 24 * time.Hour,
		"10 min":  10 * time.Minute,
		"0.5 day": 12 * time.Hour,
	}
	for in, want := range durations {
		got, err := parseDuration(in)
		if err != nil || got != want {
			t.Errorf("parseDuration(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}

func TestConfigSummary(t *testing.T) {
	cfg, err := validateYAML(t, "levels:\n  AUDIT: 35\nsinks:\n  - target: stdout\nextra:\n  z: 1\n  a: 2\nactivation:\n  - [app, false]\n", ValidateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := Summary{Sinks: 1, Levels: []string{"AUDIT"}, ExtraKeys: []string{"a", "z"}, Activation: 1}
	if diff := cmp.Diff(want, cfg.Summary()); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}
