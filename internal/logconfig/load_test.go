package logconfig

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/smazurov/logwire/internal/logging"
)

type collector struct {
	mu    sync.Mutex
	texts []string
}

func (c *collector) sink(m logging.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, m.Text)
}

func (c *collector) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type recordingObserver struct {
	applied []string
	failed  []error
}

func (o *recordingObserver) Applied(source string, _ *Result) { o.applied = append(o.applied, source) }
func (o *recordingObserver) Failed(_ string, err error)       { o.failed = append(o.failed, err) }

func newTestLoader(t *testing.T, opts ...Option) (*Loader, *collector) {
	t.Helper()
	c := &collector{}
	reg := DefaultRegistry()
	RegisterExampleModules(reg)
	reg.Set("testing.sinks", Module{"collect": logging.SinkFunc(c.sink)})
	base := []Option{
		WithRegistry(reg),
		WithEnv(envOf(map[string]string{"APP_LEVEL": "WARNING"})),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewLoader(logging.NewState(), append(base, opts...)...), c
}

func TestLoadScenarioStdoutSink(t *testing.T) {
	l, _ := newTestLoader(t)
	res, err := l.LoadString(`{"sinks": [{"target": "stdout", "level": "INFO", "format": "{time} {message}"}]}`, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	sinks := l.State().Sinks()
	if len(sinks) != 1 || len(res.SinkIDs) != 1 {
		t.Fatalf("sinks = %d, ids = %d, want 1", len(sinks), len(res.SinkIDs))
	}
	if sinks[0].Level != "INFO" || sinks[0].Target != "stdout" || sinks[0].Format != "{time} {message}" {
		t.Errorf("sink = %+v", sinks[0])
	}
	if res.Generation == 0 {
		t.Error("generation not advanced")
	}
}

func TestLoadScenarioStderrReference(t *testing.T) {
	l, _ := newTestLoader(t)
	if _, err := l.LoadString(`{"sinks": [{"target": "ext://sys:stderr", "level": "ERROR"}]}`, FormatJSON); err != nil {
		t.Fatal(err)
	}
	sinks := l.State().Sinks()
	if len(sinks) != 1 {
		t.Fatalf("sinks = %d, want 1", len(sinks))
	}
	if sinks[0].Kind != "stream" || sinks[0].Target != "*os.File" || sinks[0].LevelNo != 40 {
		t.Errorf("sink = %+v", sinks[0])
	}
}

func TestLoadScenarioIdempotent(t *testing.T) {
	l, _ := newTestLoader(t)
	doc := `{"sinks": [{"target": "ext://sys:stderr", "level": "ERROR"}, {"target": "memory"}]}`
	for i := 0; i < 3; i++ {
		if _, err := l.LoadString(doc, FormatJSON); err != nil {
			t.Fatal(err)
		}
		if n := len(l.State().Sinks()); n != 2 {
			t.Fatalf("apply %d: sinks = %d, want 2", i+1, n)
		}
	}
}

func TestLoadScenarioResolutionFailureLeavesState(t *testing.T) {
	l, c := newTestLoader(t)
	if _, err := l.LoadString("sinks:\n  - target: ext://testing.sinks:collect\n", FormatYAML); err != nil {
		t.Fatal(err)
	}
	before := l.State().Sinks()
	gen := l.State().Generation()

	_, err := l.LoadString(`{"sinks": [{"target": "ext://nope.missing:thing"}]}`, FormatJSON)
	var cfgErr *Error
	if !errors.As(err, &cfgErr) || cfgErr.Kind != ResolutionError {
		t.Fatalf("error = %v, want ResolutionError", err)
	}
	if got := cfgErr.Path.String(); got != "sinks[0].target" {
		t.Errorf("path = %q, want sinks[0].target", got)
	}

	after := l.State().Sinks()
	if len(after) != 1 || after[0].ID != before[0].ID || l.State().Generation() != gen {
		t.Errorf("state changed after failed load: %+v", after)
	}
	l.State().Logger("app").Info("still here")
	if got := c.lines(); len(got) != 1 || !strings.Contains(got[0], "still here") {
		t.Errorf("previous sink lost records: %q", got)
	}
}

func TestLoadScenarioLevelsAndActivationOnly(t *testing.T) {
	l, c := newTestLoader(t)
	if _, err := l.LoadString("sinks:\n  - target: ext://testing.sinks:collect\n    level: TRACE\n    format: '{level} {name} {message}'\n", FormatYAML); err != nil {
		t.Fatal(err)
	}

	res, err := l.LoadString(`{"levels": {"CUSTOM": 25}, "activation": [["mypkg.sub", false]]}`, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.SinkIDs) != 0 {
		t.Errorf("sink ids = %v, want none", res.SinkIDs)
	}
	state := l.State()
	if n := len(state.Sinks()); n != 1 {
		t.Errorf("sinks = %d, want the existing sink untouched", n)
	}
	if lvl, ok := state.Level("custom"); !ok || lvl.No != 25 {
		t.Errorf("CUSTOM level = %+v, %v", lvl, ok)
	}

	ctx := context.Background()
	if err := state.Log(ctx, "CUSTOM", "mypkg.sub.deep", "hidden"); err != nil {
		t.Fatal(err)
	}
	if err := state.Log(ctx, "CUSTOM", "mypkg.other", "shown"); err != nil {
		t.Fatal(err)
	}
	got := c.lines()
	if len(got) != 1 || got[0] != "CUSTOM mypkg.other shown" {
		t.Errorf("lines = %q", got)
	}
}

func TestLoadStrictAndLenient(t *testing.T) {
	doc := `{"foo": 1, "sinks": []}`

	strict, _ := newTestLoader(t)
	_, err := strict.LoadString(doc, FormatJSON)
	var cfgErr *Error
	if !errors.As(err, &cfgErr) || cfgErr.Kind != ValidationError || cfgErr.Path.String() != "foo" {
		t.Fatalf("strict error = %v, want ValidationError at foo", err)
	}

	lenient, _ := newTestLoader(t, WithLenient(true))
	if _, err := lenient.LoadString(doc, FormatJSON); err != nil {
		t.Errorf("lenient load failed: %v", err)
	}
}

func TestLoadEnvironment(t *testing.T) {
	l, _ := newTestLoader(t)
	if _, err := l.LoadString("sinks:\n  - target: memory\n    level: ${APP_LEVEL}\n    name: ${SINK_NAME:buffer}\n", FormatYAML); err != nil {
		t.Fatal(err)
	}
	sinks := l.State().Sinks()
	if len(sinks) != 1 || sinks[0].Level != "WARNING" || sinks[0].Name != "buffer" {
		t.Errorf("sinks = %+v", sinks)
	}

	_, err := l.LoadString("extra:\n  region: ${MISSING_VAR}\n", FormatYAML)
	var cfgErr *Error
	if !errors.As(err, &cfgErr) || cfgErr.Kind != ResolutionError || cfgErr.Path.String() != "extra.region" {
		t.Errorf("error = %v, want ResolutionError at extra.region", err)
	}
}

func badFilePath(t *testing.T) string {
	t.Helper()
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return filepath.Join(blocker, "sub", "app.log")
}

func TestApplyPolicies(t *testing.T) {
	bad := badFilePath(t)
	doc := "sinks:\n  - target: ext://testing.sinks:collect\n  - target: " + bad + "\n"

	t.Run("partial", func(t *testing.T) {
		obs := &recordingObserver{}
		l, c := newTestLoader(t, WithObserver(obs))
		if _, err := l.LoadString("sinks:\n  - target: memory\n", FormatYAML); err != nil {
			t.Fatal(err)
		}

		res, err := l.LoadString(doc, FormatYAML)
		if !errors.Is(err, ErrApply) || !IsPartial(err) {
			t.Fatalf("error = %v, want partial ApplyError", err)
		}
		var cfgErr *Error
		errors.As(err, &cfgErr)
		if got := cfgErr.Path.String(); got != "sinks[1]" {
			t.Errorf("path = %q, want sinks[1]", got)
		}
		if res == nil || len(res.SinkIDs) != 1 {
			t.Fatalf("result = %+v, want one added sink", res)
		}
		sinks := l.State().Sinks()
		if len(sinks) != 1 || sinks[0].Kind != "callable" {
			t.Errorf("sinks = %+v, want only the callable sink", sinks)
		}
		l.State().Logger("app").Warn("after partial")
		if len(c.lines()) != 1 {
			t.Errorf("callable sink not active")
		}
		if len(obs.applied) != 1 || len(obs.failed) != 1 {
			t.Errorf("observer applied=%d failed=%d, want 1 and 1", len(obs.applied), len(obs.failed))
		}
	})

	t.Run("atomic", func(t *testing.T) {
		l, c := newTestLoader(t, WithPolicy(PolicyAtomic))
		if _, err := l.LoadString("sinks:\n  - target: memory\n", FormatYAML); err != nil {
			t.Fatal(err)
		}
		before := l.State().Sinks()

		res, err := l.LoadString(doc, FormatYAML)
		if !errors.Is(err, ErrApply) || IsPartial(err) {
			t.Fatalf("error = %v, want non-partial ApplyError", err)
		}
		if res != nil {
			t.Errorf("result = %+v, want nil", res)
		}
		after := l.State().Sinks()
		if len(after) != 1 || after[0].ID != before[0].ID {
			t.Errorf("sinks = %+v, want the previous memory sink", after)
		}
		l.State().Logger("app").Warn("after atomic")
		if len(c.lines()) != 0 {
			t.Errorf("rolled back sink received records")
		}
	})
}

func TestLoadFileDetectsFormat(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out", "app.log")
	files := map[string]string{
		"config.toml": "[[sinks]]\ntarget = \"" + filepath.ToSlash(logPath) + "\"\nformat = \"{level}|{message}\"\n",
		"config.yml":  "sinks:\n  - target: " + logPath + "\n    format: '{level}|{message}'\n",
		"config.json5": "{sinks: [{target: '" + filepath.ToSlash(logPath) + "', format: '{level}|{message}'}]}",
		"config.conf": `{"sinks": [{"target": "` + filepath.ToSlash(logPath) + `", "format": "{level}|{message}"}]}`,
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			l, _ := newTestLoader(t)
			if _, err := l.LoadFile(path, FormatAuto); err != nil {
				t.Fatal(err)
			}
			sinks := l.State().Sinks()
			if len(sinks) != 1 || sinks[0].Kind != "file" {
				t.Fatalf("sinks = %+v", sinks)
			}
			l.State().Logger("app").Error("written " + name)
			l.State().RemoveAll()

			data, err := os.ReadFile(logPath)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), "ERROR|written "+name+"\n") {
				t.Errorf("log file = %q", data)
			}
		})
	}
}

func TestLoadFileErrors(t *testing.T) {
	l, _ := newTestLoader(t)
	_, err := l.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), FormatAuto)
	if !errors.Is(err, ErrFormat) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte(`{"sinks": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.LoadFile(path, FormatAuto); !errors.Is(err, ErrFormat) {
		t.Errorf("broken file error = %v, want FormatError", err)
	}

	if _, err := l.LoadString("- a\n- b\n", FormatYAML); !errors.Is(err, ErrFormat) {
		t.Errorf("sequence document error = %v, want FormatError", err)
	}
}

func TestLoadPatchExtraAndCallables(t *testing.T) {
	l, c := newTestLoader(t)
	doc := `
sinks:
  - target: ext://testing.sinks:collect
    format: '{extra[env]} {extra[tag]} {message}'
    filter: ext://logwire.filters:exclude_module("noisy")
extra:
  env: prod
patch: ext://logwire.patchers:set_extra("tag", "patched")
`
	if _, err := l.LoadString(doc, FormatYAML); err != nil {
		t.Fatal(err)
	}
	state := l.State()
	if !state.HasPatch() {
		t.Error("patch not installed")
	}
	state.Logger("app").Info("hello")
	state.Logger("noisy.child").Info("dropped")

	got := c.lines()
	if len(got) != 1 || got[0] != "prod patched hello" {
		t.Errorf("lines = %q", got)
	}

	if _, err := l.LoadString("patch: null\nextra: null\n", FormatYAML); err != nil {
		t.Fatal(err)
	}
	if state.HasPatch() || len(state.Extra()) != 0 {
		t.Errorf("patch/extra not cleared: patch=%v extra=%v", state.HasPatch(), state.Extra())
	}
}

func TestExampleModulesResolve(t *testing.T) {
	l, _ := newTestLoader(t)
	doc := "extra:\n  secret: ext://my_module.secret:ENABLED\n  client: ext://api.client.NAME\n"
	cfg, err := l.ParseBytes([]byte(doc), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Extra["secret"] != false || cfg.Extra["client"] != "example-client" {
		t.Errorf("extra = %v", cfg.Extra)
	}
}
