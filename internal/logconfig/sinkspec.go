package logconfig

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/google/cel-go/cel"

	"github.com/smazurov/logwire/internal/logging"
)

// SinkSpec is one validated sink entry.
type SinkSpec struct {
	Name        string
	Target      any
	Level       logging.Level
	Format      string
	FormatFunc  logging.FormatFunc
	Filter      logging.FilterFunc
	FilterExpr  string
	FilterCEL   string
	Colorize    bool
	Serialize   bool
	Rotation    int64
	Retention   logging.Retention
	Compression string
	Mode        string
	Enqueue     bool
	BufferSize  int

	program    *vm.Program
	celProgram cel.Program
}

// rawSink is the decoded shape of a sink table before semantic checks.
type rawSink struct {
	Name        string `mapstructure:"name"`
	Target      any    `mapstructure:"target"`
	Sink        any    `mapstructure:"sink"`
	Level       any    `mapstructure:"level"`
	Format      any    `mapstructure:"format"`
	Filter      any    `mapstructure:"filter"`
	FilterExpr  string `mapstructure:"filter_expr"`
	FilterCEL   string `mapstructure:"filter_cel"`
	Colorize    *bool  `mapstructure:"colorize"`
	Serialize   bool   `mapstructure:"serialize"`
	Enqueue     bool   `mapstructure:"enqueue"`
	Rotation    any    `mapstructure:"rotation"`
	Retention   any    `mapstructure:"retention"`
	Compression string `mapstructure:"compression" validate:"omitempty,oneof=gz gzip"`
	Mode        string `mapstructure:"mode" validate:"omitempty,oneof=a w"`
	BufferSize  int    `mapstructure:"buffer_size" validate:"gte=0,lte=1000000"`
}

var sinkValidator = newSinkValidator()

func newSinkValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Options converts s into options for the logging state.
func (s SinkSpec) Options() logging.SinkOptions {
	return logging.SinkOptions{
		Name:        s.Name,
		Target:      s.Target,
		Level:       s.Level,
		Format:      s.Format,
		FormatFunc:  s.FormatFunc,
		Filter:      s.combinedFilter(),
		Colorize:    s.Colorize,
		Serialize:   s.Serialize,
		Rotation:    s.Rotation,
		Retention:   s.Retention,
		Compression: s.Compression,
		Mode:        s.Mode,
		Enqueue:     s.Enqueue,
		BufferSize:  s.BufferSize,
	}
}

// combinedFilter ANDs the filter, filter_expr and filter_cel checks in that order.
func (s SinkSpec) combinedFilter() logging.FilterFunc {
	var checks []logging.FilterFunc
	if s.Filter != nil {
		checks = append(checks, s.Filter)
	}
	if program := s.program; program != nil {
		checks = append(checks, func(r *logging.Record) bool { return runFilterExpr(program, r) })
	}
	if program := s.celProgram; program != nil {
		checks = append(checks, func(r *logging.Record) bool { return runFilterCEL(program, r) })
	}

	switch len(checks) {
	case 0:
		return nil
	case 1:
		return checks[0]
	}
	return func(r *logging.Record) bool {
		for _, check := range checks {
			if !check(r) {
				return false
			}
		}
		return true
	}
}

func validateSink(item any, path Path, table *logging.LevelTable, opts ValidateOptions) (SinkSpec, error) {
	m, ok := item.(*Mapping)
	if !ok {
		return SinkSpec{}, newError(ValidationError, path, nil, "sink entry must be a mapping, got %s", kindName(item))
	}

	var raw rawSink
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:   &raw,
		Metadata: &md,
		TagName:  "mapstructure",
	})
	if err != nil {
		return SinkSpec{}, err
	}
	if err := dec.Decode(m.ToMap()); err != nil {
		return SinkSpec{}, newError(ValidationError, path, err, "invalid sink")
	}
	if !opts.Lenient && len(md.Unused) > 0 {
		unused := make(map[string]bool, len(md.Unused))
		for _, k := range md.Unused {
			unused[k] = true
		}
		for _, k := range m.Keys() {
			if unused[k] {
				return SinkSpec{}, newError(ValidationError, path.Key(k), nil, "unknown sink key %q", k)
			}
		}
	}
	if err := sinkValidator.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return SinkSpec{}, newError(ValidationError, path.Key(fe.Field()), nil, "failed %q constraint %s", fe.Tag(), fe.Param())
		}
		return SinkSpec{}, newError(ValidationError, path, err, "invalid sink")
	}

	spec := SinkSpec{
		Name:        raw.Name,
		Serialize:   raw.Serialize,
		Enqueue:     raw.Enqueue,
		Compression: raw.Compression,
		Mode:        raw.Mode,
		BufferSize:  raw.BufferSize,
		FilterExpr:  raw.FilterExpr,
		FilterCEL:   raw.FilterCEL,
	}
	if raw.Colorize != nil {
		spec.Colorize = *raw.Colorize
	}

	targetKey := "target"
	switch {
	case m.Has("target") && m.Has("sink"):
		return spec, newError(ValidationError, path.Key("sink"), nil, "%q and %q are aliases; use only one", "target", "sink")
	case m.Has("sink"):
		targetKey = "sink"
		spec.Target = raw.Sink
	default:
		spec.Target = raw.Target
	}
	if err := checkTarget(spec.Target); err != nil {
		return spec, newError(ValidationError, path.Key(targetKey), err, "invalid target")
	}

	if spec.Level, err = sinkLevel(raw.Level, table); err != nil {
		return spec, newError(ValidationError, path.Key("level"), err, "invalid level")
	}

	switch f := raw.Format.(type) {
	case nil:
	case string:
		if _, err := logging.ParseTemplate(f); err != nil {
			return spec, newError(ValidationError, path.Key("format"), err, "invalid format")
		}
		spec.Format = f
	case logging.FormatFunc:
		spec.FormatFunc = f
	case func(*logging.Record) string:
		spec.FormatFunc = f
	default:
		return spec, newError(ValidationError, path.Key("format"), nil, "expected a template or func(*logging.Record) string, got %T", raw.Format)
	}

	if spec.Filter, err = sinkFilter(raw.Filter, table); err != nil {
		return spec, newError(ValidationError, path.Key("filter"), err, "invalid filter")
	}
	if raw.FilterExpr != "" {
		if spec.program, err = compileFilterExpr(raw.FilterExpr); err != nil {
			return spec, newError(ValidationError, path.Key("filter_expr"), err, "invalid filter expression")
		}
	}
	if raw.FilterCEL != "" {
		if spec.celProgram, err = compileFilterCEL(raw.FilterCEL); err != nil {
			return spec, newError(ValidationError, path.Key("filter_cel"), err, "invalid CEL filter")
		}
	}

	file := isFileTarget(spec.Target)
	for _, key := range []string{"rotation", "retention", "compression", "mode"} {
		if m.Has(key) && !file {
			return spec, newError(ValidationError, path.Key(key), nil, "%q only applies to file targets", key)
		}
	}
	if m.Has("buffer_size") && spec.Target != logging.TargetMemory {
		return spec, newError(ValidationError, path.Key("buffer_size"), nil, "%q only applies to the memory target", "buffer_size")
	}
	if spec.Rotation, err = parseRotation(raw.Rotation); err != nil {
		return spec, newError(ValidationError, path.Key("rotation"), err, "invalid rotation")
	}
	if spec.Retention, err = parseRetention(raw.Retention); err != nil {
		return spec, newError(ValidationError, path.Key("retention"), err, "invalid retention")
	}
	if spec.Mode == "" {
		spec.Mode = "a"
	}
	if spec.Target == logging.TargetMemory && spec.BufferSize == 0 {
		spec.BufferSize = 1000
	}
	return spec, nil
}

func checkTarget(t any) error {
	switch v := t.(type) {
	case nil:
		return errors.New("target is required")
	case string:
		if strings.TrimSpace(v) == "" {
			return errors.New("target must not be empty")
		}
		return nil
	case logging.SinkFunc, func(logging.Message), func(*logging.Record), slog.Handler, io.Writer:
		return nil
	}
	return fmt.Errorf("unsupported target type %T", t)
}

func isFileTarget(t any) bool {
	s, ok := t.(string)
	if !ok {
		return false
	}
	switch s {
	case logging.TargetStdout, logging.TargetStderr, logging.TargetJournal, logging.TargetMemory:
		return false
	}
	return true
}

func sinkLevel(v any, table *logging.LevelTable) (logging.Level, error) {
	switch t := v.(type) {
	case nil:
		l, _ := table.Lookup(logging.LevelInfo.Name)
		return l, nil
	case string:
		if l, ok := table.Lookup(t); ok {
			return l, nil
		}
		return logging.Level{}, fmt.Errorf("level %q does not exist", t)
	case logging.Level:
		return t, nil
	}
	no, err := asInt(v)
	if err != nil {
		return logging.Level{}, err
	}
	if no < 0 {
		return logging.Level{}, fmt.Errorf("severity must be non-negative, got %d", no)
	}
	return table.ForNo(no), nil
}

// sinkFilter accepts a callable, a module prefix, or a {module: level} table
// where the longest matching module decides and false disables it.
func sinkFilter(v any, table *logging.LevelTable) (logging.FilterFunc, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case logging.FilterFunc:
		return t, nil
	case func(*logging.Record) bool:
		return t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return func(r *logging.Record) bool { return inModule(t, r.Name) }, nil
	case map[string]any:
		return moduleLevelFilter(t, table)
	case *Mapping:
		return moduleLevelFilter(t.ToMap(), table)
	}
	return nil, fmt.Errorf("expected a callable, module name or module table, got %T", v)
}

func moduleLevelFilter(m map[string]any, table *logging.LevelTable) (logging.FilterFunc, error) {
	minimum := make(map[string]int, len(m))
	for module, v := range m {
		switch t := v.(type) {
		case bool:
			if t {
				minimum[module] = 0
			} else {
				minimum[module] = -1
			}
		case string:
			l, ok := table.Lookup(t)
			if !ok {
				return nil, fmt.Errorf("module %q: level %q does not exist", module, t)
			}
			minimum[module] = l.No
		default:
			no, err := asInt(v)
			if err != nil {
				return nil, fmt.Errorf("module %q: %w", module, err)
			}
			minimum[module] = no
		}
	}
	return func(r *logging.Record) bool {
		best, bestLen := 0, -1
		for module, no := range minimum {
			if inModule(module, r.Name) && len(module) > bestLen {
				best, bestLen = no, len(module)
			}
		}
		if bestLen < 0 {
			return true
		}
		return best >= 0 && r.Level.No >= best
	}, nil
}

func filterEnv(r *logging.Record) map[string]any {
	return map[string]any{
		"level":    map[string]any{"name": r.Level.Name, "no": r.Level.No},
		"message":  r.Message,
		"name":     r.Name,
		"module":   r.Name,
		"function": r.Function,
		"file":     r.File,
		"line":     r.Line,
		"extra":    r.Extra,
	}
}

func compileFilterExpr(src string) (*vm.Program, error) {
	sample := filterEnv(&logging.Record{Extra: map[string]any{}})
	return expr.Compile(src, expr.Env(sample), expr.AsBool())
}

func runFilterExpr(program *vm.Program, r *logging.Record) bool {
	out, err := expr.Run(program, filterEnv(r))
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

var celFilterEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("level", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("message", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("module", cel.StringType),
		cel.Variable("function", cel.StringType),
		cel.Variable("file", cel.StringType),
		cel.Variable("line", cel.IntType),
		cel.Variable("extra", cel.MapType(cel.StringType, cel.DynType)),
	)
})

func compileFilterCEL(src string) (cel.Program, error) {
	env, err := celFilterEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	switch out := ast.OutputType().String(); out {
	case "bool", "dyn":
	default:
		return nil, fmt.Errorf("expression yields %s, want bool", out)
	}
	return env.Program(ast)
}

// runFilterCEL rejects the record when evaluation fails, e.g. on a missing extra key.
func runFilterCEL(program cel.Program, r *logging.Record) bool {
	env := filterEnv(r)
	env["line"] = int64(r.Line)
	out, _, err := program.Eval(env)
	if err != nil {
		return false
	}
	ok, _ := out.Value().(bool)
	return ok
}

var sizeUnits = map[string]int64{
	"": 1, "b": 1,
	"k": 1e3, "kb": 1e3, "m": 1e6, "mb": 1e6, "g": 1e9, "gb": 1e9, "t": 1e12, "tb": 1e12,
	"kib": 1 << 10, "mib": 1 << 20, "gib": 1 << 30, "tib": 1 << 40,
}

var durationUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
	"month": 30 * 24 * time.Hour, "months": 30 * 24 * time.Hour,
	"y": 365 * 24 * time.Hour, "year": 365 * 24 * time.Hour, "years": 365 * 24 * time.Hour,
}

func splitQuantity(s string) (float64, string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, "", fmt.Errorf("%q does not start with a number", s)
	}
	n, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, "", err
	}
	return n, strings.TrimSpace(s[i:]), nil
}

func parseSize(s string) (int64, error) {
	n, unit, err := splitQuantity(s)
	if err != nil {
		return 0, err
	}
	mult, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unknown size unit %q", unit)
	}
	return int64(n * float64(mult)), nil
}

func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
		return d, nil
	}
	n, unit, err := splitQuantity(s)
	if err != nil {
		return 0, err
	}
	mult, ok := durationUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unknown duration unit %q", unit)
	}
	return time.Duration(n * float64(mult)), nil
}

var timeRotationWords = []string{
	"daily", "weekly", "monthly", "yearly", "hourly", "midnight", "noon",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday", " at ",
}

func parseRotation(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case string:
		size, err := parseSize(t)
		if err == nil {
			if size <= 0 {
				return 0, errors.New("rotation size must be positive")
			}
			return size, nil
		}
		if isTimeRotation(t) {
			return 0, fmt.Errorf("time-based rotation %q is not supported; use a size such as \"10 MB\"", t)
		}
		return 0, err
	}
	n, err := asInt(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("rotation size must be positive")
	}
	return int64(n), nil
}

func isTimeRotation(s string) bool {
	lower := strings.ToLower(s)
	if strings.Contains(lower, ":") {
		return true
	}
	if _, err := parseDuration(lower); err == nil {
		return true
	}
	for _, w := range timeRotationWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func parseRetention(v any) (logging.Retention, error) {
	switch t := v.(type) {
	case nil:
		return logging.Retention{}, nil
	case string:
		d, err := parseDuration(t)
		if err != nil {
			return logging.Retention{}, err
		}
		if d <= 0 {
			return logging.Retention{}, errors.New("retention must be positive")
		}
		return logging.Retention{MaxAge: d}, nil
	}
	n, err := asInt(v)
	if err != nil {
		return logging.Retention{}, err
	}
	if n <= 0 {
		return logging.Retention{}, errors.New("retention count must be positive")
	}
	return logging.Retention{Count: n}, nil
}
