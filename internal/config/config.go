package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smazurov/logwire/internal/logconfig"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "LOGWIRE_"

// Options are the daemon settings. Fields map to flags by name, to the
// settings file through toml tags and to LOGWIRE_* variables through env tags.
type Options struct {
	Config string `help:"Path to daemon settings file" short:"c" default:"logwire.toml"`

	Port string `help:"Port to listen on" short:"p" default:":8095" toml:"server.port" env:"SERVER_PORT"`

	AuthUsername string `help:"Basic auth username, auth is off when empty" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	LoggingFile    string `help:"Logging configuration document to apply" default:"" toml:"logging.file" env:"LOGGING_FILE"`
	LoggingFormat  string `help:"Document format (toml, yaml, json, json5); empty infers it" default:"" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingLenient bool   `help:"Ignore unknown keys in the logging document" default:"false" toml:"logging.lenient" env:"LOGGING_LENIENT"`
	LoggingAtomic  bool   `help:"Keep the previous sinks when any new sink fails" default:"false" toml:"logging.atomic" env:"LOGGING_ATOMIC"`

	WatchEnabled    bool `help:"Reapply the logging document when it changes" default:"true" toml:"watch.enabled" env:"WATCH_ENABLED"`
	WatchDebounceMs int  `help:"Delay before reapplying a changed document" default:"500" toml:"watch.debounce_ms" env:"WATCH_DEBOUNCE_MS"`

	MetricsEnabled bool `help:"Expose Prometheus metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`
}

// Debounce returns the watcher debounce as a duration.
func (o *Options) Debounce() time.Duration {
	if o.WatchDebounceMs <= 0 {
		return 0
	}
	return time.Duration(o.WatchDebounceMs) * time.Millisecond
}

// DocumentFormat parses LoggingFormat.
func (o *Options) DocumentFormat() (logconfig.Format, error) {
	return logconfig.ParseFormat(o.LoggingFormat)
}

// LoaderOptions translates the logging settings into loader options.
func (o *Options) LoaderOptions() []logconfig.Option {
	policy := logconfig.PolicyPartial
	if o.LoggingAtomic {
		policy = logconfig.PolicyAtomic
	}
	return []logconfig.Option{
		logconfig.WithLenient(o.LoggingLenient),
		logconfig.WithPolicy(policy),
	}
}

// LoadConfig fills opts with precedence CLI flags > env vars > settings file.
// When cmd is non-nil, flags the user set explicitly are left alone. A missing
// settings file is not an error.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: expected a pointer to a struct, got %T", opts)
	}
	v = v.Elem()
	t := v.Type()

	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().Visit(func(f *pflag.Flag) {
			changed[f.Name] = true
		})
	}

	var settings map[string]any
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
		data, err := os.ReadFile(f.String())
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &settings); err != nil {
				return fmt.Errorf("config: parse %s: %w", f.String(), err)
			}
		case !os.IsNotExist(err):
			return fmt.Errorf("config: read %s: %w", f.String(), err)
		}
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)
		if changed[fieldNameToFlag(sf.Name)] {
			continue
		}

		if path := sf.Tag.Get("toml"); path != "" && settings != nil {
			if value := getNestedValue(settings, path); value != nil {
				if err := setFieldValue(field, value); err != nil {
					return fmt.Errorf("config: %s: %w", path, err)
				}
			}
		}
		if key := sf.Tag.Get("env"); key != "" {
			if value, ok := os.LookupEnv(EnvPrefix + key); ok && value != "" {
				if err := setFieldValueFromString(field, value); err != nil {
					return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
				}
			}
		}
	}
	return nil
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "WatchDebounceMs" -> "watch-debounce-ms".
func fieldNameToFlag(fieldName string) string {
	var b strings.Builder
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// getNestedValue retrieves a value from nested maps using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data
	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

func setFieldValue(field reflect.Value, value any) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected a string, got %T", value)
		}
		field.SetString(s)
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected a boolean, got %T", value)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		default:
			return fmt.Errorf("expected an integer, got %T", value)
		}
	case reflect.Slice:
		arr, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("expected a list of strings, got %T", value)
		}
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected a list of strings, found %T", item)
			}
			out = append(out, s)
		}
		field.Set(reflect.ValueOf(out))
	}
	return nil
}

func setFieldValueFromString(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		parts := strings.Split(value, ",")
		out := make([]string, len(parts))
		for i, part := range parts {
			out[i] = strings.TrimSpace(part)
		}
		field.Set(reflect.ValueOf(out))
	}
	return nil
}
