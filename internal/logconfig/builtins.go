package logconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/smazurov/logwire/internal/logging"
)

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns a copy of the registry holding the built-in modules.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		for name, m := range builtinModules() {
			defaultRegistry.Set(name, m)
		}
	})
	return defaultRegistry.Clone()
}

func builtinModules() map[string]Module {
	return map[string]Module{
		"sys": {
			"stdout": os.Stdout,
			"stderr": os.Stderr,
			"stdin":  os.Stdin,
		},
		"os": {
			"getenv":   Func(getenv),
			"hostname": Func(func(...any) (any, error) { return os.Hostname() }),
			"getpid":   Func(func(...any) (any, error) { return int64(os.Getpid()), nil }),
			"environ":  Func(environ),
		},
		"io": {
			"discard": io.Discard,
		},
		"uuid": {
			"uuid4": Func(func(...any) (any, error) { return uuid.NewString(), nil }),
			"uuid7": Func(func(...any) (any, error) {
				id, err := uuid.NewV7()
				if err != nil {
					return nil, err
				}
				return id.String(), nil
			}),
		},
		"logwire":          {},
		"logwire.patchers": patcherModule(),
		"logwire.filters":  filterModule(),
		"logwire.formatters": {
			"message": logging.FormatFunc(func(r *logging.Record) string { return r.Message }),
			"json":    logging.FormatFunc(jsonFormat),
		},
		"logwire.sinks": {
			"discard": logging.SinkFunc(func(logging.Message) {}),
		},
	}
}

func getenv(args ...any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("getenv takes 1 or 2 arguments, got %d", len(args))
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("getenv: name must be a string, got %T", args[0])
	}
	if v, ok := os.LookupEnv(name); ok {
		return v, nil
	}
	if len(args) == 2 {
		return args[1], nil
	}
	return nil, nil
}

func environ(...any) (any, error) {
	out := make(map[string]any)
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		out[k] = v
	}
	return out, nil
}

func patcherModule() Module {
	return Module{
		"utc": logging.PatchFunc(func(r *logging.Record) { r.Time = r.Time.UTC() }),
		"hostname": Func(func(...any) (any, error) {
			host, err := os.Hostname()
			if err != nil {
				return nil, err
			}
			return logging.PatchFunc(func(r *logging.Record) { r.Extra["hostname"] = host }), nil
		}),
		"pid": logging.PatchFunc(func(r *logging.Record) { r.Extra["pid"] = r.PID }),
		"set_extra": Func(func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("set_extra takes 2 arguments, got %d", len(args))
			}
			key, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("set_extra: key must be a string, got %T", args[0])
			}
			value := args[1]
			return logging.PatchFunc(func(r *logging.Record) { r.Extra[key] = value }), nil
		}),
		"chain": func(patches ...logging.PatchFunc) logging.PatchFunc {
			return func(r *logging.Record) {
				for _, p := range patches {
					if p != nil {
						p(r)
					}
				}
			}
		},
	}
}

func filterModule() Module {
	return Module{
		"module": func(prefix string) logging.FilterFunc {
			return func(r *logging.Record) bool { return inModule(prefix, r.Name) }
		},
		"exclude_module": func(prefix string) logging.FilterFunc {
			return func(r *logging.Record) bool { return !inModule(prefix, r.Name) }
		},
		"min_level": func(no int) logging.FilterFunc {
			return func(r *logging.Record) bool { return r.Level.No >= no }
		},
		"message_contains": func(substr string) logging.FilterFunc {
			return func(r *logging.Record) bool { return strings.Contains(r.Message, substr) }
		},
	}
}

func jsonFormat(r *logging.Record) string {
	data, err := json.Marshal(r)
	if err != nil {
		return r.Message
	}
	return string(data)
}

func inModule(prefix, name string) bool {
	return prefix == "" || name == prefix || strings.HasPrefix(name, prefix+".")
}

// exampleModules are the stand-in modules referenced by bundled example
// configurations.
var exampleModules = map[string]Module{
	"my_module":              {"__doc__": "Example package for logwire demonstrations."},
	"my_module.secret":       {"ENABLED": false},
	"another_library":        {},
	"another_library.module": {"VERSION": "0.0"},
	"third_party":            {},
	"third_party.module":     {"ACTIVE": true},
	"api":                    {},
	"api.client":             {"NAME": "example-client"},
	"secret":                 {},
	"secret.payment":         {"ENABLED": false},
	"payments":               {},
	"payments.core":          {"ENABLED": true},
	"service":                {},
	"service.api":            {"__all__": []any{}},
	"service.metrics":        {"ENABLED": true},
	"service.debug":          {"ENABLED": false},
}

// RegisterExampleModules adds the example stand-in modules to r, leaving
// existing registrations alone.
func RegisterExampleModules(r *Registry) {
	for name, m := range exampleModules {
		if _, exists := r.Lookup(name); !exists {
			r.Set(name, m)
		}
	}
}
