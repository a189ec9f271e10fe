package logconfig

import (
	"fmt"
	"math"
	"sort"

	"github.com/smazurov/logwire/internal/logging"
)

// Top-level sections.
const (
	keySinks      = "sinks"
	keyHandlers   = "handlers"
	keyLevels     = "levels"
	keyExtra      = "extra"
	keyPatch      = "patch"
	keyActivation = "activation"
)

var topLevelKeys = map[string]bool{
	keySinks: true, keyHandlers: true, keyLevels: true,
	keyExtra: true, keyPatch: true, keyActivation: true,
}

// ValidateOptions tunes validation.
type ValidateOptions struct {
	// Lenient ignores unknown keys instead of failing on them.
	Lenient bool
}

// Config is a validated configuration ready to apply. Has* flags record
// which sections the document contained; absent sections leave the logging
// state untouched.
type Config struct {
	Sinks         []SinkSpec
	HasSinks      bool
	Levels        []logging.Level
	HasLevels     bool
	Extra         map[string]any
	HasExtra      bool
	Patch         logging.PatchFunc
	HasPatch      bool
	Activation    []logging.ActivationRule
	HasActivation bool
}

// Validate checks a resolved tree and fills sink defaults. It fails on the
// first invalid entry.
func Validate(resolved *Mapping, opts ValidateOptions) (*Config, error) {
	cfg := &Config{}

	for _, k := range resolved.Keys() {
		if !topLevelKeys[k] && !opts.Lenient {
			return nil, newError(ValidationError, Path{k}, nil, "unknown top-level key %q", k)
		}
	}
	if resolved.Has(keySinks) && resolved.Has(keyHandlers) {
		return nil, newError(ValidationError, Path{keyHandlers}, nil, "%q and %q are aliases; use only one", keySinks, keyHandlers)
	}

	table, err := logging.NewLevelTable()
	if err != nil {
		return nil, err
	}
	if raw, ok := resolved.Get(keyLevels); ok {
		levels, err := validateLevels(raw, Path{keyLevels})
		if err != nil {
			return nil, err
		}
		for _, l := range levels {
			next, err := table.With(l)
			if err != nil {
				return nil, newError(ValidationError, Path{keyLevels, l.Name}, err, "invalid level")
			}
			table = next
		}
		cfg.Levels = levels
		cfg.HasLevels = true
	}

	sinksKey := keySinks
	if resolved.Has(keyHandlers) {
		sinksKey = keyHandlers
	}
	if raw, ok := resolved.Get(sinksKey); ok {
		path := Path{sinksKey}
		list, ok := raw.([]any)
		if raw != nil && !ok {
			return nil, newError(ValidationError, path, nil, "must be a sequence of sink tables, got %s", kindName(raw))
		}
		cfg.Sinks = make([]SinkSpec, 0, len(list))
		for i, item := range list {
			spec, err := validateSink(item, path.Index(i), table, opts)
			if err != nil {
				return nil, err
			}
			cfg.Sinks = append(cfg.Sinks, spec)
		}
		cfg.HasSinks = true
	}

	if raw, ok := resolved.Get(keyExtra); ok {
		switch t := raw.(type) {
		case nil:
			cfg.Extra = map[string]any{}
		case *Mapping:
			cfg.Extra = t.ToMap()
		case map[string]any:
			cfg.Extra = t
		default:
			return nil, newError(ValidationError, Path{keyExtra}, nil, "must be a mapping, got %s", kindName(raw))
		}
		cfg.HasExtra = true
	}

	if raw, ok := resolved.Get(keyPatch); ok {
		patch, err := asPatch(raw)
		if err != nil {
			return nil, newError(ValidationError, Path{keyPatch}, err, "invalid patch")
		}
		cfg.Patch = patch
		cfg.HasPatch = true
	}

	if raw, ok := resolved.Get(keyActivation); ok {
		rules, err := validateActivation(raw, Path{keyActivation})
		if err != nil {
			return nil, err
		}
		cfg.Activation = rules
		cfg.HasActivation = true
	}

	return cfg, nil
}

// validateLevels accepts {NAME: no}, {NAME: {no, color, icon}} and the list
// form [{name, no, color, icon}].
func validateLevels(raw any, path Path) ([]logging.Level, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case *Mapping:
		levels := make([]logging.Level, 0, t.Len())
		for _, name := range t.Keys() {
			v, _ := t.Get(name)
			l, err := levelEntry(name, v, path.Key(name))
			if err != nil {
				return nil, err
			}
			levels = append(levels, l)
		}
		return levels, nil
	case []any:
		levels := make([]logging.Level, 0, len(t))
		for i, item := range t {
			m, ok := item.(*Mapping)
			if !ok {
				return nil, newError(ValidationError, path.Index(i), nil, "level entry must be a mapping")
			}
			nameVal, _ := m.Get("name")
			name, ok := nameVal.(string)
			if !ok || name == "" {
				return nil, newError(ValidationError, path.Index(i).Key("name"), nil, "level name is required")
			}
			l, err := levelEntry(name, m, path.Index(i))
			if err != nil {
				return nil, err
			}
			levels = append(levels, l)
		}
		return levels, nil
	}
	return nil, newError(ValidationError, path, nil, "must be a mapping of level names, got %s", kindName(raw))
}

func levelEntry(name string, v any, path Path) (logging.Level, error) {
	l := logging.Level{Name: name}
	switch t := v.(type) {
	case *Mapping:
		for _, k := range t.Keys() {
			switch k {
			case "name":
			case "no":
				val, _ := t.Get(k)
				no, err := asInt(val)
				if err != nil {
					return l, newError(ValidationError, path.Key(k), err, "invalid severity")
				}
				l.No = no
			case "color":
				val, _ := t.Get(k)
				s, ok := val.(string)
				if !ok {
					return l, newError(ValidationError, path.Key(k), nil, "must be a string")
				}
				l.Color = s
			case "icon":
				val, _ := t.Get(k)
				s, ok := val.(string)
				if !ok {
					return l, newError(ValidationError, path.Key(k), nil, "must be a string")
				}
				l.Icon = s
			default:
				return l, newError(ValidationError, path.Key(k), nil, "unknown level field %q", k)
			}
		}
		if !t.Has("no") {
			return l, newError(ValidationError, path.Key("no"), nil, "severity is required")
		}
	default:
		no, err := asInt(v)
		if err != nil {
			return l, newError(ValidationError, path, err, "invalid severity")
		}
		l.No = no
	}
	if l.No < 0 {
		return l, newError(ValidationError, path, nil, "severity must be non-negative, got %d", l.No)
	}
	return l, nil
}

func asInt(v any) (int, error) {
	switch t := v.(type) {
	case int64:
		return int(t), nil
	case int:
		return t, nil
	case float64:
		if t == math.Trunc(t) {
			return int(t), nil
		}
	}
	return 0, fmt.Errorf("expected an integer, got %s", kindName(v))
}

func asPatch(v any) (logging.PatchFunc, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case logging.PatchFunc:
		return t, nil
	case func(*logging.Record):
		return t, nil
	case string:
		return nil, fmt.Errorf("expected a callable, got the string %q; use an %s reference", t, TokenScheme)
	}
	return nil, fmt.Errorf("expected func(*logging.Record), got %T", v)
}

func validateActivation(raw any, path Path) ([]logging.ActivationRule, error) {
	list, ok := raw.([]any)
	if raw == nil {
		return nil, nil
	}
	if !ok {
		return nil, newError(ValidationError, path, nil, "must be a sequence of [module, enabled] pairs")
	}
	rules := make([]logging.ActivationRule, 0, len(list))
	for i, item := range list {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, newError(ValidationError, path.Index(i), nil, "must be a [module, enabled] pair")
		}
		module, ok := pair[0].(string)
		if !ok {
			return nil, newError(ValidationError, path.Index(i).Index(0), nil, "module must be a string")
		}
		enabled, ok := pair[1].(bool)
		if !ok {
			return nil, newError(ValidationError, path.Index(i).Index(1), nil, "enabled must be a boolean")
		}
		rules = append(rules, logging.ActivationRule{Module: module, Enabled: enabled})
	}
	return rules, nil
}

// Summary describes a validated configuration for reports.
type Summary struct {
	Sinks      int      `json:"sinks"`
	Levels     []string `json:"levels,omitempty"`
	ExtraKeys  []string `json:"extra_keys,omitempty"`
	Patch      bool     `json:"patch"`
	Activation int      `json:"activation"`
}

// Summary reports what the configuration contains.
func (c *Config) Summary() Summary {
	s := Summary{
		Sinks:      len(c.Sinks),
		Patch:      c.Patch != nil,
		Activation: len(c.Activation),
	}
	for _, l := range c.Levels {
		s.Levels = append(s.Levels, l.Name)
	}
	for k := range c.Extra {
		s.ExtraKeys = append(s.ExtraKeys, k)
	}
	sort.Strings(s.ExtraKeys)
	return s
}
