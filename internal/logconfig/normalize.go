package logconfig

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Normalize converts parser output into a document made only of *Mapping,
// []any, string, int64, float64, bool and nil. The top level must be a mapping.
func Normalize(raw any) (*Mapping, error) {
	v, err := normalizeValue(raw, nil)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(*Mapping)
	if !ok {
		return nil, newError(FormatError, nil, nil, "top level of the document must be a mapping, got %s", kindName(v))
	}
	return doc, nil
}

func normalizeValue(v any, path Path) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *Mapping:
		out := NewMapping()
		for _, k := range t.keys {
			nv, err := normalizeValue(t.values[k], path.Key(k))
			if err != nil {
				return nil, err
			}
			out.Set(k, nv)
		}
		return out, nil
	case *yaml.Node:
		return normalizeYAML(t, path)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := NewMapping()
		for _, k := range keys {
			nv, err := normalizeValue(t[k], path.Key(k))
			if err != nil {
				return nil, err
			}
			out.Set(k, nv)
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			nv, err := normalizeValue(item, path.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case string:
		return t, nil
	case bool:
		return t, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return uintValue(uint64(t), path)
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return uintValue(t, path)
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, newError(FormatError, path, err, "invalid number %q", t.String())
		}
		return f, nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case toml.LocalDate:
		return t.String(), nil
	case toml.LocalTime:
		return t.String(), nil
	case toml.LocalDateTime:
		return t.String(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String && rv.Type().Key().Kind() != reflect.Interface {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return normalizeValue(m, path)
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return normalizeValue(items, path)
	}
	return nil, newError(FormatError, path, nil, "unsupported value of type %T", v)
}

func uintValue(u uint64, path Path) (any, error) {
	if u > math.MaxInt64 {
		return nil, newError(FormatError, path, nil, "integer %d overflows int64", u)
	}
	return int64(u), nil
}

// normalizeYAML walks a yaml.v3 node tree, which keeps key order and comments.
func normalizeYAML(n *yaml.Node, path Path) (any, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return normalizeYAML(n.Content[0], path)
	case yaml.AliasNode:
		return normalizeYAML(n.Alias, path)
	case yaml.MappingNode:
		out := NewMapping()
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valNode := n.Content[i], n.Content[i+1]
			if keyNode.Tag == "!!merge" {
				if err := mergeYAML(out, valNode, path); err != nil {
					return nil, err
				}
				continue
			}
			key := keyNode.Value
			v, err := normalizeYAML(valNode, path.Key(key))
			if err != nil {
				return nil, err
			}
			out.Set(key, v)
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, item := range n.Content {
			v, err := normalizeYAML(item, path.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, newError(FormatError, path, err, "invalid scalar at line %d", n.Line)
		}
		return normalizeValue(v, path)
	}
	return nil, newError(FormatError, path, nil, "unsupported YAML node kind %d", n.Kind)
}

// mergeYAML applies a << merge key without overriding keys already set.
func mergeYAML(out *Mapping, src *yaml.Node, path Path) error {
	v, err := normalizeYAML(src, path)
	if err != nil {
		return err
	}
	sources := []any{v}
	if list, ok := v.([]any); ok {
		sources = list
	}
	for _, s := range sources {
		m, ok := s.(*Mapping)
		if !ok {
			return newError(FormatError, path, nil, "merge value must be a mapping")
		}
		for _, k := range m.keys {
			if !out.Has(k) {
				out.Set(k, m.values[k])
			}
		}
	}
	return nil
}

func kindName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case *Mapping:
		return "mapping"
	case []any:
		return "sequence"
	case string:
		return "string"
	case int64, float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
