package logconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// Format names a document syntax.
type Format string

// Supported formats.
const (
	FormatAuto  Format = ""
	FormatTOML  Format = "toml"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatJSON5 Format = "json5"
)

// Parser turns document text into a nested tree for Normalize.
type Parser interface {
	Parse(data []byte) (any, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(data []byte) (any, error)

// Parse implements Parser.
func (f ParserFunc) Parse(data []byte) (any, error) { return f(data) }

var parsers = map[Format]Parser{
	FormatTOML:  ParserFunc(parseTOML),
	FormatYAML:  ParserFunc(parseYAML),
	FormatJSON:  ParserFunc(parseJSON),
	FormatJSON5: ParserFunc(parseJSON5),
}

// sniffOrder is tried when neither a tag nor an extension names the format.
var sniffOrder = []Format{FormatJSON, FormatYAML, FormatJSON5, FormatTOML}

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatTOML, FormatYAML, FormatJSON, FormatJSON5}
}

// ParseFormat accepts a format name or file extension, case-insensitively.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "":
		return FormatAuto, nil
	case "toml":
		return FormatTOML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	case "json5":
		return FormatJSON5, nil
	}
	return FormatAuto, fmt.Errorf("unsupported format %q", name)
}

// DetectFormat returns explicit when set, otherwise the format implied by the
// file extension, otherwise FormatAuto.
func DetectFormat(path string, explicit Format) Format {
	if explicit != FormatAuto {
		return explicit
	}
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return FormatAuto
}

// ParseDocument parses and normalizes data. FormatAuto tries every parser
// and keeps the first result whose top level is a mapping.
func ParseDocument(data []byte, format Format) (*Mapping, error) {
	doc, _, err := DecodeDocument(data, format)
	return doc, err
}

// DecodeDocument is ParseDocument that also reports the format that parsed
// the document.
func DecodeDocument(data []byte, format Format) (*Mapping, Format, error) {
	if format != FormatAuto {
		p, ok := parsers[format]
		if !ok {
			return nil, format, newError(FormatError, nil, nil, "unsupported format %q", format)
		}
		raw, err := p.Parse(data)
		if err != nil {
			return nil, format, newError(FormatError, nil, err, "invalid %s document", format)
		}
		doc, err := Normalize(raw)
		return doc, format, err
	}

	var errs []error
	for _, f := range sniffOrder {
		raw, err := parsers[f].Parse(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
			continue
		}
		doc, err := Normalize(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
			continue
		}
		return doc, f, nil
	}
	return nil, FormatAuto, newError(FormatError, nil, errors.Join(errs...), "could not detect document format")
}

// parseTOML decodes values with go-toml and restores the declared key order
// from the parser's AST, since the decoder only yields Go maps.
func parseTOML(data []byte) (any, error) {
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	order, err := tomlKeyOrder(data)
	if err != nil {
		return nil, err
	}
	return orderTOML(m, order), nil
}

func parseYAML(data []byte) (any, error) {
	var n yaml.Node
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func parseJSON5(data []byte) (any, error) {
	var v any
	if err := json5.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return integralNumbers(v), nil
}

// integralNumbers turns whole float64 values into int64; the json5 decoder
// has no number mode.
func integralNumbers(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
	case map[string]any:
		for k, item := range t {
			t[k] = integralNumbers(item)
		}
	case []any:
		for i, item := range t {
			t[i] = integralNumbers(item)
		}
	}
	return v
}

// parseJSON walks the token stream so object keys keep their order.
func parseJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := NewMapping()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string, got %v", keyTok)
				}
				v, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				m.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		case '[':
			list := []any{}
			for dec.More() {
				v, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return t, nil
	}
}

// Encode renders a document. JSON5 output is plain JSON. indent <= 0 selects
// the format's default indentation.
func Encode(doc *Mapping, format Format, indent int) ([]byte, error) {
	if indent <= 0 {
		indent = 2
	}
	switch format {
	case FormatJSON, FormatJSON5:
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", strings.Repeat(" ", indent)); err != nil {
			return nil, err
		}
		out.WriteByte('\n')
		return out.Bytes(), nil
	case FormatYAML:
		var out bytes.Buffer
		enc := yaml.NewEncoder(&out)
		enc.SetIndent(indent)
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	case FormatTOML:
		var out bytes.Buffer
		enc := toml.NewEncoder(&out)
		enc.SetIndentSymbol(strings.Repeat(" ", indent))
		enc.SetIndentTables(true)
		if err := enc.Encode(doc.ToMap()); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported output format %q", format)
}

// tomlOrder records the order keys are declared in one table. items holds
// one entry per element when the value is an array or array of tables.
type tomlOrder struct {
	keys  []string
	sub   map[string]*tomlOrder
	items []*tomlOrder
}

func newTOMLOrder() *tomlOrder {
	return &tomlOrder{sub: make(map[string]*tomlOrder)}
}

// child returns the order node for key, declaring key on first use.
func (o *tomlOrder) child(key string) *tomlOrder {
	c, ok := o.sub[key]
	if !ok {
		c = newTOMLOrder()
		o.sub[key] = c
		o.keys = append(o.keys, key)
	}
	return c
}

// table descends into key as a table header segment does. Arrays of tables
// continue in their last element.
func (o *tomlOrder) table(key string) *tomlOrder {
	c := o.child(key)
	if n := len(c.items); n > 0 {
		return c.items[n-1]
	}
	return c
}

func tomlKeyOrder(data []byte) (*tomlOrder, error) {
	root := newTOMLOrder()
	current := root

	var p unstable.Parser
	p.Reset(data)
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.KeyValue:
			recordKeyValue(current, expr)
		case unstable.Table:
			current = root
			it := expr.Key()
			for it.Next() {
				current = current.table(string(it.Node().Data))
			}
		case unstable.ArrayTable:
			current = root
			it := expr.Key()
			for it.Next() {
				key := string(it.Node().Data)
				if it.IsLast() {
					arr := current.child(key)
					elem := newTOMLOrder()
					arr.items = append(arr.items, elem)
					current = elem
					break
				}
				current = current.table(key)
			}
		}
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	return root, nil
}

// recordKeyValue declares a possibly dotted key in o and records the order
// inside inline tables and arrays of its value.
func recordKeyValue(o *tomlOrder, kv *unstable.Node) {
	it := kv.Key()
	for it.Next() {
		key := string(it.Node().Data)
		if it.IsLast() {
			recordValue(o.child(key), kv.Value())
			return
		}
		o = o.table(key)
	}
}

func recordValue(o *tomlOrder, v *unstable.Node) {
	switch v.Kind {
	case unstable.InlineTable:
		it := v.Children()
		for it.Next() {
			recordKeyValue(o, it.Node())
		}
	case unstable.Array:
		it := v.Children()
		for it.Next() {
			elem := newTOMLOrder()
			recordValue(elem, it.Node())
			o.items = append(o.items, elem)
		}
	}
}

// orderTOML rebuilds decoded maps as mappings in declared order.
func orderTOML(v any, o *tomlOrder) any {
	switch t := v.(type) {
	case map[string]any:
		out := NewMapping()
		if o != nil {
			for _, k := range o.keys {
				if item, ok := t[k]; ok {
					out.Set(k, orderTOML(item, o.sub[k]))
				}
			}
		}
		// Anything the AST walk missed keeps a stable position at the end.
		rest := make([]string, 0, len(t)-out.Len())
		for k := range t {
			if !out.Has(k) {
				rest = append(rest, k)
			}
		}
		sort.Strings(rest)
		for _, k := range rest {
			out.Set(k, orderTOML(t[k], nil))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			var elem *tomlOrder
			if o != nil && i < len(o.items) {
				elem = o.items[i]
			}
			out[i] = orderTOML(item, elem)
		}
		return out
	}
	return v
}
