package logconfig

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Resolver replaces ext:// tokens and ${NAME} references with live values.
type Resolver struct {
	Registry *Registry
	Env      LookupEnv
}

// Resolve builds a new tree from doc, which is left untouched. The first
// failure aborts the pass with a ResolutionError at the offending key.
func (r *Resolver) Resolve(doc *Mapping) (*Mapping, error) {
	if doc == nil {
		return NewMapping(), nil
	}
	v, err := r.resolveValue(doc, nil)
	if err != nil {
		return nil, err
	}
	return v.(*Mapping), nil
}

func (r *Resolver) resolveValue(v any, path Path) (any, error) {
	switch t := v.(type) {
	case *Mapping:
		out := NewMapping()
		for _, k := range t.keys {
			rv, err := r.resolveValue(t.values[k], path.Key(k))
			if err != nil {
				return nil, err
			}
			out.Set(k, rv)
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			rv, err := r.resolveValue(item, path.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case string:
		return r.resolveString(t, path)
	default:
		return v, nil
	}
}

// resolveString parses a token string before interpolating it, so ${NAME}
// values are only ever data. A plain string whose whole interpolated value is
// a token still resolves, taking the value literally.
func (r *Resolver) resolveString(s string, path Path) (any, error) {
	var (
		tok *token
		err error
	)
	if isToken(s) {
		tok, err = parseToken(s, r.expand)
	} else {
		expanded, ierr := r.expand(s)
		if ierr != nil {
			return nil, newError(ResolutionError, path, ierr, "cannot interpolate %q", s)
		}
		if !isToken(expanded) {
			return expanded, nil
		}
		s = expanded
		tok, err = parseToken(expanded, nil)
	}
	if err != nil {
		var missing *MissingEnvError
		if errors.As(err, &missing) {
			return nil, newError(ResolutionError, path, err, "cannot interpolate %q", s)
		}
		return nil, newError(ResolutionError, path, err, "invalid reference")
	}
	val, err := r.evalToken(tok)
	if err != nil {
		return nil, newError(ResolutionError, path, err, "cannot resolve %q", s)
	}
	return val, nil
}

func (r *Resolver) expand(s string) (string, error) {
	return interpolate(s, r.Env)
}

func (r *Resolver) evalToken(tok *token) (any, error) {
	var (
		modName string
		mod     Module
		chain   []string
		ok      bool
	)
	if tok.hasColon {
		modName = tok.module
		mod, ok = r.Registry.Lookup(modName)
		chain = tok.attrs
	} else {
		modName, mod, chain, ok = r.Registry.longestModule(tok.module)
	}
	if !ok {
		return nil, fmt.Errorf("module %q is not registered", tok.module)
	}

	var cur any = mod
	for _, name := range chain {
		next, nextMod, err := r.attr(cur, modName, name)
		if err != nil {
			return nil, err
		}
		cur, modName = next, nextMod
	}

	if !tok.call {
		return cur, nil
	}
	args, err := r.evalArgs(tok.args, tok.expand)
	if err != nil {
		return nil, err
	}
	return invoke(cur, args)
}

func (r *Resolver) evalArgs(args []tokenArg, expand bool) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		switch a.kind {
		case argLiteral:
			out[i] = a.value
		case argQuoted:
			if !expand {
				out[i] = a.text
				continue
			}
			s, err := r.expand(a.text)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			out[i] = s
		case argEnv:
			if !expand {
				out[i] = a.text
				continue
			}
			s, err := r.expand(a.text)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			// A bare reference reads like an unquoted literal: ${N} with N=21 is 21.
			if lit, ok := parseLiteral(strings.TrimSpace(s)); ok {
				out[i] = lit.value
			} else {
				out[i] = s
			}
		case argToken:
			v, err := r.evalToken(a.nested)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			out[i] = v
		}
	}
	return out, nil
}

// attr walks one step of an attribute chain. Modules fall back to their
// registered submodules, maps to their keys, and other values to exported
// fields and methods.
func (r *Resolver) attr(cur any, modName, name string) (any, string, error) {
	switch v := cur.(type) {
	case Module:
		if val, ok := v[name]; ok {
			return val, "", nil
		}
		sub := modName + "." + name
		if m, ok := r.Registry.Lookup(sub); ok {
			return m, sub, nil
		}
		return nil, "", fmt.Errorf("module %q has no attribute %q", modName, name)
	case map[string]any:
		if val, ok := v[name]; ok {
			return val, "", nil
		}
		return nil, "", fmt.Errorf("no key %q", name)
	case *Mapping:
		if val, ok := v.Get(name); ok {
			return val, "", nil
		}
		return nil, "", fmt.Errorf("no key %q", name)
	case nil:
		return nil, "", fmt.Errorf("cannot read attribute %q of nil", name)
	}

	rv := reflect.ValueOf(cur)
	for _, n := range []string{name, exportedName(name)} {
		if m := rv.MethodByName(n); m.IsValid() {
			return m.Interface(), "", nil
		}
	}
	sv := rv
	for sv.Kind() == reflect.Pointer || sv.Kind() == reflect.Interface {
		if sv.IsNil() {
			return nil, "", fmt.Errorf("cannot read attribute %q of nil %T", name, cur)
		}
		sv = sv.Elem()
	}
	if sv.Kind() == reflect.Struct {
		for _, n := range []string{name, exportedName(name)} {
			f, ok := sv.Type().FieldByName(n)
			if ok && f.IsExported() {
				return sv.FieldByIndex(f.Index).Interface(), "", nil
			}
		}
	}
	if sv.Kind() == reflect.Map && sv.Type().Key().Kind() == reflect.String {
		if val := sv.MapIndex(reflect.ValueOf(name).Convert(sv.Type().Key())); val.IsValid() {
			return val.Interface(), "", nil
		}
	}
	return nil, "", fmt.Errorf("%T has no attribute %q", cur, name)
}

func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:]
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// invoke calls fn with args, converting each argument to the parameter type
// where Go allows it. Panics are reported as errors.
func invoke(fn any, args []any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("call panicked: %v", p)
		}
	}()

	if f, ok := fn.(Func); ok {
		return f(args...)
	}
	if f, ok := fn.(func(...any) (any, error)); ok {
		return f(args...)
	}

	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%T is not callable", fn)
	}
	ft := rv.Type()

	nIn := ft.NumIn()
	if ft.IsVariadic() {
		if len(args) < nIn-1 {
			return nil, fmt.Errorf("expected at least %d arguments, got %d", nIn-1, len(args))
		}
	} else if len(args) != nIn {
		return nil, fmt.Errorf("expected %d arguments, got %d", nIn, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= nIn-1 {
			pt = ft.In(nIn - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		v, err := convertArg(a, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}

	out := rv.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if ft.Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	case 2:
		if ft.Out(1) != errorType {
			return nil, errors.New("second result must be an error")
		}
		if err := asError(out[1]); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}
	return nil, fmt.Errorf("functions returning %d values are not supported", len(out))
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

func convertArg(a any, pt reflect.Type) (reflect.Value, error) {
	if a == nil {
		switch pt.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(pt), nil
		}
		return reflect.Value{}, fmt.Errorf("nil is not a valid %s", pt)
	}
	v := reflect.ValueOf(a)
	if v.Type().AssignableTo(pt) {
		return v, nil
	}
	if numeric(v.Kind()) && numeric(pt.Kind()) {
		return convertNumber(v, pt)
	}
	if v.Kind() == reflect.String && pt.Kind() == reflect.String {
		return v.Convert(pt), nil
	}
	if v.Kind() == reflect.Func && pt.Kind() == reflect.Func && v.Type().ConvertibleTo(pt) {
		return v.Convert(pt), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", a, pt)
}

// convertNumber converts between numeric kinds, rejecting fractions for
// integer parameters and values the parameter type cannot hold.
func convertNumber(v reflect.Value, pt reflect.Type) (reflect.Value, error) {
	out := reflect.New(pt).Elem()
	switch {
	case isInt(pt.Kind()):
		var i int64
		switch {
		case isInt(v.Kind()):
			i = v.Int()
		case isUint(v.Kind()):
			if v.Uint() > math.MaxInt64 {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", v.Uint(), pt)
			}
			i = int64(v.Uint())
		default:
			f := v.Float()
			if f != math.Trunc(f) || math.IsInf(f, 0) {
				return reflect.Value{}, fmt.Errorf("%v is not an integer, %s expected", f, pt)
			}
			if f < math.MinInt64 || f >= math.MaxInt64 {
				return reflect.Value{}, fmt.Errorf("%v overflows %s", f, pt)
			}
			i = int64(f)
		}
		if out.OverflowInt(i) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", i, pt)
		}
		out.SetInt(i)
	case isUint(pt.Kind()):
		var u uint64
		switch {
		case isInt(v.Kind()):
			if v.Int() < 0 {
				return reflect.Value{}, fmt.Errorf("%d is negative, %s expected", v.Int(), pt)
			}
			u = uint64(v.Int())
		case isUint(v.Kind()):
			u = v.Uint()
		default:
			f := v.Float()
			if f != math.Trunc(f) || math.IsInf(f, 0) {
				return reflect.Value{}, fmt.Errorf("%v is not an integer, %s expected", f, pt)
			}
			if f < 0 || f >= math.MaxUint64 {
				return reflect.Value{}, fmt.Errorf("%v overflows %s", f, pt)
			}
			u = uint64(f)
		}
		if out.OverflowUint(u) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", u, pt)
		}
		out.SetUint(u)
	default:
		var f float64
		switch {
		case isInt(v.Kind()):
			f = float64(v.Int())
		case isUint(v.Kind()):
			f = float64(v.Uint())
		default:
			f = v.Float()
		}
		if out.OverflowFloat(f) {
			return reflect.Value{}, fmt.Errorf("%v overflows %s", f, pt)
		}
		out.SetFloat(f)
	}
	return out, nil
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func numeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
