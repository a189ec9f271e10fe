package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Handler bridges log/slog into a State. The "module" attribute selects the
// record name used for activation and the {name} field; every other attribute
// becomes an extra field, with groups flattened to dotted keys.
type Handler struct {
	state  *State
	module string
	bound  map[string]any
	groups []string
}

// Handler returns an slog.Handler emitting into s.
func (s *State) Handler() *Handler {
	return &Handler{state: s}
}

// Logger returns an slog.Logger bound to module.
func (s *State) Logger(module string) *slog.Logger {
	return slog.New(&Handler{state: s, module: module})
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.state.enabled(h.module, FromSlog(level))
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.bound)+r.NumAttrs())
	for k, v := range h.bound {
		attrs[k] = v
	}
	module := h.module

	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "module" && len(h.groups) == 0 {
			module = a.Value.String()
		} else {
			flattenAttr(attrs, h.groups, a)
		}
		return true
	})

	return h.state.emit(emission{
		time:   r.Time,
		level:  levelRef{no: FromSlog(r.Level)},
		module: module,
		msg:    r.Message,
		attrs:  attrs,
		pc:     r.PC,
	})
}

// WithAttrs implements slog.Handler. Attributes are flattened under the
// groups open at this point.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make(map[string]any, len(h.bound)+len(attrs))
	for k, v := range h.bound {
		bound[k] = v
	}
	module := h.module
	for _, a := range attrs {
		if a.Key == "module" && len(h.groups) == 0 {
			module = a.Value.String()
			continue
		}
		flattenAttr(bound, h.groups, a)
	}

	return &Handler{
		state:  h.state,
		module: module,
		bound:  bound,
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name

	return &Handler{
		state:  h.state,
		module: h.module,
		bound:  h.bound,
		groups: newGroups,
	}
}

// flattenAttr extracts a slog.Attr into a flat map with dot-notation keys for groups.
func flattenAttr(attrs map[string]any, groups []string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		sub := groups
		if a.Key != "" {
			sub = append(append([]string(nil), groups...), a.Key)
		}
		for _, ga := range a.Value.Group() {
			flattenAttr(attrs, sub, ga)
		}
	case slog.KindTime:
		attrs[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		attrs[key] = a.Value.Duration().String()
	case slog.KindLogValuer:
		flattenAttr(attrs, groups, slog.Attr{Key: a.Key, Value: a.Value.Resolve()})
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			attrs[key] = err.Error()
		} else {
			attrs[key] = a.Value.Any()
		}
	default:
		attrs[key] = a.Value.Any()
	}
}
