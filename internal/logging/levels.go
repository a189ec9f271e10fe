package logging

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Level is a named severity. No is on the loguru scale where INFO is 20.
type Level struct {
	Name  string `json:"name"`
	No    int    `json:"no"`
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// Built-in levels.
var (
	LevelTrace    = Level{Name: "TRACE", No: 5, Color: "<cyan><bold>", Icon: "✏️"}
	LevelDebug    = Level{Name: "DEBUG", No: 10, Color: "<blue><bold>", Icon: "🐞"}
	LevelInfo     = Level{Name: "INFO", No: 20, Color: "<bold>", Icon: "ℹ️"}
	LevelSuccess  = Level{Name: "SUCCESS", No: 25, Color: "<green><bold>", Icon: "✅"}
	LevelWarning  = Level{Name: "WARNING", No: 30, Color: "<yellow><bold>", Icon: "⚠️"}
	LevelError    = Level{Name: "ERROR", No: 40, Color: "<red><bold>", Icon: "❌"}
	LevelCritical = Level{Name: "CRITICAL", No: 50, Color: "<RED><bold>", Icon: "☠️"}
)

// DefaultLevels returns the built-in levels ordered by severity.
func DefaultLevels() []Level {
	return []Level{LevelTrace, LevelDebug, LevelInfo, LevelSuccess, LevelWarning, LevelError, LevelCritical}
}

var levelAliases = map[string]string{
	"WARN":  "WARNING",
	"FATAL": "CRITICAL",
	"ERR":   "ERROR",
}

// LevelTable is an immutable name -> Level lookup.
type LevelTable struct {
	byName map[string]Level
	order  []string
}

// NewLevelTable builds a table from the built-ins plus extra levels.
// Redefining a built-in with a different number is an error.
func NewLevelTable(extra ...Level) (*LevelTable, error) {
	t := &LevelTable{byName: make(map[string]Level)}
	for _, l := range DefaultLevels() {
		t.put(l)
	}
	for _, l := range extra {
		if err := t.add(l); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func defaultLevelTable() *LevelTable {
	t, _ := NewLevelTable()
	return t
}

func (t *LevelTable) put(l Level) {
	key := strings.ToUpper(l.Name)
	if _, exists := t.byName[key]; !exists {
		t.order = append(t.order, key)
	}
	t.byName[key] = l
}

func (t *LevelTable) add(l Level) error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("level name must not be empty")
	}
	if l.No < 0 {
		return fmt.Errorf("level %q: severity must be non-negative, got %d", l.Name, l.No)
	}
	key := strings.ToUpper(l.Name)
	if existing, ok := t.byName[key]; ok {
		if existing.No != l.No && isBuiltin(key) {
			return fmt.Errorf("level %q already exists with severity %d, cannot change it to %d", l.Name, existing.No, l.No)
		}
		if l.Color == "" {
			l.Color = existing.Color
		}
		if l.Icon == "" {
			l.Icon = existing.Icon
		}
	}
	l.Name = key
	t.put(l)
	return nil
}

func isBuiltin(name string) bool {
	for _, l := range DefaultLevels() {
		if l.Name == name {
			return true
		}
	}
	return false
}

// With returns a copy of t with l added.
func (t *LevelTable) With(l Level) (*LevelTable, error) {
	c := &LevelTable{byName: make(map[string]Level, len(t.byName)+1), order: append([]string(nil), t.order...)}
	for k, v := range t.byName {
		c.byName[k] = v
	}
	if err := c.add(l); err != nil {
		return nil, err
	}
	return c, nil
}

// Lookup finds a level by case-insensitive name, honouring WARN/FATAL aliases.
func (t *LevelTable) Lookup(name string) (Level, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if l, ok := t.byName[key]; ok {
		return l, true
	}
	if alias, ok := levelAliases[key]; ok {
		l, ok := t.byName[alias]
		return l, ok
	}
	return Level{}, false
}

// ForNo returns the level registered with exactly no, or an anonymous
// "Level N" level when none matches.
func (t *LevelTable) ForNo(no int) Level {
	var match *Level
	for _, name := range t.order {
		l := t.byName[name]
		if l.No == no {
			match = &l
			break
		}
	}
	if match != nil {
		return *match
	}
	return Level{Name: fmt.Sprintf("Level %d", no), No: no}
}

// All returns the levels sorted by severity, then name.
func (t *LevelTable) All() []Level {
	out := make([]Level, 0, len(t.byName))
	for _, name := range t.order {
		out = append(out, t.byName[name])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].No < out[j].No })
	return out
}

// FromSlog maps an slog level onto the loguru severity scale.
func FromSlog(l slog.Level) int {
	return 20 + int(l)*5/2
}

// ToSlog maps a severity number onto the slog scale.
func ToSlog(no int) slog.Level {
	return slog.Level((no - 20) * 2 / 5)
}
