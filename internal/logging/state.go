package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSinkNotFound is returned when removing an unknown sink id.
var ErrSinkNotFound = errors.New("sink not found")

// snapshot is the immutable configuration emission reads from.
type snapshot struct {
	sinks      []*sinkEntry
	levels     *LevelTable
	patch      PatchFunc
	extra      map[string]any
	activation []ActivationRule
}

func (s *snapshot) copy() snapshot {
	return snapshot{
		sinks:      slices.Clone(s.sinks),
		levels:     s.levels,
		patch:      s.patch,
		extra:      s.extra,
		activation: s.activation,
	}
}

func (s *snapshot) minLevel() int {
	if len(s.sinks) == 0 {
		return -1
	}
	lowest := s.sinks[0].level.No
	for _, e := range s.sinks[1:] {
		lowest = min(lowest, e.level.No)
	}
	return lowest
}

// State is the process logging state: sinks, levels, patch function, extra
// fields and module activation.
//
// Emission holds the read lock for the whole fan-out. Commits take the write
// lock only to swap the snapshot, so a record sees either the old or the new
// configuration and never a closed sink. Sinks must not reconfigure the state
// they are attached to.
type State struct {
	mu         sync.RWMutex
	snap       *snapshot
	reconfig   sync.Mutex
	nextID     int
	generation uint64
	callback   atomic.Pointer[LogCallback]
}

// NewState returns a state with no sinks and the built-in levels.
func NewState() *State {
	return &State{
		snap: &snapshot{levels: defaultLevelTable()},
	}
}

// Tx is a pending reconfiguration. Changes become visible together when the
// function passed to Reconfigure returns nil.
type Tx struct {
	state   *State
	next    snapshot
	added   []*sinkEntry
	removed []*sinkEntry
}

// Reconfigure runs fn against a copy of the current configuration and commits
// it when fn returns nil. On error every sink added by fn is closed and the
// state is left untouched. Calls are serialized.
func (s *State) Reconfigure(fn func(tx *Tx) error) error {
	s.reconfig.Lock()
	defer s.reconfig.Unlock()

	s.mu.RLock()
	tx := &Tx{state: s, next: s.snap.copy()}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		for _, e := range tx.added {
			closeSink(e)
		}
		return err
	}

	next := tx.next
	s.mu.Lock()
	s.snap = &next
	s.generation++
	s.mu.Unlock()

	// No emitter can still hold the old snapshot once the swap is done.
	for _, e := range tx.removed {
		closeSink(e)
	}
	return nil
}

func closeSink(e *sinkEntry) {
	if err := e.out.close(); err != nil {
		fmt.Fprintf(os.Stderr, "logging: closing sink %d: %v\n", e.info.ID, err)
	}
}

// AddSink builds and registers a sink, returning its id.
func (tx *Tx) AddSink(opts SinkOptions) (int, error) {
	e, err := newSinkEntry(opts)
	if err != nil {
		return 0, err
	}
	tx.state.nextID++
	e.info.ID = tx.state.nextID
	tx.next.sinks = append(tx.next.sinks, e)
	tx.added = append(tx.added, e)
	return e.info.ID, nil
}

// Remove unregisters the sink with the given id.
func (tx *Tx) Remove(id int) error {
	for i, e := range tx.next.sinks {
		if e.info.ID == id {
			tx.next.sinks = slices.Delete(tx.next.sinks, i, i+1)
			tx.removed = append(tx.removed, e)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrSinkNotFound, id)
}

// RemoveAll unregisters every sink.
func (tx *Tx) RemoveAll() {
	tx.removed = append(tx.removed, tx.next.sinks...)
	tx.next.sinks = nil
}

// AddLevel registers a custom level or updates color and icon of an existing one.
func (tx *Tx) AddLevel(l Level) error {
	table, err := tx.next.levels.With(l)
	if err != nil {
		return err
	}
	tx.next.levels = table
	return nil
}

// ResetLevels drops every custom level.
func (tx *Tx) ResetLevels() {
	tx.next.levels = defaultLevelTable()
}

// Level looks up a level in the pending table.
func (tx *Tx) Level(name string) (Level, bool) {
	return tx.next.levels.Lookup(name)
}

// SetPatch installs the patch function. nil clears it.
func (tx *Tx) SetPatch(p PatchFunc) {
	tx.next.patch = p
}

// SetExtra replaces the extra fields merged into every record.
func (tx *Tx) SetExtra(extra map[string]any) {
	tx.next.extra = maps.Clone(extra)
}

// SetActivation replaces the activation rules.
func (tx *Tx) SetActivation(rules []ActivationRule) {
	tx.next.activation = slices.Clone(rules)
}

// Enable turns logging on for module and its children.
func (tx *Tx) Enable(module string) {
	tx.next.activation = upsertRule(tx.next.activation, module, true)
}

// Disable turns logging off for module and its children.
func (tx *Tx) Disable(module string) {
	tx.next.activation = upsertRule(tx.next.activation, module, false)
}

// AddSink adds a sink outside of a larger transaction.
func (s *State) AddSink(opts SinkOptions) (int, error) {
	var id int
	err := s.Reconfigure(func(tx *Tx) error {
		var err error
		id, err = tx.AddSink(opts)
		return err
	})
	return id, err
}

// Remove removes one sink.
func (s *State) Remove(id int) error {
	return s.Reconfigure(func(tx *Tx) error { return tx.Remove(id) })
}

// RemoveAll removes every sink.
func (s *State) RemoveAll() {
	_ = s.Reconfigure(func(tx *Tx) error {
		tx.RemoveAll()
		return nil
	})
}

// AddLevel registers a custom level.
func (s *State) AddLevel(l Level) error {
	return s.Reconfigure(func(tx *Tx) error { return tx.AddLevel(l) })
}

// ResetLevels drops every custom level.
func (s *State) ResetLevels() {
	_ = s.Reconfigure(func(tx *Tx) error {
		tx.ResetLevels()
		return nil
	})
}

// SetPatch installs the patch function.
func (s *State) SetPatch(p PatchFunc) {
	_ = s.Reconfigure(func(tx *Tx) error {
		tx.SetPatch(p)
		return nil
	})
}

// SetExtra replaces the extra fields.
func (s *State) SetExtra(extra map[string]any) {
	_ = s.Reconfigure(func(tx *Tx) error {
		tx.SetExtra(extra)
		return nil
	})
}

// SetActivation replaces the activation rules.
func (s *State) SetActivation(rules []ActivationRule) {
	_ = s.Reconfigure(func(tx *Tx) error {
		tx.SetActivation(rules)
		return nil
	})
}

// Enable turns logging on for module and its children.
func (s *State) Enable(module string) {
	_ = s.Reconfigure(func(tx *Tx) error {
		tx.Enable(module)
		return nil
	})
}

// Disable turns logging off for module and its children.
func (s *State) Disable(module string) {
	_ = s.Reconfigure(func(tx *Tx) error {
		tx.Disable(module)
		return nil
	})
}

// Level looks up a level by name.
func (s *State) Level(name string) (Level, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.levels.Lookup(name)
}

// Levels returns every known level ordered by severity.
func (s *State) Levels() []Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.levels.All()
}

// Sinks describes the active sinks in the order they were added.
func (s *State) Sinks() []SinkInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SinkInfo, len(s.snap.sinks))
	for i, e := range s.snap.sinks {
		out[i] = e.info
	}
	return out
}

// Extra returns a copy of the extra fields.
func (s *State) Extra() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.snap.extra)
}

// Activation returns a copy of the activation rules.
func (s *State) Activation() []ActivationRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.activation)
}

// HasPatch reports whether a patch function is installed.
func (s *State) HasPatch() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.patch != nil
}

// Generation counts committed reconfigurations.
func (s *State) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Buffer returns the ring buffer of the memory sink with the given name, or
// of the first memory sink when name is empty.
func (s *State) Buffer(name string) *RingBuffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.snap.sinks {
		if e.memory != nil && (name == "" || e.info.Name == name) {
			return e.memory
		}
	}
	return nil
}

// SetEntryCallback sets a callback invoked for every record that passes
// activation, regardless of sink levels. nil removes it.
func (s *State) SetEntryCallback(cb LogCallback) {
	if cb == nil {
		s.callback.Store(nil)
		return
	}
	s.callback.Store(&cb)
}

// enabled reports whether a record at severity no from module would reach
// any sink or the entry callback.
func (s *State) enabled(module string, no int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !moduleEnabled(s.snap.activation, module) {
		return false
	}
	if s.callback.Load() != nil {
		return true
	}
	lowest := s.snap.minLevel()
	return lowest >= 0 && no >= lowest
}

// levelRef selects a level by name, or by number when name is empty.
type levelRef struct {
	name string
	no   int
}

type emission struct {
	time   time.Time
	level  levelRef
	module string
	msg    string
	attrs  map[string]any
	pc     uintptr
}

func (s *State) emit(em emission) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap

	if !moduleEnabled(snap.activation, em.module) {
		return nil
	}

	var level Level
	if em.level.name != "" {
		l, ok := snap.levels.Lookup(em.level.name)
		if !ok {
			return fmt.Errorf("level %q does not exist", em.level.name)
		}
		level = l
	} else {
		level = snap.levels.ForNo(em.level.no)
	}

	cb := s.callback.Load()
	if cb == nil && (len(snap.sinks) == 0 || level.No < snap.minLevel()) {
		return nil
	}

	r := newRecord(em.time, level, em.msg, em.pc)
	r.Name = em.module
	for k, v := range snap.extra {
		r.Extra[k] = v
	}
	for k, v := range em.attrs {
		r.Extra[k] = v
	}
	if snap.patch != nil {
		snap.patch(r)
	}

	if cb != nil {
		(*cb)(newLogEntry(r, ""))
	}

	for _, e := range snap.sinks {
		if !e.accepts(r) {
			continue
		}
		rc := r.clone()
		if err := e.out.write(Message{Text: e.render(rc), Record: rc}); err != nil {
			fmt.Fprintf(os.Stderr, "logging: sink %d write failed: %v\n", e.info.ID, err)
		}
	}
	return nil
}

// Log emits a record at a level given by name, including custom levels.
// args are slog-style key/value pairs or slog.Attr values.
func (s *State) Log(ctx context.Context, level, module, msg string, args ...any) error {
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	return s.emit(emission{
		time:   time.Now(),
		level:  levelRef{name: level},
		module: module,
		msg:    msg,
		attrs:  argsToMap(args),
		pc:     pcs[0],
	})
}

func argsToMap(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	r := slog.NewRecord(time.Time{}, slog.LevelInfo, "", 0)
	r.Add(args...)
	attrs := make(map[string]any, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		flattenAttr(attrs, nil, a)
		return true
	})
	return attrs
}
