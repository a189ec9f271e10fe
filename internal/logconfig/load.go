package logconfig

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"time"

	"github.com/smazurov/logwire/internal/logging"
)

// Observer is notified after every load attempt.
type Observer interface {
	Applied(source string, res *Result)
	Failed(source string, err error)
}

// Loader runs the normalize, resolve, validate and apply stages against one
// logging state.
type Loader struct {
	state     *logging.State
	registry  *Registry
	env       LookupEnv
	lenient   bool
	policy    Policy
	observers []Observer
	logger    *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithRegistry sets the module registry used by ext:// references.
func WithRegistry(r *Registry) Option {
	return func(l *Loader) {
		if r != nil {
			l.registry = r
		}
	}
}

// WithLenient ignores unknown keys.
func WithLenient(lenient bool) Option {
	return func(l *Loader) { l.lenient = lenient }
}

// WithPolicy selects the apply failure policy.
func WithPolicy(p Policy) Option {
	return func(l *Loader) { l.policy = p }
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(l *Loader) {
		if o != nil {
			l.observers = append(l.observers, o)
		}
	}
}

// WithLogger sets the logger for load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithEnv replaces os.LookupEnv for ${NAME} interpolation.
func WithEnv(env LookupEnv) Option {
	return func(l *Loader) { l.env = env }
}

// NewLoader returns a loader for state, or for the process default state when
// state is nil.
func NewLoader(state *logging.State, opts ...Option) *Loader {
	if state == nil {
		state = logging.Default()
	}
	l := &Loader{
		state:    state,
		registry: DefaultRegistry(),
		env:      os.LookupEnv,
		logger:   logging.GetLogger("logconfig"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the state the loader applies to.
func (l *Loader) State() *logging.State { return l.state }

// Registry returns the loader's module registry.
func (l *Loader) Registry() *Registry { return l.registry }

// ParseFile reads, resolves and validates a file without applying it.
func (l *Loader) ParseFile(path string, format Format) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(FormatError, nil, err, "cannot read %s", path)
	}
	return l.ParseBytes(data, DetectFormat(path, format))
}

// ParseBytes resolves and validates an in-memory document without applying it.
func (l *Loader) ParseBytes(data []byte, format Format) (*Config, error) {
	doc, err := ParseDocument(data, format)
	if err != nil {
		return nil, err
	}
	return l.ParseDocument(doc)
}

// ParseDocument resolves and validates a normalized document.
func (l *Loader) ParseDocument(doc *Mapping) (*Config, error) {
	resolver := &Resolver{Registry: l.registry, Env: l.env}
	resolved, err := resolver.Resolve(doc)
	if err != nil {
		return nil, err
	}
	return Validate(resolved, ValidateOptions{Lenient: l.lenient})
}

// LoadFile runs every stage on a file. An empty format is inferred from the
// extension or the content.
func (l *Loader) LoadFile(path string, format Format) (*Result, error) {
	cfg, err := l.ParseFile(path, format)
	if err != nil {
		l.failed(path, err)
		return nil, err
	}
	return l.Apply(path, cfg)
}

// LoadBytes runs every stage on an in-memory document.
func (l *Loader) LoadBytes(data []byte, format Format) (*Result, error) {
	const source = "<bytes>"
	cfg, err := l.ParseBytes(data, format)
	if err != nil {
		l.failed(source, err)
		return nil, err
	}
	return l.Apply(source, cfg)
}

// LoadString is LoadBytes for strings.
func (l *Loader) LoadString(s string, format Format) (*Result, error) {
	return l.LoadBytes([]byte(s), format)
}

// Apply applies an already validated configuration and notifies observers.
func (l *Loader) Apply(source string, cfg *Config) (*Result, error) {
	start := time.Now()
	res, err := Apply(l.state, cfg, ApplyOptions{Policy: l.policy})
	if err != nil {
		l.failed(source, err)
		return res, err
	}
	l.logger.Debug("Logging configuration applied",
		"source", source,
		"sinks", len(res.SinkIDs),
		"generation", res.Generation,
		"duration", time.Since(start))
	for _, o := range l.observers {
		o.Applied(source, res)
	}
	return res, nil
}

func (l *Loader) failed(source string, err error) {
	l.logger.Warn("Logging configuration rejected", "source", source, "error", err, "partial", IsPartial(err))
	for _, o := range l.observers {
		o.Failed(source, err)
	}
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprint(reflect.TypeOf(v))
}
