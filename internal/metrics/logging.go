// Package metrics provides Prometheus metrics for configuration loads and emitted records.
package metrics

import (
	"errors"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/logwire/internal/logconfig"
	"github.com/smazurov/logwire/internal/logging"
)

// Apply outcomes used as the "result" label.
const (
	ResultApplied = "applied"
	ResultPartial = "partial"
	ResultFailed  = "failed"
)

var (
	configApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logwire",
		Subsystem: "config",
		Name:      "applies_total",
		Help:      "Configuration loads by outcome",
	}, []string{"result"})

	configErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logwire",
		Subsystem: "config",
		Name:      "errors_total",
		Help:      "Configuration failures by pipeline stage",
	}, []string{"kind"})

	configGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "logwire",
		Subsystem: "config",
		Name:      "generation",
		Help:      "Generation of the active logging configuration",
	})

	configLastApplied = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "logwire",
		Subsystem: "config",
		Name:      "last_applied_timestamp_seconds",
		Help:      "Unix time of the last successful apply",
	})

	activeSinks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "logwire",
		Subsystem: "logging",
		Name:      "active_sinks",
		Help:      "Number of sinks currently attached",
	})

	records = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logwire",
		Subsystem: "logging",
		Name:      "records_total",
		Help:      "Records that passed activation, by level",
	}, []string{"level"})

	// Local cache for SSE exporter access.
	recordCache   = make(map[string]float64)
	recordCacheMu sync.RWMutex
)

// LevelCount is the running record count for one level.
type LevelCount struct {
	Level   string
	LevelNo int
	Count   float64
}

// Observer records load outcomes. It implements logconfig.Observer.
type Observer struct {
	state *logging.State
}

// NewObserver returns an observer that samples state's sink count after every load.
func NewObserver(state *logging.State) *Observer {
	return &Observer{state: state}
}

// Applied implements logconfig.Observer.
func (o *Observer) Applied(_ string, res *logconfig.Result) {
	configApplies.WithLabelValues(ResultApplied).Inc()
	configGeneration.Set(float64(res.Generation))
	configLastApplied.Set(float64(res.Applied.Unix()))
	o.sampleSinks()
}

// Failed implements logconfig.Observer.
func (o *Observer) Failed(_ string, err error) {
	kind := "unknown"
	var cfgErr *logconfig.Error
	if errors.As(err, &cfgErr) {
		kind = string(cfgErr.Kind)
	}
	configErrors.WithLabelValues(kind).Inc()

	if logconfig.IsPartial(err) {
		configApplies.WithLabelValues(ResultPartial).Inc()
		configGeneration.Set(float64(o.state.Generation()))
	} else {
		configApplies.WithLabelValues(ResultFailed).Inc()
	}
	o.sampleSinks()
}

func (o *Observer) sampleSinks() {
	activeSinks.Set(float64(len(o.state.Sinks())))
}

// RecordCallback returns a callback counting every entry by level.
func RecordCallback() logging.LogCallback {
	return func(entry logging.LogEntry) {
		RecordLogged(entry.Level, entry.LevelNo)
	}
}

// levelNos keeps the severity of every level seen so snapshots sort by severity.
var levelNos = make(map[string]int)

// RecordLogged counts one record at level.
func RecordLogged(level string, no int) {
	records.WithLabelValues(level).Inc()

	recordCacheMu.Lock()
	recordCache[level]++
	levelNos[level] = no
	recordCacheMu.Unlock()
}

// GetRecordCounts returns the running count per level ordered by severity.
func GetRecordCounts() []LevelCount {
	recordCacheMu.RLock()
	defer recordCacheMu.RUnlock()
	result := make([]LevelCount, 0, len(recordCache))
	for level, n := range recordCache {
		result = append(result, LevelCount{Level: level, LevelNo: levelNos[level], Count: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LevelNo != result[j].LevelNo {
			return result[i].LevelNo < result[j].LevelNo
		}
		return result[i].Level < result[j].Level
	})
	return result
}

// ResetRecordCounts clears the cached counts. The Prometheus counters are left as they are.
func ResetRecordCounts() {
	recordCacheMu.Lock()
	defer recordCacheMu.Unlock()
	clear(recordCache)
	clear(levelNos)
}
