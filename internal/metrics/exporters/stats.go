package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/logwire/internal/events"
	"github.com/smazurov/logwire/internal/metrics"
)

// EventPublisher is the part of the event bus the stats publisher needs.
type EventPublisher interface {
	Publish(ev events.Event)
}

// StatsPublisher turns the per-level record counters into log-stats events.
// Only levels whose count changed since the previous tick are published.
type StatsPublisher struct {
	eventBus EventPublisher
	interval time.Duration

	mu     sync.Mutex
	last   map[string]float64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatsPublisher creates a publisher that ticks every interval, one second when zero.
func NewStatsPublisher(eventBus EventPublisher, interval time.Duration) *StatsPublisher {
	if interval <= 0 {
		interval = time.Second
	}
	return &StatsPublisher{
		eventBus: eventBus,
		interval: interval,
		last:     make(map[string]float64),
	}
}

// Start launches the publish loop. It stops when ctx ends or Stop is called.
func (p *StatsPublisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop ends the loop and waits for it.
func (p *StatsPublisher) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *StatsPublisher) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.publish(now)
		}
	}
}

// publish emits one event per level whose counter moved. It returns the number published.
func (p *StatsPublisher) publish(now time.Time) int {
	stamp := now.UTC().Format(time.RFC3339)
	published := 0
	for _, c := range metrics.GetRecordCounts() {
		p.mu.Lock()
		prev, seen := p.last[c.Level]
		p.last[c.Level] = c.Count
		p.mu.Unlock()
		if seen && prev == c.Count {
			continue
		}
		p.eventBus.Publish(events.LogStatsEvent{
			Level:     c.Level,
			Count:     strconv.FormatFloat(c.Count, 'f', 0, 64),
			Timestamp: stamp,
		})
		published++
	}
	return published
}

// GetEventTypes returns the SSE event names this package publishes.
func GetEventTypes() map[string]any {
	return map[string]any{
		"log-stats": events.LogStatsEvent{},
	}
}
