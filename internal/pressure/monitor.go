// Package pressure samples system memory usage and raises level-change
// events so caches can shrink before the OS starts paging.
package pressure

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
)

// Level is a coarse classification of memory usage. Levels are ordered:
// comparisons with < and > are meaningful.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Thresholds are usage ratios (0..1) at which each level begins.
type Thresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// DefaultThresholds classifies at 60/75/90 percent of the ceiling.
func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 0.60, High: 0.75, Critical: 0.90}
}

// Sampler reports current memory usage as a ratio of the ceiling.
type Sampler func(ctx context.Context) (float64, error)

// SystemSampler reads system virtual-memory usage.
func SystemSampler(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent / 100, nil
}

type listener struct {
	id int
	fn func(Level)
}

// Monitor periodically classifies memory usage and notifies listeners
// registered for the level that becomes the new steady state. Levels
// merely passed through between samples never fire.
type Monitor struct {
	logger     zerolog.Logger
	sampler    Sampler
	thresholds Thresholds
	interval   time.Duration

	mu        sync.Mutex
	level     Level
	listeners map[Level][]listener
	nextID    int
}

// New creates a monitor; a nil sampler uses the system one.
func New(logger zerolog.Logger, sampler Sampler, thresholds Thresholds, interval time.Duration) *Monitor {
	if sampler == nil {
		sampler = SystemSampler
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		logger:     logger.With().Str("component", "pressure").Logger(),
		sampler:    sampler,
		thresholds: thresholds,
		interval:   interval,
		level:      LevelLow,
		listeners:  make(map[Level][]listener),
	}
}

// OnLevel registers a callback invoked when the given level becomes the
// new steady level. The returned function unsubscribes it.
func (m *Monitor) OnLevel(level Level, fn func(Level)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[level] = append(m.listeners[level], listener{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		ls := m.listeners[level]
		for i, l := range ls {
			if l.id == id {
				m.listeners[level] = append(ls[:i], ls[i+1:]...)
				return
			}
		}
	}
}

// Level returns the last classified level.
func (m *Monitor) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Classify maps a usage ratio to a level under the monitor's
// thresholds.
func (m *Monitor) Classify(usage float64) Level {
	switch {
	case usage >= m.thresholds.Critical:
		return LevelCritical
	case usage >= m.thresholds.High:
		return LevelHigh
	case usage >= m.thresholds.Medium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Run samples at the configured interval until the context ends.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample(ctx)
		}
	}
}

// Sample takes one reading and dispatches listeners on a level change.
func (m *Monitor) Sample(ctx context.Context) {
	usage, err := m.sampler(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("memory sample failed")
		return
	}

	level := m.Classify(usage)

	m.mu.Lock()
	if level == m.level {
		m.mu.Unlock()
		return
	}
	prev := m.level
	m.level = level
	fns := make([]func(Level), 0, len(m.listeners[level]))
	for _, l := range m.listeners[level] {
		fns = append(fns, l.fn)
	}
	m.mu.Unlock()

	m.logger.Info().
		Float64("usage", usage).
		Stringer("from", prev).
		Stringer("to", level).
		Msg("memory pressure level changed")

	for _, fn := range fns {
		fn(level)
	}
}
