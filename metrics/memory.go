package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// NoopRecorder discards everything.
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

// MemoryRecorder keeps counts and observation totals in memory, keyed by
// name and sorted labels.
type MemoryRecorder struct {
	mu       sync.Mutex
	counts   map[string]int
	observed map[string]int
}

var _ Recorder = (*MemoryRecorder)(nil)

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		counts:   make(map[string]int),
		observed: make(map[string]int),
	}
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

func (m *MemoryRecorder) IncCounter(name string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[seriesKey(name, labels)]++
}

func (m *MemoryRecorder) ObserveLatency(name string, _ time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed[seriesKey(name, labels)]++
}

// Count returns how often name was incremented with exactly labels.
func (m *MemoryRecorder) Count(name string, labels map[string]string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[seriesKey(name, labels)]
}

// Total sums the counter name over every label set.
func (m *MemoryRecorder) Total(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, v := range m.counts {
		if k == name || strings.HasPrefix(k, name+"{") {
			n += v
		}
	}
	return n
}

// Observations returns how many latencies were recorded for name with labels.
func (m *MemoryRecorder) Observations(name string, labels map[string]string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.observed[seriesKey(name, labels)]
}
