package sources

import (
	"context"
	"sync"
	"time"
)

// mockSource is a scripted ports.Source for middleware tests.
type mockSource struct {
	mu sync.Mutex

	name string
	text string
	// errs are returned by successive calls; once exhausted, Fetch succeeds.
	errs  []error
	delay time.Duration
	calls int
}

func newMockSource(text string, errs ...error) *mockSource {
	return &mockSource{name: "mock", text: text, errs: errs}
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Fetch(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if call <= len(m.errs) {
		return "", m.errs[call-1]
	}
	return m.text, nil
}

func (m *mockSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// countingMetrics records counter and latency calls.
type countingMetrics struct {
	mu       sync.Mutex
	counters []map[string]string
	latency  []string
}

func (c *countingMetrics) RecordLatency(op string, _ time.Duration, _ map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = append(c.latency, op)
}

func (c *countingMetrics) RecordCounter(_ string, _ float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = append(c.counters, labels)
}

func (c *countingMetrics) RecordGauge(string, float64, map[string]string)     {}
func (c *countingMetrics) RecordHistogram(string, float64, map[string]string) {}
