// Package metrics is a small in-process registry of counters, gauges and
// timers, served as JSON on the admin API's /metrics route.
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type MetricType string

const (
	Counter MetricType = "counter"
	Timer   MetricType = "timer"
	Gauge   MetricType = "gauge"
)

// Metric is a counter or gauge value with its labels
type Metric struct {
	Name        string            `json:"name"`
	Type        MetricType        `json:"type"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	LastUpdate  time.Time         `json:"last_update"`
}

// TimerMetric summarises recorded durations in milliseconds. P95 is taken
// over the most recent samples and is omitted below minP95Samples.
type TimerMetric struct {
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	Average float64 `json:"avg_ms"`
	P95     float64 `json:"p95_ms,omitempty"`
}

type Snapshot struct {
	Counters  map[string]Metric      `json:"counters"`
	Gauges    map[string]Metric      `json:"gauges"`
	Timers    map[string]TimerMetric `json:"timers"`
	UptimeMs  int64                  `json:"uptime_ms"`
	Timestamp int64                  `json:"timestamp"`
}

const (
	maxTimerSamples = 1000
	minP95Samples   = 10
)

// timer keeps running totals plus a ring of recent samples.
type timer struct {
	TimerMetric
	ring []float64
	next int
}

func (t *timer) observe(ms float64) {
	if t.Count == 0 || ms < t.Min {
		t.Min = ms
	}
	if ms > t.Max {
		t.Max = ms
	}
	t.Count++
	t.Sum += ms
	t.Average = t.Sum / float64(t.Count)

	if len(t.ring) < maxTimerSamples {
		t.ring = append(t.ring, ms)
		return
	}
	t.ring[t.next] = ms
	t.next = (t.next + 1) % maxTimerSamples
}

func (t *timer) summary() TimerMetric {
	out := t.TimerMetric
	if len(t.ring) >= minP95Samples {
		out.P95 = percentile(t.ring, 0.95)
	}
	return out
}

// Registry is safe for concurrent use
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	gauges    map[string]*Metric
	timers    map[string]*timer
	startTime time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		gauges:    make(map[string]*Metric),
		timers:    make(map[string]*timer),
		startTime: time.Now(),
	}
}

var globalRegistry = NewRegistry()

// GetRegistry returns the process-wide registry components fall back to
// when none is injected.
func GetRegistry() *Registry {
	return globalRegistry
}

func (r *Registry) IncrementCounter(name string, labels map[string]string, description string) {
	r.AddToCounter(name, 1, labels, description)
}

func (r *Registry) AddToCounter(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	counter, ok := r.counters[key]
	if !ok {
		counter = &Metric{Name: name, Type: Counter, Labels: copyLabels(labels), Description: description}
		r.counters[key] = counter
	}
	counter.Value += value
	counter.LastUpdate = time.Now()
}

func (r *Registry) SetGauge(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	gauge, ok := r.gauges[key]
	if !ok {
		gauge = &Metric{Name: name, Type: Gauge, Labels: copyLabels(labels), Description: description}
		r.gauges[key] = gauge
	}
	gauge.Value = value
	gauge.LastUpdate = time.Now()
}

func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	t, ok := r.timers[key]
	if !ok {
		t = &timer{}
		r.timers[key] = t
	}
	t.observe(float64(duration) / float64(time.Millisecond))
}

// GetAllMetrics returns a copy of every metric
func (r *Registry) GetAllMetrics() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	snap := Snapshot{
		Counters:  make(map[string]Metric, len(r.counters)),
		Gauges:    make(map[string]Metric, len(r.gauges)),
		Timers:    make(map[string]TimerMetric, len(r.timers)),
		UptimeMs:  now.Sub(r.startTime).Milliseconds(),
		Timestamp: now.Unix(),
	}
	for key, c := range r.counters {
		snap.Counters[key] = *c
	}
	for key, g := range r.gauges {
		snap.Gauges[key] = *g
	}
	for key, t := range r.timers {
		snap.Timers[key] = t.summary()
	}
	return snap
}

// CounterValue is 0 for a counter that was never incremented
func (r *Registry) CounterValue(name string, labels map[string]string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.counters[metricKey(name, labels)]; ok {
		return c.Value
	}
	return 0
}

// GaugeValue is 0 for a gauge that was never set
func (r *Registry) GaugeValue(name string, labels map[string]string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if g, ok := r.gauges[metricKey(name, labels)]; ok {
		return g.Value
	}
	return 0
}

// metricKey renders name_k1:v1_k2:v2 with label keys sorted.
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('_')
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(labels[k])
	}
	return b.String()
}

func percentile(samples []float64, p float64) float64 {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	i := int(float64(len(sorted)) * p)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
