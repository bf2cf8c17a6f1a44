package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IncrementCounter(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter(WhispersSent, nil, "Whispers sent")
	registry.IncrementCounter(WhispersSent, nil, "Whispers sent")

	counters := registry.GetAllMetrics().Counters
	require.Contains(t, counters, WhispersSent)
	assert.Equal(t, float64(2), counters[WhispersSent].Value)
	assert.Equal(t, Counter, counters[WhispersSent].Type)
}

func TestRegistry_LabelKeysAreStable(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter(WhisperAdmissionDenied, map[string]string{"reason": "rate", "window": "second"}, "")
	registry.IncrementCounter(WhisperAdmissionDenied, map[string]string{"window": "second", "reason": "rate"}, "")

	counters := registry.GetAllMetrics().Counters
	require.Len(t, counters, 1)
	assert.Contains(t, counters, "whisper_admission_denied_total_reason:rate_window:second")
	assert.Equal(t, float64(2), registry.CounterValue(WhisperAdmissionDenied, map[string]string{"reason": "rate", "window": "second"}))
}

func TestRegistry_SetGauge(t *testing.T) {
	registry := NewRegistry()

	registry.SetGauge(WhisperBacklogSize, 4, nil, "Backlog size")
	registry.SetGauge(WhisperBacklogSize, 2, nil, "Backlog size")

	assert.Equal(t, float64(2), registry.GaugeValue(WhisperBacklogSize, nil))
	assert.Equal(t, float64(0), registry.GaugeValue("missing", nil))
}

func TestRegistry_RecordTimer(t *testing.T) {
	registry := NewRegistry()

	for i := 1; i <= 20; i++ {
		registry.RecordTimer(WhisperSendDuration, time.Duration(i)*time.Millisecond, nil)
	}

	timer := registry.GetAllMetrics().Timers[WhisperSendDuration]
	assert.Equal(t, int64(20), timer.Count)
	assert.InDelta(t, 1.0, timer.Min, 0.001)
	assert.InDelta(t, 20.0, timer.Max, 0.001)
	assert.InDelta(t, 10.5, timer.Average, 0.001)
	assert.InDelta(t, 20.0, timer.P95, 0.001)
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	registry := NewRegistry()
	registry.IncrementCounter(WhispersTaken, nil, "")

	snap := registry.GetAllMetrics()
	registry.IncrementCounter(WhispersTaken, nil, "")

	assert.Equal(t, float64(1), snap.Counters[WhispersTaken].Value)
	assert.Equal(t, float64(2), registry.CounterValue(WhispersTaken, nil))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				registry.IncrementCounter(WhispersEnqueued, nil, "")
				registry.SetGauge(WhisperBacklogSize, float64(j), nil, "")
				_ = registry.GetAllMetrics()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(1000), registry.CounterValue(WhispersEnqueued, nil))
}

func TestRegistry_TimerKeepsRecentSamplesForP95(t *testing.T) {
	registry := NewRegistry()

	for i := 0; i < maxTimerSamples; i++ {
		registry.RecordTimer(WhisperSendDuration, 500*time.Millisecond, nil)
	}
	for i := 0; i < maxTimerSamples; i++ {
		registry.RecordTimer(WhisperSendDuration, time.Millisecond, nil)
	}

	timer := registry.GetAllMetrics().Timers[WhisperSendDuration]
	assert.Equal(t, int64(2*maxTimerSamples), timer.Count)
	assert.InDelta(t, 500.0, timer.Max, 0.001)
	assert.InDelta(t, 1.0, timer.P95, 0.001, "old samples rotated out")
}

func TestRegistry_NoP95BelowMinimumSamples(t *testing.T) {
	registry := NewRegistry()
	registry.RecordTimer(HTTPRequestDuration, 3*time.Millisecond, nil)

	timer := registry.GetAllMetrics().Timers[HTTPRequestDuration]
	assert.Zero(t, timer.P95)
	assert.InDelta(t, 3.0, timer.Min, 0.001)
}
