package engine_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/engine"
)

func TestMetricsRingEvictsOldest(t *testing.T) {
	t.Parallel()

	ring := engine.NewMetricsRing()

	for i := range engine.MetricsCapacity + 10 {
		ring.Append(core.MetricRecord{Voice: fmt.Sprintf("v%d", i)})
	}

	recent := ring.Recent(0)
	require.Len(t, recent, engine.MetricsCapacity)
	require.Equal(t, "v10", recent[0].Voice)
	require.Equal(t, fmt.Sprintf("v%d", engine.MetricsCapacity+9), recent[len(recent)-1].Voice)
}

func TestMetricsRingRecentLimit(t *testing.T) {
	t.Parallel()

	ring := engine.NewMetricsRing()

	for i := range 30 {
		ring.Append(core.MetricRecord{Voice: fmt.Sprintf("v%d", i)})
	}

	recent := ring.Recent(20)
	require.Len(t, recent, 20)
	require.Equal(t, "v10", recent[0].Voice)
	require.Equal(t, "v29", recent[19].Voice)
}

func TestMetricsSummary(t *testing.T) {
	t.Parallel()

	ring := engine.NewMetricsRing()
	ring.Append(core.MetricRecord{Method: core.BackendCPU, RTF: 0.4, GenerationTime: 1.0})
	ring.Append(core.MetricRecord{Method: core.BackendAccelerated, RTF: 0.2, GenerationTime: 0.5})
	ring.Append(core.MetricRecord{Method: core.BackendCPU, RTF: 0.6, GenerationTime: 1.5})

	summary := ring.Summary()
	require.Equal(t, 3, summary.TotalGenerations)
	require.InDelta(t, 0.4, summary.AvgRTF, 1e-9)
	require.InDelta(t, 1.0, summary.AvgGenerationTime, 1e-9)
	require.ElementsMatch(t, []string{"cpu", "accelerated"}, summary.MethodsUsed)
}

func TestMetricsSummaryEmpty(t *testing.T) {
	t.Parallel()

	summary := engine.NewMetricsRing().Summary()
	require.Equal(t, 0, summary.TotalGenerations)
	require.Zero(t, summary.AvgRTF)
	require.Empty(t, summary.MethodsUsed)
}

func TestBuildMetricRecordZeroDurationGuard(t *testing.T) {
	t.Parallel()

	record := engine.BuildMetricRecord(
		core.SynthesisRequest{Text: "hi", Voice: "af_test"},
		&core.SynthesisResult{Audio: nil, SampleRate: 24000, Backend: core.BackendCPU},
		100*time.Millisecond,
	)

	require.Zero(t, record.AudioDuration)
	require.Zero(t, record.RTF)
	require.InDelta(t, 0.1, record.GenerationTime, 1e-3)
}

func TestBuildMetricRecordRTF(t *testing.T) {
	t.Parallel()

	record := engine.BuildMetricRecord(
		core.SynthesisRequest{Text: "hello there", Voice: "af_test"},
		&core.SynthesisResult{
			Audio:      make([]float32, 24000),
			SampleRate: 24000,
			Backend:    core.BackendAccelerated,
		},
		250*time.Millisecond,
	)

	require.InDelta(t, 1.0, record.AudioDuration, 1e-9)
	require.InDelta(t, 0.25, record.RTF, 1e-3)
	require.Equal(t, core.BackendAccelerated, record.Method)
	require.Equal(t, 11, record.TextLength)
}
