package engine

import (
	"sync"
	"time"

	"github.com/unicorn-commander/tts-panel/internal/core"
)

// MetricsCapacity bounds the in-memory performance history.
const MetricsCapacity = 100

// MetricsSummary aggregates the retained history.
type MetricsSummary struct {
	TotalGenerations  int      `json:"total_generations"`
	AvgRTF            float64  `json:"avg_rtf"`
	AvgGenerationTime float64  `json:"avg_generation_time"`
	MethodsUsed       []string `json:"methods_used"`
}

// MetricsRing retains the most recent synthesis metrics, evicting the oldest
// record once capacity is reached.
type MetricsRing struct {
	mu      sync.Mutex
	records []core.MetricRecord
}

func NewMetricsRing() *MetricsRing {
	return &MetricsRing{records: make([]core.MetricRecord, 0, MetricsCapacity)}
}

// Append records one synthesis outcome.
func (r *MetricsRing) Append(record core.MetricRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) == MetricsCapacity {
		copy(r.records, r.records[1:])
		r.records = r.records[:MetricsCapacity-1]
	}

	r.records = append(r.records, record)
}

// Recent returns up to limit of the newest records, oldest first.
func (r *MetricsRing) Recent(limit int) []core.MetricRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > len(r.records) {
		limit = len(r.records)
	}

	out := make([]core.MetricRecord, limit)
	copy(out, r.records[len(r.records)-limit:])

	return out
}

// Summary aggregates totals, averages and the distinct backends observed.
func (r *MetricsRing) Summary() MetricsSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := MetricsSummary{
		TotalGenerations: len(r.records),
		MethodsUsed:      []string{},
	}

	if len(r.records) == 0 {
		return summary
	}

	seen := make(map[core.Backend]bool)

	var sumRTF, sumTime float64

	for _, record := range r.records {
		sumRTF += record.RTF
		sumTime += record.GenerationTime

		if !seen[record.Method] {
			seen[record.Method] = true

			summary.MethodsUsed = append(summary.MethodsUsed, string(record.Method))
		}
	}

	summary.AvgRTF = sumRTF / float64(len(r.records))
	summary.AvgGenerationTime = sumTime / float64(len(r.records))

	return summary
}

// BuildMetricRecord derives the per-request performance record. A zero audio
// duration yields an RTF of zero rather than a division blowup.
func BuildMetricRecord(
	req core.SynthesisRequest,
	result *core.SynthesisResult,
	generationTime time.Duration,
) core.MetricRecord {
	duration := 0.0
	if result.SampleRate > 0 {
		duration = float64(len(result.Audio)) / float64(result.SampleRate)
	}

	genSeconds := generationTime.Seconds()

	rtf := 0.0
	if duration > 0 {
		rtf = genSeconds / duration
	}

	return core.MetricRecord{
		Timestamp:      time.Now().UTC(),
		Method:         result.Backend,
		Voice:          req.Voice,
		TextLength:     len(req.Text),
		GenerationTime: genSeconds,
		AudioDuration:  duration,
		RTF:            rtf,
		SampleRate:     result.SampleRate,
	}
}
