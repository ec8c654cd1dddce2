// Package core defines the shared types and interfaces of the synthesis engine.
package core

import (
	"context"
	"time"
)

// Backend identifies one of the available execution strategies for inference.
type Backend string

const (
	// BackendAccelerated routes eligible tensor operations to the NPU.
	BackendAccelerated Backend = "accelerated"
	// BackendBasicAccelerated uses the basic acceleration provider without
	// custom kernels.
	BackendBasicAccelerated Backend = "basic_accelerated"
	// BackendCPU is the default execution path and the terminal fallback.
	BackendCPU Backend = "cpu"
)

// MethodAuto requests automatic backend selection by capability precedence.
const MethodAuto = "auto"

// SynthesisRequest describes one synthesis call. It is created per HTTP or job
// request, immutable once constructed.
type SynthesisRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed"`
	Method   string  `json:"method"`
}

// SynthesisResult carries the produced audio. Audio, when present, is a
// non-empty one-dimensional sequence of finite samples in [-1, 1] after
// clipping. Ownership transfers to the caller; the engine does not retain it.
type SynthesisResult struct {
	Audio      []float32
	SampleRate int
	Backend    Backend
	Degraded   bool
}

// Capability reports which acceleration backends are actually usable on the
// current host. It is probed at process start and revalidated on failure.
type Capability struct {
	AcceleratedAvailable      bool      `json:"npu_available"`
	BasicAcceleratedAvailable bool      `json:"basic_provider_available"`
	HardwareDetected          string    `json:"hardware_detected"`
	ModelsLoaded              int       `json:"models_loaded"`
	VoicesLoaded              int       `json:"voices_loaded"`
	Readiness                 string    `json:"npu_readiness"`
	PerformanceTier           string    `json:"performance_tier"`
	ProbedAt                  time.Time `json:"probed_at"`
}

// MetricRecord is one synthesis measurement. RTF is generation time divided by
// audio duration, zero when the duration is zero.
type MetricRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	Method         Backend   `json:"method"`
	Voice          string    `json:"voice"`
	TextLength     int       `json:"text_length"`
	GenerationTime float64   `json:"generation_time"`
	AudioDuration  float64   `json:"audio_duration"`
	RTF            float64   `json:"rtf"`
	SampleRate     int       `json:"sample_rate"`
}

// ModelInputProfile selects the input layout the loaded model expects. It is
// resolved once at model load time, never re-inspected per call.
type ModelInputProfile int

const (
	// ProfileTokensAndStyle is the standard layout: tokens, style, speed.
	ProfileTokensAndStyle ModelInputProfile = iota
	// ProfileStyleOnly is used by pre-compiled models that bake the token
	// path into the graph and only take style and speed.
	ProfileStyleOnly
)

// ModelInputs are the prepared inputs for one inference call. Tokens carry the
// boundary padding already applied.
type ModelInputs struct {
	Tokens  []int64
	Style   []float32
	Speed   float32
	Profile ModelInputProfile
}

// RawResult is an unnormalized execution output. An empty Shape marks a
// zero-dimensional (scalar) result, which callers must reshape to a
// single-element sequence before use.
type RawResult struct {
	Shape []int64
	Data  []float32
}

// Phonemizer converts raw text plus a language tag into a phoneme sequence.
type Phonemizer interface {
	Phonemize(ctx context.Context, text, lang string) (string, error)
}

// Vocabulary maps a phoneme sequence to integer token ids.
type Vocabulary interface {
	TokenIDs(phonemes string) ([]int64, error)
}

// Accelerator executes one model call on an acceleration device. Any error is
// recoverable: callers fall back to the default execution path.
type Accelerator interface {
	Name() string
	Execute(ctx context.Context, inputs ModelInputs) (RawResult, error)
}

// SpeechEngine is the public synthesis call consumed by the HTTP surface and
// the job worker.
type SpeechEngine interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, MetricRecord, error)
}

// ObjectStore is a key-value blob store for generated audio artifacts.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
