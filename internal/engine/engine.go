package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/unicorn-commander/tts-panel/internal/audio"
	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

// Execution modes. Isolated runs every attempt in a fresh worker process;
// in-process keeps a resident model session.
const (
	ModeIsolated  = "isolated"
	ModeInProcess = "inprocess"
)

// Request lifecycle states, logged at each transition.
const (
	stateReceived        = "RECEIVED"
	stateBackendSelected = "BACKEND_SELECTED"
	stateTokenized       = "TOKENIZED"
	stateStyleResolved   = "STYLE_RESOLVED"
	stateInferring       = "INFERRING"
	stateSucceeded       = "SUCCEEDED"
	stateFailed          = "FAILED"
)

const logFmtState = "Request %s: state=%s backend=%s"

// MetricSink receives each completed synthesis record, for live broadcast.
type MetricSink func(record core.MetricRecord)

// Options wires an Engine.
type Options struct {
	Mode       string
	Tokenizer  *Tokenizer
	Styles     *StyleTable
	Capability *CapabilityCache
	Launcher   *WorkerLauncher
	Executor   Executor
	Profile    core.ModelInputProfile
	SampleRate int
	Language   string
	Sink       MetricSink
}

// Engine drives one synthesis request through validation, backend selection,
// tokenization, style resolution and inference, with a single CPU fallback
// retry on accelerated failure.
type Engine struct {
	mode       string
	tokenizer  *Tokenizer
	styles     *StyleTable
	capability *CapabilityCache
	launcher   *WorkerLauncher
	executor   Executor
	profile    core.ModelInputProfile
	sampleRate int
	language   string
	metrics    *MetricsRing
	sink       MetricSink
	log        *weblog.Log
}

// New creates an Engine. Mode defaults to isolated.
func New(opts Options, log *weblog.Log) *Engine {
	mode := opts.Mode
	if mode == "" {
		mode = ModeIsolated
	}

	return &Engine{
		mode:       mode,
		tokenizer:  opts.Tokenizer,
		styles:     opts.Styles,
		capability: opts.Capability,
		launcher:   opts.Launcher,
		executor:   opts.Executor,
		profile:    opts.Profile,
		sampleRate: opts.SampleRate,
		language:   opts.Language,
		metrics:    NewMetricsRing(),
		sink:       opts.Sink,
		log:        log,
	}
}

// Metrics exposes the retained performance history.
func (e *Engine) Metrics() *MetricsRing {
	return e.metrics
}

// Capability returns the current (possibly cached) hardware capability.
func (e *Engine) Capability(ctx context.Context) core.Capability {
	return e.capability.Get(ctx)
}

// Voices lists the loaded voice identifiers.
func (e *Engine) Voices() []string {
	return e.styles.Voices()
}

// Synthesize implements core.SpeechEngine.
func (e *Engine) Synthesize(
	ctx context.Context,
	req core.SynthesisRequest,
) (*core.SynthesisResult, core.MetricRecord, error) {
	started := time.Now()

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return nil, core.MetricRecord{}, ErrEmptyInput
	}

	if req.Speed == 0 {
		req.Speed = 1.0
	}

	if req.Speed < 0 {
		return nil, core.MetricRecord{}, fmt.Errorf("%w: %g", ErrInvalidSpeed, req.Speed)
	}

	if req.Method == "" {
		req.Method = core.MethodAuto
	}

	if req.Language == "" {
		req.Language = e.language
	}

	reqID := fmt.Sprintf("%08x", started.UnixNano()&0xffffffff)

	e.log.Info(logFmtState, reqID, stateReceived, req.Method)

	selection := SelectBackend(req.Method, e.capability.Get(ctx))
	if selection.Degraded {
		e.log.Warn(
			"Request %s: method %s unavailable, degraded to %s",
			reqID, req.Method, selection.Backend,
		)
	}

	e.log.Info(logFmtState, reqID, stateBackendSelected, selection.Backend)

	// Tokenize and resolve style up front in both modes so client input
	// errors surface as such before any worker process is spawned.
	tokens, style, err := e.prepareInputs(ctx, req, reqID)
	if err != nil {
		e.log.Error(logFmtState+": %v", reqID, stateFailed, selection.Backend, err)

		return nil, core.MetricRecord{}, err
	}

	e.log.Info(logFmtState, reqID, stateInferring, selection.Backend)

	result, err := e.attempt(ctx, req, selection.Backend, tokens, style)
	if err != nil && selection.Backend != core.BackendCPU && !IsClientInputError(err) {
		e.log.Warn(
			"Request %s: backend %s failed (%v), retrying on %s",
			reqID, selection.Backend, err, core.BackendCPU,
		)
		e.capability.Invalidate()

		result, err = e.attempt(ctx, req, core.BackendCPU, tokens, style)
		if result != nil {
			result.Degraded = true
		}
	}

	if err != nil {
		e.log.Error(logFmtState+": %v", reqID, stateFailed, selection.Backend, err)

		return nil, core.MetricRecord{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	result.Degraded = result.Degraded || selection.Degraded
	result.Audio = audio.Clip(result.Audio)

	record := BuildMetricRecord(req, result, time.Since(started))
	e.metrics.Append(record)

	if e.sink != nil {
		e.sink(record)
	}

	e.log.Info(
		logFmtState+" rtf=%.3f duration=%.2fs",
		reqID, stateSucceeded, result.Backend, record.RTF, record.AudioDuration,
	)

	return result, record, nil
}

func (e *Engine) prepareInputs(
	ctx context.Context,
	req core.SynthesisRequest,
	reqID string,
) ([]int64, []float32, error) {
	tokens, err := e.tokenizer.Tokenize(ctx, req.Text, req.Language)
	if err != nil {
		return nil, nil, err
	}

	padded := PadTokens(tokens)

	e.log.Info(logFmtState+" tokens=%d", reqID, stateTokenized, req.Method, len(padded))

	style, err := e.styles.Resolve(req.Voice, len(tokens))
	if err != nil {
		return nil, nil, err
	}

	e.log.Info(logFmtState, reqID, stateStyleResolved, req.Method)

	return padded, style, nil
}

func (e *Engine) attempt(
	ctx context.Context,
	req core.SynthesisRequest,
	backend core.Backend,
	tokens []int64,
	style []float32,
) (*core.SynthesisResult, error) {
	if e.mode == ModeIsolated {
		return e.launcher.RunIsolated(ctx, req, backend)
	}

	samples, err := e.executor(ctx, core.ModelInputs{
		Tokens:  tokens,
		Style:   style,
		Speed:   float32(req.Speed),
		Profile: e.profile,
	})
	if err != nil {
		return nil, err
	}

	return &core.SynthesisResult{
		Audio:      samples,
		SampleRate: e.sampleRate,
		Backend:    backend,
	}, nil
}
