// main package for synth-worker, the single-shot synthesis process. It reads
// one JSON request from stdin, synthesizes it, persists the waveform as a raw
// float32 artifact, and prints exactly one JSON result line to stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/book-expert/logger"

	"github.com/unicorn-commander/tts-panel/internal/audio"
	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/engine"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

// Flag descriptions.
const (
	flagModelDesc       = "Path to the ONNX model"
	flagModelConfigDesc = "Path to the model config JSON (vocab, dimensions)"
	flagVoicesDesc      = "Path to the binary voices resource"
	flagBackendDesc     = "Execution backend: accelerated, basic_accelerated or cpu"
	flagOnnxLibDesc     = "Path to the onnxruntime shared library"
	flagEspeakDesc      = "espeak-ng binary name or path"
	flagAcceleratorDesc = "External accelerator runner binary (accelerated backend only)"
	flagProfileDesc     = "Model input profile: standard or style_only"
)

type workerFlags struct {
	model       string
	modelConfig string
	voices      string
	backend     string
	onnxLib     string
	espeak      string
	accelerator string
	profile     string
}

type workerRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed"`
}

type workerResult struct {
	Success    bool   `json:"success"`
	SampleRate int    `json:"sample_rate,omitempty"`
	AudioRef   string `json:"audio_ref,omitempty"`
	Error      string `json:"error,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

func main() {
	flags := parseFlags()

	err := run(flags)
	if err != nil {
		// Typed failures were already reported as a structured result line;
		// reaching here means the worker itself is broken.
		fmt.Fprintf(os.Stderr, "synth-worker: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() workerFlags {
	var flags workerFlags

	flag.StringVar(&flags.model, "model", "", flagModelDesc)
	flag.StringVar(&flags.modelConfig, "model-config", "", flagModelConfigDesc)
	flag.StringVar(&flags.voices, "voices", "", flagVoicesDesc)
	flag.StringVar(&flags.backend, "backend", string(core.BackendCPU), flagBackendDesc)
	flag.StringVar(&flags.onnxLib, "onnx-lib", "", flagOnnxLibDesc)
	flag.StringVar(&flags.espeak, "espeak", "espeak-ng", flagEspeakDesc)
	flag.StringVar(&flags.accelerator, "accelerator", "", flagAcceleratorDesc)
	flag.StringVar(&flags.profile, "profile", "", flagProfileDesc)
	flag.Parse()

	return flags
}

func run(flags workerFlags) error {
	fileLog, err := logger.New(os.TempDir(), "synth-worker.log")
	if err != nil {
		return fmt.Errorf("failed to create worker logger: %w", err)
	}

	defer func() { _ = fileLog.Close() }()

	log := weblog.New(fileLog, weblog.NewBuffer(0), "synth-worker")

	var request workerRequest

	err = json.NewDecoder(os.Stdin).Decode(&request)
	if err != nil {
		return fmt.Errorf("failed to decode request from stdin: %w", err)
	}

	samples, sampleRate, synthErr := synthesize(flags, request, log)
	if synthErr != nil {
		if isReportableError(synthErr) {
			return emitResult(workerResult{
				Success: false,
				Error:   errorName(synthErr),
				Detail:  synthErr.Error(),
			})
		}

		return synthErr
	}

	artifact, err := os.CreateTemp("", "synth-*.raw")
	if err != nil {
		return fmt.Errorf("failed to create audio artifact: %w", err)
	}

	artifactPath := artifact.Name()

	closeErr := artifact.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to close audio artifact: %w", closeErr)
	}

	err = audio.WriteRawFloat32(artifactPath, samples)
	if err != nil {
		_ = os.Remove(artifactPath)

		return err
	}

	return emitResult(workerResult{
		Success:    true,
		SampleRate: sampleRate,
		AudioRef:   artifactPath,
	})
}

func synthesize(
	flags workerFlags,
	request workerRequest,
	log *weblog.Log,
) ([]float32, int, error) {
	ctx := context.Background()

	modelConfig, err := engine.LoadModelConfig(flags.modelConfig)
	if err != nil {
		return nil, 0, err
	}

	styles, err := engine.LoadStyleTable(flags.voices)
	if err != nil {
		return nil, 0, err
	}

	tokenizer := engine.NewTokenizer(
		engine.NewEspeakPhonemizer(flags.espeak, log), modelConfig, log,
	)

	tokens, err := tokenizer.Tokenize(ctx, request.Text, request.Language)
	if err != nil {
		return nil, 0, err
	}

	padded := engine.PadTokens(tokens)

	style, err := styles.Resolve(request.Voice, len(tokens))
	if err != nil {
		return nil, 0, err
	}

	runner, err := engine.NewModelRunner(engine.RunnerConfig{
		OnnxRuntimeLibPath: flags.onnxLib,
		ModelPath:          flags.model,
		ModelProfile:       flags.profile,
		SampleRate:         modelConfig.SampleRate,
	}, log)
	if err != nil {
		return nil, 0, err
	}

	defer runner.Close()

	executor := runner.Executor()

	if flags.backend == string(core.BackendAccelerated) && flags.accelerator != "" {
		executor = engine.WithAcceleration(
			executor, engine.NewCommandAccelerator(flags.accelerator, log), log,
		)
	}

	speed := request.Speed
	if speed == 0 {
		speed = 1.0
	}

	samples, err := executor(ctx, core.ModelInputs{
		Tokens:  padded,
		Style:   style,
		Speed:   float32(speed),
		Profile: runner.Profile(),
	})
	if err != nil {
		return nil, 0, err
	}

	return samples, runner.SampleRate(), nil
}

func emitResult(result workerResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	fmt.Println(string(data))

	return nil
}

// isReportableError marks failures the parent should receive as a structured
// result rather than a crashed worker.
func isReportableError(err error) bool {
	return engine.IsClientInputError(err) ||
		errors.Is(err, engine.ErrTokenization) ||
		errors.Is(err, engine.ErrBadVoicesResource) ||
		errors.Is(err, engine.ErrNoModelOutput)
}

func errorName(err error) string {
	switch {
	case errors.Is(err, engine.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, engine.ErrUnknownVoice):
		return "unknown_voice"
	case errors.Is(err, engine.ErrStyleIndexRange):
		return "style_index_range"
	case errors.Is(err, engine.ErrInvalidSpeed):
		return "invalid_speed"
	case errors.Is(err, engine.ErrTokenization):
		return "tokenization_failed"
	case errors.Is(err, engine.ErrBadVoicesResource):
		return "bad_voices_resource"
	case errors.Is(err, engine.ErrNoModelOutput):
		return "no_model_output"
	default:
		return "synthesis_failed"
	}
}
