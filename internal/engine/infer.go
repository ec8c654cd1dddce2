package engine

import (
	"context"
	"errors"
	"fmt"

	speech "github.com/getcharzp/go-speech"
	ort "github.com/getcharzp/onnxruntime_purego"
	"github.com/up-zero/gotool/convertutil"

	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

// Model graph input and output names.
const (
	inputTokens = "tokens"
	inputStyle  = "style"
	inputSpeed  = "speed"
	outputAudio = "audio"
)

// ErrNoModelOutput indicates the session returned no usable output tensor.
var ErrNoModelOutput = errors.New("model produced no output tensor")

// RunnerConfig configures the in-process model session.
type RunnerConfig struct {
	OnnxRuntimeLibPath string
	ModelPath          string
	ModelProfile       string
	SampleRate         int
}

// ModelRunner owns one ONNX session and exposes the base Executor over it.
// The input profile is resolved once at load time.
type ModelRunner struct {
	session    *ort.Session
	profile    core.ModelInputProfile
	sampleRate int
	log        *weblog.Log
}

// NewModelRunner initializes the ONNX runtime and loads the model.
func NewModelRunner(cfg RunnerConfig, log *weblog.Log) (*ModelRunner, error) {
	onnxConfig := new(speech.OnnxConfig)

	err := convertutil.CopyProperties(cfg, onnxConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to map ONNX configuration: %w", err)
	}

	err = onnxConfig.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	session, err := onnxConfig.OnnxEngine.NewSession(cfg.ModelPath, onnxConfig.SessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", cfg.ModelPath, err)
	}

	return &ModelRunner{
		session:    session,
		profile:    ResolveProfile(cfg.ModelProfile),
		sampleRate: cfg.SampleRate,
		log:        log,
	}, nil
}

// Profile returns the input layout resolved at load time.
func (r *ModelRunner) Profile() core.ModelInputProfile {
	return r.profile
}

// SampleRate returns the model's output sample rate.
func (r *ModelRunner) SampleRate() int {
	return r.sampleRate
}

// Executor returns the default execution path over this session.
func (r *ModelRunner) Executor() Executor {
	return func(ctx context.Context, inputs core.ModelInputs) ([]float32, error) {
		return r.run(ctx, inputs)
	}
}

// Close releases the session.
func (r *ModelRunner) Close() {
	if r.session != nil {
		r.session.Destroy()
		r.session = nil
	}
}

func (r *ModelRunner) run(ctx context.Context, inputs core.ModelInputs) ([]float32, error) {
	err := ctx.Err()
	if err != nil {
		return nil, fmt.Errorf("inference canceled: %w", err)
	}

	inputValues, cleanup, err := r.buildInputs(inputs)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	outputValues, err := r.session.Run(inputValues)
	if err != nil {
		return nil, fmt.Errorf("inference run failed: %w", err)
	}

	defer func() {
		for _, value := range outputValues {
			if value != nil {
				value.Destroy()
			}
		}
	}()

	outputValue := outputValues[outputAudio]
	if outputValue == nil {
		// Pre-compiled model variants rename the output; take the sole
		// tensor when the canonical name is absent.
		for _, value := range outputValues {
			outputValue = value

			break
		}
	}

	if outputValue == nil {
		return nil, ErrNoModelOutput
	}

	rawData, err := ort.GetTensorData[float32](outputValue)
	if err != nil {
		return nil, fmt.Errorf("failed to read output tensor: %w", err)
	}

	return FlattenResult(core.RawResult{
		Shape: []int64{int64(len(rawData))},
		Data:  rawData,
	}), nil
}

// buildInputs constructs the tensor map for the resolved profile. The cleanup
// function destroys every created tensor.
func (r *ModelRunner) buildInputs(inputs core.ModelInputs) (map[string]*ort.Value, func(), error) {
	created := make([]*ort.Value, 0, 3)
	cleanup := func() {
		for _, tensor := range created {
			tensor.Destroy()
		}
	}

	styleTensor, err := ort.NewTensor([]int64{1, int64(len(inputs.Style))}, inputs.Style)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to build style tensor: %w", err)
	}

	created = append(created, styleTensor)

	speedTensor, err := ort.NewTensor([]int64{1}, []float32{inputs.Speed})
	if err != nil {
		cleanup()

		return nil, func() {}, fmt.Errorf("failed to build speed tensor: %w", err)
	}

	created = append(created, speedTensor)

	inputValues := map[string]*ort.Value{
		inputStyle: styleTensor,
		inputSpeed: speedTensor,
	}

	if inputs.Profile == core.ProfileTokensAndStyle {
		tokensTensor, tokensErr := ort.NewTensor(
			[]int64{1, int64(len(inputs.Tokens))}, inputs.Tokens,
		)
		if tokensErr != nil {
			cleanup()

			return nil, func() {}, fmt.Errorf("failed to build tokens tensor: %w", tokensErr)
		}

		created = append(created, tokensTensor)
		inputValues[inputTokens] = tokensTensor
	}

	return inputValues, cleanup, nil
}
