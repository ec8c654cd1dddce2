package engine

import (
	"context"

	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

// Executor runs one model call over prepared inputs and yields the waveform.
type Executor func(ctx context.Context, inputs core.ModelInputs) ([]float32, error)

// WithAcceleration composes an executor that tries the accelerator first and
// re-invokes the base executor unchanged on any accelerator-side failure.
// Acceleration failures are never fatal to the request, only to the
// performance win. A nil accelerator returns the base executor as-is.
func WithAcceleration(base Executor, accelerator core.Accelerator, log *weblog.Log) Executor {
	if accelerator == nil {
		return base
	}

	return func(ctx context.Context, inputs core.ModelInputs) ([]float32, error) {
		raw, err := accelerator.Execute(ctx, inputs)
		if err != nil {
			log.Warn(
				"Accelerator %s failed, falling back to default execution: %v: %v",
				accelerator.Name(), ErrAcceleratorRuntime, err,
			)

			return base(ctx, inputs)
		}

		return FlattenResult(raw), nil
	}
}

// FlattenResult normalizes an execution output to a one-dimensional sample
// slice. A zero-dimensional (scalar) result becomes a single-element slice:
// the degenerate shape must never propagate as-is.
func FlattenResult(raw core.RawResult) []float32 {
	if len(raw.Data) == 0 {
		return []float32{0}
	}

	if len(raw.Shape) == 0 {
		return []float32{raw.Data[0]}
	}

	flat := make([]float32, len(raw.Data))
	copy(flat, raw.Data)

	return flat
}
