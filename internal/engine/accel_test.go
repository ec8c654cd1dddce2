package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/engine"
)

type fakeAccelerator struct {
	result core.RawResult
	err    error
	calls  int
}

func (a *fakeAccelerator) Name() string { return "fake" }

func (a *fakeAccelerator) Execute(_ context.Context, _ core.ModelInputs) (core.RawResult, error) {
	a.calls++

	return a.result, a.err
}

func TestWithAccelerationUsesAcceleratorResult(t *testing.T) {
	t.Parallel()

	accel := &fakeAccelerator{
		result: core.RawResult{Shape: []int64{3}, Data: []float32{0.1, 0.2, 0.3}},
	}
	base := func(_ context.Context, _ core.ModelInputs) ([]float32, error) {
		t.Fatal("base must not run when the accelerator succeeds")

		return nil, nil
	}

	executor := engine.WithAcceleration(base, accel, newTestLog(t))

	samples, err := executor(context.Background(), core.ModelInputs{})
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, samples)
	require.Equal(t, 1, accel.calls)
}

func TestWithAccelerationFallsBackOnFailure(t *testing.T) {
	t.Parallel()

	accel := &fakeAccelerator{err: errors.New("device lost")}
	baseCalls := 0
	base := func(_ context.Context, inputs core.ModelInputs) ([]float32, error) {
		baseCalls++
		require.Equal(t, []int64{0, 7, 0}, inputs.Tokens)

		return []float32{0.5}, nil
	}

	executor := engine.WithAcceleration(base, accel, newTestLog(t))

	samples, err := executor(context.Background(), core.ModelInputs{Tokens: []int64{0, 7, 0}})
	require.NoError(t, err)
	require.Equal(t, []float32{0.5}, samples)
	require.Equal(t, 1, baseCalls)
}

func TestWithAccelerationNilAcceleratorIsBase(t *testing.T) {
	t.Parallel()

	base := func(_ context.Context, _ core.ModelInputs) ([]float32, error) {
		return []float32{1}, nil
	}

	executor := engine.WithAcceleration(base, nil, newTestLog(t))

	samples, err := executor(context.Background(), core.ModelInputs{})
	require.NoError(t, err)
	require.Equal(t, []float32{1}, samples)
}

func TestFlattenResultZeroDimensional(t *testing.T) {
	t.Parallel()

	// A scalar result becomes a one-element sequence, never an empty one.
	flat := engine.FlattenResult(core.RawResult{Shape: nil, Data: []float32{0.7}})
	require.Equal(t, []float32{0.7}, flat)

	flat = engine.FlattenResult(core.RawResult{Shape: []int64{}, Data: []float32{0.7, 0.9}})
	require.Equal(t, []float32{0.7}, flat)
}

func TestFlattenResultEmptyData(t *testing.T) {
	t.Parallel()

	flat := engine.FlattenResult(core.RawResult{Shape: []int64{0}, Data: nil})
	require.Equal(t, []float32{0}, flat)
}

func TestFlattenResultPassThrough(t *testing.T) {
	t.Parallel()

	data := []float32{0.1, 0.2}
	flat := engine.FlattenResult(core.RawResult{Shape: []int64{1, 2}, Data: data})
	require.Equal(t, data, flat)
}
