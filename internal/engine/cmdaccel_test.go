package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/engine"
)

func writeAcceleratorScript(t *testing.T, body string) *engine.CommandAccelerator {
	t.Helper()

	path := filepath.Join(t.TempDir(), "npu-runner")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o700))

	return engine.NewCommandAccelerator(path, newTestLog(t))
}

func TestCommandAcceleratorExecute(t *testing.T) {
	t.Parallel()

	accel := writeAcceleratorScript(t,
		"echo 'kernel dispatch ok'\n"+
			"echo '{\"shape\":[1,3],\"data\":[0.1,0.2,0.3]}'\n",
	)

	raw, err := accel.Execute(context.Background(), core.ModelInputs{
		Tokens: []int64{0, 5, 0},
		Style:  []float32{0.5},
		Speed:  1.0,
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, raw.Shape)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, raw.Data)
}

func TestCommandAcceleratorReportedError(t *testing.T) {
	t.Parallel()

	accel := writeAcceleratorScript(t, "echo '{\"error\":\"kernel compilation failed\"}'\n")

	_, err := accel.Execute(context.Background(), core.ModelInputs{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "kernel compilation failed")
}

func TestCommandAcceleratorNoResultLine(t *testing.T) {
	t.Parallel()

	accel := writeAcceleratorScript(t, "echo 'no json here'\n")

	_, err := accel.Execute(context.Background(), core.ModelInputs{})
	require.Error(t, err)
}

func TestCommandAcceleratorNonZeroExit(t *testing.T) {
	t.Parallel()

	accel := writeAcceleratorScript(t, "exit 2\n")

	_, err := accel.Execute(context.Background(), core.ModelInputs{})
	require.Error(t, err)
}
