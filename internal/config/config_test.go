// Package config_test tests default application for the service configuration.
package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unicorn-commander/tts-panel/internal/config"
)

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.ApplyDefaults()

	require.Equal(t, config.DefaultPort, cfg.Server.Port)
	require.Equal(t, config.DefaultSampleRate, cfg.Engine.SampleRate)
	require.Equal(t, config.DefaultWorkerTimeoutSeconds, cfg.Engine.WorkerTimeoutSeconds)
	require.Equal(t, config.DefaultLanguage, cfg.Engine.Language)
	require.Equal(t, config.DefaultEspeakBinary, cfg.Engine.EspeakBinary)
	require.Equal(t, config.DefaultWorkerBinary, cfg.Engine.WorkerBinary)
	require.Equal(t, config.DefaultExecutionMode, cfg.Engine.ExecutionMode)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.Server.Port = 8080
	cfg.Engine.ExecutionMode = "inprocess"
	cfg.Engine.WorkerTimeoutSeconds = 60

	cfg.ApplyDefaults()

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "inprocess", cfg.Engine.ExecutionMode)
	require.Equal(t, 60*time.Second, cfg.Engine.WorkerTimeout())
}
