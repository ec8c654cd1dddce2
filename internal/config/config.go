// Package config provides the configuration structure for the tts-panel service.
package config

import (
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied when the TOML omits a value.
const (
	DefaultPort                 = 5000
	DefaultSampleRate           = 24000
	DefaultSpeed                = 1.0
	DefaultWorkerTimeoutSeconds = 30
	DefaultMaxTextLength        = 1000
	DefaultLanguage             = "en-us"
	DefaultEspeakBinary         = "espeak-ng"
	DefaultWorkerBinary         = "synth-worker"
	DefaultExecutionMode        = "isolated"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// EngineConfig holds the synthesis engine settings: model resources, worker
// invocation, and the execution mode ("isolated" runs one worker process per
// request, "inprocess" keeps the ONNX session in the serving process).
type EngineConfig struct {
	ModelPath            string `toml:"model_path"`
	AcceleratedModelPath string `toml:"accelerated_model_path"`
	ModelConfigPath      string `toml:"model_config_path"`
	VoicesPath           string `toml:"voices_path"`
	OnnxRuntimeLibPath   string `toml:"onnxruntime_lib_path"`
	EspeakBinary         string `toml:"espeak_binary"`
	WorkerBinary         string `toml:"worker_binary"`
	AcceleratorCommand   string `toml:"accelerator_command"`
	ExecutionMode        string `toml:"execution_mode"`
	ModelProfile         string `toml:"model_profile"`
	Language             string `toml:"language"`
	WorkerTimeoutSeconds int    `toml:"worker_timeout_seconds"`
	SampleRate           int    `toml:"sample_rate"`
}

// PathsConfig holds the file system locations the service writes to.
type PathsConfig struct {
	AudioDir     string `toml:"audio_dir"`
	BaseLogsDir  string `toml:"base_logs_dir"`
	SettingsFile string `toml:"settings_file"`
}

// NATSConfig holds the optional job-intake settings. An empty URL disables the
// NATS worker entirely.
type NATSConfig struct {
	URL                    string `toml:"url"`
	SynthesisJobSubject    string `toml:"synthesis_job_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// Config is the root configuration structure.
type Config struct {
	Server ServerConfig `toml:"server"`
	Engine EngineConfig `toml:"engine"`
	Paths  PathsConfig  `toml:"paths"`
	NATS   NATSConfig   `toml:"nats"`
}

// Load loads the configuration via the central configurator and applies
// defaults for omitted values.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	if c.Engine.SampleRate == 0 {
		c.Engine.SampleRate = DefaultSampleRate
	}

	if c.Engine.WorkerTimeoutSeconds == 0 {
		c.Engine.WorkerTimeoutSeconds = DefaultWorkerTimeoutSeconds
	}

	if c.Engine.Language == "" {
		c.Engine.Language = DefaultLanguage
	}

	if c.Engine.EspeakBinary == "" {
		c.Engine.EspeakBinary = DefaultEspeakBinary
	}

	if c.Engine.WorkerBinary == "" {
		c.Engine.WorkerBinary = DefaultWorkerBinary
	}

	if c.Engine.ExecutionMode == "" {
		c.Engine.ExecutionMode = DefaultExecutionMode
	}
}

// WorkerTimeout returns the configured hard wall-clock limit for one isolated
// synthesis attempt.
func (c *EngineConfig) WorkerTimeout() time.Duration {
	return time.Duration(c.WorkerTimeoutSeconds) * time.Second
}
