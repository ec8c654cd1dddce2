package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/unicorn-commander/tts-panel/internal/audio"
	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

// DefaultWorkerTimeout is the hard wall-clock limit for one isolated attempt.
const DefaultWorkerTimeout = 30 * time.Second

const workerResultScanLimit = 1024 * 1024

// Environment variables forwarded into the worker. Everything else is
// dropped so a polluted host environment cannot leak shared-library paths
// into the inference runtime.
var workerEnvAllowlist = []string{"PATH", "HOME", "TMPDIR", "LD_LIBRARY_PATH"}

// WorkerConfig configures the launcher.
type WorkerConfig struct {
	Binary               string
	ModelPath            string
	AcceleratedModelPath string
	ModelConfigPath      string
	VoicesPath           string
	OnnxRuntimeLibPath   string
	EspeakBinary         string
	AcceleratorCommand   string
	ModelProfile         string
	Timeout              time.Duration
}

// WorkerLauncher runs exactly one synthesis attempt per fresh worker process.
// No pooling: a faulty accelerator runtime, missing shared library, or native
// crash can only take down the worker, and every call starts from a clean
// interpreter state.
type WorkerLauncher struct {
	cfg WorkerConfig
	log *weblog.Log
}

// NewWorkerLauncher creates a launcher. A zero timeout falls back to
// DefaultWorkerTimeout.
func NewWorkerLauncher(cfg WorkerConfig, log *weblog.Log) *WorkerLauncher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWorkerTimeout
	}

	return &WorkerLauncher{cfg: cfg, log: log}
}

// workerRequest is the typed request serialized onto the worker's stdin. No
// shell interpolation is involved at any point.
type workerRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed"`
}

// workerResult is the single structured line the worker writes to stdout.
type workerResult struct {
	Success    bool   `json:"success"`
	SampleRate int    `json:"sample_rate,omitempty"`
	AudioRef   string `json:"audio_ref,omitempty"`
	Error      string `json:"error,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// RunIsolated executes one synthesis attempt in a subordinate process and
// recovers a typed result or a diagnosable error across the boundary.
func (l *WorkerLauncher) RunIsolated(
	ctx context.Context,
	req core.SynthesisRequest,
	backend core.Backend,
) (*core.SynthesisResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(workerRequest{
		Text:     req.Text,
		Voice:    req.Voice,
		Language: req.Language,
		Speed:    req.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal worker request: %w", err)
	}

	cmd := l.buildCommand(runCtx, backend)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		// The worker may have persisted its artifact just before the kill.
		if result, _ := parseWorkerOutput(stdout.Bytes()); result != nil {
			removeArtifact(result.AudioRef, l.log)
		}

		return nil, fmt.Errorf(
			"%w after %s (backend %s)", ErrWorkerTimeout, l.cfg.Timeout, backend,
		)
	}

	result, parseErr := parseWorkerOutput(stdout.Bytes())

	// A worker that reported a structured failure gets to explain itself
	// even when it also exited non-zero.
	if result != nil && !result.Success {
		removeArtifact(result.AudioRef, l.log)

		return nil, fmt.Errorf(
			"%w: worker reported %s: %s", ErrWorkerProtocol, result.Error, result.Detail,
		)
	}

	if runErr != nil {
		if result != nil {
			removeArtifact(result.AudioRef, l.log)
		}

		return nil, workerDiagnosticError("worker exited abnormally", runErr, &stdout, &stderr)
	}

	if parseErr != nil {
		return nil, workerDiagnosticError("unusable worker output", parseErr, &stdout, &stderr)
	}

	samples, loadErr := loadArtifact(result, l.log)
	if loadErr != nil {
		return nil, workerDiagnosticError("missing audio artifact", loadErr, &stdout, &stderr)
	}

	l.log.Info(
		"Isolated worker finished: backend=%s samples=%d elapsed=%.2fs",
		backend, len(samples), time.Since(started).Seconds(),
	)

	return &core.SynthesisResult{
		Audio:      samples,
		SampleRate: result.SampleRate,
		Backend:    backend,
	}, nil
}

func (l *WorkerLauncher) buildCommand(ctx context.Context, backend core.Backend) *exec.Cmd {
	modelPath := l.cfg.ModelPath
	if backend != core.BackendCPU && l.cfg.AcceleratedModelPath != "" {
		modelPath = l.cfg.AcceleratedModelPath
	}

	args := []string{
		"--model", modelPath,
		"--model-config", l.cfg.ModelConfigPath,
		"--voices", l.cfg.VoicesPath,
		"--backend", string(backend),
	}

	if l.cfg.OnnxRuntimeLibPath != "" {
		args = append(args, "--onnx-lib", l.cfg.OnnxRuntimeLibPath)
	}

	if l.cfg.EspeakBinary != "" {
		args = append(args, "--espeak", l.cfg.EspeakBinary)
	}

	if l.cfg.ModelProfile != "" {
		args = append(args, "--profile", l.cfg.ModelProfile)
	}

	if backend == core.BackendAccelerated && l.cfg.AcceleratorCommand != "" {
		args = append(args, "--accelerator", l.cfg.AcceleratorCommand)
	}

	cmd := exec.CommandContext(ctx, l.cfg.Binary, args...)
	cmd.Env = cleanWorkerEnv()

	return cmd
}

// cleanWorkerEnv builds the reduced environment for the worker process.
func cleanWorkerEnv() []string {
	env := make([]string, 0, len(workerEnvAllowlist))

	for _, key := range workerEnvAllowlist {
		if value, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+value)
		}
	}

	return env
}

// parseWorkerOutput scans stdout for exactly one well-formed result line,
// tolerating incidental diagnostic text on other lines. Zero or multiple
// result lines are protocol violations.
func parseWorkerOutput(stdout []byte) (*workerResult, error) {
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), workerResultScanLimit)

	var (
		found *workerResult
		count int
	)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' || line[len(line)-1] != '}' {
			continue
		}

		// A result line must carry the "success" discriminator; other JSON
		// objects are diagnostic noise.
		var fields map[string]json.RawMessage

		err := json.Unmarshal(line, &fields)
		if err != nil {
			continue
		}

		if _, ok := fields["success"]; !ok {
			continue
		}

		var result workerResult

		err = json.Unmarshal(line, &result)
		if err != nil {
			continue
		}

		count++

		if found == nil {
			copied := result
			found = &copied
		}
	}

	switch {
	case count == 0:
		return nil, errors.New("no structured result line in worker output")
	case count > 1:
		return nil, fmt.Errorf("expected one structured result line, found %d", count)
	default:
		return found, nil
	}
}

// loadArtifact reads and then unconditionally deletes the temporary audio
// artifact the worker persisted.
func loadArtifact(result *workerResult, log *weblog.Log) ([]float32, error) {
	if result.AudioRef == "" {
		return nil, errors.New("result carries no audio reference")
	}

	defer removeArtifact(result.AudioRef, log)

	samples, err := audio.ReadRawFloat32(result.AudioRef)
	if err != nil {
		return nil, err
	}

	return samples, nil
}

func removeArtifact(path string, log *weblog.Log) {
	if path == "" {
		return
	}

	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove worker artifact %s: %v", path, err)
	}
}

// workerDiagnosticError normalizes any boundary deviation into
// ErrWorkerProtocol carrying the captured worker output for diagnosis.
func workerDiagnosticError(msg string, cause error, stdout, stderr *bytes.Buffer) error {
	return fmt.Errorf(
		"%w: %s: %v, stdout: %q, stderr: %q",
		ErrWorkerProtocol, msg, cause, stdout.String(), stderr.String(),
	)
}
