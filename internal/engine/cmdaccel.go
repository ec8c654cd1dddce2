package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

var errAcceleratorNoResult = errors.New("accelerator runner produced no result line")

// CommandAccelerator dispatches one model execution to an external
// accelerator host binary (the compiled NPU kernel runner). The request goes
// to the process stdin as a single JSON document; the response comes back as
// one JSON line carrying shape and data. The runner binary is an external
// contract that is consumed, not reimplemented.
type CommandAccelerator struct {
	binary string
	log    *weblog.Log
}

// NewCommandAccelerator creates an accelerator around the runner binary.
func NewCommandAccelerator(binary string, log *weblog.Log) *CommandAccelerator {
	return &CommandAccelerator{
		binary: binary,
		log:    log,
	}
}

// Name identifies the accelerator in fallback warnings.
func (a *CommandAccelerator) Name() string {
	return "npu-runner"
}

type acceleratorRequest struct {
	Tokens []int64   `json:"tokens"`
	Style  []float32 `json:"style"`
	Speed  float32   `json:"speed"`
}

type acceleratorResponse struct {
	Shape []int64   `json:"shape"`
	Data  []float32 `json:"data"`
	Error string    `json:"error,omitempty"`
}

// Execute runs one call on the accelerator. Every failure mode returns an
// error so the composing wrapper can fall back to the default path.
func (a *CommandAccelerator) Execute(ctx context.Context, inputs core.ModelInputs) (core.RawResult, error) {
	request := acceleratorRequest{
		Tokens: inputs.Tokens,
		Style:  inputs.Style,
		Speed:  inputs.Speed,
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return core.RawResult{}, fmt.Errorf("failed to marshal accelerator request: %w", err)
	}

	cmd := exec.CommandContext(ctx, a.binary)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err != nil {
		return core.RawResult{}, fmt.Errorf(
			"accelerator runner failed: %w, stderr: %s", err, stderr.String(),
		)
	}

	response, err := parseAcceleratorResponse(&stdout)
	if err != nil {
		return core.RawResult{}, err
	}

	if response.Error != "" {
		return core.RawResult{}, fmt.Errorf("accelerator reported: %s", response.Error)
	}

	return core.RawResult{Shape: response.Shape, Data: response.Data}, nil
}

func parseAcceleratorResponse(stdout *bytes.Buffer) (*acceleratorResponse, error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var response acceleratorResponse

		err := json.Unmarshal(line, &response)
		if err != nil {
			continue
		}

		return &response, nil
	}

	return nil, errAcceleratorNoResult
}
