// Package engine implements the accelerated synthesis execution engine: a
// fixed tokenization pipeline, length-bucketed voice styles, deterministic
// backend selection with CPU fallback, an isolated per-request worker process,
// and latency/real-time-factor metrics.
package engine

import "errors"

// Error taxonomy for one synthesis request. The first three are client input
// errors and map to HTTP 400; the rest are server-side.
var (
	// ErrEmptyInput indicates the request text was blank after trimming.
	ErrEmptyInput = errors.New("no text provided for synthesis")
	// ErrUnknownVoice indicates the voice id is absent from the style table.
	ErrUnknownVoice = errors.New("unknown voice")
	// ErrStyleIndexRange indicates the token sequence is longer than the
	// voice's style table supports.
	ErrStyleIndexRange = errors.New("token length exceeds supported style range")
	// ErrInvalidSpeed indicates a non-positive speed multiplier.
	ErrInvalidSpeed = errors.New("speed must be positive")

	// ErrTokenization wraps a phonemizer or vocabulary failure.
	ErrTokenization = errors.New("tokenization failed")
	// ErrWorkerTimeout indicates the isolated worker exceeded its wall-clock
	// limit.
	ErrWorkerTimeout = errors.New("synthesis worker timed out")
	// ErrWorkerProtocol indicates the worker produced no single well-formed
	// result line, exited non-zero, or left no audio artifact.
	ErrWorkerProtocol = errors.New("synthesis worker protocol violation")
	// ErrAcceleratorRuntime marks an accelerator-side failure; it is always
	// recovered internally by re-running the default execution path.
	ErrAcceleratorRuntime = errors.New("accelerator runtime failure")
	// ErrBackendUnavailable indicates no execution path could serve the
	// request; surfaced only when the CPU fallback itself failed.
	ErrBackendUnavailable = errors.New("no synthesis backend available")
)

// IsClientInputError reports whether err belongs to the client-input part of
// the taxonomy. These never trigger the CPU fallback retry.
func IsClientInputError(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrUnknownVoice) ||
		errors.Is(err, ErrStyleIndexRange) ||
		errors.Is(err, ErrInvalidSpeed)
}
