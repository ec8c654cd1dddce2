package engine

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

// Probe commands and markers for the NPU capability check.
const (
	probeKernelModule = "amdxdna"
	probeXRTBinary    = "xrt-smi"
	probeXRTMarker    = "NPU Phoenix"
	probeXRTTimeout   = 5 * time.Second

	hardwareNPUPhoenix = "AMD Ryzen AI NPU Phoenix"
	hardwareUnknown    = "Unknown"
)

// Readiness and performance tier labels reported by /status.
const (
	ReadinessFull    = "100%"
	ReadinessPartial = "75%"
	ReadinessMissing = "0%"

	TierAccelerated = "npu_ready"
	TierOptimized   = "optimized"
	TierBaseline    = "baseline"
)

// Selection is the outcome of backend selection. Degraded marks an explicit
// request that could not be honored and fell back to CPU; it is a log signal,
// never a hard failure.
type Selection struct {
	Backend  core.Backend
	Degraded bool
}

// SelectBackend applies the deterministic precedence: "auto" picks the best
// available backend; an explicit method is honored when available and
// otherwise degrades to CPU.
func SelectBackend(method string, capability core.Capability) Selection {
	switch normalizeMethod(method) {
	case core.MethodAuto, "":
		return Selection{Backend: autoBackend(capability), Degraded: false}
	case string(core.BackendAccelerated):
		if capability.AcceleratedAvailable {
			return Selection{Backend: core.BackendAccelerated, Degraded: false}
		}

		return Selection{Backend: core.BackendCPU, Degraded: true}
	case string(core.BackendBasicAccelerated):
		if capability.BasicAcceleratedAvailable {
			return Selection{Backend: core.BackendBasicAccelerated, Degraded: false}
		}

		return Selection{Backend: core.BackendCPU, Degraded: true}
	case string(core.BackendCPU):
		return Selection{Backend: core.BackendCPU, Degraded: false}
	default:
		// Unrecognized methods behave like an explicit unavailable request.
		return Selection{Backend: core.BackendCPU, Degraded: true}
	}
}

// normalizeMethod folds the hardware-flavored method names used by the
// settings surface onto the backend identifiers.
func normalizeMethod(method string) string {
	switch method {
	case "mlir_npu":
		return string(core.BackendAccelerated)
	case "vitisai":
		return string(core.BackendBasicAccelerated)
	default:
		return method
	}
}

func autoBackend(capability core.Capability) core.Backend {
	if capability.AcceleratedAvailable {
		return core.BackendAccelerated
	}

	if capability.BasicAcceleratedAvailable {
		return core.BackendBasicAccelerated
	}

	return core.BackendCPU
}

// ProbeFunc produces a capability snapshot for the current host.
type ProbeFunc func(ctx context.Context) core.Capability

// CapabilityCache holds the process-wide capability snapshot. Reads are
// lock-cheap; Invalidate forces the next Get to re-probe.
type CapabilityCache struct {
	mu     sync.RWMutex
	probe  ProbeFunc
	cached core.Capability
	valid  bool
}

// NewCapabilityCache creates a cache around the given probe.
func NewCapabilityCache(probe ProbeFunc) *CapabilityCache {
	return &CapabilityCache{probe: probe}
}

// Get returns the cached snapshot, probing on first use or after
// invalidation.
func (c *CapabilityCache) Get(ctx context.Context) core.Capability {
	c.mu.RLock()
	if c.valid {
		capability := c.cached
		c.mu.RUnlock()

		return capability
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.valid {
		c.cached = c.probe(ctx)
		c.valid = true
	}

	return c.cached
}

// Invalidate discards the snapshot so the next Get re-probes. Called after
// any accelerated-path failure.
func (c *CapabilityCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// HostProber probes real host capabilities: the NPU kernel module, the XRT
// runtime, and the presence of model and voices resources.
type HostProber struct {
	modelPaths []string
	voicesPath string
	voiceCount int
	log        *weblog.Log
}

// NewHostProber creates a prober over the configured resource paths. The
// voice count is reported once the voices resource is loaded.
func NewHostProber(modelPaths []string, voicesPath string, voiceCount int, log *weblog.Log) *HostProber {
	return &HostProber{
		modelPaths: modelPaths,
		voicesPath: voicesPath,
		voiceCount: voiceCount,
		log:        log,
	}
}

// Probe inspects the host. Failures of individual checks degrade that
// capability rather than failing the probe.
func (p *HostProber) Probe(ctx context.Context) core.Capability {
	capability := core.Capability{
		HardwareDetected: hardwareUnknown,
		Readiness:        ReadinessMissing,
		PerformanceTier:  TierBaseline,
		ProbedAt:         time.Now(),
	}

	if kernelModuleLoaded(ctx, probeKernelModule) {
		capability.HardwareDetected = hardwareNPUPhoenix
		capability.BasicAcceleratedAvailable = true
		capability.Readiness = ReadinessPartial

		if xrtRuntimeReady(ctx) {
			capability.AcceleratedAvailable = true
			capability.Readiness = ReadinessFull
		}
	}

	for _, path := range p.modelPaths {
		if path == "" {
			continue
		}

		_, statErr := os.Stat(path)
		if statErr == nil {
			capability.ModelsLoaded++
		}
	}

	if _, statErr := os.Stat(p.voicesPath); statErr == nil {
		capability.VoicesLoaded = p.voiceCount
	}

	capability.PerformanceTier = performanceTier(capability)

	p.log.Info(
		"Capability probe: hardware=%s accelerated=%t basic=%t models=%d",
		capability.HardwareDetected,
		capability.AcceleratedAvailable,
		capability.BasicAcceleratedAvailable,
		capability.ModelsLoaded,
	)

	return capability
}

func performanceTier(capability core.Capability) string {
	switch {
	case capability.ModelsLoaded >= 2 && capability.AcceleratedAvailable:
		return TierAccelerated
	case capability.ModelsLoaded >= 1:
		return TierOptimized
	default:
		return TierBaseline
	}
}

func kernelModuleLoaded(ctx context.Context, module string) bool {
	cmd := exec.CommandContext(ctx, "lsmod")

	var stdout bytes.Buffer

	cmd.Stdout = &stdout

	err := cmd.Run()
	if err != nil {
		return false
	}

	return strings.Contains(stdout.String(), module)
}

func xrtRuntimeReady(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeXRTTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, probeXRTBinary, "examine")

	var stdout bytes.Buffer

	cmd.Stdout = &stdout

	err := cmd.Run()
	if err != nil {
		return false
	}

	return strings.Contains(stdout.String(), probeXRTMarker)
}
