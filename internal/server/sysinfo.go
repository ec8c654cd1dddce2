package server

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

// SystemInfo is the host snapshot served by /system.
type SystemInfo struct {
	Hostname      string  `json:"hostname"`
	Platform      string  `json:"platform"`
	KernelVersion string  `json:"kernel_version"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
	CPUModel      string  `json:"cpu_model"`
	CPUCores      int     `json:"cpu_cores"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryPercent float64 `json:"memory_percent"`
	GoVersion     string  `json:"go_version"`
}

// collectSystemInfo gathers a best-effort host snapshot. Individual probe
// failures leave their fields zeroed rather than failing the endpoint.
func collectSystemInfo(ctx context.Context, log *weblog.Log) SystemInfo {
	info := SystemInfo{
		CPUCores:  runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}

	hostInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		log.Warn("Host info probe failed: %v", err)
	} else {
		info.Hostname = hostInfo.Hostname
		info.Platform = hostInfo.Platform
		info.KernelVersion = hostInfo.KernelVersion
		info.UptimeSeconds = hostInfo.Uptime
	}

	cpuInfo, err := cpu.InfoWithContext(ctx)
	if err != nil {
		log.Warn("CPU info probe failed: %v", err)
	} else if len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}

	percentages, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
	if err != nil {
		log.Warn("CPU usage probe failed: %v", err)
	} else if len(percentages) > 0 {
		info.CPUPercent = percentages[0]
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		log.Warn("Memory probe failed: %v", err)
	} else {
		info.MemoryTotal = memInfo.Total
		info.MemoryUsed = memInfo.Used
		info.MemoryPercent = memInfo.UsedPercent
	}

	return info
}
