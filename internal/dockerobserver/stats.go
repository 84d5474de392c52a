package dockerobserver

import (
	"encoding/json"
	"io"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/docker/docker/api/types/container"
)

// decodeStats reads one stats document from the runtime and converts it
// into a ContainerStatsSnapshot, the package's common currency for the
// rate-derivation math (§4.5 "Metrics sampler").
func decodeStats(body io.Reader) (domain.ContainerStatsSnapshot, error) {
	var raw container.StatsResponse
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return domain.ContainerStatsSnapshot{}, err
	}

	var rx, tx uint64
	for _, net := range raw.Networks {
		rx += net.RxBytes
		tx += net.TxBytes
	}

	var readBytes, writeBytes uint64
	for _, entry := range raw.BlkioStats.IoServiceBytesRecursive {
		switch entry.Op {
		case "read", "Read":
			readBytes += entry.Value
		case "write", "Write":
			writeBytes += entry.Value
		}
	}

	return domain.ContainerStatsSnapshot{
		At:             raw.Read,
		CPUTotalNanos:  raw.CPUStats.CPUUsage.TotalUsage,
		SystemCPUNanos: raw.CPUStats.SystemUsage,
		OnlineCPUs:     raw.CPUStats.OnlineCPUs,
		MemoryUsage:    raw.MemoryStats.Usage,
		MemoryCache:    raw.MemoryStats.Stats["cache"],
		MemoryLimit:    raw.MemoryStats.Limit,
		NetRxBytes:     rx,
		NetTxBytes:     tx,
		DiskReadBytes:  readBytes,
		DiskWriteBytes: writeBytes,
	}, nil
}

// deriveSample computes a ContainerSample from the current and, where
// available, previous snapshot. CPU% is (cpu_delta/system_delta) *
// cores * 100; memory% is (usage-cache)/limit*100; rates are
// delta/wall-clock and are explicitly allowed to go negative across a
// counter reset — callers MUST NOT clamp them (§4.5, §9 open questions).
func deriveSample(id, name, service string, curr domain.ContainerStatsSnapshot, prev *domain.ContainerStatsSnapshot) domain.ContainerSample {
	sample := domain.ContainerSample{
		ID:            id,
		Name:          name,
		Service:       service,
		Status:        curr.Status,
		RestartCount:  curr.RestartCount,
		Timestamp:     curr.At,
		CPUPercent:    cpuPercent(curr, prev),
		MemoryPercent: memoryPercent(curr),
	}

	if prev != nil {
		elapsed := curr.At.Sub(prev.At).Seconds()
		if elapsed > 0 {
			sample.NetRxRate = rate(curr.NetRxBytes, prev.NetRxBytes, elapsed)
			sample.NetTxRate = rate(curr.NetTxBytes, prev.NetTxBytes, elapsed)
			sample.DiskReadRate = rate(curr.DiskReadBytes, prev.DiskReadBytes, elapsed)
			sample.DiskWriteRate = rate(curr.DiskWriteBytes, prev.DiskWriteBytes, elapsed)
		}
	}

	return sample
}

func cpuPercent(curr domain.ContainerStatsSnapshot, prev *domain.ContainerStatsSnapshot) float64 {
	if prev == nil {
		return 0
	}
	cpuDelta := float64(curr.CPUTotalNanos) - float64(prev.CPUTotalNanos)
	systemDelta := float64(curr.SystemCPUNanos) - float64(prev.SystemCPUNanos)
	if systemDelta <= 0 {
		return 0
	}
	cores := float64(curr.OnlineCPUs)
	if cores == 0 {
		cores = 1
	}
	return (cpuDelta / systemDelta) * cores * 100
}

func memoryPercent(curr domain.ContainerStatsSnapshot) float64 {
	if curr.MemoryLimit == 0 {
		return 0
	}
	usage := float64(curr.MemoryUsage) - float64(curr.MemoryCache)
	return (usage / float64(curr.MemoryLimit)) * 100
}

// rate computes delta-over-wall-clock without clamping; a counter reset
// between samples surfaces as a negative rate rather than being hidden.
func rate(curr, prev uint64, elapsedSeconds float64) float64 {
	return (float64(curr) - float64(prev)) / elapsedSeconds
}
