package dockerobserver

import (
	"testing"
	"time"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestDeriveSample_FirstSampleHasZeroedRates(t *testing.T) {
	curr := domain.ContainerStatsSnapshot{
		At: time.Now(), CPUTotalNanos: 100, SystemCPUNanos: 1000, OnlineCPUs: 2,
		MemoryUsage: 500, MemoryCache: 100, MemoryLimit: 1000,
	}
	sample := deriveSample("id", "name", "svc", curr, nil)
	assert.Zero(t, sample.CPUPercent)
	assert.Zero(t, sample.NetRxRate)
	assert.InDelta(t, 40.0, sample.MemoryPercent, 0.001)
}

func TestDeriveSample_CPUAndMemoryPercent(t *testing.T) {
	base := time.Now()
	prev := domain.ContainerStatsSnapshot{
		At: base, CPUTotalNanos: 1000, SystemCPUNanos: 10000, OnlineCPUs: 4,
		MemoryUsage: 400, MemoryCache: 100, MemoryLimit: 1000,
	}
	curr := domain.ContainerStatsSnapshot{
		At: base.Add(5 * time.Second), CPUTotalNanos: 1500, SystemCPUNanos: 12000, OnlineCPUs: 4,
		MemoryUsage: 600, MemoryCache: 100, MemoryLimit: 1000,
		NetRxBytes: 1000, NetTxBytes: 500,
	}

	sample := deriveSample("id", "name", "svc", curr, &prev)
	assert.InDelta(t, (500.0/2000.0)*4*100, sample.CPUPercent, 0.001)
	assert.InDelta(t, 50.0, sample.MemoryPercent, 0.001)
	assert.InDelta(t, 200.0, sample.NetRxRate, 0.001)
	assert.InDelta(t, 100.0, sample.NetTxRate, 0.001)
}

func TestDeriveSample_RateGoesNegativeAcrossCounterReset(t *testing.T) {
	base := time.Now()
	prev := domain.ContainerStatsSnapshot{At: base, NetRxBytes: 10000}
	curr := domain.ContainerStatsSnapshot{At: base.Add(5 * time.Second), NetRxBytes: 100}

	sample := deriveSample("id", "name", "svc", curr, &prev)
	assert.Less(t, sample.NetRxRate, 0.0)
}

func TestMemoryPercent_ZeroLimitIsZero(t *testing.T) {
	assert.Zero(t, memoryPercent(domain.ContainerStatsSnapshot{MemoryUsage: 500, MemoryLimit: 0}))
}

func TestCPUPercent_ZeroSystemDeltaIsZero(t *testing.T) {
	prev := domain.ContainerStatsSnapshot{SystemCPUNanos: 1000}
	curr := domain.ContainerStatsSnapshot{SystemCPUNanos: 1000}
	assert.Zero(t, cpuPercent(curr, &prev))
}
