// Package monitor provides host memory observation for the swap policy engine.
package monitor

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/quantix-kvm/swapd/internal/domain"
)

// HostMemorySampler reads host memory and swap usage via gopsutil.
type HostMemorySampler struct {
	logger *zap.Logger
}

// NewHostMemorySampler creates a sampler for the local host.
func NewHostMemorySampler(logger *zap.Logger) *HostMemorySampler {
	return &HostMemorySampler{
		logger: logger.With(zap.String("component", "memory-monitor")),
	}
}

// Sample returns the current host memory statistics.
func (s *HostMemorySampler) Sample(ctx context.Context) (domain.HostMemoryStats, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return domain.HostMemoryStats{}, fmt.Errorf("failed to read host memory: %w", err)
	}

	stats := domain.HostMemoryStats{
		TotalBytes:     vm.Total,
		UsedBytes:      vm.Used,
		AvailableBytes: vm.Available,
		UsedPercent:    vm.UsedPercent,
	}

	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		// Swap stats are advisory; memory pressure alone is enough to decide.
		s.logger.Warn("Failed to read host swap stats", zap.Error(err))
		return stats, nil
	}
	stats.SwapTotalBytes = swap.Total
	stats.SwapUsedBytes = swap.Used
	stats.SwapUsedPercent = swap.UsedPercent

	return stats, nil
}
