// Package engine implements the VMM-swap policy engine.
//
// The engine owns one usage policy per tracked VM, samples host memory
// pressure on a fixed interval, and decides per VM whether enabling
// memory-swap is currently worthwhile: swap is enabled when the host is
// under pressure and the VM's history predicts the enabled state will last
// long enough to justify the cost, and disabled again once pressure
// subsides. The underlying swap mechanism stays behind the SwapController
// interface.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantix-kvm/swapd/internal/config"
	"github.com/quantix-kvm/swapd/internal/domain"
	"github.com/quantix-kvm/swapd/internal/metrics"
	"github.com/quantix-kvm/swapd/internal/policy"
)

// SwapController applies swap decisions to the hypervisor. The engine never
// touches OS-level swap itself.
type SwapController interface {
	EnableSwap(ctx context.Context, vmID string) error
	DisableSwap(ctx context.Context, vmID string) error
}

// EventRepository stores the audit trail of swap decisions.
type EventRepository interface {
	Create(ctx context.Context, event *domain.SwapEvent) error
	DeleteOld(ctx context.Context, olderThan time.Time) (int64, error)
}

// HistoryStore persists per-VM usage history snapshots across restarts.
type HistoryStore interface {
	Save(ctx context.Context, snapshot *domain.SwapHistorySnapshot) error
	Load(ctx context.Context, vmID string) (*domain.SwapHistorySnapshot, error)
}

// MemorySampler reads host memory usage.
type MemorySampler interface {
	Sample(ctx context.Context) (domain.HostMemoryStats, error)
}

// LeaderChecker checks if this instance is the leader.
type LeaderChecker interface {
	IsLeader() bool
}

// Engine is the swap policy engine.
type Engine struct {
	config        config.EngineConfig
	controller    SwapController
	events        EventRepository
	historyStore  HistoryStore
	sampler       MemorySampler
	leaderChecker LeaderChecker
	logger        *zap.Logger

	// now is swappable for tests.
	now func() time.Time

	// mu serializes all access to the per-VM policies; each UsagePolicy
	// requires a single logical owner.
	mu        sync.Mutex
	vms       map[string]*policy.UsagePolicy
	isRunning bool

	// lastPrune is only touched from the decision cycle.
	lastPrune time.Time
}

// pruneInterval is how often the retention sweep over the audit trail runs.
const pruneInterval = time.Hour

// NewEngine creates a new swap policy engine. events, historyStore and
// leaderChecker may be nil; the engine then skips auditing, persistence or
// leader gating respectively.
func NewEngine(
	cfg config.EngineConfig,
	controller SwapController,
	events EventRepository,
	historyStore HistoryStore,
	sampler MemorySampler,
	leaderChecker LeaderChecker,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		config:        cfg,
		controller:    controller,
		events:        events,
		historyStore:  historyStore,
		sampler:       sampler,
		leaderChecker: leaderChecker,
		logger:        logger.With(zap.String("component", "swap-engine")),
		now:           time.Now,
		vms:           make(map[string]*policy.UsagePolicy),
	}
}

// Register starts tracking a VM, restoring its usage history from the store
// when a snapshot exists. Registering an already tracked VM is a no-op.
func (e *Engine) Register(ctx context.Context, vmID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.vms[vmID]; ok {
		return nil
	}

	pol := policy.NewUsagePolicy(e.logger)
	if e.historyStore != nil {
		snapshot, err := e.historyStore.Load(ctx, vmID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// First time we see this VM.
		case err != nil:
			e.logger.Warn("Failed to load swap history, starting empty",
				zap.String("vm_id", vmID),
				zap.Error(err),
			)
		default:
			pol = policy.NewUsagePolicyFromHistory(closeOpenPeriods(snapshot), e.logger)
			e.logger.Info("Restored swap history",
				zap.String("vm_id", vmID),
				zap.Int("periods", len(snapshot.Periods)),
			)
		}
	}

	e.vms[vmID] = pol
	metrics.TrackedVMs.Set(float64(len(e.vms)))
	e.logger.Info("Tracking VM", zap.String("vm_id", vmID))
	return nil
}

// Deregister stops tracking a VM. Swap is disabled first if the engine had
// enabled it, and the final history snapshot is persisted.
func (e *Engine) Deregister(ctx context.Context, vmID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pol, ok := e.vms[vmID]
	if !ok {
		return domain.ErrNotFound
	}

	now := e.now()
	if pol.IsEnabled() {
		if err := e.controller.DisableSwap(ctx, vmID); err != nil {
			metrics.SwapControlErrors.WithLabelValues(vmID, string(domain.SwapEventDisabled)).Inc()
			e.logger.Error("Failed to disable swap for departing VM",
				zap.String("vm_id", vmID),
				zap.Error(err),
			)
		}
		pol.OnDisabled(now)
	}
	e.saveHistory(ctx, vmID, pol, now)

	delete(e.vms, vmID)
	metrics.TrackedVMs.Set(float64(len(e.vms)))
	e.logger.Info("Stopped tracking VM", zap.String("vm_id", vmID))
	return nil
}

// Predict returns the predicted remaining swap-enabled duration for a VM.
func (e *Engine) Predict(vmID string, now time.Time) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pol, ok := e.vms[vmID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return pol.PredictDuration(now), nil
}

// SwapEnabled reports whether the engine currently has swap enabled for a VM.
func (e *Engine) SwapEnabled(vmID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pol, ok := e.vms[vmID]
	if !ok {
		return false, domain.ErrNotFound
	}
	return pol.IsEnabled(), nil
}

// Start begins the decision loop. It blocks until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	if !e.config.Enabled {
		e.logger.Info("Swap engine disabled")
		return
	}

	e.mu.Lock()
	if e.isRunning {
		e.mu.Unlock()
		return
	}
	e.isRunning = true
	e.mu.Unlock()

	e.logger.Info("Starting swap engine",
		zap.Duration("interval", e.config.Interval),
		zap.Float64("memory_threshold", e.config.MemoryThresholdPercent),
		zap.Duration("min_predicted_duration", e.config.MinPredictedDuration),
	)

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	e.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Swap engine stopped")
			e.mu.Lock()
			e.isRunning = false
			e.mu.Unlock()
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle performs a single decision cycle across all tracked VMs.
func (e *Engine) runCycle(ctx context.Context) {
	if e.leaderChecker != nil && !e.leaderChecker.IsLeader() {
		e.logger.Debug("Not leader, skipping swap decision cycle")
		return
	}

	e.pruneEvents(ctx)

	stats, err := e.sampler.Sample(ctx)
	if err != nil {
		e.logger.Error("Failed to sample host memory", zap.Error(err))
		return
	}
	metrics.HostMemoryUsedPercent.Set(stats.UsedPercent)

	pressureHigh := stats.UsedPercent >= e.config.MemoryThresholdPercent
	pressureLow := stats.UsedPercent < e.config.MemoryThresholdPercent-e.config.MemoryHysteresisPercent

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for vmID, pol := range e.vms {
		switch {
		case pressureHigh && !pol.IsEnabled():
			e.maybeEnable(ctx, vmID, pol, now, stats)
		case pressureLow && pol.IsEnabled():
			e.disable(ctx, vmID, pol, now, stats)
		}
	}
}

// maybeEnable enables swap for a VM when its history predicts the enabled
// state will last long enough to be worth it. A VM with no history yet is
// enabled unconditionally so that history can accumulate.
func (e *Engine) maybeEnable(ctx context.Context, vmID string, pol *policy.UsagePolicy, now time.Time, stats domain.HostMemoryStats) {
	predicted := pol.PredictDuration(now)
	metrics.PredictedEnabledSeconds.Observe(predicted.Seconds())

	if len(pol.History()) > 0 && predicted < e.config.MinPredictedDuration {
		e.logger.Debug("Predicted swap duration too short, skipping enable",
			zap.String("vm_id", vmID),
			zap.Duration("predicted", predicted),
		)
		return
	}

	if err := e.controller.EnableSwap(ctx, vmID); err != nil {
		metrics.SwapControlErrors.WithLabelValues(vmID, string(domain.SwapEventEnabled)).Inc()
		e.logger.Error("Failed to enable swap",
			zap.String("vm_id", vmID),
			zap.Error(err),
		)
		return
	}
	pol.OnEnabled(now)
	metrics.SwapEnablesTotal.WithLabelValues(vmID).Inc()

	e.logger.Info("Enabled VMM-swap",
		zap.String("vm_id", vmID),
		zap.Duration("predicted", predicted),
		zap.Float64("memory_used_percent", stats.UsedPercent),
	)

	e.recordEvent(ctx, vmID, domain.SwapEventEnabled, predicted, stats, now)
	e.saveHistory(ctx, vmID, pol, now)
}

// disable turns swap off for a VM once memory pressure has subsided.
func (e *Engine) disable(ctx context.Context, vmID string, pol *policy.UsagePolicy, now time.Time, stats domain.HostMemoryStats) {
	if err := e.controller.DisableSwap(ctx, vmID); err != nil {
		metrics.SwapControlErrors.WithLabelValues(vmID, string(domain.SwapEventDisabled)).Inc()
		e.logger.Error("Failed to disable swap",
			zap.String("vm_id", vmID),
			zap.Error(err),
		)
		return
	}
	pol.OnDisabled(now)
	metrics.SwapDisablesTotal.WithLabelValues(vmID).Inc()

	e.logger.Info("Disabled VMM-swap",
		zap.String("vm_id", vmID),
		zap.Float64("memory_used_percent", stats.UsedPercent),
	)

	e.recordEvent(ctx, vmID, domain.SwapEventDisabled, 0, stats, now)
	e.saveHistory(ctx, vmID, pol, now)
}

func (e *Engine) recordEvent(ctx context.Context, vmID string, action domain.SwapEventAction, predicted time.Duration, stats domain.HostMemoryStats, now time.Time) {
	if e.events == nil {
		return
	}
	event := &domain.SwapEvent{
		ID:                uuid.NewString(),
		VMID:              vmID,
		Action:            action,
		PredictedDuration: predicted,
		MemoryUsedPercent: stats.UsedPercent,
		CreatedAt:         now,
	}
	if err := e.events.Create(ctx, event); err != nil {
		e.logger.Warn("Failed to record swap event",
			zap.String("vm_id", vmID),
			zap.Error(err),
		)
	}
}

// pruneEvents enforces the audit trail retention window. It runs at most
// once per pruneInterval and only on the leader, so a shared database is
// swept by a single instance.
func (e *Engine) pruneEvents(ctx context.Context) {
	if e.events == nil || e.config.EventRetention <= 0 {
		return
	}

	now := e.now()
	if !e.lastPrune.IsZero() && now.Sub(e.lastPrune) < pruneInterval {
		return
	}
	e.lastPrune = now

	deleted, err := e.events.DeleteOld(ctx, now.Add(-e.config.EventRetention))
	if err != nil {
		e.logger.Warn("Failed to prune old swap events", zap.Error(err))
		return
	}
	if deleted > 0 {
		e.logger.Info("Pruned old swap events", zap.Int64("deleted", deleted))
	}
}

func (e *Engine) saveHistory(ctx context.Context, vmID string, pol *policy.UsagePolicy, now time.Time) {
	if e.historyStore == nil {
		return
	}
	snapshot := &domain.SwapHistorySnapshot{
		VMID:    vmID,
		Periods: pol.History(),
		TakenAt: now,
	}
	if err := e.historyStore.Save(ctx, snapshot); err != nil {
		e.logger.Warn("Failed to persist swap history",
			zap.String("vm_id", vmID),
			zap.Error(err),
		)
	}
}

// IsRunning returns true if the engine loop is running.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isRunning
}

// closeOpenPeriods converts a persisted snapshot into seed history for a new
// policy. The process that wrote the snapshot stopped observing at TakenAt,
// so any trailing open period is closed there.
func closeOpenPeriods(snapshot *domain.SwapHistorySnapshot) []domain.SwapPeriod {
	periods := make([]domain.SwapPeriod, len(snapshot.Periods))
	copy(periods, snapshot.Periods)
	for i, p := range periods {
		if p.Closed {
			continue
		}
		if snapshot.TakenAt.After(p.Start) {
			periods[i].Duration = snapshot.TakenAt.Sub(p.Start)
		}
		periods[i].Closed = true
	}
	return periods
}
