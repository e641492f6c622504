// Package registry keeps the swap engine's tracked VM set in sync with the
// VM lifecycle manager's published registry.
package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantix-kvm/swapd/internal/repository/etcd"
)

// Engine is the subset of the swap engine the watcher drives.
type Engine interface {
	Register(ctx context.Context, vmID string) error
	Deregister(ctx context.Context, vmID string) error
}

// Source provides the current VM set and a stream of changes.
type Source interface {
	ListVMs(ctx context.Context) ([]string, error)
	WatchVMs(ctx context.Context) <-chan etcd.VMEvent
}

// Watcher mirrors VM registry changes into the engine.
type Watcher struct {
	source Source
	engine Engine
	logger *zap.Logger
}

// NewWatcher creates a new registry watcher.
func NewWatcher(source Source, engine Engine, logger *zap.Logger) *Watcher {
	return &Watcher{
		source: source,
		engine: engine,
		logger: logger.Named("vm-registry-watcher"),
	}
}

// Run seeds the engine with the current VM set, then applies registry
// changes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	vms, err := w.source.ListVMs(ctx)
	if err != nil {
		return err
	}
	for _, vmID := range vms {
		if err := w.engine.Register(ctx, vmID); err != nil {
			w.logger.Warn("Failed to register VM", zap.String("vm_id", vmID), zap.Error(err))
		}
	}
	w.logger.Info("Seeded VM registry", zap.Int("vms", len(vms)))

	events := w.source.WatchVMs(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			w.apply(ctx, event)
		}
	}
}

func (w *Watcher) apply(ctx context.Context, event etcd.VMEvent) {
	var err error
	if event.Removed {
		err = w.engine.Deregister(ctx, event.VMID)
	} else {
		err = w.engine.Register(ctx, event.VMID)
	}
	if err != nil {
		w.logger.Warn("Failed to apply VM registry event",
			zap.String("vm_id", event.VMID),
			zap.Bool("removed", event.Removed),
			zap.Error(err),
		)
	}
}
