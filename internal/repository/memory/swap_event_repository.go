// Package memory provides in-memory repository implementations for development and testing.
// These repositories store data in memory and are not persistent across restarts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantix-kvm/swapd/internal/domain"
)

// SwapEventRepository is an in-memory implementation of the swap event
// repository. It's useful for development and testing without requiring a
// database.
type SwapEventRepository struct {
	mu     sync.RWMutex
	events []*domain.SwapEvent
}

// NewSwapEventRepository creates a new in-memory swap event repository.
func NewSwapEventRepository() *SwapEventRepository {
	return &SwapEventRepository{}
}

// Create stores a new swap event.
func (r *SwapEventRepository) Create(ctx context.Context, event *domain.SwapEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	stored := *event
	r.events = append(r.events, &stored)
	return nil
}

// ListByVM returns the most recent swap events for a VM, newest first.
func (r *SwapEventRepository) ListByVM(ctx context.Context, vmID string, limit int) ([]*domain.SwapEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.SwapEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].VMID != vmID {
			continue
		}
		event := *r.events[i]
		result = append(result, &event)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// DeleteOld removes events older than the given cutoff.
func (r *SwapEventRepository) DeleteOld(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.events[:0]
	var deleted int64
	for _, event := range r.events {
		if event.CreatedAt.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	r.events = kept
	return deleted, nil
}
