// Package postgres provides PostgreSQL repository implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantix-kvm/swapd/internal/domain"
)

// SwapEventRepository implements swap decision audit storage using PostgreSQL.
type SwapEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSwapEventRepository creates a new PostgreSQL swap event repository.
func NewSwapEventRepository(db *DB, logger *zap.Logger) *SwapEventRepository {
	return &SwapEventRepository{
		db:     db,
		logger: logger.With(zap.String("repository", "swap_events")),
	}
}

// Create stores a new swap event.
func (r *SwapEventRepository) Create(ctx context.Context, event *domain.SwapEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO swap_events (
			id, vm_id, action, predicted_duration_ms, memory_used_percent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.pool.Exec(ctx, query,
		event.ID,
		event.VMID,
		string(event.Action),
		event.PredictedDuration.Milliseconds(),
		event.MemoryUsedPercent,
		event.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create swap event", zap.Error(err))
		return fmt.Errorf("failed to insert swap event: %w", err)
	}

	return nil
}

// ListByVM returns the most recent swap events for a VM, newest first.
func (r *SwapEventRepository) ListByVM(ctx context.Context, vmID string, limit int) ([]*domain.SwapEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, vm_id, action, predicted_duration_ms, memory_used_percent, created_at
		FROM swap_events
		WHERE vm_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.pool.Query(ctx, query, vmID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query swap events: %w", err)
	}
	defer rows.Close()

	var events []*domain.SwapEvent
	for rows.Next() {
		var event domain.SwapEvent
		var predictedMs int64
		if err := rows.Scan(
			&event.ID,
			&event.VMID,
			&event.Action,
			&predictedMs,
			&event.MemoryUsedPercent,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan swap event: %w", err)
		}
		event.PredictedDuration = time.Duration(predictedMs) * time.Millisecond
		events = append(events, &event)
	}

	return events, rows.Err()
}

// DeleteOld removes events older than the given cutoff and returns how many
// rows were deleted.
func (r *SwapEventRepository) DeleteOld(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM swap_events WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old swap events: %w", err)
	}
	return tag.RowsAffected(), nil
}
