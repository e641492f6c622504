// Package redis provides Redis-backed persistence for swap usage history.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quantix-kvm/swapd/internal/config"
	"github.com/quantix-kvm/swapd/internal/domain"
)

const historyKeyPrefix = "swapd:history:"

// historyTTL bounds how long a snapshot outlives its VM. Four weeks of
// history older than the projection window is worthless anyway.
const historyTTL = 8 * 7 * 24 * time.Hour

// HistoryStore persists per-VM swap history snapshots in Redis so a daemon
// restart does not discard weeks of accumulated usage data.
type HistoryStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewHistoryStore creates a new Redis-backed history store.
func NewHistoryStore(cfg config.RedisConfig, logger *zap.Logger) (*HistoryStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Address()))

	return &HistoryStore{client: client, logger: logger}, nil
}

// NewHistoryStoreWithClient wraps an existing Redis client. Used in tests.
func NewHistoryStoreWithClient(client *redis.Client, logger *zap.Logger) *HistoryStore {
	return &HistoryStore{client: client, logger: logger}
}

// Close closes the Redis connection.
func (s *HistoryStore) Close() error {
	return s.client.Close()
}

// Health checks if Redis is reachable.
func (s *HistoryStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Save stores a history snapshot for a VM, replacing any previous one.
func (s *HistoryStore) Save(ctx context.Context, snapshot *domain.SwapHistorySnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal history snapshot: %w", err)
	}

	if err := s.client.Set(ctx, historyKeyPrefix+snapshot.VMID, data, historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Load retrieves the history snapshot for a VM. Returns domain.ErrNotFound
// when no snapshot exists.
func (s *HistoryStore) Load(ctx context.Context, vmID string) (*domain.SwapHistorySnapshot, error) {
	val, err := s.client.Get(ctx, historyKeyPrefix+vmID).Result()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var snapshot domain.SwapHistorySnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history snapshot: %w", err)
	}
	return &snapshot, nil
}

// Delete removes the stored snapshot for a VM.
func (s *HistoryStore) Delete(ctx context.Context, vmID string) error {
	return s.client.Del(ctx, historyKeyPrefix+vmID).Err()
}
