package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quantix-kvm/swapd/internal/domain"
)

// setupTestStore creates a history store backed by miniredis.
func setupTestStore(t *testing.T) (*HistoryStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewHistoryStoreWithClient(client, zap.NewNop()), mr
}

func TestHistoryStore_SaveAndLoad(t *testing.T) {
	store, mr := setupTestStore(t)
	defer store.Close()
	defer mr.Close()

	ctx := context.Background()
	takenAt := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	snapshot := &domain.SwapHistorySnapshot{
		VMID: "vm-1",
		Periods: []domain.SwapPeriod{
			{Start: takenAt.Add(-7 * 24 * time.Hour), Duration: 4 * time.Hour, Closed: true},
			{Start: takenAt.Add(-2 * time.Hour)},
		},
		TakenAt: takenAt,
	}

	if err := store.Save(ctx, snapshot); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "vm-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.VMID != "vm-1" || len(loaded.Periods) != 2 {
		t.Fatalf("Unexpected snapshot: %+v", loaded)
	}
	if !loaded.Periods[0].Closed || loaded.Periods[0].Duration != 4*time.Hour {
		t.Errorf("Expected first period closed at 4h, got %+v", loaded.Periods[0])
	}
	if loaded.Periods[1].Closed {
		t.Errorf("Expected second period open, got %+v", loaded.Periods[1])
	}
	if !loaded.TakenAt.Equal(takenAt) {
		t.Errorf("Expected taken_at %v, got %v", takenAt, loaded.TakenAt)
	}
}

func TestHistoryStore_LoadMissingReturnsNotFound(t *testing.T) {
	store, mr := setupTestStore(t)
	defer store.Close()
	defer mr.Close()

	_, err := store.Load(context.Background(), "vm-unknown")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestHistoryStore_SaveReplacesPrevious(t *testing.T) {
	store, mr := setupTestStore(t)
	defer store.Close()
	defer mr.Close()

	ctx := context.Background()
	takenAt := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	first := &domain.SwapHistorySnapshot{VMID: "vm-1", TakenAt: takenAt}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	second := &domain.SwapHistorySnapshot{
		VMID:    "vm-1",
		Periods: []domain.SwapPeriod{{Start: takenAt, Duration: time.Hour, Closed: true}},
		TakenAt: takenAt.Add(time.Hour),
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "vm-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Periods) != 1 {
		t.Errorf("Expected replaced snapshot with 1 period, got %d", len(loaded.Periods))
	}
}

func TestHistoryStore_Delete(t *testing.T) {
	store, mr := setupTestStore(t)
	defer store.Close()
	defer mr.Close()

	ctx := context.Background()
	snapshot := &domain.SwapHistorySnapshot{VMID: "vm-1", TakenAt: time.Now()}
	if err := store.Save(ctx, snapshot); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete(ctx, "vm-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Load(ctx, "vm-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
