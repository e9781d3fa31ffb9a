package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/basesafe/pool-service/internal/app/domain/pool"
	"github.com/basesafe/pool-service/internal/app/storage/memory"
)

func TestSweepCompletesExpiredPools(t *testing.T) {
	store := memory.New()

	expired, err := store.CreatePool(context.Background(), pool.Pool{
		Name:            "past due",
		Kind:            pool.KindTarget,
		Status:          pool.StatusActive,
		ContractAddress: "0x0001",
		Deadline:        time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	ongoing, err := store.CreatePool(context.Background(), pool.Pool{
		Name:            "still running",
		Kind:            pool.KindTarget,
		Status:          pool.StatusActive,
		ContractAddress: "0x0002",
		Deadline:        time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed ongoing: %v", err)
	}

	New(store, "", nil).Sweep(context.Background())

	got, err := store.GetPool(context.Background(), expired.ID)
	if err != nil {
		t.Fatalf("get expired: %v", err)
	}
	if got.Status != pool.StatusCompleted {
		t.Fatalf("expired pool status = %s, want completed", got.Status)
	}

	got, err = store.GetPool(context.Background(), ongoing.ID)
	if err != nil {
		t.Fatalf("get ongoing: %v", err)
	}
	if got.Status != pool.StatusActive {
		t.Fatalf("ongoing pool status = %s, want active", got.Status)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	store := memory.New()

	p, err := store.CreatePool(context.Background(), pool.Pool{
		Name:            "past due",
		Kind:            pool.KindTarget,
		Status:          pool.StatusActive,
		ContractAddress: "0x0003",
		Deadline:        time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	sw := New(store, "", nil)
	sw.Sweep(context.Background())
	sw.Sweep(context.Background())

	got, err := store.GetPool(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != pool.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}
