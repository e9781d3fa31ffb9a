// Package storage defines the persistence interfaces for the pool mirror.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/basesafe/pool-service/internal/app/domain/pool"
)

// Sentinel errors every store implementation maps onto.
var (
	// ErrNotFound means the record never existed (as far as the store can tell).
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateTxHash means an activity with the same (pool, tx hash) pair
	// already exists. This is the reconciler's idempotency guard.
	ErrDuplicateTxHash = errors.New("activity with this tx hash already recorded")
	// ErrDuplicateContract means a pool with the same contract address exists.
	ErrDuplicateContract = errors.New("pool with this contract address already exists")
	// ErrUnavailable means the store cannot answer right now (connectivity or
	// schema problem). Never mapped to ErrNotFound.
	ErrUnavailable = errors.New("store unavailable")
)

// PoolStore persists pool records.
type PoolStore interface {
	CreatePool(ctx context.Context, p pool.Pool) (pool.Pool, error)
	UpdatePool(ctx context.Context, p pool.Pool) (pool.Pool, error)
	GetPool(ctx context.Context, id string) (pool.Pool, error)
	GetPoolByContract(ctx context.Context, contractAddress string) (pool.Pool, error)
	ListPoolsByCreator(ctx context.Context, creatorAddress string) ([]pool.Pool, error)
	ListRecentPools(ctx context.Context, limit int) ([]pool.Pool, error)
	ListExpiredPools(ctx context.Context, cutoff time.Time) ([]pool.Pool, error)

	// AddToTotalSaved adds amount to the pool's reporting aggregate and
	// returns the updated record. Implementations should make the increment
	// atomic where the backing store allows it.
	AddToTotalSaved(ctx context.Context, id string, amount float64) (pool.Pool, error)
}

// MemberStore persists pool membership, created as a batch at pool creation.
type MemberStore interface {
	CreateMembers(ctx context.Context, members []pool.Member) ([]pool.Member, error)
	ListMembers(ctx context.Context, poolID string) ([]pool.Member, error)
	UpdateMemberStatus(ctx context.Context, id string, status pool.MemberStatus) error
}

// ActivityStore persists the append-only activity log. Rows are never mutated
// or deleted.
type ActivityStore interface {
	// CreateActivity inserts the activity, returning ErrDuplicateTxHash when
	// the (pool, tx hash) pair is already recorded.
	CreateActivity(ctx context.Context, act pool.Activity) (pool.Activity, error)
	ListActivities(ctx context.Context, poolID string) ([]pool.Activity, error)
	GetActivityByTxHash(ctx context.Context, poolID, txHash string) (pool.Activity, error)
}

// Store aggregates all persistence interfaces.
type Store interface {
	PoolStore
	MemberStore
	ActivityStore
}
