package pools

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/basesafe/pool-service/internal/app/domain/pool"
	"github.com/basesafe/pool-service/internal/app/metrics"
	"github.com/basesafe/pool-service/internal/app/storage"
	"github.com/basesafe/pool-service/internal/errors"
)

// RecordActivityInput describes one observed on-chain event.
type RecordActivityInput struct {
	PoolID      string
	Kind        pool.ActivityKind
	Actor       string
	Amount      float64
	Description string
	TxHash      string

	// ContractHint resolves the pool when PoolID is stale or unknown, e.g.
	// when the caller only knows the on-chain address.
	ContractHint string
}

// RecordActivity mirrors one on-chain event into the store, exactly once per
// (pool, tx hash) pair. A repeat observation of the same hash returns the
// existing row and leaves the aggregate untouched.
func (s *Service) RecordActivity(ctx context.Context, in RecordActivityInput) (pool.Activity, error) {
	if in.Kind == "" {
		return pool.Activity{}, errors.Validation("activityType is required")
	}
	if in.PoolID == "" && in.ContractHint == "" {
		return pool.Activity{}, errors.Validation("poolId or contract address is required")
	}

	target, err := s.resolvePool(ctx, in.PoolID, in.ContractHint)
	if err != nil {
		return pool.Activity{}, err
	}

	act := pool.Activity{
		PoolID:      target.ID,
		Kind:        in.Kind,
		Actor:       pool.NormalizeAddress(in.Actor),
		Amount:      in.Amount,
		Description: in.Description,
		TxHash:      strings.ToLower(strings.TrimSpace(in.TxHash)),
	}

	created, err := s.store.CreateActivity(ctx, act)
	if stderrors.Is(err, storage.ErrDuplicateTxHash) {
		metrics.DuplicateTxSkipped()
		s.log.WithField("pool_id", target.ID).Debugf("activity for tx %s already recorded", act.TxHash)
		existing, getErr := s.store.GetActivityByTxHash(ctx, target.ID, act.TxHash)
		if getErr != nil {
			return pool.Activity{}, mapStoreErr(getErr)
		}
		return existing, nil
	}
	if err != nil {
		return pool.Activity{}, mapStoreErr(err)
	}

	// The aggregate moves only on the first observation of a hash; the
	// insert above is the idempotency gate.
	if in.Kind.ValueIncreasing() && in.Amount > 0 {
		if _, err := s.store.AddToTotalSaved(ctx, target.ID, in.Amount); err != nil {
			s.log.WithError(err).WithField("pool_id", target.ID).Warn("activity recorded but total_saved not updated")
		}
	}

	metrics.ActivityRecorded(string(in.Kind))
	return created, nil
}

// resolvePool looks the pool up by id, then by the contract-address hint.
func (s *Service) resolvePool(ctx context.Context, id, contractHint string) (pool.Pool, error) {
	if id != "" {
		p, err := s.store.GetPool(ctx, id)
		if err == nil {
			return p, nil
		}
		if !stderrors.Is(err, storage.ErrNotFound) {
			return pool.Pool{}, mapStoreErr(err)
		}
	}

	if contractHint != "" {
		p, err := s.store.GetPoolByContract(ctx, contractHint)
		if err == nil {
			return p, nil
		}
		if !stderrors.Is(err, storage.ErrNotFound) {
			return pool.Pool{}, mapStoreErr(err)
		}
	}

	return pool.Pool{}, errors.PoolNotFound(id, pool.NormalizeAddress(contractHint))
}
