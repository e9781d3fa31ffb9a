// Package memory provides a thread-safe in-memory store implementing the
// storage interfaces. It is intended for tests and prototyping.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/basesafe/pool-service/internal/app/domain/pool"
	"github.com/basesafe/pool-service/internal/app/storage"
)

// Store holds everything in maps guarded by one RWMutex.
type Store struct {
	mu         sync.RWMutex
	pools      map[string]pool.Pool
	members    map[string]pool.Member
	activities map[string]pool.Activity
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		pools:      make(map[string]pool.Pool),
		members:    make(map[string]pool.Member),
		activities: make(map[string]pool.Activity),
	}
}

// --- PoolStore --------------------------------------------------------------

func (s *Store) CreatePool(_ context.Context, p pool.Pool) (pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ContractAddress = pool.NormalizeAddress(p.ContractAddress)
	for _, existing := range s.pools {
		if existing.ContractAddress == p.ContractAddress {
			return pool.Pool{}, storage.ErrDuplicateContract
		}
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.pools[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePool(_ context.Context, p pool.Pool) (pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.pools[p.ID]
	if !ok {
		return pool.Pool{}, storage.ErrNotFound
	}

	// Kind and contract address are immutable.
	p.Kind = existing.Kind
	p.ContractAddress = existing.ContractAddress
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	s.pools[p.ID] = p
	return p, nil
}

func (s *Store) GetPool(_ context.Context, id string) (pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[id]
	if !ok {
		return pool.Pool{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetPoolByContract(_ context.Context, contractAddress string) (pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := pool.NormalizeAddress(contractAddress)
	for _, p := range s.pools {
		if p.ContractAddress == needle {
			return p, nil
		}
	}
	return pool.Pool{}, storage.ErrNotFound
}

func (s *Store) ListPoolsByCreator(_ context.Context, creatorAddress string) ([]pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := pool.NormalizeAddress(creatorAddress)
	var result []pool.Pool
	for _, p := range s.pools {
		if p.CreatorAddress == needle {
			result = append(result, p)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *Store) ListRecentPools(_ context.Context, limit int) ([]pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]pool.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		result = append(result, p)
	}
	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListExpiredPools(_ context.Context, cutoff time.Time) ([]pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []pool.Pool
	for _, p := range s.pools {
		if p.Status == pool.StatusActive && !p.Deadline.IsZero() && p.Deadline.Before(cutoff) {
			result = append(result, p)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *Store) AddToTotalSaved(_ context.Context, id string, amount float64) (pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[id]
	if !ok {
		return pool.Pool{}, storage.ErrNotFound
	}
	p.TotalSaved += amount
	p.RecomputeProgress()
	p.UpdatedAt = time.Now().UTC()
	s.pools[id] = p
	return p, nil
}

// --- MemberStore ------------------------------------------------------------

func (s *Store) CreateMembers(_ context.Context, members []pool.Member) ([]pool.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	created := make([]pool.Member, 0, len(members))
	for _, m := range members {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.Address = pool.NormalizeAddress(m.Address)
		m.JoinedAt = now
		s.members[m.ID] = m
		created = append(created, m)
	}
	return created, nil
}

func (s *Store) ListMembers(_ context.Context, poolID string) ([]pool.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []pool.Member
	for _, m := range s.members {
		if m.PoolID == poolID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.Before(result[j].JoinedAt) })
	return result, nil
}

func (s *Store) UpdateMemberStatus(_ context.Context, id string, status pool.MemberStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Status = status
	s.members[id] = m
	return nil
}

// --- ActivityStore ----------------------------------------------------------

func (s *Store) CreateActivity(_ context.Context, act pool.Activity) (pool.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if act.TxHash != "" {
		for _, existing := range s.activities {
			if existing.PoolID == act.PoolID && existing.TxHash == act.TxHash {
				return pool.Activity{}, storage.ErrDuplicateTxHash
			}
		}
	}

	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	act.CreatedAt = time.Now().UTC()
	s.activities[act.ID] = act
	return act, nil
}

func (s *Store) ListActivities(_ context.Context, poolID string) ([]pool.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []pool.Activity
	for _, act := range s.activities {
		if act.PoolID == poolID {
			result = append(result, act)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) GetActivityByTxHash(_ context.Context, poolID, txHash string) (pool.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, act := range s.activities {
		if act.PoolID == poolID && act.TxHash == txHash {
			return act, nil
		}
	}
	return pool.Activity{}, storage.ErrNotFound
}

func sortNewestFirst(pools []pool.Pool) {
	sort.Slice(pools, func(i, j int) bool { return pools[i].CreatedAt.After(pools[j].CreatedAt) })
}
