// Package supabase implements the pool mirror stores on top of the
// Supabase REST interface.
package supabase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/basesafe/pool-service/internal/app/domain/pool"
	"github.com/basesafe/pool-service/internal/app/storage"
	sb "github.com/basesafe/pool-service/internal/supabase"
)

const (
	tablePools      = "pools"
	tableMembers    = "pool_members"
	tableActivities = "pool_activity"
)

// Store implements the storage interfaces against a Supabase project.
type Store struct {
	client *sb.Client
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided Supabase client.
func New(client *sb.Client) *Store {
	return &Store{client: client}
}

// --- PoolStore --------------------------------------------------------------

// poolRow is the write shape sent to PostgREST. Optional timestamps are
// pointers so a pool without a deadline is stored as NULL rather than the
// zero time, which the expiry filter would otherwise match.
type poolRow struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	Kind            pool.Kind   `json:"type"`
	Status          pool.Status `json:"status"`
	CreatorAddress  string      `json:"creator_address"`
	ContractAddress string      `json:"contract_address"`
	TokenAddress    string      `json:"token_address"`
	TotalSaved      float64     `json:"total_saved"`
	TargetAmount    float64     `json:"target_amount,omitempty"`
	Progress        float64     `json:"progress"`
	MembersCount    int         `json:"members_count"`
	NextPayout      *time.Time  `json:"next_payout"`
	NextRecipient   string      `json:"next_recipient,omitempty"`

	ContributionAmount float64    `json:"contribution_amount,omitempty"`
	RoundDuration      int64      `json:"round_duration,omitempty"`
	Frequency          string     `json:"frequency,omitempty"`
	Deadline           *time.Time `json:"deadline"`
	MinimumDeposit     float64    `json:"minimum_deposit,omitempty"`
	WithdrawalFeeBps   int64      `json:"withdrawal_fee,omitempty"`
	YieldEnabled       bool       `json:"yield_enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newPoolRow(p pool.Pool) poolRow {
	return poolRow{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Kind:            p.Kind,
		Status:          p.Status,
		CreatorAddress:  p.CreatorAddress,
		ContractAddress: p.ContractAddress,
		TokenAddress:    p.TokenAddress,
		TotalSaved:      p.TotalSaved,
		TargetAmount:    p.TargetAmount,
		Progress:        p.Progress,
		MembersCount:    p.MembersCount,
		NextPayout:      nullableTime(p.NextPayout),
		NextRecipient:   p.NextRecipient,

		ContributionAmount: p.ContributionAmount,
		RoundDuration:      p.RoundDuration,
		Frequency:          p.Frequency,
		Deadline:           nullableTime(p.Deadline),
		MinimumDeposit:     p.MinimumDeposit,
		WithdrawalFeeBps:   p.WithdrawalFeeBps,
		YieldEnabled:       p.YieldEnabled,

		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Store) CreatePool(ctx context.Context, p pool.Pool) (pool.Pool, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	var out pool.Pool
	err := s.client.From(tablePools).Single().Insert(ctx, newPoolRow(p), &out)
	if err != nil {
		if sb.IsUniqueViolation(err) {
			return pool.Pool{}, storage.ErrDuplicateContract
		}
		return pool.Pool{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) UpdatePool(ctx context.Context, p pool.Pool) (pool.Pool, error) {
	existing, err := s.GetPool(ctx, p.ID)
	if err != nil {
		return pool.Pool{}, err
	}

	// Kind, contract address and creation time never change after creation.
	p.Kind = existing.Kind
	p.ContractAddress = existing.ContractAddress
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	var out pool.Pool
	err = s.client.From(tablePools).Eq("id", p.ID).Single().Update(ctx, newPoolRow(p), &out)
	if err != nil {
		return pool.Pool{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) GetPool(ctx context.Context, id string) (pool.Pool, error) {
	var out pool.Pool
	err := s.client.From(tablePools).Select("*").Eq("id", id).Single().Execute(ctx, &out)
	if err != nil {
		return pool.Pool{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) GetPoolByContract(ctx context.Context, contractAddress string) (pool.Pool, error) {
	var out pool.Pool
	err := s.client.From(tablePools).
		Select("*").
		Eq("contract_address", pool.NormalizeAddress(contractAddress)).
		Single().
		Execute(ctx, &out)
	if err != nil {
		return pool.Pool{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) ListPoolsByCreator(ctx context.Context, creatorAddress string) ([]pool.Pool, error) {
	var out []pool.Pool
	err := s.client.From(tablePools).
		Select("*").
		Eq("creator_address", pool.NormalizeAddress(creatorAddress)).
		Order("created_at", false).
		Execute(ctx, &out)
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) ListRecentPools(ctx context.Context, limit int) ([]pool.Pool, error) {
	var out []pool.Pool
	err := s.client.From(tablePools).
		Select("*").
		Order("created_at", false).
		Limit(limit).
		Execute(ctx, &out)
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) ListExpiredPools(ctx context.Context, cutoff time.Time) ([]pool.Pool, error) {
	var out []pool.Pool
	err := s.client.From(tablePools).
		Select("*").
		Eq("status", string(pool.StatusActive)).
		Lt("deadline", cutoff.UTC().Format(time.RFC3339)).
		Execute(ctx, &out)
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// AddToTotalSaved is read-then-write here: the REST interface offers no
// server-side increment. The activity uniqueness constraint still prevents
// counting the same transaction twice.
func (s *Store) AddToTotalSaved(ctx context.Context, id string, amount float64) (pool.Pool, error) {
	p, err := s.GetPool(ctx, id)
	if err != nil {
		return pool.Pool{}, err
	}

	p.TotalSaved += amount
	p.RecomputeProgress()
	p.UpdatedAt = time.Now().UTC()

	patch := map[string]any{
		"total_saved": p.TotalSaved,
		"progress":    p.Progress,
		"updated_at":  p.UpdatedAt,
	}

	var out pool.Pool
	err = s.client.From(tablePools).Eq("id", id).Single().Update(ctx, patch, &out)
	if err != nil {
		return pool.Pool{}, mapErr(err)
	}
	return out, nil
}

// --- MemberStore ------------------------------------------------------------

func (s *Store) CreateMembers(ctx context.Context, members []pool.Member) ([]pool.Member, error) {
	if len(members) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	for i := range members {
		if members[i].ID == "" {
			members[i].ID = uuid.NewString()
		}
		members[i].JoinedAt = now
	}

	var out []pool.Member
	if err := s.client.From(tableMembers).Insert(ctx, members, &out); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) ListMembers(ctx context.Context, poolID string) ([]pool.Member, error) {
	var out []pool.Member
	err := s.client.From(tableMembers).
		Select("*").
		Eq("pool_id", poolID).
		Order("joined_at", true).
		Execute(ctx, &out)
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) UpdateMemberStatus(ctx context.Context, id string, status pool.MemberStatus) error {
	patch := map[string]any{"status": string(status)}
	var out pool.Member
	err := s.client.From(tableMembers).Eq("id", id).Single().Update(ctx, patch, &out)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// --- ActivityStore ----------------------------------------------------------

func (s *Store) CreateActivity(ctx context.Context, act pool.Activity) (pool.Activity, error) {
	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	act.CreatedAt = time.Now().UTC()

	var out pool.Activity
	err := s.client.From(tableActivities).Single().Insert(ctx, act, &out)
	if err != nil {
		if sb.IsUniqueViolation(err) {
			return pool.Activity{}, storage.ErrDuplicateTxHash
		}
		return pool.Activity{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) ListActivities(ctx context.Context, poolID string) ([]pool.Activity, error) {
	var out []pool.Activity
	err := s.client.From(tableActivities).
		Select("*").
		Eq("pool_id", poolID).
		Order("created_at", false).
		Execute(ctx, &out)
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) GetActivityByTxHash(ctx context.Context, poolID, txHash string) (pool.Activity, error) {
	var out pool.Activity
	err := s.client.From(tableActivities).
		Select("*").
		Eq("pool_id", poolID).
		Eq("tx_hash", txHash).
		Single().
		Execute(ctx, &out)
	if err != nil {
		return pool.Activity{}, mapErr(err)
	}
	return out, nil
}

// mapErr translates Supabase API errors into the storage sentinels. A
// missing table reads as "store unavailable" so callers can tell schema
// problems apart from absent records.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case sb.IsNoRows(err):
		return storage.ErrNotFound
	case sb.IsMissingTable(err), sb.IsUnavailable(err):
		return storage.ErrUnavailable
	default:
		return err
	}
}
