// Package pools implements pool creation, queries and the activity
// reconciler that mirrors confirmed on-chain events into the off-chain store.
package pools

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/basesafe/pool-service/internal/app/domain/pool"
	"github.com/basesafe/pool-service/internal/app/metrics"
	"github.com/basesafe/pool-service/internal/app/storage"
	"github.com/basesafe/pool-service/internal/errors"
	"github.com/basesafe/pool-service/pkg/logger"
)

// Service owns the off-chain pool mirror.
type Service struct {
	store storage.Store
	log   *logger.Logger
}

// New wires a pool service over the given store.
func New(store storage.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("pools")
	}
	return &Service{store: store, log: log}
}

// CreateInput carries everything needed to mirror a freshly created pool.
type CreateInput struct {
	Name           string
	Description    string
	Kind           pool.Kind
	CreatorAddress string
	PoolAddress    string
	TokenAddress   string
	Members        []string
	TxHash         string

	// Kind-specific fields.
	ContributionAmount float64
	Frequency          string
	TargetAmount       float64
	Deadline           time.Time
	MinimumDeposit     float64
	WithdrawalFeeBps   int64
	YieldEnabled       bool
}

func (in CreateInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return errors.Validation("name is required")
	case !in.Kind.Valid():
		return errors.Validation("poolType must be one of rotational, target, flexible")
	case strings.TrimSpace(in.CreatorAddress) == "":
		return errors.Validation("creatorAddress is required")
	case strings.TrimSpace(in.PoolAddress) == "":
		return errors.Validation("poolAddress is required")
	case strings.TrimSpace(in.TokenAddress) == "":
		return errors.Validation("tokenAddress is required")
	case len(in.Members) == 0:
		return errors.Validation("members is required")
	}

	switch in.Kind {
	case pool.KindRotational:
		if in.ContributionAmount <= 0 {
			return errors.Validation("contributionAmount must be positive for rotational pools")
		}
	case pool.KindTarget:
		if in.TargetAmount <= 0 {
			return errors.Validation("targetAmount must be positive for target pools")
		}
		if in.Deadline.IsZero() {
			return errors.Validation("deadline is required for target pools")
		}
	case pool.KindFlexible:
		if in.MinimumDeposit < 0 || in.WithdrawalFeeBps < 0 {
			return errors.Validation("flexible pool parameters must not be negative")
		}
	}
	return nil
}

// Create mirrors a new pool: one pool row, a batch of member rows, and a
// pool_created activity. The activity write is best-effort; a failure there is
// demoted to a warning because the pool row is already durable.
func (s *Service) Create(ctx context.Context, in CreateInput) (pool.Pool, error) {
	if err := in.validate(); err != nil {
		return pool.Pool{}, err
	}

	p := pool.Pool{
		Name:               strings.TrimSpace(in.Name),
		Description:        strings.TrimSpace(in.Description),
		Kind:               in.Kind,
		Status:             pool.StatusActive,
		CreatorAddress:     pool.NormalizeAddress(in.CreatorAddress),
		ContractAddress:    pool.NormalizeAddress(in.PoolAddress),
		TokenAddress:       pool.NormalizeAddress(in.TokenAddress),
		MembersCount:       len(in.Members),
		ContributionAmount: in.ContributionAmount,
		TargetAmount:       in.TargetAmount,
		Deadline:           in.Deadline,
		MinimumDeposit:     in.MinimumDeposit,
		WithdrawalFeeBps:   in.WithdrawalFeeBps,
		YieldEnabled:       in.YieldEnabled,
	}
	if in.Kind == pool.KindRotational {
		p.Frequency = strings.ToLower(in.Frequency)
		p.RoundDuration = pool.RoundDurationFor(in.Frequency)
	}

	created, err := s.store.CreatePool(ctx, p)
	if err != nil {
		return pool.Pool{}, mapStoreErr(err)
	}

	members := make([]pool.Member, 0, len(in.Members))
	for _, addr := range in.Members {
		members = append(members, pool.Member{
			PoolID:             created.ID,
			Address:            pool.NormalizeAddress(addr),
			ContributionAmount: in.ContributionAmount,
			Status:             pool.MemberPending,
		})
	}
	if _, err := s.store.CreateMembers(ctx, members); err != nil {
		return pool.Pool{}, mapStoreErr(err)
	}

	activity := pool.Activity{
		PoolID:      created.ID,
		Kind:        pool.ActivityPoolCreated,
		Actor:       created.CreatorAddress,
		Description: string(in.Kind) + " pool created",
		TxHash:      strings.ToLower(in.TxHash),
	}
	if _, err := s.store.CreateActivity(ctx, activity); err != nil && !stderrors.Is(err, storage.ErrDuplicateTxHash) {
		s.log.WithError(err).WithField("pool_id", created.ID).Warn("pool created but creation activity not recorded")
	}

	metrics.PoolCreated(string(in.Kind))
	s.log.WithField("pool_id", created.ID).Infof("pool mirrored: %s (%s)", created.Name, created.Kind)
	return created, nil
}

// Detail is a pool with its nested members and activity feed.
type Detail struct {
	pool.Pool
	Members  []pool.Member   `json:"pool_members"`
	Activity []pool.Activity `json:"pool_activity"`
}

// Get returns one pool with members and activity.
func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	p, err := s.store.GetPool(ctx, id)
	if err != nil {
		return Detail{}, mapStoreErr(err)
	}
	members, err := s.store.ListMembers(ctx, id)
	if err != nil {
		return Detail{}, mapStoreErr(err)
	}
	activity, err := s.store.ListActivities(ctx, id)
	if err != nil {
		return Detail{}, mapStoreErr(err)
	}
	return Detail{Pool: p, Members: members, Activity: activity}, nil
}

// ListByCreator returns pools created by the account, newest first.
func (s *Service) ListByCreator(ctx context.Context, creator string) ([]pool.Pool, error) {
	pools, err := s.store.ListPoolsByCreator(ctx, creator)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return pools, nil
}

// MaxRecentPools bounds the default listing page.
const MaxRecentPools = 50

// ListRecent returns the most recent pools, newest first.
func (s *Service) ListRecent(ctx context.Context) ([]pool.Pool, error) {
	pools, err := s.store.ListRecentPools(ctx, MaxRecentPools)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return pools, nil
}

// UpdateInput lists the mutable pool fields. Nil means "leave unchanged".
type UpdateInput struct {
	Name          *string      `json:"name"`
	Description   *string      `json:"description"`
	Status        *pool.Status `json:"status"`
	TotalSaved    *float64     `json:"total_saved"`
	Progress      *float64     `json:"progress"`
	NextPayout    *time.Time   `json:"next_payout"`
	NextRecipient *string      `json:"next_recipient"`
}

// Update patches a pool's mutable fields. Kind and contract address cannot
// change after creation.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (pool.Pool, error) {
	p, err := s.store.GetPool(ctx, id)
	if err != nil {
		return pool.Pool{}, mapStoreErr(err)
	}

	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Status != nil {
		switch *in.Status {
		case pool.StatusActive, pool.StatusCompleted, pool.StatusPaused:
			p.Status = *in.Status
		default:
			return pool.Pool{}, errors.Validation("unknown status %q", *in.Status)
		}
	}
	if in.TotalSaved != nil {
		p.TotalSaved = *in.TotalSaved
		p.RecomputeProgress()
	}
	if in.Progress != nil {
		p.Progress = *in.Progress
	}
	if in.NextPayout != nil {
		p.NextPayout = *in.NextPayout
	}
	if in.NextRecipient != nil {
		p.NextRecipient = pool.NormalizeAddress(*in.NextRecipient)
	}

	updated, err := s.store.UpdatePool(ctx, p)
	if err != nil {
		return pool.Pool{}, mapStoreErr(err)
	}
	return updated, nil
}

func mapStoreErr(err error) error {
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		return errors.NotFound("pool not found")
	case stderrors.Is(err, storage.ErrDuplicateContract):
		return errors.Validation("a pool with this contract address already exists")
	case stderrors.Is(err, storage.ErrUnavailable):
		return errors.StoreUnavailable(err)
	default:
		return errors.Unknown(err)
	}
}
