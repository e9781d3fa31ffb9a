// Package postgres implements the pool mirror stores backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/basesafe/pool-service/internal/app/domain/pool"
	"github.com/basesafe/pool-service/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const poolColumns = `
	id, name, description, type, status, creator_address, contract_address,
	token_address, total_saved, target_amount, progress, members_count,
	next_payout, next_recipient, contribution_amount, round_duration,
	frequency, deadline, minimum_deposit, withdrawal_fee, yield_enabled,
	created_at, updated_at`

// --- PoolStore --------------------------------------------------------------

func (s *Store) CreatePool(ctx context.Context, p pool.Pool) (pool.Pool, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pools (
			id, name, description, type, status, creator_address, contract_address,
			token_address, total_saved, target_amount, progress, members_count,
			next_payout, next_recipient, contribution_amount, round_duration,
			frequency, deadline, minimum_deposit, withdrawal_fee, yield_enabled,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23)
	`,
		p.ID, p.Name, toNullString(p.Description), string(p.Kind), string(p.Status),
		p.CreatorAddress, p.ContractAddress, p.TokenAddress,
		p.TotalSaved, p.TargetAmount, p.Progress, p.MembersCount,
		toNullTime(p.NextPayout), toNullString(p.NextRecipient),
		p.ContributionAmount, p.RoundDuration, toNullString(p.Frequency),
		toNullTime(p.Deadline), p.MinimumDeposit, p.WithdrawalFeeBps, p.YieldEnabled,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "pools_contract_address_key") {
			return pool.Pool{}, storage.ErrDuplicateContract
		}
		return pool.Pool{}, mapErr(err)
	}
	return p, nil
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

	result, err := s.db.ExecContext(ctx, `
		UPDATE pools
		SET name = $2, description = $3, status = $4, total_saved = $5,
			target_amount = $6, progress = $7, members_count = $8,
			next_payout = $9, next_recipient = $10, updated_at = $11
		WHERE id = $1
	`,
		p.ID, p.Name, toNullString(p.Description), string(p.Status),
		p.TotalSaved, p.TargetAmount, p.Progress, p.MembersCount,
		toNullTime(p.NextPayout), toNullString(p.NextRecipient), p.UpdatedAt,
	)
	if err != nil {
		return pool.Pool{}, mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return pool.Pool{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetPool(ctx context.Context, id string) (pool.Pool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+poolColumns+`
		FROM pools
		WHERE id = $1
	`, id)
	return scanPool(row)
}

func (s *Store) GetPoolByContract(ctx context.Context, contractAddress string) (pool.Pool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+poolColumns+`
		FROM pools
		WHERE LOWER(contract_address) = LOWER($1)
	`, contractAddress)
	return scanPool(row)
}

func (s *Store) ListPoolsByCreator(ctx context.Context, creatorAddress string) ([]pool.Pool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+poolColumns+`
		FROM pools
		WHERE LOWER(creator_address) = LOWER($1)
		ORDER BY created_at DESC
	`, creatorAddress)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return scanPools(rows)
}

func (s *Store) ListRecentPools(ctx context.Context, limit int) ([]pool.Pool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+poolColumns+`
		FROM pools
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return scanPools(rows)
}

func (s *Store) ListExpiredPools(ctx context.Context, cutoff time.Time) ([]pool.Pool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+poolColumns+`
		FROM pools
		WHERE status = $1 AND deadline IS NOT NULL AND deadline < $2
	`, string(pool.StatusActive), cutoff)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return scanPools(rows)
}

// AddToTotalSaved increments the reporting aggregate in a single statement so
// concurrent deposits cannot lose updates.
func (s *Store) AddToTotalSaved(ctx context.Context, id string, amount float64) (pool.Pool, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE pools
		SET total_saved = total_saved + $2,
			progress = CASE WHEN target_amount > 0
				THEN LEAST((total_saved + $2) / target_amount * 100, 100)
				ELSE progress END,
			updated_at = $3
		WHERE id = $1
		RETURNING `+poolColumns+`
	`, id, amount, time.Now().UTC())
	return scanPool(row)
}

// --- MemberStore ------------------------------------------------------------

func (s *Store) CreateMembers(ctx context.Context, members []pool.Member) ([]pool.Member, error) {
	if len(members) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pool_members (
			id, pool_id, member_address, contribution_amount, status, joined_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	out := make([]pool.Member, 0, len(members))
	for _, m := range members {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.JoinedAt = now
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.PoolID, m.Address, m.ContributionAmount, string(m.Status), m.JoinedAt,
		); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, m)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) ListMembers(ctx context.Context, poolID string) ([]pool.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pool_id, member_address, contribution_amount, status, joined_at
		FROM pool_members
		WHERE pool_id = $1
		ORDER BY joined_at
	`, poolID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var members []pool.Member
	for rows.Next() {
		var m pool.Member
		var status string
		if err := rows.Scan(&m.ID, &m.PoolID, &m.Address, &m.ContributionAmount, &status, &m.JoinedAt); err != nil {
			return nil, mapErr(err)
		}
		m.Status = pool.MemberStatus(status)
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) UpdateMemberStatus(ctx context.Context, id string, status pool.MemberStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pool_members SET status = $2 WHERE id = $1
	`, id, string(status))
	if err != nil {
		return mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- ActivityStore ----------------------------------------------------------

func (s *Store) CreateActivity(ctx context.Context, act pool.Activity) (pool.Activity, error) {
	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	act.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pool_activity (
			id, pool_id, activity_type, actor_address, amount, description,
			tx_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		act.ID, act.PoolID, string(act.Kind), toNullString(act.Actor),
		act.Amount, toNullString(act.Description), toNullString(act.TxHash),
		act.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "pool_activity_pool_id_tx_hash_key") {
			return pool.Activity{}, storage.ErrDuplicateTxHash
		}
		return pool.Activity{}, mapErr(err)
	}
	return act, nil
}

func (s *Store) ListActivities(ctx context.Context, poolID string) ([]pool.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pool_id, activity_type, actor_address, amount, description,
			tx_hash, created_at
		FROM pool_activity
		WHERE pool_id = $1
		ORDER BY created_at DESC
	`, poolID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var activities []pool.Activity
	for rows.Next() {
		act, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, act)
	}
	return activities, rows.Err()
}

func (s *Store) GetActivityByTxHash(ctx context.Context, poolID, txHash string) (pool.Activity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pool_id, activity_type, actor_address, amount, description,
			tx_hash, created_at
		FROM pool_activity
		WHERE pool_id = $1 AND LOWER(tx_hash) = LOWER($2)
	`, poolID, txHash)
	return scanActivity(row)
}

// --- helpers ----------------------------------------------------------------

type scannable interface {
	Scan(dest ...any) error
}

func scanPool(row scannable) (pool.Pool, error) {
	var (
		p             pool.Pool
		kind, status  string
		description   sql.NullString
		nextPayout    sql.NullTime
		nextRecipient sql.NullString
		frequency     sql.NullString
		deadline      sql.NullTime
	)

	err := row.Scan(
		&p.ID, &p.Name, &description, &kind, &status,
		&p.CreatorAddress, &p.ContractAddress, &p.TokenAddress,
		&p.TotalSaved, &p.TargetAmount, &p.Progress, &p.MembersCount,
		&nextPayout, &nextRecipient,
		&p.ContributionAmount, &p.RoundDuration, &frequency,
		&deadline, &p.MinimumDeposit, &p.WithdrawalFeeBps, &p.YieldEnabled,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return pool.Pool{}, mapErr(err)
	}

	p.Kind = pool.Kind(kind)
	p.Status = pool.Status(status)
	p.Description = description.String
	p.NextRecipient = nextRecipient.String
	p.Frequency = frequency.String
	if nextPayout.Valid {
		p.NextPayout = nextPayout.Time
	}
	if deadline.Valid {
		p.Deadline = deadline.Time
	}
	return p, nil
}

func scanPools(rows *sql.Rows) ([]pool.Pool, error) {
	var pools []pool.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

func scanActivity(row scannable) (pool.Activity, error) {
	var (
		act                      pool.Activity
		kind                     string
		actor, description, hash sql.NullString
	)

	err := row.Scan(
		&act.ID, &act.PoolID, &kind, &actor, &act.Amount,
		&description, &hash, &act.CreatedAt,
	)
	if err != nil {
		return pool.Activity{}, mapErr(err)
	}

	act.Kind = pool.ActivityKind(kind)
	act.Actor = actor.String
	act.Description = description.String
	act.TxHash = hash.String
	return act, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// mapErr translates driver errors into the storage sentinels. Undefined
// tables and connection failures both read as "store unavailable", which the
// callers distinguish from "record not found".
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return storage.ErrUnavailable
		}
		if pqErr.Code == "42P01" {
			return storage.ErrUnavailable
		}
		return err
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return storage.ErrUnavailable
	}
	return err
}
