// Package pool defines the savings-pool domain model mirrored off-chain.
package pool

import (
	"strings"
	"time"
)

// Kind identifies the pool contract variant. Fixed at creation.
type Kind string

const (
	KindRotational Kind = "rotational"
	KindTarget     Kind = "target"
	KindFlexible   Kind = "flexible"
)

// Valid reports whether k names a known pool kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRotational, KindTarget, KindFlexible:
		return true
	}
	return false
}

// Status is the pool lifecycle state. Pools are never hard-deleted.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
)

// MemberStatus tracks a member's standing within the current round.
type MemberStatus string

const (
	MemberPending MemberStatus = "pending"
	MemberPaid    MemberStatus = "paid"
	MemberLate    MemberStatus = "late"
)

// ActivityKind names the semantic event behind an activity row.
type ActivityKind string

const (
	ActivityPoolCreated  ActivityKind = "pool_created"
	ActivityDeposit      ActivityKind = "deposit"
	ActivityContribute   ActivityKind = "contribute"
	ActivityPayout       ActivityKind = "payout"
	ActivityWithdrawal   ActivityKind = "withdrawal"
	ActivityMemberJoined ActivityKind = "member_joined"
)

// ValueIncreasing reports whether the event adds to the pool's saved total.
func (k ActivityKind) ValueIncreasing() bool {
	return k == ActivityDeposit || k == ActivityContribute
}

// Pool is the off-chain mirror of one savings circle. The on-chain contract is
// the source of truth for balances; TotalSaved is a reporting aggregate.
type Pool struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Kind            Kind      `json:"type"`
	Status          Status    `json:"status"`
	CreatorAddress  string    `json:"creator_address"`
	ContractAddress string    `json:"contract_address"`
	TokenAddress    string    `json:"token_address"`
	TotalSaved      float64   `json:"total_saved"`
	TargetAmount    float64   `json:"target_amount,omitempty"`
	Progress        float64   `json:"progress"`
	MembersCount    int       `json:"members_count"`
	NextPayout      time.Time `json:"next_payout,omitempty"`
	NextRecipient   string    `json:"next_recipient,omitempty"`

	// Kind-specific parameters captured at creation.
	ContributionAmount float64   `json:"contribution_amount,omitempty"` // rotational per-round deposit
	RoundDuration      int64     `json:"round_duration,omitempty"`      // rotational, seconds
	Frequency          string    `json:"frequency,omitempty"`           // rotational label
	Deadline           time.Time `json:"deadline,omitempty"`            // target
	MinimumDeposit     float64   `json:"minimum_deposit,omitempty"`     // flexible
	WithdrawalFeeBps   int64     `json:"withdrawal_fee,omitempty"`      // flexible
	YieldEnabled       bool      `json:"yield_enabled"`                 // flexible

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecomputeProgress refreshes the derived progress percentage from the saved
// total. Only target pools have a denominator; others keep whatever the store
// holds.
func (p *Pool) RecomputeProgress() {
	if p.TargetAmount <= 0 {
		return
	}
	pct := p.TotalSaved / p.TargetAmount * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	p.Progress = pct
}

// Member belongs to exactly one pool. The member set is fixed at creation for
// rotational and target kinds.
type Member struct {
	ID                 string       `json:"id"`
	PoolID             string       `json:"pool_id"`
	Address            string       `json:"member_address"`
	ContributionAmount float64      `json:"contribution_amount"`
	Status             MemberStatus `json:"status"`
	JoinedAt           time.Time    `json:"joined_at"`
}

// Activity is an immutable, append-only event on a pool. For on-chain-triggered
// events TxHash is the idempotency key: unique per pool.
type Activity struct {
	ID          string       `json:"id"`
	PoolID      string       `json:"pool_id"`
	Kind        ActivityKind `json:"activity_type"`
	Actor       string       `json:"user_address,omitempty"` // empty means system event
	Amount      float64      `json:"amount,omitempty"`
	Description string       `json:"description,omitempty"`
	TxHash      string       `json:"tx_hash,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Frequency labels accepted at rotational pool creation, mapped to round
// durations in seconds.
var roundDurations = map[string]int64{
	"daily":    86400,
	"weekly":   604800,
	"biweekly": 1209600,
	"monthly":  2592000,
}

// RoundDurationFor maps a frequency label to seconds, defaulting to weekly.
func RoundDurationFor(frequency string) int64 {
	if d, ok := roundDurations[strings.ToLower(frequency)]; ok {
		return d
	}
	return roundDurations["weekly"]
}

// NormalizeAddress lowercases an account or contract address. Addresses are
// stored lowercased so lookups are case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
