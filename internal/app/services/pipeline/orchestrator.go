// Package pipeline sequences user-facing pool actions: gate check, on-chain
// call, confirmation wait, address extraction, and off-chain reconciliation.
package pipeline

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/basesafe/pool-service/internal/app/domain/pool"
	"github.com/basesafe/pool-service/internal/app/metrics"
	"github.com/basesafe/pool-service/internal/app/services/pools"
	"github.com/basesafe/pool-service/internal/chain"
	"github.com/basesafe/pool-service/internal/dedupe"
	"github.com/basesafe/pool-service/internal/errors"
	"github.com/basesafe/pool-service/pkg/logger"
)

// State is one step of the action pipeline.
type State string

const (
	StateIdle           State = "idle"
	StateSubmitting     State = "submitting"
	StateConfirming     State = "confirming"
	StatePostProcessing State = "post_processing"
	StateReconciling    State = "reconciling"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// FailureReason distinguishes terminal failures so callers can present
// the right remediation.
type FailureReason string

const (
	ReasonNone              FailureReason = ""
	ReasonUserDeclined      FailureReason = "user_declined"
	ReasonInsufficientFunds FailureReason = "insufficient_funds"
	ReasonContractRevert    FailureReason = "contract_revert"
	ReasonAddressNotFound   FailureReason = "address_not_found"
	ReasonNetwork           FailureReason = "network"
	ReasonStoreUnavailable  FailureReason = "store_unavailable"
)

// ChainReader is the read-only chain surface the pipeline needs. Satisfied
// by *chain.Client.
type ChainReader interface {
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*chain.Receipt, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	DepositAmount(ctx context.Context, poolContract common.Address) (*big.Int, error)
}

// Orchestrator drives one on-chain action end to end and mirrors the result
// off-chain. It is stateless between calls; each call runs its own state
// machine instance.
type Orchestrator struct {
	wallet  chain.Wallet
	reader  ChainReader
	pools   *pools.Service
	tracker dedupe.Tracker
	factory common.Address
	log     *logger.Logger

	// OnTransition, when set, observes every state the pipeline enters.
	OnTransition func(State)
}

// New creates an orchestrator. tracker may be nil, in which case only the
// store-level uniqueness constraint guards against duplicate activity rows.
func New(wallet chain.Wallet, reader ChainReader, poolSvc *pools.Service, tracker dedupe.Tracker, factory common.Address, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewDefault("pipeline")
	}
	if tracker == nil {
		tracker = dedupe.NewMemory()
	}
	return &Orchestrator{
		wallet:  wallet,
		reader:  reader,
		pools:   poolSvc,
		tracker: tracker,
		factory: factory,
		log:     log,
	}
}

// Result reports the terminal state of a pipeline run plus whatever the run
// produced. Warning carries a non-fatal reconciliation failure; the on-chain
// action still succeeded when it is set.
type Result struct {
	State         State
	FailureReason FailureReason
	TxHash        common.Hash
	PoolAddress   common.Address
	Pool          pool.Pool
	Activity      pool.Activity
	Warning       string
}

func (o *Orchestrator) transition(r *Result, s State) {
	r.State = s
	if o.OnTransition != nil {
		o.OnTransition(s)
	}
}

func (o *Orchestrator) fail(r *Result, action string, reason FailureReason, err error) (Result, error) {
	r.FailureReason = reason
	o.transition(r, StateFailed)
	metrics.PipelineOutcome(action, string(StateFailed), string(reason))
	o.log.WithError(err).WithField("action", action).WithField("reason", string(reason)).Error("pipeline failed")
	return *r, err
}

func (o *Orchestrator) done(r *Result, action string) Result {
	o.transition(r, StateDone)
	metrics.PipelineOutcome(action, string(StateDone), string(ReasonNone))
	return *r
}

// classifySubmitErr maps a wallet submission error to a failure reason and a
// categorized service error.
func classifySubmitErr(err error) (FailureReason, error) {
	if chain.IsUserRejected(err) {
		return ReasonUserDeclined, errors.Chain(errors.ChainUserDeclined, err)
	}
	reason := chain.RevertReason(err)
	category := errors.CategorizeRevert(reason)
	if category == errors.ChainInsufficientBalance {
		return ReasonInsufficientFunds, errors.Chain(category, err)
	}
	return ReasonContractRevert, errors.Chain(category, err)
}

// CreatePoolInput carries everything a creation run needs: the factory call
// arguments and the off-chain mirror fields. Mirror.PoolAddress and
// Mirror.TxHash are filled by the pipeline.
type CreatePoolInput struct {
	Mirror pools.CreateInput
	Args   []interface{}
}

func createFunction(kind pool.Kind) (string, error) {
	switch kind {
	case pool.KindRotational:
		return chain.FnCreateRotational, nil
	case pool.KindTarget:
		return chain.FnCreateTarget, nil
	case pool.KindFlexible:
		return chain.FnCreateFlexible, nil
	default:
		return "", errors.Validation("unknown pool kind %q", kind)
	}
}

// CreatePool submits the factory creation call, waits for the receipt,
// extracts the new pool's address from the creation event, and mirrors the
// pool off-chain. A mirror write failure after on-chain success is demoted
// to a warning.
func (o *Orchestrator) CreatePool(ctx context.Context, in CreatePoolInput) (Result, error) {
	const action = "create_pool"
	r := Result{State: StateIdle}

	fn, err := createFunction(in.Mirror.Kind)
	if err != nil {
		return o.fail(&r, action, ReasonContractRevert, err)
	}

	o.transition(&r, StateSubmitting)
	txHash, err := o.wallet.WriteContract(ctx, chain.WriteCall{
		To:       o.factory,
		Function: fn,
		Args:     in.Args,
	})
	if err != nil {
		reason, serr := classifySubmitErr(err)
		return o.fail(&r, action, reason, serr)
	}
	r.TxHash = txHash

	o.transition(&r, StateConfirming)
	receipt, err := o.reader.WaitForReceipt(ctx, txHash)
	if err != nil {
		return o.fail(&r, action, ReasonNetwork, errors.Chain(errors.ChainOther, err))
	}
	if !receipt.Succeeded() {
		return o.fail(&r, action, ReasonContractRevert,
			errors.Chain(errors.ChainOther, fmt.Errorf("creation transaction %s reverted", txHash.Hex())))
	}

	o.transition(&r, StatePostProcessing)
	poolAddr, ok := chain.ExtractPoolAddress(receipt, o.factory)
	if !ok {
		return o.fail(&r, action, ReasonAddressNotFound,
			errors.Chain(errors.ChainOther,
				fmt.Errorf("no pool creation event from factory %s in transaction %s", o.factory.Hex(), txHash.Hex())))
	}
	r.PoolAddress = poolAddr

	o.transition(&r, StateReconciling)
	mirror := in.Mirror
	mirror.PoolAddress = poolAddr.Hex()
	mirror.TxHash = txHash.Hex()
	created, err := o.pools.Create(ctx, mirror)
	if err != nil {
		// The contract exists on chain regardless of the mirror write.
		r.Warning = fmt.Sprintf("pool deployed at %s but off-chain mirror not written: %v", poolAddr.Hex(), err)
		o.log.WithError(err).WithField("pool_address", poolAddr.Hex()).Warn("pool mirror write failed after on-chain success")
		return o.done(&r, action), nil
	}
	r.Pool = created

	return o.done(&r, action), nil
}

// DepositInput carries one value-moving action against an existing pool.
// Amount is the on-chain token amount; for rotational pools it may be nil,
// in which case the contract's fixed per-round deposit amount is read.
// DisplayAmount is the human-denominated amount recorded in the mirror.
type DepositInput struct {
	PoolID        string
	PoolContract  common.Address
	TokenAddress  common.Address
	Caller        common.Address
	Kind          pool.Kind
	Amount        *big.Int
	DisplayAmount float64
	Description   string
}

func depositCall(in DepositInput, amount *big.Int) (chain.WriteCall, pool.ActivityKind) {
	switch in.Kind {
	case pool.KindTarget:
		return chain.WriteCall{
			To:       in.PoolContract,
			Function: chain.FnContribute,
			Args:     []interface{}{amount},
		}, pool.ActivityContribute
	case pool.KindRotational:
		// The per-round amount is fixed in the contract; deposit takes no args.
		return chain.WriteCall{
			To:       in.PoolContract,
			Function: chain.FnDeposit,
		}, pool.ActivityDeposit
	default:
		return chain.WriteCall{
			To:       in.PoolContract,
			Function: chain.FnDeposit,
			Args:     []interface{}{amount},
		}, pool.ActivityDeposit
	}
}

// Deposit runs the gated deposit flow: evaluate the allowance/balance gate,
// auto-approve when needed (with exactly one gate re-check and deposit retry
// after the approval confirms), submit the value-moving call, wait for the
// receipt, and record the activity in the mirror. The on-chain call itself is
// never retried beyond that single post-approval attempt.
func (o *Orchestrator) Deposit(ctx context.Context, in DepositInput) (Result, error) {
	const action = "deposit"
	r := Result{State: StateIdle}

	amount := in.Amount
	if in.Kind == pool.KindRotational {
		fixed, err := o.reader.DepositAmount(ctx, in.PoolContract)
		if err != nil {
			return o.fail(&r, action, ReasonNetwork, errors.Chain(errors.ChainOther, err))
		}
		amount = fixed
	}
	if amount == nil || amount.Sign() <= 0 {
		return o.fail(&r, action, ReasonContractRevert, errors.Validation("deposit amount must be positive"))
	}

	decision, err := o.evaluate(ctx, in, amount)
	if err != nil {
		return o.fail(&r, action, ReasonNetwork, errors.Chain(errors.ChainOther, err))
	}
	if decision == DecisionInsufficientBalance {
		return o.fail(&r, action, ReasonInsufficientFunds,
			errors.Chain(errors.ChainInsufficientBalance,
				fmt.Errorf("balance below requested amount %s", amount.String())))
	}

	if decision == DecisionNeedsApproval {
		if res, err := o.approve(ctx, &r, action, in, amount); err != nil {
			return res, err
		}

		// One gate re-check after the approval confirms, then proceed or fail.
		o.transition(&r, StatePostProcessing)
		decision, err = o.evaluate(ctx, in, amount)
		if err != nil {
			return o.fail(&r, action, ReasonNetwork, errors.Chain(errors.ChainOther, err))
		}
		if decision != DecisionReady {
			return o.fail(&r, action, ReasonContractRevert,
				errors.Chain(errors.ChainOther,
					fmt.Errorf("gate not ready after approval: %s", decision)))
		}
	}

	call, activityKind := depositCall(in, amount)

	o.transition(&r, StateSubmitting)
	txHash, err := o.wallet.WriteContract(ctx, call)
	if err != nil {
		reason, serr := classifySubmitErr(err)
		return o.fail(&r, action, reason, serr)
	}
	r.TxHash = txHash

	o.transition(&r, StateConfirming)
	receipt, err := o.reader.WaitForReceipt(ctx, txHash)
	if err != nil {
		return o.fail(&r, action, ReasonNetwork, errors.Chain(errors.ChainOther, err))
	}
	if !receipt.Succeeded() {
		return o.fail(&r, action, ReasonContractRevert,
			errors.Chain(errors.ChainOther, fmt.Errorf("deposit transaction %s reverted", txHash.Hex())))
	}

	o.transition(&r, StateReconciling)
	o.reconcile(ctx, &r, reconcileInput{
		PoolID:      in.PoolID,
		Contract:    in.PoolContract,
		Caller:      in.Caller,
		Kind:        activityKind,
		Amount:      in.DisplayAmount,
		Description: in.Description,
	}, txHash)

	return o.done(&r, action), nil
}

// WithdrawInput carries a withdrawal from a target or flexible pool.
type WithdrawInput struct {
	PoolID        string
	PoolContract  common.Address
	Caller        common.Address
	Amount        *big.Int
	DisplayAmount float64
	Description   string
}

// Withdraw submits the withdrawal call and mirrors it as a withdrawal
// activity. No gate runs: moving funds out of the pool needs no allowance.
func (o *Orchestrator) Withdraw(ctx context.Context, in WithdrawInput) (Result, error) {
	const action = "withdraw"
	r := Result{State: StateIdle}

	if in.Amount == nil || in.Amount.Sign() <= 0 {
		return o.fail(&r, action, ReasonContractRevert, errors.Validation("withdrawal amount must be positive"))
	}

	o.transition(&r, StateSubmitting)
	txHash, err := o.wallet.WriteContract(ctx, chain.WriteCall{
		To:       in.PoolContract,
		Function: chain.FnWithdraw,
		Args:     []interface{}{in.Amount},
	})
	if err != nil {
		reason, serr := classifySubmitErr(err)
		return o.fail(&r, action, reason, serr)
	}
	r.TxHash = txHash

	o.transition(&r, StateConfirming)
	receipt, err := o.reader.WaitForReceipt(ctx, txHash)
	if err != nil {
		return o.fail(&r, action, ReasonNetwork, errors.Chain(errors.ChainOther, err))
	}
	if !receipt.Succeeded() {
		return o.fail(&r, action, ReasonContractRevert,
			errors.Chain(errors.ChainOther, fmt.Errorf("withdrawal transaction %s reverted", txHash.Hex())))
	}

	o.transition(&r, StateReconciling)
	o.reconcile(ctx, &r, reconcileInput{
		PoolID:      in.PoolID,
		Contract:    in.PoolContract,
		Caller:      in.Caller,
		Kind:        pool.ActivityWithdrawal,
		Amount:      in.DisplayAmount,
		Description: in.Description,
	}, txHash)

	return o.done(&r, action), nil
}

// evaluate reads balance and allowance and runs the gate.
func (o *Orchestrator) evaluate(ctx context.Context, in DepositInput, amount *big.Int) (Decision, error) {
	balance, err := o.reader.BalanceOf(ctx, in.TokenAddress, in.Caller)
	if err != nil {
		return "", fmt.Errorf("read balance: %w", err)
	}
	allowance, err := o.reader.Allowance(ctx, in.TokenAddress, in.Caller, in.PoolContract)
	if err != nil {
		return "", fmt.Errorf("read allowance: %w", err)
	}
	return EvaluateGate(balance, allowance, amount), nil
}

// approve submits the token approval and waits for it to confirm. On failure
// it finalizes r and returns the terminal result and error.
func (o *Orchestrator) approve(ctx context.Context, r *Result, action string, in DepositInput, amount *big.Int) (Result, error) {
	o.transition(r, StateSubmitting)
	approveHash, err := o.wallet.WriteContract(ctx, chain.WriteCall{
		To:       in.TokenAddress,
		Function: chain.FnApprove,
		Args:     chain.ApproveArgs(in.PoolContract, amount),
	})
	if err != nil {
		reason, serr := classifySubmitErr(err)
		return o.fail(r, action, reason, serr)
	}

	o.transition(r, StateConfirming)
	receipt, err := o.reader.WaitForReceipt(ctx, approveHash)
	if err != nil {
		return o.fail(r, action, ReasonNetwork, errors.Chain(errors.ChainOther, err))
	}
	if !receipt.Succeeded() {
		return o.fail(r, action, ReasonContractRevert,
			errors.Chain(errors.ChainOther, fmt.Errorf("approval transaction %s reverted", approveHash.Hex())))
	}
	return Result{}, nil
}

// reconcileInput names the mirror fields shared by the value-moving flows.
type reconcileInput struct {
	PoolID      string
	Contract    common.Address
	Caller      common.Address
	Kind        pool.ActivityKind
	Amount      float64
	Description string
}

// reconcile writes the activity row. Any failure here is demoted to a
// warning on the result; the transfer already succeeded on chain.
func (o *Orchestrator) reconcile(ctx context.Context, r *Result, in reconcileInput, txHash common.Hash) {
	first, err := o.tracker.Register(ctx, txHash.Hex())
	if err != nil {
		// Tracker outage is not fatal; the store uniqueness constraint
		// still prevents duplicate rows.
		o.log.WithError(err).Warn("tx dedupe tracker unavailable, relying on store uniqueness")
		first = true
	}
	if !first {
		o.log.WithField("tx_hash", txHash.Hex()).Info("activity already recorded for tx, skipping")
		metrics.DuplicateTxSkipped()
		return
	}

	activity, err := o.pools.RecordActivity(ctx, pools.RecordActivityInput{
		PoolID:       in.PoolID,
		Kind:         in.Kind,
		Actor:        in.Caller.Hex(),
		Amount:       in.Amount,
		Description:  in.Description,
		TxHash:       txHash.Hex(),
		ContractHint: in.Contract.Hex(),
	})
	if err != nil {
		r.Warning = fmt.Sprintf("transfer %s confirmed on chain but activity not recorded: %v", txHash.Hex(), err)
		o.log.WithError(err).WithField("tx_hash", txHash.Hex()).Warn("activity write failed after on-chain success")
		return
	}
	r.Activity = activity
}
