package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/basesafe/pool-service/internal/app/domain/pool"
	"github.com/basesafe/pool-service/internal/app/services/pools"
	"github.com/basesafe/pool-service/internal/app/storage/memory"
	"github.com/basesafe/pool-service/internal/chain"
)

var (
	factoryAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	poolAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenAddr   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	callerAddr  = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

// fakeChain plays both the wallet and the RPC reader. Approvals take effect
// on the tracked allowance so the post-approval gate re-check passes.
type fakeChain struct {
	balance   *big.Int
	allowance *big.Int
	deposit   *big.Int

	submitErr map[string]error
	receipts  map[common.Hash]*chain.Receipt
	calls     []string
	nextNonce int
}

func newFakeChain(balance, allowance int64) *fakeChain {
	return &fakeChain{
		balance:   big.NewInt(balance),
		allowance: big.NewInt(allowance),
		submitErr: map[string]error{},
		receipts:  map[common.Hash]*chain.Receipt{},
	}
}

func (f *fakeChain) WriteContract(_ context.Context, call chain.WriteCall) (common.Hash, error) {
	f.calls = append(f.calls, call.Function)
	if err := f.submitErr[call.Function]; err != nil {
		return common.Hash{}, err
	}
	if call.Function == chain.FnApprove {
		f.allowance = call.Args[1].(*big.Int)
	}
	f.nextNonce++
	return common.BigToHash(big.NewInt(int64(f.nextNonce))), nil
}

func (f *fakeChain) WaitForReceipt(_ context.Context, txHash common.Hash) (*chain.Receipt, error) {
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return &chain.Receipt{TxHash: txHash, Status: hexutil.Uint64(1)}, nil
}

func (f *fakeChain) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeChain) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return f.allowance, nil
}

func (f *fakeChain) DepositAmount(context.Context, common.Address) (*big.Int, error) {
	if f.deposit == nil {
		return nil, fmt.Errorf("no fixed deposit amount")
	}
	return f.deposit, nil
}

func (f *fakeChain) countCalls(fn string) int {
	n := 0
	for _, c := range f.calls {
		if c == fn {
			n++
		}
	}
	return n
}

func deadline() time.Time {
	return time.Now().Add(30 * 24 * time.Hour).UTC()
}

func seedPool(t *testing.T, svc *pools.Service, kind pool.Kind) pool.Pool {
	t.Helper()
	p, err := svc.Create(context.Background(), pools.CreateInput{
		Name:               "test circle",
		Kind:               kind,
		CreatorAddress:     callerAddr.Hex(),
		PoolAddress:        poolAddr.Hex(),
		TokenAddress:       tokenAddr.Hex(),
		Members:            []string{callerAddr.Hex()},
		ContributionAmount: 0.5,
		TargetAmount:       100,
		Deadline:           deadline(),
		MinimumDeposit:     0,
	})
	if err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	return p
}

func TestDepositReadyPath(t *testing.T) {
	fc := newFakeChain(10, 10)
	svc := pools.New(memory.New(), nil)
	orch := New(fc, fc, svc, nil, factoryAddr, nil)

	var states []State
	orch.OnTransition = func(s State) { states = append(states, s) }

	p := seedPool(t, svc, pool.KindFlexible)

	res, err := orch.Deposit(context.Background(), DepositInput{
		PoolID:        p.ID,
		PoolContract:  poolAddr,
		TokenAddress:  tokenAddr,
		Caller:        callerAddr,
		Kind:          pool.KindFlexible,
		Amount:        big.NewInt(4),
		DisplayAmount: 1.0,
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.State != StateDone {
		t.Fatalf("terminal state = %s, want %s", res.State, StateDone)
	}
	if res.Warning != "" {
		t.Fatalf("unexpected warning: %s", res.Warning)
	}
	if fc.countCalls(chain.FnApprove) != 0 {
		t.Fatal("ready path must not approve")
	}

	want := []State{StateSubmitting, StateConfirming, StateReconciling, StateDone}
	assertStates(t, states, want)

	detail, err := svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	// One creation activity plus the deposit.
	if len(detail.Activity) != 2 {
		t.Fatalf("activity rows = %d, want 2", len(detail.Activity))
	}
	if detail.TotalSaved != 1.0 {
		t.Fatalf("total_saved = %v, want 1.0", detail.TotalSaved)
	}
}

func TestDepositAutoApproveChain(t *testing.T) {
	fc := newFakeChain(10, 0)
	svc := pools.New(memory.New(), nil)
	orch := New(fc, fc, svc, nil, factoryAddr, nil)

	var states []State
	orch.OnTransition = func(s State) { states = append(states, s) }

	p := seedPool(t, svc, pool.KindFlexible)

	res, err := orch.Deposit(context.Background(), DepositInput{
		PoolID:        p.ID,
		PoolContract:  poolAddr,
		TokenAddress:  tokenAddr,
		Caller:        callerAddr,
		Kind:          pool.KindFlexible,
		Amount:        big.NewInt(4),
		DisplayAmount: 4,
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.State != StateDone {
		t.Fatalf("terminal state = %s, want %s", res.State, StateDone)
	}
	if got := fc.countCalls(chain.FnApprove); got != 1 {
		t.Fatalf("approve calls = %d, want exactly 1", got)
	}
	if got := fc.countCalls(chain.FnDeposit); got != 1 {
		t.Fatalf("deposit calls = %d, want exactly 1", got)
	}

	want := []State{
		StateSubmitting, StateConfirming, // approve
		StatePostProcessing, // gate re-check
		StateSubmitting, StateConfirming, // deposit
		StateReconciling, StateDone,
	}
	assertStates(t, states, want)
}

func TestDepositInsufficientBalance(t *testing.T) {
	fc := newFakeChain(2, 10)
	svc := pools.New(memory.New(), nil)
	orch := New(fc, fc, svc, nil, factoryAddr, nil)

	p := seedPool(t, svc, pool.KindFlexible)

	res, err := orch.Deposit(context.Background(), DepositInput{
		PoolID:       p.ID,
		PoolContract: poolAddr,
		TokenAddress: tokenAddr,
		Caller:       callerAddr,
		Kind:         pool.KindFlexible,
		Amount:       big.NewInt(4),
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if res.State != StateFailed || res.FailureReason != ReasonInsufficientFunds {
		t.Fatalf("got state=%s reason=%s", res.State, res.FailureReason)
	}
	if len(fc.calls) != 0 {
		t.Fatal("no contract call should be submitted on insufficient balance")
	}
}

func TestDepositUserDeclined(t *testing.T) {
	fc := newFakeChain(10, 10)
	fc.submitErr[chain.FnDeposit] = chain.ErrUserRejected
	svc := pools.New(memory.New(), nil)
	orch := New(fc, fc, svc, nil, factoryAddr, nil)

	p := seedPool(t, svc, pool.KindFlexible)

	res, err := orch.Deposit(context.Background(), DepositInput{
		PoolID:       p.ID,
		PoolContract: poolAddr,
		TokenAddress: tokenAddr,
		Caller:       callerAddr,
		Kind:         pool.KindFlexible,
		Amount:       big.NewInt(4),
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if res.FailureReason != ReasonUserDeclined {
		t.Fatalf("failure reason = %s, want %s", res.FailureReason, ReasonUserDeclined)
	}
}

func TestDepositRotationalReadsFixedAmount(t *testing.T) {
	fc := newFakeChain(10, 10)
	fc.deposit = big.NewInt(3)
	svc := pools.New(memory.New(), nil)
	orch := New(fc, fc, svc, nil, factoryAddr, nil)

	p := seedPool(t, svc, pool.KindRotational)

	res, err := orch.Deposit(context.Background(), DepositInput{
		PoolID:        p.ID,
		PoolContract:  poolAddr,
		TokenAddress:  tokenAddr,
		Caller:        callerAddr,
		Kind:          pool.KindRotational,
		DisplayAmount: 0.5,
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.State != StateDone {
		t.Fatalf("terminal state = %s", res.State)
	}
	if fc.countCalls(chain.FnDeposit) != 1 {
		t.Fatal("rotational deposit should call the contract once")
	}
}

func TestDepositDuplicateTxSkipsActivity(t *testing.T) {
	fc := newFakeChain(10, 10)
	svc := pools.New(memory.New(), nil)
	orch := New(fc, fc, svc, nil, factoryAddr, nil)

	p := seedPool(t, svc, pool.KindFlexible)

	in := DepositInput{
		PoolID:        p.ID,
		PoolContract:  poolAddr,
		TokenAddress:  tokenAddr,
		Caller:        callerAddr,
		Kind:          pool.KindFlexible,
		Amount:        big.NewInt(4),
		DisplayAmount: 1,
	}

	if _, err := orch.Deposit(context.Background(), in); err != nil {
		t.Fatalf("first deposit: %v", err)
	}

	// Replay with the same nonce so the wallet returns the same hash.
	fc.nextNonce = 0
	if _, err := orch.Deposit(context.Background(), in); err != nil {
		t.Fatalf("second deposit: %v", err)
	}

	detail, err := svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if len(detail.Activity) != 2 { // pool_created + one deposit
		t.Fatalf("activity rows = %d, want 2", len(detail.Activity))
	}
	if detail.TotalSaved != 1 {
		t.Fatalf("total_saved = %v, want 1 (incremented exactly once)", detail.TotalSaved)
	}
}

func TestWithdrawRecordsActivity(t *testing.T) {
	fc := newFakeChain(0, 0)
	svc := pools.New(memory.New(), nil)
	orch := New(fc, fc, svc, nil, factoryAddr, nil)

	var states []State
	orch.OnTransition = func(s State) { states = append(states, s) }

	p := seedPool(t, svc, pool.KindFlexible)

	res, err := orch.Withdraw(context.Background(), WithdrawInput{
		PoolID:        p.ID,
		PoolContract:  poolAddr,
		Caller:        callerAddr,
		Amount:        big.NewInt(2),
		DisplayAmount: 0.5,
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.State != StateDone {
		t.Fatalf("terminal state = %s", res.State)
	}
	if fc.countCalls(chain.FnWithdraw) != 1 {
		t.Fatal("withdraw should call the contract once")
	}
	// No allowance is needed to pull funds out.
	if fc.countCalls(chain.FnApprove) != 0 {
		t.Fatal("withdraw must not approve")
	}
	assertStates(t, states, []State{StateSubmitting, StateConfirming, StateReconciling, StateDone})

	detail, err := svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	var found bool
	for _, a := range detail.Activity {
		if a.Kind == pool.ActivityWithdrawal {
			found = true
		}
	}
	if !found {
		t.Fatal("withdrawal activity not recorded")
	}
	if detail.TotalSaved != 0 {
		t.Fatalf("total_saved = %v, withdrawals must not increase it", detail.TotalSaved)
	}
}

func TestWithdrawRequiresPositiveAmount(t *testing.T) {
	fc := newFakeChain(0, 0)
	svc := pools.New(memory.New(), nil)
	orch := New(fc, fc, svc, nil, factoryAddr, nil)

	_, err := orch.Withdraw(context.Background(), WithdrawInput{
		PoolID:       "p-1",
		PoolContract: poolAddr,
		Caller:       callerAddr,
	})
	if err == nil {
		t.Fatal("expected an error for a nil amount")
	}
	if len(fc.calls) != 0 {
		t.Fatal("no contract call should be submitted")
	}
}

func TestCreatePoolExtractsAddress(t *testing.T) {
	fc := newFakeChain(0, 0)
	svc := pools.New(memory.New(), nil)
	orch := New(fc, fc, svc, nil, factoryAddr, nil)

	creationHash := common.BigToHash(big.NewInt(1))
	fc.receipts[creationHash] = &chain.Receipt{
		TxHash: creationHash,
		Status: hexutil.Uint64(1),
		Logs: []chain.Log{
			{
				Address: factoryAddr,
				Topics:  []common.Hash{{}, common.BytesToHash(common.LeftPadBytes(poolAddr.Bytes(), 32))},
			},
		},
	}

	res, err := orch.CreatePool(context.Background(), CreatePoolInput{
		Mirror: pools.CreateInput{
			Name:           "new circle",
			Kind:           pool.KindFlexible,
			CreatorAddress: callerAddr.Hex(),
			TokenAddress:   tokenAddr.Hex(),
			Members:        []string{callerAddr.Hex()},
		},
	})
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if res.State != StateDone {
		t.Fatalf("terminal state = %s", res.State)
	}
	if res.PoolAddress != poolAddr {
		t.Fatalf("pool address = %s, want %s", res.PoolAddress.Hex(), poolAddr.Hex())
	}
	if res.Pool.ContractAddress != pool.NormalizeAddress(poolAddr.Hex()) {
		t.Fatalf("mirrored contract address = %s", res.Pool.ContractAddress)
	}
}

func TestCreatePoolAddressNotFound(t *testing.T) {
	fc := newFakeChain(0, 0)
	svc := pools.New(memory.New(), nil)
	orch := New(fc, fc, svc, nil, factoryAddr, nil)

	// Default receipt has no logs at all.
	res, err := orch.CreatePool(context.Background(), CreatePoolInput{
		Mirror: pools.CreateInput{
			Name:           "new circle",
			Kind:           pool.KindFlexible,
			CreatorAddress: callerAddr.Hex(),
			TokenAddress:   tokenAddr.Hex(),
			Members:        []string{callerAddr.Hex()},
		},
	})
	if err == nil {
		t.Fatal("expected an error when no creation event is found")
	}
	if res.FailureReason != ReasonAddressNotFound {
		t.Fatalf("failure reason = %s, want %s", res.FailureReason, ReasonAddressNotFound)
	}
}

func assertStates(t *testing.T, got, want []State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("state sequence %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("state[%d] = %s, want %s (full: %v)", i, got[i], want[i], got)
		}
	}
}
