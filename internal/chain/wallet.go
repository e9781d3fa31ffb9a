package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// WriteCall describes a state-changing contract invocation at the level the
// wallet provider understands: contract, function name, arguments. ABI
// encoding and signing are the wallet's concern, not this service's.
type WriteCall struct {
	To       common.Address
	Function string
	Args     []interface{}
}

// Wallet abstracts the wallet-connection provider: it submits a write call and
// returns the pending transaction hash, or rejects immediately (user declined,
// simulation revert, insufficient gas funds).
type Wallet interface {
	WriteContract(ctx context.Context, call WriteCall) (common.Hash, error)
}

// Factory function names, one per pool kind.
const (
	FnCreateRotational = "createRotational"
	FnCreateTarget     = "createTarget"
	FnCreateFlexible   = "createFlexible"
	FnApprove          = "approve"
	FnDeposit          = "deposit"
	FnContribute       = "contribute"
	FnWithdraw         = "withdraw"
)

// ErrUserRejected is returned by wallet implementations when the user declines
// the transaction in the wallet UI.
var ErrUserRejected = errors.New("user rejected transaction")

// IsUserRejected reports whether err represents a wallet-level user rejection.
func IsUserRejected(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
}

// RevertReason pulls a human-readable revert reason out of a wallet or node
// error, when one is present.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted:"); idx >= 0 {
		return strings.TrimSpace(msg[idx+len("execution reverted:"):])
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}
	return msg
}

// ApproveArgs builds the argument list for an ERC-20 approve call.
func ApproveArgs(spender common.Address, amount *big.Int) []interface{} {
	return []interface{}{spender, amount}
}
