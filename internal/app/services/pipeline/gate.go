package pipeline

import "math/big"

// Decision is the outcome of the allowance/balance pre-check that runs
// before any value-moving contract call.
type Decision string

const (
	// DecisionInsufficientBalance means the caller cannot fund the
	// transfer at all. Terminal until the balance changes externally.
	DecisionInsufficientBalance Decision = "insufficient_balance"

	// DecisionNeedsApproval means the token allowance granted to the
	// pool contract is below the requested amount and an approve call
	// must run first.
	DecisionNeedsApproval Decision = "needs_approval"

	// DecisionReady means the transfer can be submitted directly.
	DecisionReady Decision = "ready"
)

// EvaluateGate decides the next action for a requested transfer. Balance
// is checked before allowance so a caller who cannot fund the transfer is
// never asked to approve first.
func EvaluateGate(balance, allowance, requested *big.Int) Decision {
	if balance == nil || balance.Cmp(requested) < 0 {
		return DecisionInsufficientBalance
	}
	if allowance == nil || allowance.Cmp(requested) < 0 {
		return DecisionNeedsApproval
	}
	return DecisionReady
}
