package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Read-only contract views the pipeline needs. Selectors are the first four
// bytes of the keccak-256 of the canonical signature.
var (
	selBalanceOf     = selector("balanceOf(address)")
	selAllowance     = selector("allowance(address,address)")
	selDepositAmount = selector("depositAmount()")
)

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

func padAddress(addr common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], addr.Bytes())
	return out
}

// BalanceOf returns the token balance of owner.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data := append(append([]byte{}, selBalanceOf...), padAddress(owner)...)
	out, err := c.CallContract(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return new(big.Int).SetBytes(out), nil
}

// Allowance returns the amount owner has approved spender to move.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data := append(append(append([]byte{}, selAllowance...), padAddress(owner)...), padAddress(spender)...)
	out, err := c.CallContract(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	return new(big.Int).SetBytes(out), nil
}

// DepositAmount reads a rotational pool's fixed per-round deposit amount. The
// gate re-evaluates once this value is known; it is contract state, not user
// input.
func (c *Client) DepositAmount(ctx context.Context, poolContract common.Address) (*big.Int, error) {
	out, err := c.CallContract(ctx, poolContract, append([]byte{}, selDepositAmount...))
	if err != nil {
		return nil, fmt.Errorf("depositAmount: %w", err)
	}
	return new(big.Int).SetBytes(out), nil
}
