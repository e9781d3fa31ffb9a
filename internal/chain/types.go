package chain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrReceiptUnavailable means the transaction is not mined yet (or unknown to
// the node). Callers wait for confirmation before treating this as fatal.
var ErrReceiptUnavailable = errors.New("transaction receipt unavailable")

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is a JSON-RPC level failure returned by the node.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Log is one emitted event entry within a receipt.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// Receipt is the subset of the transaction receipt this service consumes.
type Receipt struct {
	TxHash          common.Hash    `json:"transactionHash"`
	Status          hexutil.Uint64 `json:"status"`
	ContractAddress common.Address `json:"contractAddress"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	Logs            []Log          `json:"logs"`
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return uint64(r.Status) == 1
}
