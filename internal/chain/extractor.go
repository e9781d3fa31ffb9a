package chain

import (
	"context"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var addressShape = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ExtractPoolAddress scans a receipt's logs for the factory's pool-creation
// event and returns the new pool's address.
//
// Protocol assumption (fixed, not inferred): the factory emits the created
// pool address as the first indexed topic after the event signature, i.e.
// topics[1] left-padded to 32 bytes. If the factory's event ABI ever changes
// this must change with it.
//
// Per-entry parse problems are treated as "no match for this entry"; only an
// empty scan yields ok=false.
func ExtractPoolAddress(receipt *Receipt, factory common.Address) (common.Address, bool) {
	if receipt == nil || len(receipt.Logs) == 0 {
		return common.Address{}, false
	}

	for _, entry := range receipt.Logs {
		if !strings.EqualFold(entry.Address.Hex(), factory.Hex()) {
			continue
		}
		if len(entry.Topics) < 2 {
			continue
		}

		topic := entry.Topics[1]
		// A padded address carries 12 leading zero bytes.
		if !isZero(topic[:12]) {
			continue
		}
		candidate := common.BytesToAddress(topic[12:])
		if !addressShape.MatchString(candidate.Hex()) || candidate == (common.Address{}) {
			continue
		}
		return candidate, true
	}

	return common.Address{}, false
}

// PoolAddressFromTx fetches the receipt for txHash and extracts the created
// pool address. A fetch failure propagates; an unmatched scan returns
// ok=false with a nil error.
func (c *Client) PoolAddressFromTx(ctx context.Context, txHash common.Hash, factory common.Address) (common.Address, bool, error) {
	receipt, err := c.TransactionReceipt(ctx, txHash)
	if err != nil {
		return common.Address{}, false, err
	}
	addr, ok := ExtractPoolAddress(receipt, factory)
	return addr, ok, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
