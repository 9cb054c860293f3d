package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventFilter is a live subscription handle: it yields only logs emitted
// after its creation point, polled incrementally. It is not safe for
// concurrent use; the polling loop is its single owner.
type EventFilter struct {
	client    *Client
	address   common.Address
	event     abi.Event
	nextBlock uint64
}

// Event returns the subscribed event's ABI description.
func (f *EventFilter) Event() abi.Event {
	return f.event
}

// Poll returns logs newly available since the previous poll of this filter,
// in chain order. A poll with no new blocks returns an empty slice.
func (f *EventFilter) Poll(ctx context.Context) ([]types.Log, error) {
	latest, err := f.client.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	if latest < f.nextBlock {
		return nil, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(f.nextBlock),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{f.address},
		Topics:    [][]common.Hash{{f.event.ID}},
	}
	logs, err := f.client.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", f.nextBlock, latest, err)
	}

	f.nextBlock = latest + 1
	return logs, nil
}
