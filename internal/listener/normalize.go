package listener

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"bridgeRelay/internal/model"
)

// ErrMalformedLog marks a raw log that cannot be decoded against the
// subscribed event. Such logs are skipped; no TransferEvent is built.
var ErrMalformedLog = errors.New("malformed log")

// normalizeLog decodes a raw log's args against the event ABI and builds the
// normalized TransferEvent. Optional args (user, token, destinationChainId)
// default to absent rather than failing the event; a log whose args cannot
// be decoded at all is malformed.
func normalizeLog(event abi.Event, raw types.Log, sourceChainID uint64) (model.TransferEvent, error) {
	if len(raw.Topics) == 0 || raw.Topics[0] != event.ID {
		return model.TransferEvent{}, fmt.Errorf("%w: topic0 does not match event %s", ErrMalformedLog, event.Name)
	}

	indexed := make(abi.Arguments, 0, len(event.Inputs))
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(raw.Topics)-1 != len(indexed) {
		return model.TransferEvent{}, fmt.Errorf("%w: expected %d indexed topics, got %d", ErrMalformedLog, len(indexed), len(raw.Topics)-1)
	}

	args := make(map[string]interface{})
	if err := abi.ParseTopicsIntoMap(args, indexed, raw.Topics[1:]); err != nil {
		return model.TransferEvent{}, fmt.Errorf("%w: parse topics: %v", ErrMalformedLog, err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(args, raw.Data); err != nil {
		return model.TransferEvent{}, fmt.Errorf("%w: unpack data: %v", ErrMalformedLog, err)
	}

	transfer := model.TransferEvent{
		TxHash:        raw.TxHash.Hex(),
		BlockNumber:   raw.BlockNumber,
		SourceChainID: sourceChainID,
		Amount:        "0",
	}

	if amount, ok := args["amount"].(*big.Int); ok {
		transfer.Amount = amount.String()
	}
	if dest, ok := args["destinationChainId"].(*big.Int); ok && dest.IsUint64() {
		v := dest.Uint64()
		transfer.DestinationChainID = &v
	}
	if user, ok := args["user"].(common.Address); ok {
		v := user.Hex()
		transfer.User = &v
	}
	if token, ok := args["token"].(common.Address); ok {
		v := token.Hex()
		transfer.Token = &v
	}

	return transfer, nil
}
