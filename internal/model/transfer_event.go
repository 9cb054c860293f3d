package model

// TransferEvent is the normalized bridge deposit relayed downstream.
//
// DestinationChainID, User, and Token are optional: a raw log can decode
// without them and the event is still forwarded. Amount is kept as a decimal
// string so arbitrary-precision values survive JSON serialization.
type TransferEvent struct {
	TxHash             string  `json:"transaction_hash"`
	BlockNumber        uint64  `json:"block_number"`
	SourceChainID      uint64  `json:"source_chain_id"`
	DestinationChainID *uint64 `json:"destination_chain_id"`
	User               *string `json:"user"`
	Token              *string `json:"token"`
	Amount             string  `json:"amount"`
}
