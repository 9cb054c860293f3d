package model

// FailedRelay records an event that exhausted its delivery attempts,
// for the dead-letter sink.
type FailedRelay struct {
	Event    TransferEvent `json:"event"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error"`
	FailedAt string        `json:"failed_at"`
}
