package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"bridgeRelay/internal/model"
)

// ErrDeliveryFailed marks a destination call that did not succeed: network
// error, timeout, or non-2xx status.
var ErrDeliveryFailed = errors.New("delivery failed")

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 4096
)

// Config holds the destination endpoint settings.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Relayer submits normalized events to the destination relayer service.
// It is stateless beyond configuration and never retries; retry policy
// belongs to the caller.
type Relayer struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// New builds a Relayer with a bounded per-request timeout.
func New(cfg Config, logger *zap.Logger) *Relayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Relayer{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type payload struct {
	SourceTxHash       string  `json:"source_tx_hash"`
	SourceChainID      uint64  `json:"source_chain_id"`
	DestinationChainID *uint64 `json:"destination_chain_id"`
	User               *string `json:"user"`
	Token              *string `json:"token"`
	Amount             string  `json:"amount"`
	BlockNumber        uint64  `json:"block_number"`
}

func buildPayload(event model.TransferEvent) payload {
	return payload{
		SourceTxHash:       event.TxHash,
		SourceChainID:      event.SourceChainID,
		DestinationChainID: event.DestinationChainID,
		User:               event.User,
		Token:              event.Token,
		Amount:             event.Amount,
		BlockNumber:        event.BlockNumber,
	}
}

// Deliver posts one event to the destination endpoint. Exactly one outbound
// call is made per invocation; success means a 2xx response.
func (r *Relayer) Deliver(ctx context.Context, event model.TransferEvent) error {
	body, err := json.Marshal(buildPayload(event))
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %v", ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post %s: %v", ErrDeliveryFailed, r.endpoint, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrDeliveryFailed, resp.StatusCode, respBody)
	}

	r.logger.Info("event relayed",
		zap.String("tx_hash", event.TxHash),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("response", respBody),
	)
	return nil
}
