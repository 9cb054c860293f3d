package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrConnectionFailed marks an endpoint that is unreachable or failed its
// liveness probe. Fatal at startup, recoverable at runtime.
var ErrConnectionFailed = errors.New("chain connection failed")

// ErrUnknownEvent marks an event name absent from the contract ABI.
var ErrUnknownEvent = errors.New("event not found in contract abi")

// Config holds the source chain endpoint and contract identity.
type Config struct {
	RPCURL          string
	ContractAddress common.Address
	ContractABI     abi.ABI
}

// Client owns the connection to the source chain's read endpoint.
//
// It is a thin primitive: no retries or backoff live here, the caller
// decides resilience policy.
type Client struct {
	cfg       Config
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient dials the RPC endpoint and probes it for liveness. The probe is
// a latest-block query; an endpoint that does not answer it is treated as
// unreachable.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	c := &Client{cfg: cfg}
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dial(ctx context.Context) error {
	rpcClient, err := rpc.DialContext(ctx, c.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnectionFailed, c.cfg.RPCURL, err)
	}
	ethClient := ethclient.NewClient(rpcClient)

	if _, err := ethClient.BlockNumber(ctx); err != nil {
		rpcClient.Close()
		return fmt.Errorf("%w: liveness probe %s: %v", ErrConnectionFailed, c.cfg.RPCURL, err)
	}

	c.rpcClient = rpcClient
	c.ethClient = ethClient
	return nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if c.ethClient == nil {
		return 0, fmt.Errorf("%w: client not connected", ErrConnectionFailed)
	}
	n, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: latest block: %v", ErrConnectionFailed, err)
	}
	return n, nil
}

// Subscribe resolves eventName against the contract ABI and returns a live
// filter anchored at the current chain head. The filter yields only logs
// emitted after its creation point.
func (c *Client) Subscribe(ctx context.Context, eventName string) (*EventFilter, error) {
	event, err := resolveEvent(c.cfg.ContractABI, eventName)
	if err != nil {
		return nil, err
	}

	latest, err := c.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	return &EventFilter{
		client:    c,
		address:   c.cfg.ContractAddress,
		event:     event,
		nextBlock: latest + 1,
	}, nil
}

// Reconnect re-dials the same endpoint. Filters created before the call are
// invalidated; the caller must Subscribe again afterward.
func (c *Client) Reconnect(ctx context.Context) error {
	old := c.rpcClient
	if err := c.dial(ctx); err != nil {
		return err
	}
	if old != nil {
		old.Close()
	}
	return nil
}

func resolveEvent(contractABI abi.ABI, name string) (abi.Event, error) {
	event, ok := contractABI.Events[name]
	if !ok {
		return abi.Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	return event, nil
}
