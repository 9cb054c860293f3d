package listener

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"bridgeRelay/internal/chain"
	"bridgeRelay/internal/model"
)

type pollResult struct {
	logs []types.Log
	err  error
}

type fakeFilter struct {
	event   abi.Event
	results []pollResult
	polls   int
}

func (f *fakeFilter) Event() abi.Event { return f.event }

func (f *fakeFilter) Poll(ctx context.Context) ([]types.Log, error) {
	f.polls++
	if len(f.results) == 0 {
		return nil, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.logs, r.err
}

type fakeConnector struct {
	filters       []*fakeFilter
	subscribes    int
	reconnects    int
	failReconnect int
	subscribeErr  error
}

func (c *fakeConnector) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return 100, nil
}

func (c *fakeConnector) Subscribe(ctx context.Context, _ string) (EventFilter, error) {
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	i := c.subscribes
	c.subscribes++
	if i >= len(c.filters) {
		i = len(c.filters) - 1
	}
	return c.filters[i], nil
}

func (c *fakeConnector) Reconnect(ctx context.Context) error {
	c.reconnects++
	if c.failReconnect > 0 {
		c.failReconnect--
		return errors.New("endpoint unreachable")
	}
	return nil
}

type fakeRelayer struct {
	failFirst int
	calls     []string
	onCall    func(n int)
}

func (r *fakeRelayer) Deliver(ctx context.Context, event model.TransferEvent) error {
	r.calls = append(r.calls, event.TxHash)
	n := len(r.calls)
	var err error
	if n <= r.failFirst {
		err = errors.New("status 500")
	}
	if r.onCall != nil {
		r.onCall(n)
	}
	return err
}

type fakeDeadLetter struct {
	records []model.FailedRelay
	onPut   func()
}

func (d *fakeDeadLetter) PutFailedRelay(ctx context.Context, record model.FailedRelay) error {
	d.records = append(d.records, record)
	if d.onPut != nil {
		d.onPut()
	}
	return nil
}

func testConfig() Config {
	return Config{
		EventName:      "BridgeDepositInitiated",
		SourceChainID:  1,
		PollInterval:   time.Millisecond,
		MaxAttempts:    3,
		RetryBackoff:   time.Millisecond,
		ReconnectDelay: time.Millisecond,
	}
}

func runService(t *testing.T, svc *Service, ctx context.Context) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("service did not stop in time")
		return nil
	}
}

func TestServiceDeliversEventsInOrder(t *testing.T) {
	event := bridgeEvent(t)
	user := common.HexToAddress("0x0A")
	token := common.HexToAddress("0x0B")
	log1 := buildDepositLog(t, event, "0x01", 101, user, token, big.NewInt(500), big.NewInt(2))
	log2 := buildDepositLog(t, event, "0x02", 102, user, token, big.NewInt(600), big.NewInt(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connector := &fakeConnector{filters: []*fakeFilter{{
		event:   event,
		results: []pollResult{{logs: []types.Log{log1, log2}}},
	}}}
	relayer := &fakeRelayer{onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}

	svc, err := NewService(testConfig(), connector, relayer, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := runService(t, svc, ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{common.HexToHash("0x01").Hex(), common.HexToHash("0x02").Hex()}
	if !reflect.DeepEqual(relayer.calls, want) {
		t.Fatalf("delivery order mismatch: %v != %v", relayer.calls, want)
	}
	if svc.Stats().Delivered != 2 {
		t.Fatalf("delivered count mismatch: %+v", svc.Stats())
	}
	if svc.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", svc.State())
	}
}

func TestServiceSkipsMalformedLog(t *testing.T) {
	event := bridgeEvent(t)
	malformed := types.Log{
		Topics:      []common.Hash{event.ID},
		TxHash:      common.HexToHash("0xbad"),
		BlockNumber: 101,
	}
	good := buildDepositLog(t, event, "0x02", 102,
		common.HexToAddress("0x0A"), common.HexToAddress("0x0B"), big.NewInt(500), big.NewInt(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connector := &fakeConnector{filters: []*fakeFilter{{
		event:   event,
		results: []pollResult{{logs: []types.Log{malformed, good}}},
	}}}
	relayer := &fakeRelayer{onCall: func(n int) { cancel() }}

	svc, err := NewService(testConfig(), connector, relayer, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := runService(t, svc, ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(relayer.calls) != 1 {
		t.Fatalf("malformed log must produce zero delivery attempts: %v", relayer.calls)
	}
	stats := svc.Stats()
	if stats.Skipped != 1 || stats.Delivered != 1 {
		t.Fatalf("stats mismatch: %+v", stats)
	}
}

func TestServiceRetriesUntilSuccess(t *testing.T) {
	event := bridgeEvent(t)
	good := buildDepositLog(t, event, "0x01", 101,
		common.HexToAddress("0x0A"), common.HexToAddress("0x0B"), big.NewInt(500), big.NewInt(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connector := &fakeConnector{filters: []*fakeFilter{{
		event:   event,
		results: []pollResult{{logs: []types.Log{good}}},
	}}}
	relayer := &fakeRelayer{failFirst: 1, onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}

	svc, err := NewService(testConfig(), connector, relayer, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := runService(t, svc, ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(relayer.calls) != 2 {
		t.Fatalf("expected success on second attempt, got %d calls", len(relayer.calls))
	}
	if svc.Stats().Delivered != 1 {
		t.Fatalf("stats mismatch: %+v", svc.Stats())
	}
}

func TestServiceDropsAfterExhaustedRetries(t *testing.T) {
	event := bridgeEvent(t)
	good := buildDepositLog(t, event, "0x01", 101,
		common.HexToAddress("0x0A"), common.HexToAddress("0x0B"), big.NewInt(500), big.NewInt(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connector := &fakeConnector{filters: []*fakeFilter{{
		event:   event,
		results: []pollResult{{logs: []types.Log{good}}},
	}}}
	relayer := &fakeRelayer{failFirst: 100}
	sink := &fakeDeadLetter{onPut: cancel}

	svc, err := NewService(testConfig(), connector, relayer, sink, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := runService(t, svc, ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(relayer.calls) != 3 {
		t.Fatalf("expected exactly 3 delivery attempts, got %d", len(relayer.calls))
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 dead letter record, got %d", len(sink.records))
	}
	if sink.records[0].Attempts != 3 {
		t.Fatalf("dead letter attempts mismatch: %+v", sink.records[0])
	}
	if svc.Stats().DeadLettered != 1 {
		t.Fatalf("stats mismatch: %+v", svc.Stats())
	}
}

func TestServiceRecoversAfterPollError(t *testing.T) {
	event := bridgeEvent(t)
	good := buildDepositLog(t, event, "0x01", 101,
		common.HexToAddress("0x0A"), common.HexToAddress("0x0B"), big.NewInt(500), big.NewInt(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broken := &fakeFilter{event: event, results: []pollResult{{err: errors.New("filter gone")}}}
	healthy := &fakeFilter{event: event, results: []pollResult{{logs: []types.Log{good}}}}
	connector := &fakeConnector{filters: []*fakeFilter{broken, healthy}}
	relayer := &fakeRelayer{onCall: func(n int) { cancel() }}

	svc, err := NewService(testConfig(), connector, relayer, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := runService(t, svc, ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if connector.reconnects != 1 {
		t.Fatalf("expected 1 reconnect, got %d", connector.reconnects)
	}
	if connector.subscribes != 2 {
		t.Fatalf("expected initial subscribe plus resubscribe, got %d", connector.subscribes)
	}
	if svc.Stats().Delivered != 1 {
		t.Fatalf("stats mismatch: %+v", svc.Stats())
	}
}

func TestServiceStaysRecoveringWhenReconnectFails(t *testing.T) {
	event := bridgeEvent(t)
	good := buildDepositLog(t, event, "0x01", 101,
		common.HexToAddress("0x0A"), common.HexToAddress("0x0B"), big.NewInt(500), big.NewInt(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broken := &fakeFilter{event: event, results: []pollResult{{err: errors.New("filter gone")}}}
	healthy := &fakeFilter{event: event, results: []pollResult{{logs: []types.Log{good}}}}
	connector := &fakeConnector{filters: []*fakeFilter{broken, healthy}, failReconnect: 2}
	relayer := &fakeRelayer{onCall: func(n int) { cancel() }}

	svc, err := NewService(testConfig(), connector, relayer, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := runService(t, svc, ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if connector.reconnects != 3 {
		t.Fatalf("expected reconnect to be retried until it succeeds, got %d", connector.reconnects)
	}
	if svc.Stats().Delivered != 1 {
		t.Fatalf("stats mismatch: %+v", svc.Stats())
	}
}

func TestServiceStartupFailure(t *testing.T) {
	connector := &fakeConnector{subscribeErr: chain.ErrUnknownEvent}

	svc, err := NewService(testConfig(), connector, &fakeRelayer{}, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = svc.Run(context.Background())
	if !errors.Is(err, chain.ErrUnknownEvent) {
		t.Fatalf("expected startup failure to surface, got %v", err)
	}
}
