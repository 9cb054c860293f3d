package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"bridgeRelay/internal/model"
	"bridgeRelay/internal/storage"
)

// Connector is the narrow view of the source chain the listener depends on.
type Connector interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	Subscribe(ctx context.Context, eventName string) (EventFilter, error)
	Reconnect(ctx context.Context) error
}

// EventFilter yields logs emitted after its creation point, polled
// incrementally.
type EventFilter interface {
	Event() abi.Event
	Poll(ctx context.Context) ([]types.Log, error)
}

// Relayer submits one normalized event to the destination.
type Relayer interface {
	Deliver(ctx context.Context, event model.TransferEvent) error
}

// Config holds runtime settings for the listener.
type Config struct {
	EventName      string
	SourceChainID  uint64
	PollInterval   time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
	ReconnectDelay time.Duration
}

// Stats counts processing outcomes since startup.
type Stats struct {
	Seen         uint64
	Delivered    uint64
	Skipped      uint64
	DeadLettered uint64
}

// Service orchestrates the relay pipeline: poll the filter, normalize each
// raw log, deliver downstream with bounded retries, and reconnect after any
// failure escaping the cycle. It is single-threaded: one loop owns the
// connector, the filter, and the cursor.
type Service struct {
	cfg        Config
	connector  Connector
	relayer    Relayer
	deadLetter storage.DeadLetter
	logger     *zap.Logger

	state  State
	filter EventFilter
	// lastKnownBlock is advisory only: the live filter determines which
	// logs are delivered. It is never persisted.
	lastKnownBlock uint64
	stats          Stats
}

// NewService builds a Service. deadLetter may be nil, in which case events
// that exhaust their delivery attempts are dropped after logging.
func NewService(cfg Config, connector Connector, relayer Relayer, deadLetter storage.DeadLetter, logger *zap.Logger) (*Service, error) {
	if connector == nil {
		return nil, fmt.Errorf("connector is nil")
	}
	if relayer == nil {
		return nil, fmt.Errorf("relayer is nil")
	}
	if cfg.EventName == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		connector:  connector,
		relayer:    relayer,
		deadLetter: deadLetter,
		logger:     logger,
		state:      StateStarting,
	}, nil
}

// State returns the listener's current lifecycle state.
func (s *Service) State() State {
	return s.state
}

// Stats returns processing counters.
func (s *Service) Stats() Stats {
	return s.stats
}

// Run subscribes to the event stream and drives the polling loop until ctx
// is canceled. Startup failures are returned; runtime failures degrade to
// reconnect-and-continue.
func (s *Service) Run(ctx context.Context) error {
	if err := s.start(ctx); err != nil {
		return err
	}

	s.logger.Info("listener started",
		zap.String("event", s.cfg.EventName),
		zap.Uint64("source_chain_id", s.cfg.SourceChainID),
		zap.Uint64("last_known_block", s.lastKnownBlock),
		zap.Duration("poll_interval", s.cfg.PollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			s.logger.Info("shutdown signal received",
				zap.Uint64("seen", s.stats.Seen),
				zap.Uint64("delivered", s.stats.Delivered),
				zap.Uint64("skipped", s.stats.Skipped),
				zap.Uint64("dead_lettered", s.stats.DeadLettered),
			)
			return nil
		default:
		}

		switch s.state {
		case StatePolling:
			if err := s.pollCycle(ctx); err != nil {
				s.logger.Error("unexpected error in poll cycle", zap.Error(err))
				s.setState(StateRecovering)
				continue
			}
			s.sleep(ctx, s.cfg.PollInterval)
		case StateRecovering:
			s.sleep(ctx, s.cfg.ReconnectDelay)
			if ctx.Err() != nil {
				continue
			}
			if err := s.recover(ctx); err != nil {
				s.logger.Error("reconnect failed, will retry next cycle", zap.Error(err))
				continue
			}
			s.logger.Info("reconnected and resubscribed")
			s.setState(StatePolling)
		default:
			return fmt.Errorf("unexpected listener state: %s", s.state)
		}
	}
}

func (s *Service) start(ctx context.Context) error {
	filter, err := s.connector.Subscribe(ctx, s.cfg.EventName)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.EventName, err)
	}

	latest, err := s.connector.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("initialize cursor: %w", err)
	}

	s.filter = filter
	if latest > 0 {
		s.lastKnownBlock = latest - 1
	}
	s.setState(StatePolling)
	return nil
}

func (s *Service) pollCycle(ctx context.Context) error {
	logs, err := s.filter.Poll(ctx)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		s.logger.Debug("no new events in this poll")
		return nil
	}

	for _, raw := range logs {
		s.processLog(ctx, raw)
	}
	return nil
}

func (s *Service) processLog(ctx context.Context, raw types.Log) {
	s.stats.Seen++
	s.logger.Info("new event received",
		zap.String("event", s.cfg.EventName),
		zap.String("tx_hash", raw.TxHash.Hex()),
		zap.Uint64("block_number", raw.BlockNumber),
	)

	event, err := normalizeLog(s.filter.Event(), raw, s.cfg.SourceChainID)
	if err != nil {
		s.stats.Skipped++
		s.logger.Warn("skipping malformed log",
			zap.Error(err),
			zap.String("tx_hash", raw.TxHash.Hex()),
			zap.Uint64("block_number", raw.BlockNumber),
		)
		return
	}

	attempts := 0
	err = withRetry(ctx, s.cfg.MaxAttempts, s.cfg.RetryBackoff, func(ctx context.Context, attempt int) error {
		attempts = attempt + 1
		deliverErr := s.relayer.Deliver(ctx, event)
		if deliverErr != nil {
			s.logger.Warn("delivery attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", s.cfg.MaxAttempts),
				zap.String("tx_hash", event.TxHash),
				zap.Error(deliverErr),
			)
		}
		return deliverErr
	})
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Info("delivery interrupted by shutdown", zap.String("tx_hash", event.TxHash))
			return
		}
		s.stats.DeadLettered++
		s.logger.Error("event dropped after exhausting delivery attempts",
			zap.String("tx_hash", event.TxHash),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		s.writeDeadLetter(ctx, event, attempts, err)
		return
	}

	s.stats.Delivered++
	s.logger.Info("event processed and relayed", zap.String("tx_hash", event.TxHash))
}

func (s *Service) recover(ctx context.Context) error {
	if err := s.connector.Reconnect(ctx); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	filter, err := s.connector.Subscribe(ctx, s.cfg.EventName)
	if err != nil {
		return fmt.Errorf("resubscribe %s: %w", s.cfg.EventName, err)
	}
	s.filter = filter
	return nil
}

func (s *Service) writeDeadLetter(ctx context.Context, event model.TransferEvent, attempts int, cause error) {
	if s.deadLetter == nil {
		return
	}
	record := model.FailedRelay{
		Event:    event,
		Attempts: attempts,
		Error:    cause.Error(),
		FailedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.deadLetter.PutFailedRelay(ctx, record); err != nil {
		s.logger.Warn("dead letter write failed", zap.String("tx_hash", event.TxHash), zap.Error(err))
	}
}

func (s *Service) setState(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug("state transition", zap.Stringer("from", s.state), zap.Stringer("to", next))
	s.state = next
}

func (s *Service) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
