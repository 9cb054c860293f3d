package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"bridgeRelay/internal/model"
)

// Store provides Postgres persistence for the dead-letter log.
//
// Expected schema:
//
//	CREATE TABLE relay_dead_letters (
//	    id              BIGSERIAL PRIMARY KEY,
//	    tx_hash         TEXT NOT NULL,
//	    block_number    BIGINT NOT NULL,
//	    source_chain_id BIGINT NOT NULL,
//	    dest_chain_id   BIGINT,
//	    user_address    TEXT,
//	    token_address   TEXT,
//	    amount          NUMERIC NOT NULL,
//	    attempts        INT NOT NULL,
//	    error           TEXT NOT NULL,
//	    failed_at       TIMESTAMPTZ NOT NULL,
//	    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutFailedRelay inserts one dead-letter record.
func (s *Store) PutFailedRelay(ctx context.Context, record model.FailedRelay) error {
	var destChainID *int64
	if record.Event.DestinationChainID != nil {
		v := int64(*record.Event.DestinationChainID)
		destChainID = &v
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay_dead_letters (
			tx_hash, block_number, source_chain_id, dest_chain_id,
			user_address, token_address, amount, attempts, error, failed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		record.Event.TxHash,
		int64(record.Event.BlockNumber),
		int64(record.Event.SourceChainID),
		destChainID,
		record.Event.User,
		record.Event.Token,
		record.Event.Amount,
		record.Attempts,
		record.Error,
		record.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}
