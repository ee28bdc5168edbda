// Package postgres persists the engine's event log and pool snapshots so an
// engine restart can resume feeding downstream consumers without gaps.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pairpool/pairpool-engine-go/engine"
	"github.com/pairpool/pairpool-engine-go/events"
)

// Store provides Postgres persistence for events and pool snapshots.
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

// EnsureSchema creates the tables the store writes to if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pool_events (
			sequence   BIGINT PRIMARY KEY,
			event_type TEXT NOT NULL,
			emitted_at BIGINT NOT NULL,
			payload    JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS pool_snapshots (
			pool_address TEXT PRIMARY KEY,
			asset_a      TEXT NOT NULL,
			asset_b      TEXT NOT NULL,
			reserve_a    NUMERIC(78,0) NOT NULL,
			reserve_b    NUMERIC(78,0) NOT NULL,
			total_shares NUMERIC(78,0) NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	return err
}

// InsertEvents appends a batch of events. Sequences already present are left
// untouched, so replaying an overlapping snapshot range is safe.
func (s *Store) InsertEvents(ctx context.Context, evts []events.Event) error {
	if len(evts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, evt := range evts {
		payload, err := json.Marshal(evt.Data)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", evt.Sequence, err)
		}
		batch.Queue(`
			INSERT INTO pool_events (sequence, event_type, emitted_at, payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (sequence) DO NOTHING
		`,
			int64(evt.Sequence),
			string(evt.Type),
			evt.EmittedAt,
			payload,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range evts {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPoolSnapshots inserts or updates the latest per-pool view.
func (s *Store) UpsertPoolSnapshots(ctx context.Context, views []engine.PoolView) error {
	if len(views) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, v := range views {
		batch.Queue(`
			INSERT INTO pool_snapshots (
				pool_address, asset_a, asset_b, reserve_a, reserve_b, total_shares, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				reserve_a = EXCLUDED.reserve_a,
				reserve_b = EXCLUDED.reserve_b,
				total_shares = EXCLUDED.total_shares,
				updated_at = now()
		`,
			v.Pool.Hex(),
			v.AssetA.Hex(),
			v.AssetB.Hex(),
			v.ReserveA.Dec(),
			v.ReserveB.Dec(),
			v.TotalShares.Dec(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range views {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LastSequence returns the highest stored event sequence, if any. Callers use
// it as the cursor for a lossless resume from the engine's event log.
func (s *Store) LastSequence(ctx context.Context) (uint64, bool, error) {
	var seq int64
	row := s.pool.QueryRow(ctx, `SELECT sequence FROM pool_events ORDER BY sequence DESC LIMIT 1`)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(seq), true, nil
}
