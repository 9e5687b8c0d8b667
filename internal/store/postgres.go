package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/clearing-engine/internal/model"
)

// Schema creates the journal tables. All amounts are NUMERIC for exact
// decimal precision.
const Schema = `
CREATE TABLE IF NOT EXISTS settlements (
	id         TEXT PRIMARY KEY,
	tick       INTEGER NOT NULL,
	buyer_id   TEXT NOT NULL,
	seller_id  TEXT NOT NULL,
	good       TEXT NOT NULL,
	quantity   NUMERIC NOT NULL,
	unit_price NUMERIC NOT NULL,
	cost       NUMERIC NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS settlements_tick_idx ON settlements (tick);
CREATE INDEX IF NOT EXISTS settlements_buyer_idx ON settlements (buyer_id);
CREATE INDEX IF NOT EXISTS settlements_seller_idx ON settlements (seller_id);

CREATE TABLE IF NOT EXISTS ticks (
	tick         INTEGER PRIMARY KEY,
	filled       INTEGER NOT NULL,
	rejected     INTEGER NOT NULL,
	volume       NUMERIC NOT NULL,
	turnover     NUMERIC NOT NULL,
	money_supply NUMERIC NOT NULL,
	cleared_at   TIMESTAMPTZ NOT NULL
);`

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the journal tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) RecordFill(ctx context.Context, e *model.SettlementEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settlements (id, tick, buyer_id, seller_id, good, quantity, unit_price, cost, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		e.ID, e.Tick, e.BuyerID, e.SellerID, e.Good,
		e.Quantity.String(), e.UnitPrice.String(), e.Cost.String(),
		e.Timestamp,
	)
	return err
}

func (s *PostgresStore) FillsByTick(ctx context.Context, tick int) ([]model.SettlementEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tick, buyer_id, seller_id, good,
		        quantity::TEXT, unit_price::TEXT, cost::TEXT, timestamp
		 FROM settlements WHERE tick = $1 ORDER BY timestamp, id`, tick)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSettlements(rows)
}

func (s *PostgresStore) FillsByAgent(ctx context.Context, agentID string) ([]model.SettlementEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tick, buyer_id, seller_id, good,
		        quantity::TEXT, unit_price::TEXT, cost::TEXT, timestamp
		 FROM settlements WHERE buyer_id = $1 OR seller_id = $1
		 ORDER BY tick, timestamp, id`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSettlements(rows)
}

func (s *PostgresStore) RecordTick(ctx context.Context, t *model.TickSummary) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ticks (tick, filled, rejected, volume, turnover, money_supply, cleared_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7)`,
		t.Tick, t.Filled, t.Rejected,
		t.Volume.String(), t.Turnover.String(), t.MoneySupply.String(),
		t.ClearedAt,
	)
	return err
}

func (s *PostgresStore) GetTick(ctx context.Context, tick int) (*model.TickSummary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT tick, filled, rejected, volume::TEXT, turnover::TEXT, money_supply::TEXT, cleared_at
		 FROM ticks WHERE tick = $1`, tick)

	t, err := scanTick(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: tick %d", ErrNotFound, tick)
	}
	if err != nil {
		return nil, fmt.Errorf("get tick %d: %w", tick, err)
	}
	return t, nil
}

func (s *PostgresStore) ListTicks(ctx context.Context) ([]model.TickSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tick, filled, rejected, volume::TEXT, turnover::TEXT, money_supply::TEXT, cleared_at
		 FROM ticks ORDER BY tick`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []model.TickSummary
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, *t)
	}
	return ticks, rows.Err()
}

// pgxRows is the subset of pgx.Rows used by the scanners.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanSettlements reads pgx rows into SettlementEntry slices.
func scanSettlements(rows pgxRows) ([]model.SettlementEntry, error) {
	var entries []model.SettlementEntry
	for rows.Next() {
		var e model.SettlementEntry
		var qtyS, priceS, costS string

		if err := rows.Scan(&e.ID, &e.Tick, &e.BuyerID, &e.SellerID, &e.Good,
			&qtyS, &priceS, &costS, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Quantity, _ = decimal.NewFromString(qtyS)
		e.UnitPrice, _ = decimal.NewFromString(priceS)
		e.Cost, _ = decimal.NewFromString(costS)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanTick(row pgx.Row) (*model.TickSummary, error) {
	var t model.TickSummary
	var volumeS, turnoverS, supplyS string

	if err := row.Scan(&t.Tick, &t.Filled, &t.Rejected,
		&volumeS, &turnoverS, &supplyS, &t.ClearedAt); err != nil {
		return nil, err
	}

	t.Volume, _ = decimal.NewFromString(volumeS)
	t.Turnover, _ = decimal.NewFromString(turnoverS)
	t.MoneySupply, _ = decimal.NewFromString(supplyS)
	return &t, nil
}
