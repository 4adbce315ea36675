package database

import (
	"context"
	"time"

	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/coordinator"
)

// Repository provides data access methods. It satisfies
// coordinator.Recorder.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// RecordIntent inserts a dispatched intent along with the venue order id
// it produced.
func (r *Repository) RecordIntent(ctx context.Context, intent coordinator.Intent, orderID string) error {
	query := `
		INSERT INTO intents (id, symbol, side, entry_type, entry_price, stop_loss, take_profit, quantity, profile, order_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		intent.ID, intent.Symbol, string(intent.Side), string(intent.EntryType),
		intent.Entry, intent.StopLoss, intent.TakeProfit, intent.Quantity,
		intent.Profile, orderID, intent.CreatedAt, intent.ExpiresAt,
	)
	return err
}

// RecordClosedPnl inserts one realized-PnL record. Records arrive from a
// polled window so replays are expected; the primary key absorbs them.
func (r *Repository) RecordClosedPnl(ctx context.Context, rec bybit.ClosedPnl) error {
	query := `
		INSERT INTO closed_pnl (id, symbol, side, pnl, quantity, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		rec.ID, rec.Symbol, string(rec.Side), rec.ClosedPnl, rec.Qty, rec.ClosedAt,
	)
	return err
}

// IntentRecord is one persisted intent row
type IntentRecord struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	EntryType string    `json:"entry_type"`
	Entry     float64   `json:"entry"`
	Quantity  float64   `json:"quantity"`
	OrderID   string    `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GetRecentIntents returns the most recently dispatched intents
func (r *Repository) GetRecentIntents(ctx context.Context, limit int) ([]IntentRecord, error) {
	query := `
		SELECT id, symbol, side, entry_type, entry_price, quantity, order_id, created_at
		FROM intents
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IntentRecord
	for rows.Next() {
		var rec IntentRecord
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Side, &rec.EntryType,
			&rec.Entry, &rec.Quantity, &rec.OrderID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetClosedPnlSince returns realized-PnL rows newer than the cutoff
func (r *Repository) GetClosedPnlSince(ctx context.Context, since time.Time) ([]bybit.ClosedPnl, error) {
	query := `
		SELECT id, symbol, side, pnl, quantity, closed_at
		FROM closed_pnl
		WHERE closed_at >= $1
		ORDER BY closed_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bybit.ClosedPnl
	for rows.Next() {
		var rec bybit.ClosedPnl
		var side string
		if err := rows.Scan(&rec.ID, &rec.Symbol, &side, &rec.ClosedPnl, &rec.Qty, &rec.ClosedAt); err != nil {
			return nil, err
		}
		rec.Side = bybit.Side(side)
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ coordinator.Recorder = (*Repository)(nil)
