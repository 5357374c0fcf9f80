package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Trade is one executed trade as persisted
type Trade struct {
	ID           int64     `json:"id"`
	StrategyName string    `json:"strategy_name"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price"`
	ProfitLoss   float64   `json:"profit_loss"`
	Fees         float64   `json:"fees"`
	Status       string    `json:"status"`
	OrderID      string    `json:"order_id,omitempty"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// StrategyMetrics aggregates per-strategy performance
type StrategyMetrics struct {
	StrategyName  string  `json:"strategy_name"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	TotalPnL      float64 `json:"total_pnl"`
	TotalFees     float64 `json:"total_fees"`
	WinRate       float64 `json:"win_rate"`
}

// Repository persists trades and snapshots. With a nil DB it degrades to
// a bounded in-memory ring so dry runs work without PostgreSQL.
type Repository struct {
	db *DB

	mu     sync.RWMutex
	memory []Trade
	nextID int64
}

const memoryLimit = 1000

// NewRepository wraps the database; db may be nil
func NewRepository(db *DB) *Repository {
	return &Repository{db: db, nextID: 1}
}

// Persistent reports whether trades survive a restart
func (r *Repository) Persistent() bool {
	return r.db != nil
}

// InsertTrade stores one executed trade
func (r *Repository) InsertTrade(ctx context.Context, trade Trade) (int64, error) {
	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = time.Now()
	}

	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		trade.ID = r.nextID
		r.nextID++
		r.memory = append(r.memory, trade)
		if len(r.memory) > memoryLimit {
			r.memory = r.memory[len(r.memory)-memoryLimit:]
		}
		return trade.ID, nil
	}

	var id int64
	err := r.db.pool.QueryRow(ctx,
		`INSERT INTO trades (strategy_name, symbol, side, quantity, price, profit_loss, fees, status, order_id, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		trade.StrategyName, trade.Symbol, trade.Side, trade.Quantity, trade.Price,
		trade.ProfitLoss, trade.Fees, trade.Status, trade.OrderID, trade.ExecutedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("database: inserting trade: %w", err)
	}
	return id, nil
}

// RecentTrades returns the newest trades, newest first
func (r *Repository) RecentTrades(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		n := len(r.memory)
		if n > limit {
			n = limit
		}
		trades := make([]Trade, n)
		for i := 0; i < n; i++ {
			trades[i] = r.memory[len(r.memory)-1-i]
		}
		return trades, nil
	}

	rows, err := r.db.pool.Query(ctx,
		`SELECT id, strategy_name, symbol, side, quantity, price, profit_loss, fees, status, COALESCE(order_id, ''), executed_at
		 FROM trades ORDER BY executed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("database: listing trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var trade Trade
		if err := rows.Scan(&trade.ID, &trade.StrategyName, &trade.Symbol, &trade.Side,
			&trade.Quantity, &trade.Price, &trade.ProfitLoss, &trade.Fees,
			&trade.Status, &trade.OrderID, &trade.ExecutedAt); err != nil {
			return nil, fmt.Errorf("database: scanning trade: %w", err)
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// MetricsByStrategy aggregates performance per strategy
func (r *Repository) MetricsByStrategy(ctx context.Context) ([]StrategyMetrics, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()

		byName := make(map[string]*StrategyMetrics)
		var order []string
		for _, trade := range r.memory {
			metrics, ok := byName[trade.StrategyName]
			if !ok {
				metrics = &StrategyMetrics{StrategyName: trade.StrategyName}
				byName[trade.StrategyName] = metrics
				order = append(order, trade.StrategyName)
			}
			metrics.TotalTrades++
			metrics.TotalPnL += trade.ProfitLoss
			metrics.TotalFees += trade.Fees
			if trade.ProfitLoss > 0 {
				metrics.WinningTrades++
			}
		}

		list := make([]StrategyMetrics, 0, len(order))
		for _, name := range order {
			metrics := byName[name]
			if metrics.TotalTrades > 0 {
				metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
			}
			list = append(list, *metrics)
		}
		return list, nil
	}

	rows, err := r.db.pool.Query(ctx,
		`SELECT strategy_name,
		        COUNT(*),
		        COUNT(*) FILTER (WHERE profit_loss > 0),
		        COALESCE(SUM(profit_loss), 0),
		        COALESCE(SUM(fees), 0)
		 FROM trades GROUP BY strategy_name ORDER BY strategy_name`)
	if err != nil {
		return nil, fmt.Errorf("database: aggregating metrics: %w", err)
	}
	defer rows.Close()

	var list []StrategyMetrics
	for rows.Next() {
		var metrics StrategyMetrics
		if err := rows.Scan(&metrics.StrategyName, &metrics.TotalTrades,
			&metrics.WinningTrades, &metrics.TotalPnL, &metrics.TotalFees); err != nil {
			return nil, fmt.Errorf("database: scanning metrics: %w", err)
		}
		if metrics.TotalTrades > 0 {
			metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
		}
		list = append(list, metrics)
	}
	return list, rows.Err()
}

// InsertSnapshot records a portfolio valuation for history charts
func (r *Repository) InsertSnapshot(ctx context.Context, totalUSD, cashUSD float64, holdings interface{}) error {
	if r.db == nil {
		return nil
	}

	raw, err := json.Marshal(holdings)
	if err != nil {
		raw = []byte("[]")
	}

	_, err = r.db.pool.Exec(ctx,
		`INSERT INTO portfolio_snapshots (total_value_usd, cash_usd, holdings) VALUES ($1, $2, $3)`,
		totalUSD, cashUSD, raw)
	if err != nil {
		return fmt.Errorf("database: inserting snapshot: %w", err)
	}
	return nil
}
