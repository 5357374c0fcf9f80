package orders

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Position is one open long position with its exit levels
type Position struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	Strategy      string    `json:"strategy"`
	EntryPrice    float64   `json:"entry_price"`
	Quantity      float64   `json:"quantity"`
	CostUSD       float64   `json:"cost_usd"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfit    float64   `json:"take_profit"`
	CurrentPrice  float64   `json:"current_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	OpenedAt      time.Time `json:"opened_at"`
}

// ExitReason is why a position should close
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitSignal     ExitReason = "signal"
	ExitEmergency  ExitReason = "emergency"
)

// ExitDecision pairs a position with the reason it should close
type ExitDecision struct {
	Position Position
	Reason   ExitReason
}

// Tracker maintains open positions and flags stop loss and take profit
// hits as prices move
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]Position
	log       zerolog.Logger
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		positions: make(map[string]Position),
		log:       zerolog.New(os.Stdout).With().Timestamp().Str("component", "positions").Logger(),
	}
}

// Open registers a new position. Stop loss and take profit are absolute
// prices derived from the entry and the mode's percentages.
func (t *Tracker) Open(productID, strategy string, entryPrice, quantity, stopLossPct, takeProfitPct float64) Position {
	position := Position{
		ID:           uuid.NewString(),
		ProductID:    productID,
		Strategy:     strategy,
		EntryPrice:   entryPrice,
		Quantity:     quantity,
		CostUSD:      entryPrice * quantity,
		StopLoss:     entryPrice * (1 - stopLossPct),
		TakeProfit:   entryPrice * (1 + takeProfitPct),
		CurrentPrice: entryPrice,
		OpenedAt:     time.Now(),
	}

	t.mu.Lock()
	t.positions[position.ID] = position
	t.mu.Unlock()

	t.log.Info().
		Str("position_id", position.ID).
		Str("product", productID).
		Str("strategy", strategy).
		Float64("entry", entryPrice).
		Float64("quantity", quantity).
		Float64("stop_loss", position.StopLoss).
		Float64("take_profit", position.TakeProfit).
		Msg("position opened")

	return position
}

// UpdatePrice feeds a new price for a product and returns positions that
// hit their stop loss or take profit
func (t *Tracker) UpdatePrice(productID string, price float64) []ExitDecision {
	if price <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var exits []ExitDecision
	for id, position := range t.positions {
		if position.ProductID != productID {
			continue
		}

		position.CurrentPrice = price
		position.UnrealizedPnL = (price - position.EntryPrice) * position.Quantity
		t.positions[id] = position

		switch {
		case price <= position.StopLoss:
			exits = append(exits, ExitDecision{Position: position, Reason: ExitStopLoss})
		case price >= position.TakeProfit:
			exits = append(exits, ExitDecision{Position: position, Reason: ExitTakeProfit})
		}
	}
	return exits
}

// Close removes a position and returns it with the realized PnL at the
// given exit price
func (t *Tracker) Close(positionID string, exitPrice float64, reason ExitReason) (Position, float64, bool) {
	t.mu.Lock()
	position, ok := t.positions[positionID]
	if ok {
		delete(t.positions, positionID)
	}
	t.mu.Unlock()

	if !ok {
		return Position{}, 0, false
	}

	pnl := (exitPrice - position.EntryPrice) * position.Quantity
	t.log.Info().
		Str("position_id", positionID).
		Str("product", position.ProductID).
		Str("reason", string(reason)).
		Float64("entry", position.EntryPrice).
		Float64("exit", exitPrice).
		Float64("pnl", pnl).
		Dur("held", time.Since(position.OpenedAt)).
		Msg("position closed")

	return position, pnl, true
}

// Get returns one position by ID
func (t *Tracker) Get(positionID string) (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	position, ok := t.positions[positionID]
	return position, ok
}

// Open positions snapshot, unordered
func (t *Tracker) List() []Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := make([]Position, 0, len(t.positions))
	for _, position := range t.positions {
		list = append(list, position)
	}
	return list
}

// Count returns the number of open positions
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}

// CountForStrategy returns open positions belonging to one strategy
func (t *Tracker) CountForStrategy(strategy string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, position := range t.positions {
		if position.Strategy == strategy {
			count++
		}
	}
	return count
}

// TotalExposureUSD sums the cost basis of all open positions
func (t *Tracker) TotalExposureUSD() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total float64
	for _, position := range t.positions {
		total += position.CostUSD
	}
	return total
}
