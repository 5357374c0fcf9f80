package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coinbase-trading-bot/internal/coinbase"
	"coinbase-trading-bot/internal/events"
	"coinbase-trading-bot/internal/logging"
)

// EmergencyGuard watches risk metrics and, when a hard limit is breached,
// actually gets flat: cancels every open order and market-sells every
// non-quote holding. Merely refusing new trades is not a stop.
type EmergencyGuard struct {
	manager       *Manager
	exchange      coinbase.Exchange
	eventBus      *events.EventBus
	logger        *logging.Logger
	quoteCurrency string
	varLimitUSD   float64
	pollInterval  time.Duration
}

// NewEmergencyGuard wires the guard. varLimitUSD of 0 disables the VaR
// trigger; loss and drawdown limits come from the manager.
func NewEmergencyGuard(manager *Manager, exchange coinbase.Exchange, eventBus *events.EventBus, quoteCurrency string, varLimitUSD float64, pollInterval time.Duration) *EmergencyGuard {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if quoteCurrency == "" {
		quoteCurrency = "USD"
	}
	return &EmergencyGuard{
		manager:       manager,
		exchange:      exchange,
		eventBus:      eventBus,
		logger:        logging.WithComponent("emergency-guard"),
		quoteCurrency: quoteCurrency,
		varLimitUSD:   varLimitUSD,
		pollInterval:  pollInterval,
	}
}

// Run polls metrics until ctx is cancelled
func (g *EmergencyGuard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reason := g.checkLimits(); reason != "" {
				g.Trigger(ctx, reason)
			}
		}
	}
}

func (g *EmergencyGuard) checkLimits() string {
	if stopped, _ := g.manager.IsEmergencyStopped(); stopped {
		return ""
	}

	metrics := g.manager.GetMetrics()
	limits := g.manager.Limits()

	if metrics.DailyLossPct >= limits.MaxDailyLossPct {
		return fmt.Sprintf("daily loss %.2f%% breached limit %.1f%%", metrics.DailyLossPct*100, limits.MaxDailyLossPct*100)
	}
	if metrics.DrawdownPct >= limits.MaxDrawdownPct {
		return fmt.Sprintf("drawdown %.2f%% breached limit %.1f%%", metrics.DrawdownPct*100, limits.MaxDrawdownPct*100)
	}
	if g.varLimitUSD > 0 && metrics.VaR95 >= g.varLimitUSD {
		return fmt.Sprintf("VaR $%.2f breached limit $%.2f", metrics.VaR95, g.varLimitUSD)
	}
	return ""
}

// Trigger executes the emergency stop: mark the manager stopped, cancel
// open orders, liquidate positions, publish the event. Returns what was
// done so operators can audit the stop.
func (g *EmergencyGuard) Trigger(ctx context.Context, reason string) map[string]interface{} {
	first := g.manager.TriggerEmergencyStop(reason)
	if !first {
		return map[string]interface{}{"already_stopped": true}
	}

	g.logger.Error("EMERGENCY STOP triggered", "reason", reason)

	cancelled := g.cancelOpenOrders(ctx)
	liquidated := g.liquidatePositions(ctx)

	result := map[string]interface{}{
		"reason":           reason,
		"orders_cancelled": cancelled,
		"positions_closed": liquidated,
		"triggered_at":     time.Now().Format(time.RFC3339),
	}

	if g.eventBus != nil {
		g.eventBus.Publish(events.EventEmergencyStop, result)
	}
	return result
}

func (g *EmergencyGuard) cancelOpenOrders(ctx context.Context) int {
	open, err := g.exchange.ListOpenOrders(ctx)
	if err != nil {
		g.logger.Error("Listing open orders during emergency stop", "error", err.Error())
		return 0
	}
	if len(open) == 0 {
		return 0
	}

	ids := make([]string, len(open))
	for i, order := range open {
		ids[i] = order.OrderID
	}

	cancelled, err := g.exchange.CancelOrders(ctx, ids)
	if err != nil {
		g.logger.Error("Cancelling orders during emergency stop", "error", err.Error())
		return 0
	}
	g.logger.Warn("Cancelled open orders", "count", len(cancelled))
	return len(cancelled)
}

func (g *EmergencyGuard) liquidatePositions(ctx context.Context) []string {
	accounts, err := g.exchange.ListAccounts(ctx)
	if err != nil {
		g.logger.Error("Listing accounts during emergency stop", "error", err.Error())
		return nil
	}

	var closed []string
	for _, account := range accounts {
		if strings.EqualFold(account.Currency, g.quoteCurrency) || account.AvailableBalance.Value <= 0 {
			continue
		}
		if isFiat(account.Currency) {
			continue
		}

		productID := account.Currency + "-" + g.quoteCurrency
		ticker, err := g.exchange.GetTicker(ctx, productID)
		if err != nil {
			g.logger.Error("Pricing position during emergency stop", "product", productID, "error", err.Error())
			continue
		}

		valueUSD := account.AvailableBalance.Value * ticker.Price
		if valueUSD < 1 {
			// dust, not worth an order
			continue
		}

		if _, err := g.exchange.CreateMarketOrder(ctx, productID, coinbase.SideSell, valueUSD); err != nil {
			g.logger.Error("Liquidating position during emergency stop", "product", productID, "error", err.Error())
			continue
		}

		g.logger.Warn("Position liquidated", "product", productID, "value_usd", fmt.Sprintf("%.2f", valueUSD))
		closed = append(closed, productID)
	}
	return closed
}

func isFiat(currency string) bool {
	switch strings.ToUpper(currency) {
	case "USD", "EUR", "GBP", "USDC", "USDT":
		return true
	}
	return false
}
