package bot

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"coinbase-trading-bot/internal/circuit"
	"coinbase-trading-bot/internal/coinbase"
	"coinbase-trading-bot/internal/database"
	"coinbase-trading-bot/internal/events"
	"coinbase-trading-bot/internal/logging"
	"coinbase-trading-bot/internal/modes"
	"coinbase-trading-bot/internal/orders"
	"coinbase-trading-bot/internal/risk"
	"coinbase-trading-bot/internal/strategy"
)

// Options configures the engine
type Options struct {
	Products     []string
	CapitalUSD   float64
	DryRun       bool
	PollInterval time.Duration
}

// Engine runs the trading loop: evaluate enabled strategies, gate the
// signals through the circuit breaker and risk manager, execute what
// survives, and watch open positions for exits.
type Engine struct {
	exchange   coinbase.Exchange
	registry   *strategy.Registry
	modeMgr    *modes.Manager
	riskMgr    *risk.Manager
	breaker    *circuit.Breaker
	positions  *orders.Tracker
	repository *database.Repository
	eventBus   *events.EventBus
	logger     *logging.Logger

	// chance drives the mode's trade frequency gate; tests pin it
	chance func() float64

	mu           sync.RWMutex
	running      bool
	cancel       context.CancelFunc
	capitalUSD   float64
	dryRun       bool
	products     []string
	interval     time.Duration
	startedAt    time.Time
	lastCycle    time.Time
	cycleCount   int64
	entriesToday int
	entriesDay   time.Time
}

// NewEngine wires the engine; Start launches the loop
func NewEngine(
	exchange coinbase.Exchange,
	registry *strategy.Registry,
	modeMgr *modes.Manager,
	riskMgr *risk.Manager,
	breaker *circuit.Breaker,
	positions *orders.Tracker,
	repository *database.Repository,
	eventBus *events.EventBus,
	opts Options,
) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	return &Engine{
		exchange:   exchange,
		registry:   registry,
		modeMgr:    modeMgr,
		riskMgr:    riskMgr,
		breaker:    breaker,
		positions:  positions,
		repository: repository,
		eventBus:   eventBus,
		logger:     logging.WithComponent("engine"),
		chance:     rand.Float64,
		capitalUSD: opts.CapitalUSD,
		dryRun:     opts.DryRun,
		products:   opts.Products,
		interval:   opts.PollInterval,
		entriesDay: startOfDay(time.Now()),
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// tradesToday returns how many positions were opened since midnight
func (e *Engine) tradesToday() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollDayLocked()
	return e.entriesToday
}

func (e *Engine) recordEntry() {
	e.mu.Lock()
	e.rollDayLocked()
	e.entriesToday++
	e.mu.Unlock()
}

func (e *Engine) rollDayLocked() {
	today := startOfDay(time.Now())
	if today.After(e.entriesDay) {
		e.entriesDay = today
		e.entriesToday = 0
	}
}

// Start launches the trading loop. Returns an error if already running
// or if the emergency stop is active.
func (e *Engine) Start(parent context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("bot: already running")
	}
	if stopped, reason := e.riskMgr.IsEmergencyStopped(); stopped {
		return fmt.Errorf("bot: emergency stop active: %s", reason)
	}

	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	e.running = true
	e.startedAt = time.Now()

	go e.loop(ctx)

	e.logger.Info("Bot started", "mode", e.modeMgr.ActiveName(), "dry_run", e.dryRun, "products", len(e.products))
	e.eventBus.Publish(events.EventBotStarted, map[string]interface{}{
		"mode":    e.modeMgr.ActiveName(),
		"dry_run": e.dryRun,
	})
	return nil
}

// Stop halts the loop; open positions stay open
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.logger.Info("Bot stopped")
	e.eventBus.Publish(events.EventBotStopped, nil)
}

// Toggle flips the running state and returns the new state
func (e *Engine) Toggle(ctx context.Context) (bool, error) {
	if e.IsRunning() {
		e.Stop()
		return false, nil
	}
	if err := e.Start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// IsRunning reports the loop state
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Capital returns the allocated trading capital
func (e *Engine) Capital() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.capitalUSD
}

// SetCapital updates the trading capital
func (e *Engine) SetCapital(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("bot: capital must be positive, got %.2f", amount)
	}

	e.mu.Lock()
	previous := e.capitalUSD
	e.capitalUSD = amount
	e.mu.Unlock()

	e.logger.Info("Capital updated", "from", previous, "to", amount)
	e.eventBus.Publish(events.EventCapitalChanged, map[string]interface{}{
		"previous": previous,
		"current":  amount,
	})
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

// cycle is one pass: refresh prices, close what needs closing, then
// look for entries
func (e *Engine) cycle(ctx context.Context) {
	e.mu.Lock()
	e.lastCycle = time.Now()
	e.cycleCount++
	products := e.products
	capital := e.capitalUSD
	e.mu.Unlock()

	if stopped, _ := e.riskMgr.IsEmergencyStopped(); stopped {
		return
	}

	mode := e.modeMgr.Active()

	for _, productID := range products {
		ticker, err := e.exchange.GetTicker(ctx, productID)
		if err != nil {
			e.logger.Warn("Ticker fetch failed", "product", productID, "error", err.Error())
			continue
		}

		for _, exit := range e.positions.UpdatePrice(productID, ticker.Price) {
			e.closePosition(ctx, exit.Position, exit.Reason, ticker.Price)
		}

		e.evaluateProduct(ctx, productID, ticker, mode, capital)
	}
}

func (e *Engine) evaluateProduct(ctx context.Context, productID string, ticker *coinbase.Ticker, mode modes.Mode, capital float64) {
	end := time.Now()
	candles, err := e.exchange.GetCandles(ctx, productID, "ONE_MINUTE", end.Add(-2*time.Hour), end)
	if err != nil {
		e.logger.Warn("Candle fetch failed", "product", productID, "error", err.Error())
		candles = nil
	}

	input := strategy.Context{
		ProductID:  productID,
		Ticker:     ticker,
		Candles:    candles,
		Mode:       mode,
		CapitalUSD: capital,
	}

	for _, strat := range e.registry.Enabled() {
		signal, err := strat.Evaluate(ctx, input)
		if err != nil {
			e.logger.Error("Strategy evaluation failed", "strategy", strat.Name(), "error", err.Error())
			continue
		}
		if signal == nil || signal.Action == strategy.ActionHold {
			continue
		}

		e.eventBus.Publish(events.EventSignalGenerated, map[string]interface{}{
			"strategy":   signal.Strategy,
			"product":    signal.ProductID,
			"action":     string(signal.Action),
			"confidence": signal.Confidence,
			"reason":     signal.Reason,
		})

		switch signal.Action {
		case strategy.ActionBuy:
			e.tryEnter(ctx, signal, mode, ticker)
		case strategy.ActionSell:
			e.exitStrategyPositions(ctx, strat.Name(), productID, ticker.Price)
		}
	}
}

func (e *Engine) tryEnter(ctx context.Context, signal *strategy.Signal, mode modes.Mode, ticker *coinbase.Ticker) {
	if signal.QuoteSizeUSD <= 0 {
		return
	}
	if signal.QuoteSizeUSD < mode.MinTradeUSD {
		e.logger.Debug("Order below mode minimum", "size_usd", signal.QuoteSizeUSD, "min_usd", mode.MinTradeUSD)
		return
	}

	// conservative mode holds fire unless the strategy is very sure
	if mode.RequireConfirmation && signal.Confidence < 0.75 {
		e.logger.Info("Signal below confirmation threshold", "strategy", signal.Strategy, "confidence", signal.Confidence)
		return
	}

	// the mode's trade frequency is the fraction of signals acted on
	if mode.TradeFrequency > 0 && mode.TradeFrequency < 1 && e.chance() > mode.TradeFrequency {
		e.logger.Debug("Signal skipped by trade frequency", "strategy", signal.Strategy, "frequency", mode.TradeFrequency)
		return
	}

	if mode.MaxTradesPerDay > 0 && e.tradesToday() >= mode.MaxTradesPerDay {
		e.logger.Info("Mode daily trade limit reached", "limit", mode.MaxTradesPerDay)
		return
	}

	if ok, reason := e.breaker.CanTrade(); !ok {
		e.logger.Warn("Trade blocked by circuit breaker", "reason", reason)
		return
	}

	if result := e.riskMgr.ValidateTrade(signal.ProductID, signal.QuoteSizeUSD); !result.Approved {
		e.logger.Warn("Trade rejected by risk manager", "reason", result.Reason)
		return
	}

	entryPrice := ticker.Price
	quantity := signal.QuoteSizeUSD / entryPrice

	if e.dryRun {
		e.logger.Info("DRY RUN buy", "product", signal.ProductID, "size_usd", signal.QuoteSizeUSD, "strategy", signal.Strategy)
	} else {
		order, err := e.exchange.CreateMarketOrder(ctx, signal.ProductID, coinbase.SideBuy, signal.QuoteSizeUSD)
		if err != nil {
			e.logger.Error("Order placement failed", "product", signal.ProductID, "error", err.Error())
			return
		}
		if order.AverageFilled > 0 {
			entryPrice = order.AverageFilled
		}
		if order.FilledSize > 0 {
			quantity = order.FilledSize
		}
		e.eventBus.Publish(events.EventOrderPlaced, map[string]interface{}{
			"order_id": order.OrderID,
			"product":  order.ProductID,
			"side":     order.Side,
		})
	}

	position := e.positions.Open(signal.ProductID, signal.Strategy, entryPrice, quantity, mode.StopLossPct, mode.TakeProfitPct)
	e.recordEntry()

	if _, err := e.repository.InsertTrade(ctx, database.Trade{
		StrategyName: signal.Strategy,
		Symbol:       signal.ProductID,
		Side:         coinbase.SideBuy,
		Quantity:     quantity,
		Price:        entryPrice,
		Status:       coinbase.OrderStatusFilled,
	}); err != nil {
		e.logger.Error("Recording trade failed", "error", err.Error())
	}

	e.eventBus.Publish(events.EventTradeOpened, map[string]interface{}{
		"position_id": position.ID,
		"product":     position.ProductID,
		"strategy":    position.Strategy,
		"entry":       position.EntryPrice,
	})
}

// HandleExits closes positions flagged by an external price feed, such
// as the websocket ticker stream, without waiting for the next poll
func (e *Engine) HandleExits(ctx context.Context, exits []orders.ExitDecision) {
	for _, exit := range exits {
		e.closePosition(ctx, exit.Position, exit.Reason, exit.Position.CurrentPrice)
	}
}

func (e *Engine) exitStrategyPositions(ctx context.Context, strategyName, productID string, price float64) {
	for _, position := range e.positions.List() {
		if position.Strategy == strategyName && position.ProductID == productID {
			e.closePosition(ctx, position, orders.ExitSignal, price)
		}
	}
}

func (e *Engine) closePosition(ctx context.Context, position orders.Position, reason orders.ExitReason, price float64) {
	if !e.dryRun {
		valueUSD := position.Quantity * price
		if _, err := e.exchange.CreateMarketOrder(ctx, position.ProductID, coinbase.SideSell, valueUSD); err != nil {
			e.logger.Error("Exit order failed", "position", position.ID, "error", err.Error())
			return
		}
	}

	closed, pnl, ok := e.positions.Close(position.ID, price, reason)
	if !ok {
		return
	}

	returnPct := 0.0
	if closed.CostUSD > 0 {
		returnPct = pnl / closed.CostUSD
	}

	e.riskMgr.RecordTrade(risk.TradeRecord{
		Symbol:     closed.ProductID,
		ProfitLoss: pnl,
		ReturnPct:  returnPct,
	})
	e.breaker.RecordTrade(returnPct * 100)

	if _, err := e.repository.InsertTrade(ctx, database.Trade{
		StrategyName: closed.Strategy,
		Symbol:       closed.ProductID,
		Side:         coinbase.SideSell,
		Quantity:     closed.Quantity,
		Price:        price,
		ProfitLoss:   pnl,
		Status:       coinbase.OrderStatusFilled,
	}); err != nil {
		e.logger.Error("Recording trade failed", "error", err.Error())
	}

	e.eventBus.Publish(events.EventTradeClosed, map[string]interface{}{
		"position_id": closed.ID,
		"product":     closed.ProductID,
		"strategy":    closed.Strategy,
		"reason":      string(reason),
		"pnl":         pnl,
	})
}

// Status summarizes the engine for the API
func (e *Engine) Status() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := map[string]interface{}{
		"running":        e.running,
		"dry_run":        e.dryRun,
		"capital_usd":    e.capitalUSD,
		"products":       e.products,
		"open_positions": e.positions.Count(),
		"exposure_usd":   e.positions.TotalExposureUSD(),
		"cycles":         e.cycleCount,
		"trades_today":   e.entriesToday,
	}
	if e.running {
		status["started_at"] = e.startedAt.Format(time.RFC3339)
		status["uptime_seconds"] = int(time.Since(e.startedAt).Seconds())
	}
	if !e.lastCycle.IsZero() {
		status["last_cycle"] = e.lastCycle.Format(time.RFC3339)
	}
	return status
}
