package strategy

import (
	"context"
	"testing"
	"time"

	"coinbase-trading-bot/internal/coinbase"
	"coinbase-trading-bot/internal/modes"
)

func testMode() modes.Mode {
	return modes.Presets()[modes.ModeNormal]
}

func risingCandles(n int, start, step float64) []coinbase.Candle {
	candles := make([]coinbase.Candle, n)
	price := start
	for i := range candles {
		candles[i] = coinbase.Candle{
			Start: time.Now().Add(-time.Duration(n-i) * time.Minute),
			Open:  price,
			Close: price + step,
			High:  price + step,
			Low:   price,
		}
		price += step
	}
	return candles
}

func flatCandles(n int, price float64) []coinbase.Candle {
	candles := make([]coinbase.Candle, n)
	for i := range candles {
		candles[i] = coinbase.Candle{Close: price, Open: price, High: price, Low: price}
	}
	return candles
}

func TestMomentumHoldsOnShortHistory(t *testing.T) {
	m := NewMomentum()
	signal, err := m.Evaluate(context.Background(), Context{
		ProductID:  "BTC-USD",
		Candles:    risingCandles(5, 100, 1),
		Mode:       testMode(),
		CapitalUSD: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if signal.Action != ActionHold {
		t.Errorf("action = %s, want HOLD", signal.Action)
	}
}

func TestMomentumHoldsAtExactLongWindow(t *testing.T) {
	m := NewMomentum()

	// 30 candles match the long window but leave no previous-window
	// candle; must hold instead of slicing past the start
	signal, err := m.Evaluate(context.Background(), Context{
		ProductID:  "BTC-USD",
		Candles:    risingCandles(30, 100, 1),
		Mode:       testMode(),
		CapitalUSD: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if signal.Action != ActionHold {
		t.Errorf("action = %s, want HOLD", signal.Action)
	}

	// one more candle is enough history to evaluate
	signal, err = m.Evaluate(context.Background(), Context{
		ProductID:  "BTC-USD",
		Candles:    risingCandles(31, 100, 1),
		Mode:       testMode(),
		CapitalUSD: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if signal.Reason == "insufficient history" {
		t.Errorf("31 candles should clear the history guard, got %q", signal.Reason)
	}
}

func TestMomentumBuysOnCrossUp(t *testing.T) {
	m := NewMomentum()

	// steady decline keeps short MA under long; the final spike flips it
	candles := risingCandles(37, 200, -1)
	candles = append(candles, coinbase.Candle{Open: 164, Close: 500, High: 500, Low: 164})

	signal, err := m.Evaluate(context.Background(), Context{
		ProductID:  "BTC-USD",
		Candles:    candles,
		Mode:       testMode(),
		CapitalUSD: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if signal.Action != ActionBuy {
		t.Fatalf("action = %s (%s), want BUY", signal.Action, signal.Reason)
	}
	if signal.Confidence <= 0 || signal.Confidence > 1 {
		t.Errorf("confidence = %v", signal.Confidence)
	}
	if signal.QuoteSizeUSD <= 0 {
		t.Errorf("quote size = %v", signal.QuoteSizeUSD)
	}
}

func TestMomentumSellsOnCrossDown(t *testing.T) {
	m := NewMomentum()

	// gentle rise keeps short MA just over long; the final crash flips it
	candles := risingCandles(37, 100, 0.2)
	candles = append(candles, coinbase.Candle{Open: 107, Close: 5, High: 107, Low: 5})

	signal, err := m.Evaluate(context.Background(), Context{
		ProductID:  "ETH-USD",
		Candles:    candles,
		Mode:       testMode(),
		CapitalUSD: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if signal.Action != ActionSell {
		t.Errorf("action = %s (%s), want SELL", signal.Action, signal.Reason)
	}
}

func TestDCABuysOnSchedule(t *testing.T) {
	d := NewDCA(10, time.Hour)
	input := Context{ProductID: "BTC-USD", Mode: testMode(), CapitalUSD: 1000}

	first, err := d.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if first.Action != ActionBuy || first.QuoteSizeUSD != 10 {
		t.Errorf("first signal = %s $%v", first.Action, first.QuoteSizeUSD)
	}

	second, _ := d.Evaluate(context.Background(), input)
	if second.Action != ActionHold {
		t.Errorf("second signal within interval = %s", second.Action)
	}
}

func TestDCADipBonus(t *testing.T) {
	d := NewDCA(10, time.Hour)

	input := Context{
		ProductID:  "BTC-USD",
		Candles:    flatCandles(24, 100),
		Ticker:     &coinbase.Ticker{ProductID: "BTC-USD", Price: 90},
		Mode:       testMode(),
		CapitalUSD: 1000,
	}

	signal, err := d.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if signal.QuoteSizeUSD != 15 {
		t.Errorf("dip buy = $%v, want $15", signal.QuoteSizeUSD)
	}
	if signal.Confidence != 0.8 {
		t.Errorf("confidence = %v", signal.Confidence)
	}
}

func TestSpreadScalpRequiresProfitableSpread(t *testing.T) {
	s := NewSpreadScalp(0.006)
	mode := modes.Presets()[modes.ModeScalping]

	// tight spread, fees eat everything
	tight, err := s.Evaluate(context.Background(), Context{
		ProductID:  "BTC-USD",
		Ticker:     &coinbase.Ticker{BestBid: 100, BestAsk: 100.05},
		Mode:       mode,
		CapitalUSD: 100000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tight.Action != ActionHold {
		t.Errorf("tight spread action = %s", tight.Action)
	}

	// 3% spread clears 1.2% round trip fees comfortably
	wide, err := s.Evaluate(context.Background(), Context{
		ProductID:  "ALT-USD",
		Ticker:     &coinbase.Ticker{BestBid: 100, BestAsk: 103},
		Mode:       mode,
		CapitalUSD: 100000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if wide.Action != ActionBuy {
		t.Errorf("wide spread action = %s (%s)", wide.Action, wide.Reason)
	}
}

func TestSpreadScalpHoldsWithoutTicker(t *testing.T) {
	s := NewSpreadScalp(0.006)
	signal, _ := s.Evaluate(context.Background(), Context{ProductID: "BTC-USD", Mode: testMode(), CapitalUSD: 1000})
	if signal.Action != ActionHold {
		t.Errorf("action = %s", signal.Action)
	}
}

func TestRegistryToggle(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewMomentum())
	registry.Register(NewDCA(10, time.Hour))

	if len(registry.Enabled()) != 0 {
		t.Error("strategies should start disabled")
	}

	if err := registry.SetEnabled("momentum", true); err != nil {
		t.Fatal(err)
	}
	enabled := registry.Enabled()
	if len(enabled) != 1 || enabled[0].Name() != "momentum" {
		t.Errorf("enabled = %v", enabled)
	}

	if err := registry.SetEnabled("nope", true); err == nil {
		t.Error("expected error for unknown strategy")
	}

	status := registry.Status()
	if len(status) != 2 {
		t.Fatalf("status entries = %d", len(status))
	}
}
