package risk

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"coinbase-trading-bot/internal/coinbase"
	"coinbase-trading-bot/internal/events"
)

func TestValidateTradePositionSize(t *testing.T) {
	mgr := NewManager(DefaultLimits(), 1000)

	if res := mgr.ValidateTrade("BTC-USD", 50); !res.Approved {
		t.Errorf("5%% position rejected: %s", res.Reason)
	}
	if res := mgr.ValidateTrade("BTC-USD", 150); res.Approved {
		t.Error("15% position approved against 10% limit")
	}
	if res := mgr.ValidateTrade("BTC-USD", -5); res.Approved {
		t.Error("negative trade value approved")
	}
}

func TestValidateTradeDailyLoss(t *testing.T) {
	mgr := NewManager(DefaultLimits(), 1000)

	mgr.RecordTrade(TradeRecord{Symbol: "BTC-USD", ProfitLoss: -60, ReturnPct: -0.06})

	if res := mgr.ValidateTrade("BTC-USD", 10); res.Approved {
		t.Error("trade approved with 6% daily loss against 5% limit")
	} else if !strings.Contains(res.Reason, "daily loss") {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestValidateTradeDrawdown(t *testing.T) {
	mgr := NewManager(DefaultLimits(), 1000)

	mgr.UpdatePortfolioValue(1200)
	mgr.UpdatePortfolioValue(1000) // 16.7% off peak

	if res := mgr.ValidateTrade("ETH-USD", 10); res.Approved {
		t.Error("trade approved past drawdown limit")
	} else if !strings.Contains(res.Reason, "drawdown") {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestValidateTradeDailyCount(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxTradesPerDay = 2
	mgr := NewManager(limits, 1000)

	mgr.RecordTrade(TradeRecord{ProfitLoss: 1})
	mgr.RecordTrade(TradeRecord{ProfitLoss: 1})

	if res := mgr.ValidateTrade("BTC-USD", 10); res.Approved {
		t.Error("trade approved past daily count limit")
	}
}

func TestVaRFromHistory(t *testing.T) {
	mgr := NewManager(DefaultLimits(), 1000)

	if got := mgr.CalculateVaR(); got != 0 {
		t.Errorf("VaR with no history = %v, want 0", got)
	}

	// 19 small wins and one big loss puts the 5% quantile on the loss
	mgr.RecordTrade(TradeRecord{ProfitLoss: -40, ReturnPct: -0.04})
	for i := 0; i < 19; i++ {
		mgr.RecordTrade(TradeRecord{ProfitLoss: 2, ReturnPct: 0.002})
	}

	if got := mgr.CalculateVaR(); got != 40 {
		t.Errorf("VaR = %v, want 40", got)
	}
}

func TestSharpeRatio(t *testing.T) {
	mgr := NewManager(DefaultLimits(), 1000)

	if got := mgr.CalculateSharpeRatio(); got != 0 {
		t.Errorf("Sharpe with no history = %v", got)
	}

	// alternating returns with positive mean
	for i := 0; i < 20; i++ {
		ret := 0.01
		if i%2 == 0 {
			ret = -0.004
		}
		mgr.RecordTrade(TradeRecord{ProfitLoss: ret * 1000, ReturnPct: ret})
	}

	sharpe := mgr.CalculateSharpeRatio()
	if sharpe <= 0 {
		t.Errorf("Sharpe = %v, want positive", sharpe)
	}
	if math.IsNaN(sharpe) || math.IsInf(sharpe, 0) {
		t.Errorf("Sharpe not finite: %v", sharpe)
	}
}

func TestSharpeZeroVariance(t *testing.T) {
	mgr := NewManager(DefaultLimits(), 1000)
	for i := 0; i < 15; i++ {
		mgr.RecordTrade(TradeRecord{ProfitLoss: 5, ReturnPct: 0.005})
	}
	if got := mgr.CalculateSharpeRatio(); got != 0 {
		t.Errorf("Sharpe with zero variance = %v, want 0", got)
	}
}

func TestEmergencyStopBlocksTrades(t *testing.T) {
	mgr := NewManager(DefaultLimits(), 1000)

	if !mgr.TriggerEmergencyStop("manual") {
		t.Fatal("first trigger should return true")
	}
	if mgr.TriggerEmergencyStop("again") {
		t.Error("second trigger should return false")
	}

	if res := mgr.ValidateTrade("BTC-USD", 10); res.Approved {
		t.Error("trade approved while emergency stopped")
	}

	mgr.ResetEmergencyStop()
	if res := mgr.ValidateTrade("BTC-USD", 10); !res.Approved {
		t.Errorf("trade rejected after reset: %s", res.Reason)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	mgr := NewManager(DefaultLimits(), 1000)
	mgr.RecordTrade(TradeRecord{ProfitLoss: 10, ReturnPct: 0.01})
	mgr.RecordTrade(TradeRecord{ProfitLoss: -4, ReturnPct: -0.004})

	metrics := mgr.GetMetrics()
	if metrics.TotalTrades != 2 || metrics.TradesToday != 2 {
		t.Errorf("trade counts = %d/%d", metrics.TotalTrades, metrics.TradesToday)
	}
	if metrics.DailyPnL != 6 {
		t.Errorf("daily pnl = %v", metrics.DailyPnL)
	}
	if metrics.WinRate != 0.5 {
		t.Errorf("win rate = %v", metrics.WinRate)
	}
}

func TestEmergencyGuardLiquidates(t *testing.T) {
	mgr := NewManager(DefaultLimits(), 1000)
	mock := coinbase.NewMockClient(500, map[string]float64{"BTC-USD": 50000})
	mock.SetPrice("BTC-USD", 50000)

	// give the mock a BTC position worth ~$250
	if _, err := mock.CreateMarketOrder(context.Background(), "BTC-USD", coinbase.SideBuy, 250); err != nil {
		t.Fatalf("seeding position: %v", err)
	}

	guard := NewEmergencyGuard(mgr, mock, events.NewEventBus(), "USD", 0, time.Second)
	result := guard.Trigger(context.Background(), "test breach")

	if stopped, reason := mgr.IsEmergencyStopped(); !stopped || reason != "test breach" {
		t.Errorf("stopped=%v reason=%q", stopped, reason)
	}

	closed, _ := result["positions_closed"].([]string)
	if len(closed) != 1 || closed[0] != "BTC-USD" {
		t.Errorf("positions_closed = %v", closed)
	}

	// second trigger is a no-op
	again := guard.Trigger(context.Background(), "another")
	if again["already_stopped"] != true {
		t.Errorf("second trigger = %v", again)
	}
}
