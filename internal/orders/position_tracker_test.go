package orders

import "testing"

func TestOpenSetsExitLevels(t *testing.T) {
	tracker := NewTracker()

	position := tracker.Open("BTC-USD", "momentum", 100, 0.5, 0.02, 0.05)
	if position.StopLoss != 98 {
		t.Errorf("stop loss = %v, want 98", position.StopLoss)
	}
	if position.TakeProfit != 105 {
		t.Errorf("take profit = %v, want 105", position.TakeProfit)
	}
	if position.CostUSD != 50 {
		t.Errorf("cost = %v", position.CostUSD)
	}
	if tracker.Count() != 1 {
		t.Errorf("count = %d", tracker.Count())
	}
}

func TestUpdatePriceFlagsStopLoss(t *testing.T) {
	tracker := NewTracker()
	position := tracker.Open("BTC-USD", "momentum", 100, 1, 0.02, 0.05)

	if exits := tracker.UpdatePrice("BTC-USD", 99); len(exits) != 0 {
		t.Errorf("exit flagged above stop loss: %v", exits)
	}

	exits := tracker.UpdatePrice("BTC-USD", 97.5)
	if len(exits) != 1 {
		t.Fatalf("got %d exits", len(exits))
	}
	if exits[0].Reason != ExitStopLoss {
		t.Errorf("reason = %s", exits[0].Reason)
	}
	if exits[0].Position.ID != position.ID {
		t.Error("wrong position flagged")
	}
}

func TestUpdatePriceFlagsTakeProfit(t *testing.T) {
	tracker := NewTracker()
	tracker.Open("ETH-USD", "dca", 100, 2, 0.02, 0.05)

	exits := tracker.UpdatePrice("ETH-USD", 105.5)
	if len(exits) != 1 || exits[0].Reason != ExitTakeProfit {
		t.Fatalf("exits = %v", exits)
	}
	if exits[0].Position.UnrealizedPnL != 11 {
		t.Errorf("unrealized pnl = %v, want 11", exits[0].Position.UnrealizedPnL)
	}
}

func TestUpdatePriceIgnoresOtherProducts(t *testing.T) {
	tracker := NewTracker()
	tracker.Open("BTC-USD", "momentum", 100, 1, 0.02, 0.05)

	if exits := tracker.UpdatePrice("ETH-USD", 1); len(exits) != 0 {
		t.Errorf("exits for unrelated product: %v", exits)
	}
}

func TestCloseRealizesPnL(t *testing.T) {
	tracker := NewTracker()
	position := tracker.Open("BTC-USD", "momentum", 100, 0.5, 0.02, 0.05)

	closed, pnl, ok := tracker.Close(position.ID, 110, ExitTakeProfit)
	if !ok {
		t.Fatal("position not found")
	}
	if pnl != 5 {
		t.Errorf("pnl = %v, want 5", pnl)
	}
	if closed.ProductID != "BTC-USD" {
		t.Errorf("product = %s", closed.ProductID)
	}
	if tracker.Count() != 0 {
		t.Error("position still tracked after close")
	}

	if _, _, ok := tracker.Close(position.ID, 110, ExitSignal); ok {
		t.Error("double close should fail")
	}
}

func TestExposureAndStrategyCounts(t *testing.T) {
	tracker := NewTracker()
	tracker.Open("BTC-USD", "momentum", 100, 1, 0.02, 0.05)
	tracker.Open("ETH-USD", "momentum", 50, 2, 0.02, 0.05)
	tracker.Open("SOL-USD", "dca", 10, 5, 0.02, 0.05)

	if got := tracker.TotalExposureUSD(); got != 250 {
		t.Errorf("exposure = %v, want 250", got)
	}
	if got := tracker.CountForStrategy("momentum"); got != 2 {
		t.Errorf("momentum positions = %d", got)
	}
	if got := tracker.CountForStrategy("dca"); got != 1 {
		t.Errorf("dca positions = %d", got)
	}
}
