package database

import (
	"context"
	"testing"
)

// The in-memory fallback is what dry runs and tests exercise; the SQL
// paths share the same shapes.

func TestMemoryRepositoryInsertAndList(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()

	if repo.Persistent() {
		t.Fatal("nil-DB repository should not report persistent")
	}

	for i := 0; i < 3; i++ {
		id, err := repo.InsertTrade(ctx, Trade{
			StrategyName: "momentum",
			Symbol:       "BTC-USD",
			Side:         "BUY",
			Quantity:     0.001,
			Price:        50000,
			ProfitLoss:   float64(i) - 1,
			Status:       "FILLED",
		})
		if err != nil {
			t.Fatalf("InsertTrade: %v", err)
		}
		if id != int64(i+1) {
			t.Errorf("id = %d", id)
		}
	}

	trades, err := repo.RecentTrades(ctx, 2)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades", len(trades))
	}
	// newest first
	if trades[0].ID != 3 || trades[1].ID != 2 {
		t.Errorf("order = %d, %d", trades[0].ID, trades[1].ID)
	}
}

func TestMemoryRepositoryMetrics(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()

	repo.InsertTrade(ctx, Trade{StrategyName: "momentum", ProfitLoss: 5, Fees: 0.1})
	repo.InsertTrade(ctx, Trade{StrategyName: "momentum", ProfitLoss: -2, Fees: 0.1})
	repo.InsertTrade(ctx, Trade{StrategyName: "dca", ProfitLoss: 1, Fees: 0.05})

	metrics, err := repo.MetricsByStrategy(ctx)
	if err != nil {
		t.Fatalf("MetricsByStrategy: %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("got %d strategies", len(metrics))
	}

	for _, m := range metrics {
		switch m.StrategyName {
		case "momentum":
			if m.TotalTrades != 2 || m.WinningTrades != 1 || m.TotalPnL != 3 {
				t.Errorf("momentum metrics = %+v", m)
			}
			if m.WinRate != 0.5 {
				t.Errorf("momentum win rate = %v", m.WinRate)
			}
		case "dca":
			if m.TotalTrades != 1 || m.WinRate != 1 {
				t.Errorf("dca metrics = %+v", m)
			}
		default:
			t.Errorf("unexpected strategy %q", m.StrategyName)
		}
	}
}

func TestMemoryRepositoryBounded(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()

	for i := 0; i < memoryLimit+50; i++ {
		repo.InsertTrade(ctx, Trade{StrategyName: "dca", Symbol: "BTC-USD"})
	}

	repo.mu.RLock()
	size := len(repo.memory)
	repo.mu.RUnlock()
	if size != memoryLimit {
		t.Errorf("memory size = %d, want %d", size, memoryLimit)
	}
}
