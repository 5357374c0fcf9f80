package modes

import "testing"

func TestPresetsComplete(t *testing.T) {
	presets := Presets()

	for _, name := range []string{ModeConservative, ModeNormal, ModeAggressive, ModeScalping} {
		mode, ok := presets[name]
		if !ok {
			t.Fatalf("missing preset %q", name)
		}
		if mode.PositionSizePct <= 0 || mode.StopLossPct <= 0 || mode.TakeProfitPct <= 0 {
			t.Errorf("%s has zero parameters: %+v", name, mode)
		}
		if mode.TakeProfitPct <= mode.StopLossPct {
			t.Errorf("%s take profit %v not above stop loss %v", name, mode.TakeProfitPct, mode.StopLossPct)
		}
	}

	if !presets[ModeConservative].RequireConfirmation {
		t.Error("conservative should require confirmation")
	}
	if presets[ModeScalping].MaxTradesPerDay != 20 {
		t.Errorf("scalping max trades per day = %d", presets[ModeScalping].MaxTradesPerDay)
	}
	if presets[ModeConservative].MinTradeUSD != 0.50 {
		t.Errorf("conservative min trade = %v", presets[ModeConservative].MinTradeUSD)
	}
	if presets[ModeScalping].TradeFrequency != 0.5 {
		t.Errorf("scalping trade frequency = %v", presets[ModeScalping].TradeFrequency)
	}
}

func TestManagerSwitching(t *testing.T) {
	mgr, err := NewManager("normal", nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if mgr.ActiveName() != ModeNormal {
		t.Errorf("active = %q", mgr.ActiveName())
	}

	previous, err := mgr.Set("AGGRESSIVE")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if previous != ModeNormal {
		t.Errorf("previous = %q", previous)
	}
	if mgr.Active().PositionSizePct != 0.05 {
		t.Errorf("position size = %v", mgr.Active().PositionSizePct)
	}

	if _, err := mgr.Set("yolo"); err == nil {
		t.Error("expected error for unknown mode")
	}
	if mgr.ActiveName() != ModeAggressive {
		t.Error("failed Set should not change active mode")
	}
}

func TestManagerOverrides(t *testing.T) {
	size := 0.07
	trades := 2

	mgr, err := NewManager("normal", map[string]Override{
		"normal": {PositionSizePct: &size, MaxTradesPerDay: &trades},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	active := mgr.Active()
	if active.PositionSizePct != 0.07 {
		t.Errorf("overridden position size = %v", active.PositionSizePct)
	}
	if active.MaxTradesPerDay != 2 {
		t.Errorf("overridden max trades per day = %d", active.MaxTradesPerDay)
	}
	if active.StopLossPct != 0.02 {
		t.Errorf("untouched stop loss = %v", active.StopLossPct)
	}
}

func TestManagerRejectsUnknownInitial(t *testing.T) {
	if _, err := NewManager("warp-speed", nil); err == nil {
		t.Error("expected error for unknown initial mode")
	}
	if _, err := NewManager("normal", map[string]Override{"warp": {}}); err == nil {
		t.Error("expected error for override of unknown mode")
	}
}

func TestManagerList(t *testing.T) {
	mgr, _ := NewManager("normal", nil)
	list := mgr.List()
	if len(list) != 4 {
		t.Fatalf("got %d modes", len(list))
	}
	// sorted by name
	if list[0].Name != ModeAggressive || list[3].Name != ModeScalping {
		t.Errorf("order = %s..%s", list[0].Name, list[3].Name)
	}
}
