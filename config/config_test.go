package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.CoinbaseConfig.BaseURL != "https://api.coinbase.com" {
		t.Errorf("base url = %q", cfg.CoinbaseConfig.BaseURL)
	}
	if !cfg.TradingConfig.DryRun {
		t.Error("dry run should default to true")
	}
	if cfg.TradingConfig.DefaultMode != "normal" {
		t.Errorf("default mode = %q", cfg.TradingConfig.DefaultMode)
	}
	if cfg.RiskConfig.MaxPositionSize != 0.10 {
		t.Errorf("max position size = %v", cfg.RiskConfig.MaxPositionSize)
	}
	if cfg.RiskConfig.MaxTradesPerDay != 1000 {
		t.Errorf("max trades per day = %v", cfg.RiskConfig.MaxTradesPerDay)
	}
	if cfg.ServerConfig.Port != 8080 {
		t.Errorf("port = %d", cfg.ServerConfig.Port)
	}
	if cfg.AuthConfig.Enabled {
		t.Error("auth should default to disabled")
	}
	if len(cfg.TradingConfig.TradedProducts) == 0 {
		t.Error("traded products should have defaults")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADING_CAPITAL_USD", "250.5")
	t.Setenv("TRADING_MODE", "aggressive")
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("RISK_MAX_DAILY_LOSS", "0.02")
	t.Setenv("MOCK_MODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.TradingConfig.CapitalUSD != 250.5 {
		t.Errorf("capital = %v", cfg.TradingConfig.CapitalUSD)
	}
	if cfg.TradingConfig.DefaultMode != "aggressive" {
		t.Errorf("mode = %q", cfg.TradingConfig.DefaultMode)
	}
	if cfg.ServerConfig.Port != 9090 {
		t.Errorf("port = %d", cfg.ServerConfig.Port)
	}
	if cfg.RiskConfig.MaxDailyLoss != 0.02 {
		t.Errorf("max daily loss = %v", cfg.RiskConfig.MaxDailyLoss)
	}
	if !cfg.CoinbaseConfig.MockMode {
		t.Error("mock mode not applied")
	}
}

func TestGenerateSampleConfigHasNoSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := GenerateSampleConfig(path); err != nil {
		t.Fatalf("GenerateSampleConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	content := string(data)
	for _, needle := range []string{"PRIVATE KEY", "secret_key", "api_secret"} {
		if strings.Contains(content, needle) {
			t.Errorf("sample config contains %q", needle)
		}
	}
}
