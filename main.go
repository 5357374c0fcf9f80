package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coinbase-trading-bot/config"
	"coinbase-trading-bot/internal/api"
	"coinbase-trading-bot/internal/auth"
	"coinbase-trading-bot/internal/bot"
	"coinbase-trading-bot/internal/cache"
	"coinbase-trading-bot/internal/circuit"
	"coinbase-trading-bot/internal/coinbase"
	"coinbase-trading-bot/internal/database"
	"coinbase-trading-bot/internal/events"
	"coinbase-trading-bot/internal/logging"
	"coinbase-trading-bot/internal/modes"
	"coinbase-trading-bot/internal/notification"
	"coinbase-trading-bot/internal/orders"
	"coinbase-trading-bot/internal/portfolio"
	"coinbase-trading-bot/internal/risk"
	"coinbase-trading-bot/internal/strategy"
	"coinbase-trading-bot/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("Failed to load configuration", "error", err.Error())
		os.Exit(1)
	}

	logging.SetDefault(logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
	}))
	logger := logging.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exchange := buildExchange(ctx, cfg, logger)

	// ---- infrastructure ----
	bus := events.NewEventBus()

	redisAddr := ""
	if cfg.RedisConfig.Enabled {
		redisAddr = cfg.RedisConfig.Address
	}
	cacheSvc := cache.New(redisAddr, cfg.RedisConfig.Password, cfg.RedisConfig.DB)
	defer cacheSvc.Close()

	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.Connect(ctx, database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Name:     cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			logger.Warn("Database unavailable, trade history is in-memory only", "error", err.Error())
			db = nil
		} else {
			defer db.Close()
		}
	}
	repository := database.NewRepository(db)

	if cfg.NotificationConfig.Enabled {
		notifier := notification.NewManager(notification.Config{
			TelegramEnabled:  cfg.NotificationConfig.Telegram.Enabled,
			TelegramChatID:   cfg.NotificationConfig.Telegram.ChatID,
			TelegramBotToken: cfg.NotificationConfig.Telegram.BotToken,
			DiscordEnabled:   cfg.NotificationConfig.Discord.Enabled,
			DiscordWebhook:   cfg.NotificationConfig.Discord.WebhookURL,
		})
		notifier.Attach(bus)
	}

	// ---- trading core ----
	modeMgr, err := modes.NewManager(cfg.TradingConfig.DefaultMode, modeOverrides(cfg.ModesConfig.Overrides))
	if err != nil {
		logger.Error("Mode configuration invalid", "error", err.Error())
		os.Exit(1)
	}

	riskMgr := risk.NewManager(risk.Limits{
		MaxPositionSizePct: cfg.RiskConfig.MaxPositionSize,
		MaxDailyLossPct:    cfg.RiskConfig.MaxDailyLoss,
		MaxDrawdownPct:     cfg.RiskConfig.MaxDrawdown,
		MaxCorrelation:     cfg.RiskConfig.MaxCorrelation,
		MaxTradesPerDay:    cfg.RiskConfig.MaxTradesPerDay,
		StopLossPct:        cfg.RiskConfig.StopLossPercent,
		TakeProfitPct:      cfg.RiskConfig.TakeProfitPercent,
	}, cfg.TradingConfig.CapitalUSD)

	breaker := circuit.NewBreaker(circuit.Config{
		Enabled:              cfg.CircuitBreakerConfig.Enabled,
		MaxLossPerHourPct:    cfg.CircuitBreakerConfig.MaxLossPerHour,
		MaxConsecutiveLosses: cfg.CircuitBreakerConfig.MaxConsecutiveLosses,
		CooldownMinutes:      cfg.CircuitBreakerConfig.CooldownMinutes,
		MaxTradesPerMinute:   cfg.CircuitBreakerConfig.MaxTradesPerMinute,
		MaxDailyLossPct:      cfg.CircuitBreakerConfig.MaxDailyLoss,
		MaxDailyTrades:       cfg.CircuitBreakerConfig.MaxDailyTrades,
	}, bus)

	positions := orders.NewTracker()
	tracker := portfolio.NewTracker(exchange, cacheSvc, bus, cfg.TradingConfig.QuoteCurrency)

	registry := strategy.NewRegistry()
	registry.Register(strategy.NewMomentum())
	registry.Register(strategy.NewDCA(cfg.TradingConfig.DCAAmountUSD,
		time.Duration(cfg.TradingConfig.DCAIntervalMinutes)*time.Minute))
	registry.Register(strategy.NewSpreadScalp(cfg.TradingConfig.TakerFeeRate))

	engine := bot.NewEngine(exchange, registry, modeMgr, riskMgr, breaker, positions, repository, bus, bot.Options{
		Products:     cfg.TradingConfig.TradedProducts,
		CapitalUSD:   cfg.TradingConfig.CapitalUSD,
		DryRun:       cfg.TradingConfig.DryRun,
		PollInterval: time.Duration(cfg.TradingConfig.PollIntervalSeconds) * time.Second,
	})

	guard := risk.NewEmergencyGuard(riskMgr, exchange, bus,
		cfg.TradingConfig.QuoteCurrency,
		cfg.RiskConfig.EmergencyVaRLimit,
		time.Duration(cfg.RiskConfig.EmergencyPollSecs)*time.Second)
	go guard.Run(ctx)

	// background portfolio refresh feeds the drawdown limit and persists
	// valuation history
	go func() {
		refresh := time.NewTicker(time.Minute)
		defer refresh.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-refresh.C:
				snapshot, err := tracker.Refresh(ctx)
				if err != nil || snapshot.Stale {
					continue
				}
				riskMgr.UpdatePortfolioValue(snapshot.TotalValueUSD)
				if err := repository.InsertSnapshot(ctx, snapshot.TotalValueUSD, snapshot.CashUSD, snapshot.Holdings); err != nil {
					logger.Warn("Snapshot persist failed", "error", err.Error())
				}
			}
		}
	}()

	// live tick stream keeps stop loss checks ahead of the poll loop
	if cfg.CoinbaseConfig.WebsocketURL != "" && !cfg.CoinbaseConfig.MockMode {
		stream := coinbase.NewTickerStream(cfg.CoinbaseConfig.WebsocketURL, cfg.TradingConfig.TradedProducts)
		go stream.Run(ctx)
		go func() {
			for tick := range stream.Updates() {
				cacheSvc.SetPrice(ctx, tick.ProductID, tick.Price)
				engine.HandleExits(ctx, positions.UpdatePrice(tick.ProductID, tick.Price))
				bus.Publish(events.EventPriceUpdate, map[string]interface{}{
					"product": tick.ProductID,
					"price":   tick.Price,
				})
			}
		}()
	}

	// ---- API ----
	authSvc, err := auth.NewService(auth.Config{
		Enabled:              cfg.AuthConfig.Enabled,
		JWTSecret:            cfg.AuthConfig.JWTSecret,
		AccessTokenDuration:  cfg.AuthConfig.AccessTokenDuration,
		OperatorPasswordHash: cfg.AuthConfig.OperatorPasswordHash,
	})
	if err != nil {
		logger.Error("Auth configuration invalid", "error", err.Error())
		os.Exit(1)
	}

	server := api.NewServer(api.Config{
		Host:            cfg.ServerConfig.Host,
		Port:            cfg.ServerConfig.Port,
		AllowedOrigins:  splitOrigins(cfg.ServerConfig.AllowedOrigins),
		ShutdownTimeout: cfg.ServerConfig.ShutdownTimeout,
	}, api.Deps{
		Engine:     engine,
		Registry:   registry,
		ModeMgr:    modeMgr,
		RiskMgr:    riskMgr,
		Guard:      guard,
		Breaker:    breaker,
		Portfolio:  tracker,
		Positions:  positions,
		Repository: repository,
		Cache:      cacheSvc,
		Auth:       authSvc,
		EventBus:   bus,
	})

	if cfg.TradingConfig.AutoStart {
		if err := engine.Start(ctx); err != nil {
			logger.Warn("Auto-start failed", "error", err.Error())
		}
	}

	if err := server.Run(ctx); err != nil {
		logger.Error("API server failed", "error", err.Error())
		os.Exit(1)
	}

	engine.Stop()
	logger.Info("Shutdown complete")
}

// buildExchange resolves credentials and returns the live client, the
// mock, or a read-only client when no credentials exist
func buildExchange(ctx context.Context, cfg *config.Config, logger *logging.Logger) coinbase.Exchange {
	if cfg.CoinbaseConfig.MockMode {
		logger.Info("Mock exchange enabled, no real orders will be placed")
		return coinbase.NewMockClient(cfg.TradingConfig.CapitalUSD, map[string]float64{
			"BTC-USD": 60000, "ETH-USD": 3000, "SOL-USD": 150,
		})
	}

	store, err := vault.NewStore(vault.Config{
		Enabled:    cfg.VaultConfig.Enabled,
		Address:    cfg.VaultConfig.Address,
		MountPath:  cfg.VaultConfig.MountPath,
		SecretPath: cfg.VaultConfig.SecretPath,
	})
	if err != nil {
		logger.Error("Vault setup failed", "error", err.Error())
		os.Exit(1)
	}

	var signer coinbase.Signer
	creds, err := store.Credentials(ctx)
	switch {
	case err == nil:
		signer, err = coinbase.NewSigner(creds)
		if err != nil {
			logger.Error("Invalid exchange credentials", "error", err.Error())
			os.Exit(1)
		}
		logger.Info("Exchange credentials resolved", "scheme", signer.Scheme())
	case errors.Is(err, vault.ErrNoCredentials):
		logger.Warn("No exchange credentials, running read-only market data mode")
	default:
		logger.Error("Credential lookup failed", "error", err.Error())
		os.Exit(1)
	}

	return coinbase.NewClient(cfg.CoinbaseConfig.BaseURL, signer)
}

// modeOverrides converts config overrides (zero means untouched) into
// the pointer form the mode manager applies
func modeOverrides(raw map[string]config.ModeOverride) map[string]modes.Override {
	if len(raw) == 0 {
		return nil
	}

	out := make(map[string]modes.Override, len(raw))
	for name, o := range raw {
		var override modes.Override
		if o.PositionSizePct > 0 {
			v := o.PositionSizePct
			override.PositionSizePct = &v
		}
		if o.StopLossPct > 0 {
			v := o.StopLossPct
			override.StopLossPct = &v
		}
		if o.TakeProfitPct > 0 {
			v := o.TakeProfitPct
			override.TakeProfitPct = &v
		}
		if o.MinTradeUSD > 0 {
			v := o.MinTradeUSD
			override.MinTradeUSD = &v
		}
		if o.MaxTradesPerDay > 0 {
			v := o.MaxTradesPerDay
			override.MaxTradesPerDay = &v
		}
		if o.TradeFrequency > 0 {
			v := o.TradeFrequency
			override.TradeFrequency = &v
		}
		out[name] = override
	}
	return out
}

func splitOrigins(raw string) []string {
	if raw == "" || raw == "*" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
