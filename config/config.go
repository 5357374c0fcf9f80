package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	CoinbaseConfig       CoinbaseConfig       `json:"coinbase"`
	TradingConfig        TradingConfig        `json:"trading"`
	ModesConfig          ModesConfig          `json:"modes"`
	RiskConfig           RiskConfig           `json:"risk"`
	CircuitBreakerConfig CircuitBreakerConfig `json:"circuit_breaker"`
	LoggingConfig        LoggingConfig        `json:"logging"`
	NotificationConfig   NotificationConfig   `json:"notification"`
	ServerConfig         ServerConfig         `json:"server"`
	AuthConfig           AuthConfig           `json:"auth"`
	VaultConfig          VaultConfig          `json:"vault"`
	RedisConfig          RedisConfig          `json:"redis"`
	DatabaseConfig       DatabaseConfig       `json:"database"`
}

// CoinbaseConfig holds exchange connectivity configuration.
// Credentials are never stored here directly; KeyName refers to a credential
// in Vault (or, when Vault is disabled, the COINBASE_API_KEY_NAME /
// COINBASE_PRIVATE_KEY environment variables).
type CoinbaseConfig struct {
	BaseURL      string `json:"base_url"`
	WebsocketURL string `json:"websocket_url"`
	AuthScheme   string `json:"auth_scheme"` // "jwt" (CDP keys) or "hmac" (legacy keys)
	KeyName      string `json:"key_name"`
	MockMode     bool   `json:"mock_mode"` // Use simulated exchange when Coinbase is unavailable
}

type TradingConfig struct {
	DryRun              bool     `json:"dry_run"`        // Log orders instead of sending them
	AutoStart           bool     `json:"auto_start"`     // Start the loop at boot instead of waiting for the API
	CapitalUSD          float64  `json:"capital_usd"`    // Capital the bot is allowed to deploy
	DefaultMode         string   `json:"default_mode"`   // conservative, normal, aggressive, scalping
	QuoteCurrency       string   `json:"quote_currency"` // "USD" or "USDC"
	TradedProducts      []string `json:"traded_products"`
	PollIntervalSeconds int      `json:"poll_interval_seconds"`
	DCAAmountUSD        float64  `json:"dca_amount_usd"`
	DCAIntervalMinutes  int      `json:"dca_interval_minutes"`
	TakerFeeRate        float64  `json:"taker_fee_rate"`
}

// ModesConfig allows overriding individual preset fields per mode.
// Zero values leave the preset untouched.
type ModesConfig struct {
	Overrides map[string]ModeOverride `json:"overrides"`
}

type ModeOverride struct {
	PositionSizePct float64 `json:"position_size_pct"`
	StopLossPct     float64 `json:"stop_loss_pct"`
	TakeProfitPct   float64 `json:"take_profit_pct"`
	MinTradeUSD     float64 `json:"min_trade_usd"`
	MaxTradesPerDay int     `json:"max_trades_per_day"`
	TradeFrequency  float64 `json:"trade_frequency"`
}

type RiskConfig struct {
	MaxPositionSize   float64 `json:"max_position_size"`   // Fraction of portfolio per position
	MaxDailyLoss      float64 `json:"max_daily_loss"`      // Fraction of portfolio per day
	MaxDrawdown       float64 `json:"max_drawdown"`        // Fraction of peak portfolio value
	MaxCorrelation    float64 `json:"max_correlation"`     // Between open positions
	MaxTradesPerDay   int     `json:"max_trades_per_day"`
	StopLossPercent   float64 `json:"stop_loss_percent"`   // Default stop loss fraction
	TakeProfitPercent float64 `json:"take_profit_percent"` // Default take profit fraction
	EmergencyVaRLimit float64 `json:"emergency_var_limit"` // VaR (USD) that trips the emergency stop
	EmergencyPollSecs int     `json:"emergency_poll_secs"`
}

type CircuitBreakerConfig struct {
	Enabled              bool    `json:"enabled"`
	MaxLossPerHour       float64 `json:"max_loss_per_hour"`      // Max loss % per hour
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"` // Max losing trades in a row
	CooldownMinutes      int     `json:"cooldown_minutes"`       // Cooldown after trip
	MaxTradesPerMinute   int     `json:"max_trades_per_minute"`
	MaxDailyLoss         float64 `json:"max_daily_loss"`
	MaxDailyTrades       int     `json:"max_daily_trades"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// ServerConfig holds HTTP control API configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds control API authentication configuration.
// Disabled by default; the original exposed its endpoints without auth.
type AuthConfig struct {
	Enabled              bool          `json:"enabled"`
	JWTSecret            string        `json:"jwt_secret"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	OperatorPasswordHash string        `json:"operator_password_hash"` // bcrypt hash
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for exchange credentials
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig holds Redis configuration for the portfolio snapshot cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	// Environment overrides take precedence over the file
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Note: exchange key material is NOT read here. Credentials live in Vault
// or in COINBASE_PRIVATE_KEY / COINBASE_HMAC_SECRET read by the vault
// package's disabled-mode fallback.
func applyEnvOverrides(cfg *Config) {
	// Coinbase config
	cfg.CoinbaseConfig.BaseURL = getEnvOrDefault("COINBASE_BASE_URL", cfg.CoinbaseConfig.BaseURL)
	if cfg.CoinbaseConfig.BaseURL == "" {
		cfg.CoinbaseConfig.BaseURL = "https://api.coinbase.com"
	}
	cfg.CoinbaseConfig.WebsocketURL = getEnvOrDefault("COINBASE_WS_URL", cfg.CoinbaseConfig.WebsocketURL)
	if cfg.CoinbaseConfig.WebsocketURL == "" {
		cfg.CoinbaseConfig.WebsocketURL = "wss://advanced-trade-ws.coinbase.com"
	}
	cfg.CoinbaseConfig.AuthScheme = getEnvOrDefault("COINBASE_AUTH_SCHEME", defaultString(cfg.CoinbaseConfig.AuthScheme, "jwt"))
	cfg.CoinbaseConfig.KeyName = getEnvOrDefault("COINBASE_API_KEY_NAME", cfg.CoinbaseConfig.KeyName)
	cfg.CoinbaseConfig.MockMode = getEnvOrDefault("MOCK_MODE", "false") == "true"

	// Trading config
	cfg.TradingConfig.DryRun = getEnvOrDefault("TRADING_DRY_RUN", "true") == "true"
	cfg.TradingConfig.CapitalUSD = getEnvFloatOrDefault("TRADING_CAPITAL_USD", defaultFloat(cfg.TradingConfig.CapitalUSD, 100.0))
	cfg.TradingConfig.DefaultMode = getEnvOrDefault("TRADING_MODE", defaultString(cfg.TradingConfig.DefaultMode, "normal"))
	cfg.TradingConfig.QuoteCurrency = getEnvOrDefault("TRADING_QUOTE_CURRENCY", defaultString(cfg.TradingConfig.QuoteCurrency, "USD"))
	if len(cfg.TradingConfig.TradedProducts) == 0 {
		cfg.TradingConfig.TradedProducts = []string{"BTC-USD", "ETH-USD"}
	}
	cfg.TradingConfig.AutoStart = getEnvOrDefault("TRADING_AUTO_START", "false") == "true"
	cfg.TradingConfig.PollIntervalSeconds = getEnvIntOrDefault("TRADING_POLL_INTERVAL", defaultInt(cfg.TradingConfig.PollIntervalSeconds, 15))
	cfg.TradingConfig.DCAAmountUSD = getEnvFloatOrDefault("TRADING_DCA_AMOUNT", defaultFloat(cfg.TradingConfig.DCAAmountUSD, 10.0))
	cfg.TradingConfig.DCAIntervalMinutes = getEnvIntOrDefault("TRADING_DCA_INTERVAL_MINUTES", defaultInt(cfg.TradingConfig.DCAIntervalMinutes, 60))
	cfg.TradingConfig.TakerFeeRate = getEnvFloatOrDefault("TRADING_TAKER_FEE_RATE", defaultFloat(cfg.TradingConfig.TakerFeeRate, 0.006))

	// Risk config
	cfg.RiskConfig.MaxPositionSize = getEnvFloatOrDefault("RISK_MAX_POSITION_SIZE", defaultFloat(cfg.RiskConfig.MaxPositionSize, 0.10))
	cfg.RiskConfig.MaxDailyLoss = getEnvFloatOrDefault("RISK_MAX_DAILY_LOSS", defaultFloat(cfg.RiskConfig.MaxDailyLoss, 0.05))
	cfg.RiskConfig.MaxDrawdown = getEnvFloatOrDefault("RISK_MAX_DRAWDOWN", defaultFloat(cfg.RiskConfig.MaxDrawdown, 0.15))
	cfg.RiskConfig.MaxCorrelation = getEnvFloatOrDefault("RISK_MAX_CORRELATION", defaultFloat(cfg.RiskConfig.MaxCorrelation, 0.7))
	cfg.RiskConfig.MaxTradesPerDay = getEnvIntOrDefault("RISK_MAX_TRADES_PER_DAY", defaultInt(cfg.RiskConfig.MaxTradesPerDay, 1000))
	cfg.RiskConfig.StopLossPercent = getEnvFloatOrDefault("RISK_STOP_LOSS_PERCENT", defaultFloat(cfg.RiskConfig.StopLossPercent, 0.02))
	cfg.RiskConfig.TakeProfitPercent = getEnvFloatOrDefault("RISK_TAKE_PROFIT_PERCENT", defaultFloat(cfg.RiskConfig.TakeProfitPercent, 0.05))
	cfg.RiskConfig.EmergencyVaRLimit = getEnvFloatOrDefault("RISK_EMERGENCY_VAR_LIMIT", defaultFloat(cfg.RiskConfig.EmergencyVaRLimit, 50.0))
	cfg.RiskConfig.EmergencyPollSecs = getEnvIntOrDefault("RISK_EMERGENCY_POLL_SECS", defaultInt(cfg.RiskConfig.EmergencyPollSecs, 10))

	// Circuit breaker config
	cfg.CircuitBreakerConfig.Enabled = getEnvOrDefault("CIRCUIT_BREAKER_ENABLED", "true") == "true"
	cfg.CircuitBreakerConfig.MaxLossPerHour = getEnvFloatOrDefault("CIRCUIT_MAX_LOSS_PER_HOUR", defaultFloat(cfg.CircuitBreakerConfig.MaxLossPerHour, 3.0))
	cfg.CircuitBreakerConfig.MaxConsecutiveLosses = getEnvIntOrDefault("CIRCUIT_MAX_CONSECUTIVE_LOSSES", defaultInt(cfg.CircuitBreakerConfig.MaxConsecutiveLosses, 5))
	cfg.CircuitBreakerConfig.CooldownMinutes = getEnvIntOrDefault("CIRCUIT_COOLDOWN_MINUTES", defaultInt(cfg.CircuitBreakerConfig.CooldownMinutes, 30))
	cfg.CircuitBreakerConfig.MaxTradesPerMinute = getEnvIntOrDefault("CIRCUIT_MAX_TRADES_PER_MINUTE", defaultInt(cfg.CircuitBreakerConfig.MaxTradesPerMinute, 10))
	cfg.CircuitBreakerConfig.MaxDailyLoss = getEnvFloatOrDefault("CIRCUIT_MAX_DAILY_LOSS", defaultFloat(cfg.CircuitBreakerConfig.MaxDailyLoss, 5.0))
	cfg.CircuitBreakerConfig.MaxDailyTrades = getEnvIntOrDefault("CIRCUIT_MAX_DAILY_TRADES", defaultInt(cfg.CircuitBreakerConfig.MaxDailyTrades, 100))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", "false") == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", defaultString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", defaultInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", defaultInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Auth config
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", "false") == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 1*time.Hour)
	cfg.AuthConfig.OperatorPasswordHash = getEnvOrDefault("AUTH_OPERATOR_PASSWORD_HASH", cfg.AuthConfig.OperatorPasswordHash)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultString(cfg.VaultConfig.SecretPath, "trading-bot/exchange-keys"))
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", defaultString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Database config
	if getEnvOrDefault("DB_ENABLED", "") != "" {
		cfg.DatabaseConfig.Enabled = os.Getenv("DB_ENABLED") == "true"
	}
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultString(cfg.DatabaseConfig.User, "trading_bot"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultString(cfg.DatabaseConfig.Database, "trading_bot"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultString(cfg.DatabaseConfig.SSLMode, "disable"))
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func defaultString(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func defaultInt(v, d int) int {
	if v == 0 {
		return d
	}
	return v
}

func defaultFloat(v, d float64) float64 {
	if v == 0 {
		return d
	}
	return v
}

// GenerateSampleConfig creates a sample configuration file with safe defaults.
// Key material is intentionally absent; point KeyName at a Vault credential.
func GenerateSampleConfig(filename string) error {
	config := Config{
		CoinbaseConfig: CoinbaseConfig{
			BaseURL:      "https://api.coinbase.com",
			WebsocketURL: "wss://advanced-trade-ws.coinbase.com",
			AuthScheme:   "jwt",
			KeyName:      "organizations/{org_id}/apiKeys/{key_id}",
		},
		TradingConfig: TradingConfig{
			DryRun:         true,
			CapitalUSD:     100.0,
			DefaultMode:    "normal",
			QuoteCurrency:  "USD",
			TradedProducts: []string{"BTC-USD", "ETH-USD"},
		},
		RiskConfig: RiskConfig{
			MaxPositionSize:   0.10,
			MaxDailyLoss:      0.05,
			MaxDrawdown:       0.15,
			MaxCorrelation:    0.7,
			MaxTradesPerDay:   1000,
			StopLossPercent:   0.02,
			TakeProfitPercent: 0.05,
			EmergencyVaRLimit: 50.0,
			EmergencyPollSecs: 10,
		},
		CircuitBreakerConfig: CircuitBreakerConfig{
			Enabled:              true,
			MaxLossPerHour:       3.0,
			MaxConsecutiveLosses: 5,
			CooldownMinutes:      30,
			MaxTradesPerMinute:   10,
			MaxDailyLoss:         5.0,
			MaxDailyTrades:       100,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		ServerConfig: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
