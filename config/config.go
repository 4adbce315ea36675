package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the root configuration for the coordinator process
type Config struct {
	VenueConfig       VenueConfig       `json:"venue"`
	CoordinatorConfig CoordinatorConfig `json:"coordinator"`
	RiskConfig        RiskConfig        `json:"risk"`
	TrailingConfig    TrailingConfig    `json:"trailing"`
	GatesConfig       GatesConfig       `json:"gates"`
	FeedConfig        FeedConfig        `json:"feed"`
	ServerConfig      ServerConfig      `json:"server"`
	AuthConfig        AuthConfig        `json:"auth"`
	RedisConfig       RedisConfig       `json:"redis"`
	DatabaseConfig    DatabaseConfig    `json:"database"`
	VaultConfig       VaultConfig       `json:"vault"`
	LoggingConfig     LoggingConfig     `json:"logging"`
}

// VenueConfig holds venue API connection configuration
type VenueConfig struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	BaseURL    string `json:"base_url"`
	Testnet    bool   `json:"testnet"`
	RecvWindow int    `json:"recv_window"` // milliseconds of clock-skew tolerance
}

// CoordinatorConfig holds scheduling and capacity configuration
type CoordinatorConfig struct {
	Symbols                []string `json:"symbols"`
	ReferenceSymbol        string   `json:"reference_symbol"`
	FastPollSeconds        int      `json:"fast_poll_seconds"`
	SlowPollSeconds        int      `json:"slow_poll_seconds"`
	ProtectionSyncSeconds  int      `json:"protection_sync_seconds"`
	HeartbeatSeconds       int      `json:"heartbeat_seconds"`
	FeedStaleSeconds       int      `json:"feed_stale_seconds"`
	FeedRestartGapSeconds  int      `json:"feed_restart_gap_seconds"`
	MaxOpenPositions       int      `json:"max_open_positions"`
	MaxOpenOrders          int      `json:"max_open_orders"`
	CooldownAfterLossMin   int      `json:"cooldown_after_loss_min"`
	IntentTTLSeconds       int      `json:"intent_ttl_seconds"`
	ClosedPnlLookbackHours int      `json:"closed_pnl_lookback_hours"`
	ErrorRingSize          int      `json:"error_ring_size"`
	EventLogSize           int      `json:"event_log_size"`
}

// RiskConfig holds position sizing configuration
type RiskConfig struct {
	Mode             string             `json:"mode"` // "conservative", "balanced", "aggressive"
	RiskPercents     map[string]float64 `json:"risk_percents"`
	MinNotional      float64            `json:"min_notional"`
	MaxNotional      float64            `json:"max_notional"`
	EquityCapPercent float64            `json:"equity_cap_percent"` // notional cap as % of equity
	FixedQuantities  map[string]float64 `json:"fixed_quantities"`   // testnet sizing table
}

// RiskPercentFor returns the risk fraction for the active mode
func (rc RiskConfig) RiskPercentFor(mode string) float64 {
	if pct, ok := rc.RiskPercents[mode]; ok {
		return pct
	}
	return 0.004
}

// TrailingProfile holds the trailing parameters for one risk profile
type TrailingProfile struct {
	Enabled         bool    `json:"enabled"`
	ActivationR     float64 `json:"activation_r"`     // R multiples beyond entry before trailing arms
	LockR           float64 `json:"lock_r"`           // trailing distance in R multiples
	RetracementRate float64 `json:"retracement_rate"` // optional distance floor as a fraction of entry price
}

// TrailingConfig holds trailing stop configuration
type TrailingConfig struct {
	Profiles        map[string]TrailingProfile `json:"profiles"`
	SymbolOverrides map[string]TrailingProfile `json:"symbol_overrides"`
	ExcludedSymbols []string                   `json:"excluded_symbols"`
}

// GatesConfig holds admission control configuration
type GatesConfig struct {
	TrendMode          string          `json:"trend_mode"` // "follow", "reverse", "adaptive"
	SoftGateEnabled    bool            `json:"soft_gate_enabled"`
	SoftThresholdMajor float64         `json:"soft_threshold_major"`
	SoftThresholdAlt   float64         `json:"soft_threshold_alt"`
	StrongTrendBonus   float64         `json:"strong_trend_bonus"` // threshold raise when trend is strong
	MajorSymbols       []string        `json:"major_symbols"`
	StrongTrendADX     float64         `json:"strong_trend_adx"`  // adaptive mode: follow-only above this
	ReverseMaxADX      float64         `json:"reverse_max_adx"`   // adaptive mode: reverse allowed below this
	AlignmentCount     int             `json:"alignment_count"`   // timeframes that must agree for "strong"
	MaxFeedAgeSeconds  int             `json:"max_feed_age_seconds"`
	Session            SessionConfig   `json:"session"`
	Overrides          map[string]bool `json:"overrides"` // gate id -> disabled
}

// SessionConfig restricts entries to a UTC hour window
type SessionConfig struct {
	Enabled   bool `json:"enabled"`
	StartHour int  `json:"start_hour"`
	EndHour   int  `json:"end_hour"`
}

// FeedConfig holds strategy feed subscription configuration
type FeedConfig struct {
	URL              string `json:"url"`
	ReconnectSeconds int    `json:"reconnect_seconds"`
	PingSeconds      int    `json:"ping_seconds"`
}

// ServerConfig holds HTTP API server configuration
type ServerConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// AuthConfig holds operator authentication configuration
type AuthConfig struct {
	Enabled       bool   `json:"enabled"`
	JWTSecret     string `json:"jwt_secret"`
	Username      string `json:"username"`
	PasswordHash  string `json:"password_hash"` // bcrypt
	TokenTTLHours int    `json:"token_ttl_hours"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// VaultConfig holds HashiCorp Vault configuration for API credential storage
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"`
	JSONFormat bool   `json:"json_format"`
}

// Load reads config.json (path overridable via CONFIG_PATH), applies
// environment overrides, and validates the result.
func Load() (*Config, error) {
	// .env is optional - ignore a missing file
	_ = godotenv.Load()

	cfg := defaultConfig()

	path := getEnv("CONFIG_PATH", "config.json")
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		VenueConfig: VenueConfig{
			BaseURL:    "https://api.bybit.com",
			RecvWindow: 10000,
		},
		CoordinatorConfig: CoordinatorConfig{
			Symbols:                []string{"BTCUSDT", "ETHUSDT"},
			ReferenceSymbol:        "BTCUSDT",
			FastPollSeconds:        1,
			SlowPollSeconds:        10,
			ProtectionSyncSeconds:  180,
			HeartbeatSeconds:       30,
			FeedStaleSeconds:       60,
			FeedRestartGapSeconds:  120,
			MaxOpenPositions:       3,
			MaxOpenOrders:          6,
			CooldownAfterLossMin:   30,
			IntentTTLSeconds:       90,
			ClosedPnlLookbackHours: 24,
			ErrorRingSize:          50,
			EventLogSize:           500,
		},
		RiskConfig: RiskConfig{
			Mode: "balanced",
			RiskPercents: map[string]float64{
				"conservative": 0.002,
				"balanced":     0.004,
				"aggressive":   0.008,
			},
			MinNotional:      10,
			MaxNotional:      25000,
			EquityCapPercent: 20,
			FixedQuantities: map[string]float64{
				"BTCUSDT": 0.001,
				"ETHUSDT": 0.01,
			},
		},
		TrailingConfig: TrailingConfig{
			Profiles: map[string]TrailingProfile{
				"conservative": {Enabled: true, ActivationR: 1.5, LockR: 1.0},
				"balanced":     {Enabled: true, ActivationR: 1.0, LockR: 0.8},
				"aggressive":   {Enabled: true, ActivationR: 0.8, LockR: 0.6},
			},
		},
		GatesConfig: GatesConfig{
			TrendMode:          "follow",
			SoftGateEnabled:    true,
			SoftThresholdMajor: 0.60,
			SoftThresholdAlt:   0.70,
			StrongTrendBonus:   0.05,
			MajorSymbols:       []string{"BTCUSDT", "ETHUSDT"},
			StrongTrendADX:     28,
			ReverseMaxADX:      20,
			AlignmentCount:     3,
			MaxFeedAgeSeconds:  45,
			Overrides:          map[string]bool{},
		},
		FeedConfig: FeedConfig{
			ReconnectSeconds: 5,
			PingSeconds:      20,
		},
		ServerConfig: ServerConfig{
			Enabled:        true,
			Port:           8090,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		AuthConfig: AuthConfig{
			TokenTTLHours: 24,
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		DatabaseConfig: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		VaultConfig: VaultConfig{
			MountPath:  "secret",
			SecretPath: "trading/bybit",
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.VenueConfig.APIKey = getEnv("BYBIT_API_KEY", cfg.VenueConfig.APIKey)
	cfg.VenueConfig.SecretKey = getEnv("BYBIT_SECRET_KEY", cfg.VenueConfig.SecretKey)
	cfg.VenueConfig.BaseURL = getEnv("BYBIT_BASE_URL", cfg.VenueConfig.BaseURL)
	cfg.VenueConfig.Testnet = getEnvBool("BYBIT_TESTNET", cfg.VenueConfig.Testnet)

	cfg.FeedConfig.URL = getEnv("FEED_URL", cfg.FeedConfig.URL)

	cfg.AuthConfig.JWTSecret = getEnv("JWT_SECRET", cfg.AuthConfig.JWTSecret)

	cfg.RedisConfig.Address = getEnv("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnv("REDIS_PASSWORD", cfg.RedisConfig.Password)

	cfg.DatabaseConfig.Host = getEnv("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvInt("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnv("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnv("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnv("DB_NAME", cfg.DatabaseConfig.Database)

	cfg.VaultConfig.Address = getEnv("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnv("VAULT_TOKEN", cfg.VaultConfig.Token)

	cfg.LoggingConfig.Level = getEnv("LOG_LEVEL", cfg.LoggingConfig.Level)
}

func (c *Config) validate() error {
	if c.CoordinatorConfig.FastPollSeconds <= 0 {
		return fmt.Errorf("coordinator.fast_poll_seconds must be positive")
	}
	if c.CoordinatorConfig.SlowPollSeconds <= 0 {
		return fmt.Errorf("coordinator.slow_poll_seconds must be positive")
	}
	if c.CoordinatorConfig.MaxOpenPositions <= 0 {
		return fmt.Errorf("coordinator.max_open_positions must be positive")
	}
	if c.CoordinatorConfig.ReferenceSymbol == "" {
		return fmt.Errorf("coordinator.reference_symbol is required")
	}
	if c.RiskConfig.MinNotional <= 0 || c.RiskConfig.MaxNotional < c.RiskConfig.MinNotional {
		return fmt.Errorf("risk notional bounds invalid: min=%.2f max=%.2f",
			c.RiskConfig.MinNotional, c.RiskConfig.MaxNotional)
	}
	switch c.GatesConfig.TrendMode {
	case "follow", "reverse", "adaptive":
	default:
		return fmt.Errorf("gates.trend_mode must be follow, reverse or adaptive, got %q", c.GatesConfig.TrendMode)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
