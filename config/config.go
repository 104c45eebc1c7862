// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Chain     ChainConfig     `yaml:"chain"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ChainConfig locates the ledger and the contracts the dashboard reads.
// Contract addresses are optional; missing fee model and access controller
// addresses are resolved from the ritual through the coordinator.
type ChainConfig struct {
	RPCURL                 string `yaml:"rpc_url"`
	ChainID                int64  `yaml:"chain_id"`
	Coordinator            string `yaml:"coordinator,omitempty"`
	FeeModel               string `yaml:"fee_model,omitempty"`
	AccessController       string `yaml:"access_controller,omitempty"`
	FeeToken               string `yaml:"fee_token,omitempty"`
	PrivateKey             string `yaml:"private_key,omitempty"` // hex, enables writes
	WalletConnectProjectID string `yaml:"wallet_connect_project_id,omitempty"`
}

// LedgerConfig bounds traffic to the RPC endpoint.
type LedgerConfig struct {
	ReadsPerSecond float64       `yaml:"reads_per_second"`
	ReadBurst      int           `yaml:"read_burst"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	WatchInterval  time.Duration `yaml:"watch_interval"`
}

// DashboardConfig configures dashboard sessions.
type DashboardConfig struct {
	RefreshInterval        time.Duration `yaml:"refresh_interval"`
	ReadTimeout            time.Duration `yaml:"read_timeout"`
	AuthorizationCheckMode string        `yaml:"authorization_check_mode"` // "representative" or "all"
	WatchEvents            *bool         `yaml:"watch_events,omitempty"`
	IdleTimeout            time.Duration `yaml:"idle_timeout"` // unused sessions are closed after this
	MaxSessions            int           `yaml:"max_sessions"`
	Rituals                []uint32      `yaml:"rituals,omitempty"` // opened at startup
}

// DatabaseConfig configures the payment journal database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// WatchEventsEnabled reports whether sessions subscribe to payment events.
func (d DashboardConfig) WatchEventsEnabled() bool {
	return d.WatchEvents == nil || *d.WatchEvents
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	TACOSCAN_RPC_URL                    - Ledger RPC endpoint (required)
//	TACOSCAN_CHAIN_ID                   - Chain id (required for writes)
//	TACOSCAN_COORDINATOR                - Coordinator contract address
//	TACOSCAN_FEE_MODEL                  - Fee model (subscription) contract address
//	TACOSCAN_ACCESS_CONTROLLER          - Encryptor access controller address
//	TACOSCAN_FEE_TOKEN                  - Fee token address (default: read from fee model)
//	TACOSCAN_PRIVATE_KEY                - Hex signing key, enables writes
//	TACOSCAN_WALLET_CONNECT_PROJECT_ID  - Wallet-connect project id
//	TACOSCAN_READS_PER_SECOND           - Ledger read rate (default: 20)
//	TACOSCAN_WRITE_TIMEOUT              - Time to wait for a write to be mined (default: 2m)
//	TACOSCAN_REFRESH_INTERVAL           - Dashboard refresh tick (default: 15s)
//	TACOSCAN_AUTHORIZATION_CHECK_MODE   - representative or all (default: representative)
//	TACOSCAN_DATABASE_DSN               - Payment journal path (default: tacoscan.db)
//	TACOSCAN_SERVER_HOST                - Server host (default: 0.0.0.0)
//	TACOSCAN_SERVER_PORT                - Server port (default: 8080)
//	TACOSCAN_LOG_LEVEL                  - Log level: debug, info, warn, error (default: info)
//	TACOSCAN_LOG_FORMAT                 - Log format: json or console (default: json)
//	TACOSCAN_METRICS_ENABLED            - Enable /metrics endpoint (default: false)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set TACOSCAN_RPC_URL")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("TACOSCAN_RPC_URL") != ""
}

// applyEnvOverrides applies TACOSCAN_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("TACOSCAN_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TACOSCAN_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TACOSCAN_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("TACOSCAN_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Chain configuration
	if v := os.Getenv("TACOSCAN_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("TACOSCAN_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chain.ChainID = id
		}
	}
	if v := os.Getenv("TACOSCAN_COORDINATOR"); v != "" {
		cfg.Chain.Coordinator = v
	}
	if v := os.Getenv("TACOSCAN_FEE_MODEL"); v != "" {
		cfg.Chain.FeeModel = v
	}
	if v := os.Getenv("TACOSCAN_ACCESS_CONTROLLER"); v != "" {
		cfg.Chain.AccessController = v
	}
	if v := os.Getenv("TACOSCAN_FEE_TOKEN"); v != "" {
		cfg.Chain.FeeToken = v
	}
	if v := os.Getenv("TACOSCAN_PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := os.Getenv("TACOSCAN_WALLET_CONNECT_PROJECT_ID"); v != "" {
		cfg.Chain.WalletConnectProjectID = v
	}

	// Ledger configuration
	if v := os.Getenv("TACOSCAN_READS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ledger.ReadsPerSecond = f
		}
	}
	if v := os.Getenv("TACOSCAN_READ_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ledger.ReadBurst = n
		}
	}
	if v := os.Getenv("TACOSCAN_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ledger.WriteTimeout = d
		}
	}
	if v := os.Getenv("TACOSCAN_WATCH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ledger.WatchInterval = d
		}
	}

	// Dashboard configuration
	if v := os.Getenv("TACOSCAN_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dashboard.RefreshInterval = d
		}
	}
	if v := os.Getenv("TACOSCAN_AUTHORIZATION_CHECK_MODE"); v != "" {
		cfg.Dashboard.AuthorizationCheckMode = v
	}
	if v := os.Getenv("TACOSCAN_WATCH_EVENTS"); v != "" {
		b := parseBool(v)
		cfg.Dashboard.WatchEvents = &b
	}
	if v := os.Getenv("TACOSCAN_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dashboard.IdleTimeout = d
		}
	}
	if v := os.Getenv("TACOSCAN_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dashboard.MaxSessions = n
		}
	}
	if v := os.Getenv("TACOSCAN_RITUALS"); v != "" {
		cfg.Dashboard.Rituals = parseRituals(v)
	}

	// Database configuration
	if v := os.Getenv("TACOSCAN_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TACOSCAN_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Logging configuration
	if v := os.Getenv("TACOSCAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TACOSCAN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("TACOSCAN_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("TACOSCAN_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

// parseRituals parses a comma-separated list of ritual ids, skipping
// entries that are not uint32.
func parseRituals(v string) []uint32 {
	var ids []uint32
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(n))
	}
	return ids
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}

	if cfg.Ledger.ReadsPerSecond == 0 {
		cfg.Ledger.ReadsPerSecond = 20
	}
	if cfg.Ledger.ReadBurst == 0 {
		cfg.Ledger.ReadBurst = 10
	}
	if cfg.Ledger.WriteTimeout == 0 {
		cfg.Ledger.WriteTimeout = 2 * time.Minute
	}
	if cfg.Ledger.WatchInterval == 0 {
		cfg.Ledger.WatchInterval = 12 * time.Second
	}

	// Writes wait until mined, so requests must outlive the write timeout.
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = cfg.Ledger.WriteTimeout*2 + 30*time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = cfg.Server.RequestTimeout + 10*time.Second
	}

	if cfg.Dashboard.RefreshInterval == 0 {
		cfg.Dashboard.RefreshInterval = 15 * time.Second
	}
	if cfg.Dashboard.ReadTimeout == 0 {
		cfg.Dashboard.ReadTimeout = 10 * time.Second
	}
	if cfg.Dashboard.AuthorizationCheckMode == "" {
		cfg.Dashboard.AuthorizationCheckMode = "representative"
	}
	if cfg.Dashboard.IdleTimeout == 0 {
		cfg.Dashboard.IdleTimeout = 10 * time.Minute
	}
	if cfg.Dashboard.MaxSessions == 0 {
		cfg.Dashboard.MaxSessions = 256
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "tacoscan.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}

	addrs := map[string]string{
		"chain.coordinator":       cfg.Chain.Coordinator,
		"chain.fee_model":         cfg.Chain.FeeModel,
		"chain.access_controller": cfg.Chain.AccessController,
		"chain.fee_token":         cfg.Chain.FeeToken,
	}
	for name, v := range addrs {
		if v != "" && !common.IsHexAddress(v) {
			return fmt.Errorf("%s must be a hex address, got %q", name, v)
		}
	}
	if cfg.Chain.FeeModel == "" && cfg.Chain.Coordinator == "" {
		return fmt.Errorf("chain.fee_model or chain.coordinator is required")
	}
	if cfg.Chain.PrivateKey != "" && cfg.Chain.ChainID <= 0 {
		return fmt.Errorf("chain.chain_id is required when chain.private_key is set")
	}

	if cfg.Ledger.ReadsPerSecond < 0 {
		return fmt.Errorf("ledger.reads_per_second must not be negative")
	}
	if cfg.Dashboard.RefreshInterval < time.Second {
		return fmt.Errorf("dashboard.refresh_interval must be at least 1s, got %s", cfg.Dashboard.RefreshInterval)
	}

	if cfg.Dashboard.IdleTimeout < time.Minute {
		return fmt.Errorf("dashboard.idle_timeout must be at least 1m, got %s", cfg.Dashboard.IdleTimeout)
	}
	if cfg.Dashboard.MaxSessions < len(cfg.Dashboard.Rituals) || cfg.Dashboard.MaxSessions < 1 {
		return fmt.Errorf("dashboard.max_sessions must be at least 1 and cover dashboard.rituals, got %d", cfg.Dashboard.MaxSessions)
	}

	validModes := map[string]bool{"representative": true, "all": true}
	if !validModes[cfg.Dashboard.AuthorizationCheckMode] {
		return fmt.Errorf("dashboard.authorization_check_mode must be 'representative' or 'all', got %q", cfg.Dashboard.AuthorizationCheckMode)
	}

	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}

// Address parses an optional configured address; empty yields the zero address.
func Address(v string) common.Address {
	if v == "" {
		return common.Address{}
	}
	return common.HexToAddress(v)
}
