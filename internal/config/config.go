// Package config loads service configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_seconds"`
}

// DatabaseConfig controls the Postgres connection pool.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
	Migrate         bool   `yaml:"migrate"`
}

// ChainConfig identifies the EVM network and its Uniswap V3 deployment.
type ChainConfig struct {
	RPCURL              string        `yaml:"rpc_url"`
	ChainID             int64         `yaml:"chain_id"`
	FactoryAddress      string        `yaml:"factory_address"`
	QuoterAddress       string        `yaml:"quoter_address"`
	RouterAddress       string        `yaml:"router_address"`
	WETHAddress         string        `yaml:"weth_address"`
	ReceiptPollInterval time.Duration `yaml:"receipt_poll_interval"`
	ReceiptTimeout      time.Duration `yaml:"receipt_timeout"`
}

// CustodyConfig points at the wallet custody provider.
type CustodyConfig struct {
	BaseURL         string        `yaml:"base_url"`
	AppID           string        `yaml:"app_id"`
	AppSecret       string        `yaml:"app_secret"`
	VerificationKey string        `yaml:"verification_key"` // PEM, ES256 public key
	Timeout         time.Duration `yaml:"timeout"`
}

// ExtractorConfig selects the token-address extraction strategy.
type ExtractorConfig struct {
	Mode          string `yaml:"mode"` // "stub" or "model"
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	StubAddress   string `yaml:"stub_address"`
	DemoAmountWei string `yaml:"demo_amount_wei"`
}

// SwapConfig holds execution policy knobs.
type SwapConfig struct {
	SlippageToleranceBps int           `yaml:"slippage_tolerance_bps"`
	ExecutionDeadline    time.Duration `yaml:"execution_deadline"`
}

// LoggingConfig mirrors pkg/logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// RateLimitConfig controls per-caller request budgets.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Chain     ChainConfig     `yaml:"chain"`
	Custody   CustodyConfig   `yaml:"custody"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Swap      SwapConfig      `yaml:"swap"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
}

// Base mainnet Uniswap V3 deployment.
const (
	defaultFactoryAddress = "0x33128a8fC17869897dcE68Ed026d694621f6FDfD"
	defaultQuoterAddress  = "0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a"
	defaultRouterAddress  = "0x2626664c2603336E57B271c5C0b26F421741e481"
	defaultWETHAddress    = "0x4200000000000000000000000000000000000006"
	defaultStubAddress    = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.ShutdownTimeout = 10
	cfg.Database.Driver = "postgres"
	cfg.Database.Migrate = true
	cfg.Chain.RPCURL = "https://mainnet.base.org"
	cfg.Chain.ChainID = 8453
	cfg.Chain.FactoryAddress = defaultFactoryAddress
	cfg.Chain.QuoterAddress = defaultQuoterAddress
	cfg.Chain.RouterAddress = defaultRouterAddress
	cfg.Chain.WETHAddress = defaultWETHAddress
	cfg.Chain.ReceiptPollInterval = 2 * time.Second
	cfg.Chain.ReceiptTimeout = 2 * time.Minute
	cfg.Custody.Timeout = 30 * time.Second
	cfg.Extractor.Mode = "stub"
	cfg.Extractor.Model = "gpt-4o-mini"
	cfg.Extractor.StubAddress = defaultStubAddress
	cfg.Extractor.DemoAmountWei = "10000000000000"
	cfg.Swap.SlippageToleranceBps = 50
	cfg.Swap.ExecutionDeadline = 20 * time.Minute
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Logging.Output = "stdout"
	cfg.RateLimit.RequestsPerSecond = 10
	cfg.RateLimit.Burst = 20
	return cfg
}

// Load reads configuration from the given path (optional) and applies
// environment overrides. A .env file is honoured for local runs.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain rpc_url is required")
	}
	if c.Swap.SlippageToleranceBps <= 0 || c.Swap.SlippageToleranceBps >= 10000 {
		return fmt.Errorf("swap slippage_tolerance_bps must be in (0, 10000)")
	}
	switch c.Extractor.Mode {
	case "stub", "model":
	default:
		return fmt.Errorf("extractor mode %q unsupported (stub or model)", c.Extractor.Mode)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Database.DSN, "DATABASE_URL")
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Chain.RPCURL, "CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "CHAIN_ID")
	setString(&cfg.Chain.FactoryAddress, "CHAIN_FACTORY_ADDRESS")
	setString(&cfg.Chain.QuoterAddress, "CHAIN_QUOTER_ADDRESS")
	setString(&cfg.Chain.RouterAddress, "CHAIN_ROUTER_ADDRESS")
	setString(&cfg.Chain.WETHAddress, "CHAIN_WETH_ADDRESS")
	setDuration(&cfg.Chain.ReceiptTimeout, "CHAIN_RECEIPT_TIMEOUT")
	setString(&cfg.Custody.BaseURL, "CUSTODY_BASE_URL")
	setString(&cfg.Custody.AppID, "CUSTODY_APP_ID")
	setString(&cfg.Custody.AppSecret, "CUSTODY_APP_SECRET")
	setString(&cfg.Custody.VerificationKey, "CUSTODY_VERIFICATION_KEY")
	setString(&cfg.Extractor.Mode, "EXTRACTOR_MODE")
	setString(&cfg.Extractor.Endpoint, "EXTRACTOR_ENDPOINT")
	setString(&cfg.Extractor.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Extractor.Model, "EXTRACTOR_MODEL")
	setInt(&cfg.Swap.SlippageToleranceBps, "SWAP_SLIPPAGE_BPS")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt64(dst *int64, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}
