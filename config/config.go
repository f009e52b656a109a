// Package config provides configuration management for the application.
//
// Configuration is layered: built-in defaults, then an optional YAML file
// (config.yaml, with ${VAR} and ${VAR:-default} placeholders expanded from the
// environment), then environment variables, which always win. A .env file in
// the working directory is loaded into the environment first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultBodySizeLimit is the default maximum request body size (10MB).
const DefaultBodySizeLimit int64 = 10 * 1024 * 1024

// Config holds the application configuration
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Log       LogConfig                 `yaml:"log"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	HTTP      HTTPConfig                `yaml:"http"`
	Storage   StorageConfig             `yaml:"storage"`
	Redis     RedisConfig               `yaml:"redis"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Chain     ChainConfig               `yaml:"chain"`
	Oracle    OracleConfig              `yaml:"oracle"`
	Critic    CriticConfig              `yaml:"critic"`
	Payout    PayoutConfig              `yaml:"payout"`
	Identity  IdentityConfig            `yaml:"identity"`
	Catalog   CatalogConfig             `yaml:"catalog"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               string   `yaml:"port"`
	MasterKey          string   `yaml:"master_key"`
	BodySizeLimit      int64    `yaml:"body_size_limit"`
	CORSAllowOrigins   []string `yaml:"cors_allow_origins"`
	DefaultStreamModel string   `yaml:"default_stream_model"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is "json", "text" or "auto" (text on a terminal, JSON otherwise)
	Format string `yaml:"format"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// HTTPConfig holds outbound HTTP client timeouts in seconds.
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// StorageConfig selects and configures the participant store backend.
type StorageConfig struct {
	// Type is "sqlite", "postgresql" or "mongodb"
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// RedisConfig enables cross-instance oracle mailbox locking when URL is set.
type RedisConfig struct {
	URL       string        `yaml:"url"`
	KeyPrefix string        `yaml:"key_prefix"`
	LockTTL   time.Duration `yaml:"lock_ttl"`
}

// ProviderConfig configures one hosted LLM provider.
type ProviderConfig struct {
	Type    string `yaml:"type"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ChainConfig holds the RPC endpoint and signing account for oracle transactions.
type ChainConfig struct {
	RPCURL       string `yaml:"rpc_url"`
	PrivateKey   string `yaml:"private_key"`
	ChainID      int64  `yaml:"chain_id"`
	GasLimit     uint64 `yaml:"gas_limit"`
	GasPriceGwei int64  `yaml:"gas_price_gwei"`
}

// OracleConfig tunes the request bridge.
type OracleConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// CriticConfig selects where evaluation prompts are sent. ContractAddress wins
// over Model when both are set.
type CriticConfig struct {
	ContractAddress string `yaml:"contract_address"`
	Model           string `yaml:"model"`
}

// PayoutConfig configures the reward transfers.
type PayoutConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	EntitySecret  string `yaml:"entity_secret"`
	WalletID      string `yaml:"wallet_id"`
	TokenID       string `yaml:"token_id"`
	Amount        string `yaml:"amount"`
	DefaultWallet string `yaml:"default_wallet"`
	BufferSize    int    `yaml:"buffer_size"`
}

// IdentityConfig configures the proof-of-personhood relay.
type IdentityConfig struct {
	AppID     string `yaml:"app_id"`
	VerifyURL string `yaml:"verify_url"`
}

// CatalogConfig points at an optional participant catalog overriding the embedded one.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether payouts can be issued.
func (p PayoutConfig) Enabled() bool {
	return p.APIKey != ""
}

// Enabled reports whether the chain adapter can be constructed.
func (c ChainConfig) Enabled() bool {
	return c.RPCURL != "" && c.PrivateKey != ""
}

// defaultConfig returns the configuration used when nothing else is set.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               "8080",
			BodySizeLimit:      DefaultBodySizeLimit,
			CORSAllowOrigins:   []string{"*"},
			DefaultStreamModel: "gpt-4o-mini",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
		HTTP: HTTPConfig{
			Timeout:               600,
			ResponseHeaderTimeout: 600,
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: "data/chainarena.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "chainarena"},
		},
		Redis: RedisConfig{
			KeyPrefix: "chainarena:mailbox:",
			LockTTL:   5 * time.Minute,
		},
		Providers: map[string]ProviderConfig{},
		Chain: ChainConfig{
			ChainID:      696969,
			GasLimit:     2_000_000,
			GasPriceGwei: 5,
		},
		Oracle: OracleConfig{
			Timeout:      120 * time.Second,
			PollInterval: 2 * time.Second,
		},
		Payout: PayoutConfig{
			BaseURL:    "https://api.circle.com",
			Amount:     "0.1",
			BufferSize: 100,
		},
		Identity: IdentityConfig{
			VerifyURL: "https://developer.worldcoin.org/api/v2/verify",
		},
	}
}

// Load reads configuration from .env, an optional YAML file and the environment.
// The YAML path defaults to config.yaml and can be changed with CONFIG_PATH.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyProviderEnvVars(cfg)
	filterEmptyProviders(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges the file at path into cfg. A missing file is not an error.
func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandString(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} with environment values.
// A placeholder without a default whose variable is unset or empty is left untouched.
func expandString(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		name, hasDefault, def := groups[1], groups[2] != "", groups[3]
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// applyEnvOverrides overlays environment variables onto cfg.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.MasterKey, "MASTER_KEY")
	errs = append(errs, setInt64(&cfg.Server.BodySizeLimit, "BODY_SIZE_LIMIT"))
	if v := os.Getenv("CORS_ALLOW_ORIGINS"); v != "" {
		cfg.Server.CORSAllowOrigins = splitList(v)
	}
	setString(&cfg.Server.DefaultStreamModel, "DEFAULT_STREAM_MODEL")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	errs = append(errs, setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED"))
	setString(&cfg.Metrics.Endpoint, "METRICS_ENDPOINT")

	errs = append(errs,
		setInt(&cfg.HTTP.Timeout, "HTTP_TIMEOUT"),
		setInt(&cfg.HTTP.ResponseHeaderTimeout, "HTTP_RESPONSE_HEADER_TIMEOUT"),
	)

	setString(&cfg.Storage.Type, "STORAGE_TYPE")
	setString(&cfg.Storage.SQLite.Path, "SQLITE_PATH")
	setString(&cfg.Storage.PostgreSQL.URL, "POSTGRES_URL")
	errs = append(errs, setInt(&cfg.Storage.PostgreSQL.MaxConns, "POSTGRES_MAX_CONNS"))
	setString(&cfg.Storage.MongoDB.URL, "MONGODB_URL")
	setString(&cfg.Storage.MongoDB.Database, "MONGODB_DATABASE")

	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Redis.KeyPrefix, "REDIS_KEY_PREFIX")
	errs = append(errs, setDuration(&cfg.Redis.LockTTL, "REDIS_LOCK_TTL"))

	setString(&cfg.Chain.RPCURL, "RPC_URL")
	setString(&cfg.Chain.PrivateKey, "PRIVATE_KEY")
	errs = append(errs,
		setInt64(&cfg.Chain.ChainID, "CHAIN_ID"),
		setUint64(&cfg.Chain.GasLimit, "GAS_LIMIT"),
		setInt64(&cfg.Chain.GasPriceGwei, "GAS_PRICE_GWEI"),
	)

	errs = append(errs,
		setDuration(&cfg.Oracle.Timeout, "ORACLE_TIMEOUT"),
		setDuration(&cfg.Oracle.PollInterval, "ORACLE_POLL_INTERVAL"),
	)

	setString(&cfg.Critic.ContractAddress, "SIMPLE_LLM_CONTRACT_ADDRESS")
	setString(&cfg.Critic.Model, "CRITIC_MODEL")

	setString(&cfg.Payout.APIKey, "CIRCLE_API_KEY")
	setString(&cfg.Payout.BaseURL, "CIRCLE_BASE_URL")
	setString(&cfg.Payout.EntitySecret, "CIRCLE_ENTITY_SECRET")
	setString(&cfg.Payout.WalletID, "CIRCLE_WALLET_ID")
	setString(&cfg.Payout.TokenID, "CIRCLE_TOKEN_ID")
	setString(&cfg.Payout.Amount, "PAYOUT_AMOUNT")
	setString(&cfg.Payout.DefaultWallet, "PAYOUT_DEFAULT_WALLET")
	errs = append(errs, setInt(&cfg.Payout.BufferSize, "PAYOUT_BUFFER_SIZE"))

	setString(&cfg.Identity.AppID, "WORLDCOIN_APP_ID")
	setString(&cfg.Identity.VerifyURL, "WORLDCOIN_VERIFY_URL")

	setString(&cfg.Catalog.Path, "CATALOG_PATH")

	return errors.Join(errs...)
}

// knownProviderEnvs maps well-known provider names to their environment variables.
var knownProviderEnvs = []struct {
	name       string
	apiKeyEnv  string
	baseURLEnv string
}{
	{"openai", "OPENAI_API_KEY", "OPENAI_BASE_URL"},
	{"anthropic", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL"},
	{"gemini", "GEMINI_API_KEY", "GEMINI_BASE_URL"},
	{"groq", "GROQ_API_KEY", "GROQ_BASE_URL"},
}

// applyProviderEnvVars overlays well-known provider env vars onto the YAML provider map.
// Env var values always win over YAML values for the same provider name.
func applyProviderEnvVars(cfg *Config) {
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	for _, kp := range knownProviderEnvs {
		apiKey := os.Getenv(kp.apiKeyEnv)
		baseURL := os.Getenv(kp.baseURLEnv)
		if apiKey == "" && baseURL == "" {
			continue
		}

		p, exists := cfg.Providers[kp.name]
		if !exists {
			p = ProviderConfig{Type: kp.name}
		}
		if apiKey != "" {
			p.APIKey = apiKey
		}
		if baseURL != "" {
			p.BaseURL = baseURL
		}
		cfg.Providers[kp.name] = p
	}
}

// filterEmptyProviders removes providers without usable credentials, including
// keys that still contain an unresolved ${...} placeholder.
func filterEmptyProviders(cfg *Config) {
	for name, p := range cfg.Providers {
		if p.Type == "" {
			p.Type = name
			cfg.Providers[name] = p
		}
		if p.APIKey == "" || strings.Contains(p.APIKey, "${") {
			delete(cfg.Providers, name)
		}
	}
}

// LockTTLSlack is the headroom a Redis mailbox lock needs beyond one oracle ask.
const LockTTLSlack = 10 * time.Second

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "sqlite", "postgresql", "mongodb":
	default:
		return fmt.Errorf("unknown storage type: %q (valid: sqlite, postgresql, mongodb)", c.Storage.Type)
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle timeout must be positive")
	}
	if c.Oracle.PollInterval <= 0 {
		return fmt.Errorf("oracle poll interval must be positive")
	}
	// A lock that expires mid-ask would let a second instance overwrite the response slot.
	if c.Redis.URL != "" && c.Redis.LockTTL <= c.Oracle.Timeout+LockTTLSlack {
		return fmt.Errorf("redis lock ttl (%s) must exceed oracle timeout (%s) by more than %s",
			c.Redis.LockTTL, c.Oracle.Timeout, LockTTLSlack)
	}
	if c.Chain.RPCURL != "" && c.Chain.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required when RPC_URL is set")
	}
	if c.Critic.ContractAddress != "" && !c.Chain.Enabled() {
		return fmt.Errorf("RPC_URL and PRIVATE_KEY are required for the on-chain critic")
	}
	if c.Payout.Enabled() && (c.Payout.WalletID == "" || c.Payout.TokenID == "" || c.Payout.EntitySecret == "") {
		return fmt.Errorf("CIRCLE_WALLET_ID, CIRCLE_TOKEN_ID and CIRCLE_ENTITY_SECRET are required when CIRCLE_API_KEY is set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func setUint64(dst *uint64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid unsigned integer %q", key, v)
	}
	*dst = n
	return nil
}

// setDuration accepts plain integers (seconds) or Go duration strings ("90s", "2m").
func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, v)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
