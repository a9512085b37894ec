package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Port              string   `json:"port" yaml:"port"`
	RequestTimeoutSec int      `json:"request_timeout_sec" yaml:"request_timeout_sec"`
	LogLevel          string   `json:"log_level" yaml:"log_level"`
	AllowedOrigins    []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// Token configures the DexScreener feed for a single token.
type Token struct {
	Address               string `json:"address" yaml:"address"`
	Endpoint              string `json:"endpoint" yaml:"endpoint"`
	ChainID               string `json:"chain_id" yaml:"chain_id"`
	PollIntervalSec       int    `json:"poll_interval_sec" yaml:"poll_interval_sec"`
	FetchTimeoutSec       int    `json:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec" yaml:"min_request_interval_sec"`
	Burst                 int    `json:"burst" yaml:"burst"`
	CacheTTLSeconds       int    `json:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	CacheMaxItems         int    `json:"cache_max_items" yaml:"cache_max_items"`
}

// Waitlist configures the signup relay to the collaborator backend.
type Waitlist struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	UpstreamURL string `json:"upstream_url" yaml:"upstream_url"`
	CSRFPath    string `json:"csrf_path" yaml:"csrf_path"`
	SignupPath  string `json:"signup_path" yaml:"signup_path"`
	Source      string `json:"source" yaml:"source"`
}

type Redis struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Addr           string `json:"addr" yaml:"addr"`
	Password       string `json:"password" yaml:"password"`
	DB             int    `json:"db" yaml:"db"`
	KeyPrefix      string `json:"key_prefix" yaml:"key_prefix"`
	Channel        string `json:"channel" yaml:"channel"`
	SnapshotTTLSec int    `json:"snapshot_ttl_sec" yaml:"snapshot_ttl_sec"`
}

// Database holds PostgreSQL connection settings for waitlist storage.
type Database struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Name     string `json:"name" yaml:"name"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
	MaxConns int    `json:"max_conns" yaml:"max_conns"`
	MinConns int    `json:"min_conns" yaml:"min_conns"`
}

type Config struct {
	Server   Server   `json:"server" yaml:"server"`
	Token    Token    `json:"token" yaml:"token"`
	Waitlist Waitlist `json:"waitlist" yaml:"waitlist"`
	Redis    Redis    `json:"redis" yaml:"redis"`
	Database Database `json:"database" yaml:"database"`
}

func Default() Config {
	return Config{
		Server: Server{
			Port:              DefaultPort,
			RequestTimeoutSec: DefaultRequestTimeoutSec,
			LogLevel:          DefaultLogLevel,
			AllowedOrigins:    []string{"*"},
		},
		Token: Token{
			Address:              DefaultTokenAddress,
			Endpoint:             DefaultDexScreenerURL,
			PollIntervalSec:      DefaultPollIntervalSec,
			FetchTimeoutSec:      DefaultFetchTimeoutSec,
			MaxRequestsPerMinute: DefaultMaxRequestsPerMinute,
			Burst:                DefaultBurst,
			CacheTTLSeconds:      DefaultCacheTTLSec,
			CacheMaxItems:        DefaultCacheMaxItems,
		},
		Waitlist: Waitlist{
			Enabled:    false,
			CSRFPath:   DefaultCSRFPath,
			SignupPath: DefaultSignupPath,
			Source:     DefaultWaitlistSource,
		},
		Redis: Redis{
			Enabled:        false,
			Addr:           DefaultRedisAddr,
			KeyPrefix:      DefaultRedisKeyPrefix,
			Channel:        DefaultRedisChannel,
			SnapshotTTLSec: DefaultSnapshotTTLSec,
		},
		Database: Database{
			Enabled:  false,
			Host:     "localhost",
			Port:     DefaultDBPort,
			Name:     "tokenticker",
			User:     "postgres",
			SSLMode:  DefaultDBSSLMode,
			MaxConns: DefaultMaxConns,
			MinConns: DefaultMinConns,
		},
	}
}

// Load reads a JSON or YAML config from path. If path is empty or the file does
// not exist, it returns defaults. YAML files get ${VAR} expansion. Environment
// variables override select fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, candidate := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

// PollInterval returns the feed interval as a duration.
func (t Token) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSec) * time.Second
}

// FetchTimeout returns the per-request timeout as a duration.
func (t Token) FetchTimeout() time.Duration {
	return time.Duration(t.FetchTimeoutSec) * time.Second
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	setInt("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec, 1)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCSV(v)
	}

	if v := os.Getenv("TOKEN_ADDRESS"); v != "" {
		cfg.Token.Address = v
	}
	if v := os.Getenv("DEXSCREENER_ENDPOINT"); v != "" {
		cfg.Token.Endpoint = v
	}
	if v := os.Getenv("TOKEN_CHAIN_ID"); v != "" {
		cfg.Token.ChainID = v
	}
	setInt("POLL_INTERVAL_SEC", &cfg.Token.PollIntervalSec, 1)
	setInt("FETCH_TIMEOUT_SEC", &cfg.Token.FetchTimeoutSec, 1)
	setInt("DEXSCREENER_MAX_RPM", &cfg.Token.MaxRequestsPerMinute, 0)
	setInt("DEXSCREENER_MIN_INTERVAL_SEC", &cfg.Token.MinRequestIntervalSec, 0)
	setInt("DEXSCREENER_BURST", &cfg.Token.Burst, 1)
	setInt("DEXSCREENER_CACHE_TTL_SEC", &cfg.Token.CacheTTLSeconds, 0)
	setInt("DEXSCREENER_CACHE_MAX_ITEMS", &cfg.Token.CacheMaxItems, 1)

	setBool("WAITLIST_ENABLED", &cfg.Waitlist.Enabled)
	if v := os.Getenv("WAITLIST_UPSTREAM_URL"); v != "" {
		cfg.Waitlist.UpstreamURL = v
	}
	if v := os.Getenv("WAITLIST_CSRF_PATH"); v != "" {
		cfg.Waitlist.CSRFPath = v
	}
	if v := os.Getenv("WAITLIST_SIGNUP_PATH"); v != "" {
		cfg.Waitlist.SignupPath = v
	}

	setBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	setInt("REDIS_DB", &cfg.Redis.DB, 0)

	setBool("DB_ENABLED", &cfg.Database.Enabled)
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	setInt("DB_PORT", &cfg.Database.Port, 1)
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
}

// setInt overrides dst from an integer env var when the parsed value is >= min.
func setInt(key string, dst *int, min int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var x int
	if _, err := fmt.Sscanf(v, "%d", &x); err != nil {
		return
	}
	if x >= min {
		*dst = x
	}
}

func setBool(key string, dst *bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		*dst = true
	case "0", "false", "no", "n":
		*dst = false
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
