// Package config loads server settings from an optional YAML file, then
// applies MOSAIC_* environment overrides. The PostgreSQL password is never
// written to the file; it lives in the OS keychain.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Addr          string `yaml:"addr"`
	PeerTimeoutMs int    `yaml:"peer_timeout_ms"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // "bolt" | "sqlite" | "postgres" | "file" | "memory"
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type ResolveConfig struct {
	Retries int `yaml:"retries"`
	DelayMs int `yaml:"delay_ms"`
}

type Config struct {
	ConfigVersion int           `yaml:"config_version"`
	Server        ServerConfig  `yaml:"server"`
	Store         StoreConfig   `yaml:"store"`
	Logging       LoggingConfig `yaml:"logging"`
	Resolve       ResolveConfig `yaml:"resolve"`
}

func Defaults() Config {
	return Config{
		ConfigVersion: 1,
		Server:        ServerConfig{Addr: ":8080", PeerTimeoutMs: 2000},
		Store:         StoreConfig{Backend: "bolt", Path: "/data/mosaics.db"},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
		Resolve:       ResolveConfig{Retries: 3, DelayMs: 750},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile     = "MOSAIC_CONFIG"
	EnvAddr           = "MOSAIC_ADDR"
	EnvPeerTimeoutMs  = "MOSAIC_PEER_TIMEOUT_MS"
	EnvStore          = "MOSAIC_STORE"
	EnvStorePath      = "MOSAIC_STORE_PATH"
	EnvPostgresDSN    = "MOSAIC_PG_DSN"
	EnvLogLevel       = "MOSAIC_LOG_LEVEL"
	EnvLogFormat      = "MOSAIC_LOG_FORMAT"
	EnvLogSource      = "MOSAIC_LOG_SOURCE"
	EnvLogFile        = "MOSAIC_LOG_FILE"
	EnvResolveRetries = "MOSAIC_RESOLVE_RETRIES"
	EnvResolveDelayMs = "MOSAIC_RESOLVE_DELAY_MS"
)

// Load reads path (skipped when empty or missing), merges it over the
// defaults and applies environment overrides. A malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			var fileCfg Config
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Path returns the config file named by MOSAIC_CONFIG, if any.
func Path() string { return strings.TrimSpace(os.Getenv(EnvConfigFile)) }

func mergeInto(dst, src *Config) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if v := strings.TrimSpace(src.Server.Addr); v != "" {
		dst.Server.Addr = v
	}
	if src.Server.PeerTimeoutMs > 0 {
		dst.Server.PeerTimeoutMs = src.Server.PeerTimeoutMs
	}
	if v := strings.TrimSpace(src.Store.Backend); v != "" {
		dst.Store.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Store.Path); v != "" {
		dst.Store.Path = v
	}
	if v := strings.TrimSpace(src.Store.DSN); v != "" {
		dst.Store.DSN = v
	}
	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	if v := strings.TrimSpace(src.Logging.File); v != "" {
		dst.Logging.File = v
	}
	// a zero in the file reads as unset; MOSAIC_RESOLVE_RETRIES=0 disables retries
	if src.Resolve.Retries > 0 {
		dst.Resolve.Retries = src.Resolve.Retries
	}
	if src.Resolve.DelayMs > 0 {
		dst.Resolve.DelayMs = src.Resolve.DelayMs
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := env(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if n, ok := envInt(EnvPeerTimeoutMs); ok && n > 0 {
		cfg.Server.PeerTimeoutMs = n
	}
	if v := env(EnvStore); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v := env(EnvStorePath); v != "" {
		cfg.Store.Path = v
	}
	if v := env(EnvPostgresDSN); v != "" {
		cfg.Store.DSN = v
	}
	if v := env(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := env(EnvLogFormat); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := env(EnvLogSource); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := env(EnvLogFile); v != "" {
		cfg.Logging.File = v
	}
	if n, ok := envInt(EnvResolveRetries); ok && n >= 0 {
		cfg.Resolve.Retries = n
	}
	if n, ok := envInt(EnvResolveDelayMs); ok && n >= 0 {
		cfg.Resolve.DelayMs = n
	}
}

func env(name string) string { return strings.TrimSpace(os.Getenv(name)) }

func envInt(name string) (int, bool) {
	v := env(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func (s ServerConfig) PeerTimeout() time.Duration {
	return time.Duration(s.PeerTimeoutMs) * time.Millisecond
}

func (r ResolveConfig) Delay() time.Duration {
	return time.Duration(r.DelayMs) * time.Millisecond
}

// Service/key for the OS keyring.
const (
	keyringService  = "mosaic-keeper"
	keyringPassword = "postgres_password"
)

// SecretStore abstracts the keyring so tests can stub it.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
}

// OSKeyring implements SecretStore with github.com/zalando/go-keyring.
type OSKeyring struct{}

func (OSKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }

func (OSKeyring) Set(service, key, value string) error { return keyring.Set(service, key, value) }

// StorePostgresPassword saves the database password in the keychain.
func StorePostgresPassword(secrets SecretStore, password string) error {
	return secrets.Set(keyringService, keyringPassword, password)
}

// PostgresDSN returns the configured DSN with the keychain password filled
// in. A DSN that already carries a password, or no keychain entry, leaves it
// as configured.
func (s StoreConfig) PostgresDSN(secrets SecretStore) (string, error) {
	if s.DSN == "" {
		return "", errors.New("postgres backend needs a dsn")
	}
	if secrets == nil {
		return s.DSN, nil
	}
	u, err := url.Parse(s.DSN)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		// keyword/value DSNs are passed through untouched
		return s.DSN, nil
	}
	if u.User != nil {
		if _, set := u.User.Password(); set {
			return s.DSN, nil
		}
	}
	pw, err := secrets.Get(keyringService, keyringPassword)
	if errors.Is(err, keyring.ErrNotFound) {
		return s.DSN, nil
	}
	if err != nil {
		return "", fmt.Errorf("read postgres password from keyring: %w", err)
	}
	user := ""
	if u.User != nil {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, pw)
	return u.String(), nil
}
