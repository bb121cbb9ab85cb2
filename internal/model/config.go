package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIConfig points the client at the notification API.
type APIConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// SyncConfig tunes the notification sync engine.
type SyncConfig struct {
	// PollIntervalSec is how often (in seconds) the notification list is
	// fetched.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// PopupTTLMillis is how long a popup stays up before it expires.
	PopupTTLMillis int `mapstructure:"popup_ttl_ms" yaml:"popup_ttl_ms"`

	// RollbackOnFailure reverts an optimistic mutation whose server
	// call failed. Off by default.
	RollbackOnFailure bool `mapstructure:"rollback_on_failure" yaml:"rollback_on_failure"`
}

// SessionConfig controls where the session token lives.
type SessionConfig struct {
	Dir            string `mapstructure:"dir" yaml:"dir"`
	KeyringService string `mapstructure:"keyring_service" yaml:"keyring_service"`
}

// LogConfig holds log output settings.
type LogConfig struct {
	File  string `mapstructure:"file" yaml:"file"`
	Level string `mapstructure:"level" yaml:"level"`
}

// BrokerConfig enables refresh hints over AMQP. An empty URL disables it.
type BrokerConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Exchange string `mapstructure:"exchange" yaml:"exchange"`
}

// ServerConfig configures the reference API server.
type ServerConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	DBPath    string `mapstructure:"db_path" yaml:"db_path"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Broker  BrokerConfig  `mapstructure:"broker" yaml:"broker"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

// PollInterval returns the poll interval as a duration.
func (c SyncConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// PopupTTL returns the popup lifetime as a duration.
func (c SyncConfig) PopupTTL() time.Duration {
	return time.Duration(c.PopupTTLMillis) * time.Millisecond
}

// Timeout returns the HTTP client timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// ConfigDir returns ~/.config/pmnotify, or "." if the home directory
// cannot be determined.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "pmnotify")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/pmnotify/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:8080",
			TimeoutSec: 30,
		},
		Sync: SyncConfig{
			PollIntervalSec: 30,
			PopupTTLMillis:  5000,
		},
		Session: SessionConfig{
			Dir:            dir,
			KeyringService: "pmnotify",
		},
		Log: LogConfig{
			File:  filepath.Join(dir, "pmnotify.log"),
			Level: "info",
		},
		Broker: BrokerConfig{
			Exchange: "pmnotify.refresh",
		},
		Server: ServerConfig{
			Addr:   ":8080",
			DBPath: filepath.Join(dir, "server.db"),
		},
	}
}

func setDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout_sec", cfg.API.TimeoutSec)
	v.SetDefault("sync.poll_interval_sec", cfg.Sync.PollIntervalSec)
	v.SetDefault("sync.popup_ttl_ms", cfg.Sync.PopupTTLMillis)
	v.SetDefault("sync.rollback_on_failure", cfg.Sync.RollbackOnFailure)
	v.SetDefault("session.dir", cfg.Session.Dir)
	v.SetDefault("session.keyring_service", cfg.Session.KeyringService)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("broker.url", cfg.Broker.URL)
	v.SetDefault("broker.exchange", cfg.Broker.Exchange)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.db_path", cfg.Server.DBPath)
	v.SetDefault("server.jwt_secret", cfg.Server.JWTSecret)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with PMNOTIFY_ override file values
// (PMNOTIFY_API_BASE_URL overrides api.base_url). If the file does not
// exist, defaults plus environment overrides are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PMNOTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Zero or negative values fall back to the defaults.
	def := DefaultAppConfig()
	if cfg.Sync.PollIntervalSec <= 0 {
		cfg.Sync.PollIntervalSec = def.Sync.PollIntervalSec
	}
	if cfg.Sync.PopupTTLMillis <= 0 {
		cfg.Sync.PopupTTLMillis = def.Sync.PopupTTLMillis
	}
	if cfg.API.TimeoutSec <= 0 {
		cfg.API.TimeoutSec = def.API.TimeoutSec
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("sync", cfg.Sync)
	v.Set("session", cfg.Session)
	v.Set("log", cfg.Log)
	v.Set("broker", cfg.Broker)
	v.Set("server", cfg.Server)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
