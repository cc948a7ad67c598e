package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/xxxsen/common/logger"
)

const (
	defaultDebounceMs    = 2000
	defaultLoadTimeoutMs = 5000
	defaultSendQueue     = 256
	defaultStatsCron     = "*/5 * * * *"
)

type Config struct {
	Port        int              `json:"port"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Sync        SyncConfig       `json:"sync"`
	Store       StoreConfig      `json:"store"`
	CORSOrigins []string         `json:"cors_origins"`
	StatsCron   string           `json:"stats_cron"`
	// ConnectLimitMs is the minimum gap between websocket upgrades from one
	// client address; zero disables the limit.
	ConnectLimitMs int64 `json:"connect_limit_ms"`
}

func (c Config) ConnectLimit() time.Duration {
	return time.Duration(c.ConnectLimitMs) * time.Millisecond
}

type SyncConfig struct {
	DebounceMs    int64 `json:"debounce_ms"`
	LoadTimeoutMs int64 `json:"load_timeout_ms"`
	SendQueue     int   `json:"send_queue"`
}

func (c SyncConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c SyncConfig) LoadTimeout() time.Duration {
	return time.Duration(c.LoadTimeoutMs) * time.Millisecond
}

type StoreConfig struct {
	Type            string      `json:"type"`
	CacheSize       int         `json:"cache_size"`
	CacheTTLSeconds int64       `json:"cache_ttl_seconds"`
	Data            interface{} `json:"data"`
}

func (c StoreConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.Sync.DebounceMs < 0 || c.Sync.LoadTimeoutMs < 0 {
		return fmt.Errorf("sync.debounce_ms and sync.load_timeout_ms must not be negative")
	}
	if c.Sync.DebounceMs == 0 {
		c.Sync.DebounceMs = defaultDebounceMs
	}
	if c.Sync.LoadTimeoutMs == 0 {
		c.Sync.LoadTimeoutMs = defaultLoadTimeoutMs
	}
	if c.Sync.SendQueue <= 0 {
		c.Sync.SendQueue = defaultSendQueue
	}
	c.Store.Type = strings.ToLower(strings.TrimSpace(c.Store.Type))
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Store.CacheSize > 0 && c.Store.CacheTTLSeconds <= 0 {
		c.Store.CacheTTLSeconds = 600
	}
	if c.ConnectLimitMs < 0 {
		return fmt.Errorf("connect_limit_ms must not be negative")
	}
	if c.StatsCron == "" {
		c.StatsCron = defaultStatsCron
	}
	return nil
}
