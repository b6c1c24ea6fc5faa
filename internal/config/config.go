package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all tern configuration.
type Config struct {
	Sync     SyncConfig      `toml:"sync"`
	Render   RenderConfig    `toml:"render"`
	Accounts []AccountConfig `toml:"accounts"`
	Default  string          `toml:"default_account"`
}

// SyncConfig holds synchronization settings.
type SyncConfig struct {
	Interval        string `toml:"interval"`
	InitialSyncDays int    `toml:"initial_sync_days"`
	FetchChunkSize  int    `toml:"fetch_chunk_size"`
	MaxRetries      int    `toml:"max_retries"`
}

// RenderConfig holds display settings.
type RenderConfig struct {
	Theme             string `toml:"theme"`
	AllowRemoteImages bool   `toml:"allow_remote_images"`
	TextWidth         int    `toml:"text_width"`
}

// AccountConfig describes one mail account.
type AccountConfig struct {
	Name    string     `toml:"name"`
	Address string     `toml:"address"`
	IMAP    IMAPConfig `toml:"imap"`
}

// IMAPConfig holds connection settings for an account. Password may be left
// empty, in which case the system keyring is consulted.
type IMAPConfig struct {
	Host               string `toml:"host"`
	Port               int    `toml:"port"`
	Username           string `toml:"username"`
	Password           string `toml:"password"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// Addr returns host:port with the standard IMAPS port as fallback.
func (c IMAPConfig) Addr() string {
	port := c.Port
	if port == 0 {
		port = 993
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

func defaults() Config {
	return Config{
		Sync: SyncConfig{
			Interval:        "5m",
			InitialSyncDays: 30,
			FetchChunkSize:  50,
			MaxRetries:      3,
		},
		Render: RenderConfig{
			Theme:             "dark",
			AllowRemoteImages: false,
			TextWidth:         80,
		},
	}
}

// Load reads config from path. If path is empty, the default location is
// tried; a missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		path = filepath.Join(ConfigDir(), "config.toml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Account returns the named account, or the default one when name is empty.
func (c *Config) Account(name string) (*AccountConfig, error) {
	if name == "" {
		name = c.Default
	}
	if name == "" && len(c.Accounts) == 1 {
		return &c.Accounts[0], nil
	}
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account %q not configured", name)
}

// ConfigDir returns the tern config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tern")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tern")
}

// DataDir returns the tern data directory path.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "tern")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "tern")
}
