package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Global settings
	Level   string `mapstructure:"level"`
	Quiet   bool   `mapstructure:"quiet"`
	Verbose bool   `mapstructure:"verbose"`

	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Session SessionConfig `mapstructure:"session"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
}

// ServerConfig holds the HTTP surface settings
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// StoreConfig selects and tunes the aggregate store backend
type StoreConfig struct {
	// URL is the REST store base; empty with Dev set runs in-memory.
	URL     string `mapstructure:"url"`
	Dev     bool   `mapstructure:"dev"`
	Timeout string `mapstructure:"timeout"`
}

// SessionConfig holds tracker tuning
type SessionConfig struct {
	Heartbeat string `mapstructure:"heartbeat"`
	Debounce  string `mapstructure:"debounce"`
}

// SandboxConfig holds script-isolation tuning
type SandboxConfig struct {
	ScriptBudget string `mapstructure:"script_budget"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Level:   "info",
		Quiet:   false,
		Verbose: false,
		Server: ServerConfig{
			Listen: ":8487",
		},
		Store: StoreConfig{
			Dev:     false,
			Timeout: "10s",
		},
		Session: SessionConfig{
			Heartbeat: "30s",
			Debounce:  "1s",
		},
		Sandbox: SandboxConfig{
			ScriptBudget: "2s",
		},
	}
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and type
	v.SetConfigName("toolhost")
	v.SetConfigType("yaml")

	// Add config paths (in order of precedence, lowest first)
	// 1. System-wide config
	v.AddConfigPath("/etc/toolhost/")
	// 2. User config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "toolhost"))
	}
	// 3. Home directory (as .toolhost.yaml)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".toolhost")
	}
	// 4. Current directory
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("TOOLHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables
	v.BindEnv("level", "TOOLHOST_LEVEL")
	v.BindEnv("quiet", "TOOLHOST_QUIET")
	v.BindEnv("verbose", "TOOLHOST_VERBOSE")
	v.BindEnv("server.listen", "TOOLHOST_LISTEN")
	v.BindEnv("store.url", "TOOLHOST_STORE_URL")
	v.BindEnv("store.dev", "TOOLHOST_DEV")

	// Set defaults
	cfg := Default()
	v.SetDefault("level", cfg.Level)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("store.timeout", cfg.Store.Timeout)
	v.SetDefault("session.heartbeat", cfg.Session.Heartbeat)
	v.SetDefault("session.debounce", cfg.Session.Debounce)
	v.SetDefault("sandbox.script_budget", cfg.Sandbox.ScriptBudget)

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error occurred
			return nil, err
		}
		// Config file not found; use defaults
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ConfigFile returns the path to the config file that was loaded
func ConfigFile() string {
	v := viper.New()

	v.SetConfigName("toolhost")
	v.SetConfigType("yaml")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err == nil {
		return v.ConfigFileUsed()
	}

	// Try the dotfile form
	v.SetConfigName(".toolhost")
	if err := v.ReadInConfig(); err == nil {
		return v.ConfigFileUsed()
	}

	return ""
}
