package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultLogLevel            = "info"
	DefaultLogPath             = "" // stderr
	DefaultSourceType          = SourceSystem
	DefaultCredentialStore     = StoreSystem
	DefaultPacExecutionTimeout = 5   // seconds
	DefaultPacPollIntervalMs   = 100 // milliseconds
	DefaultPacFetchTimeout     = 4   // seconds, inside the execution timeout
	DefaultPacScriptTTL        = 60  // seconds
	DefaultPacCharset          = ""  // from Content-Type, else UTF-8
	DefaultStatsInterval       = 300 // seconds

	EnvPrefix = "HOSTPROXY"
)

// Network configuration sources.
const (
	SourceSystem = "system"
	SourceEnv    = "env"
	SourceFile   = "file"
)

// Credential stores.
const (
	StoreSystem = "system"
	StoreFile   = "file"
	StoreNone   = "none"
)

// Config holds the application configuration.
type Config struct {
	LogLevel    string            `mapstructure:"log_level"`
	LogPath     string            `mapstructure:"log_path"`
	Source      SourceConfig      `mapstructure:"source"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	PAC         PACConfig         `mapstructure:"pac"`
	Service     ServiceConfig     `mapstructure:"service"`
}

// SourceConfig selects where the proxy configuration is read from.
type SourceConfig struct {
	Type string `mapstructure:"type"` // system, env, file
	Path string `mapstructure:"path"` // For type=file
}

// CredentialsConfig selects where proxy passwords are looked up.
type CredentialsConfig struct {
	Store string `mapstructure:"store"` // system, file, none
	Path  string `mapstructure:"path"`  // For store=file
}

// PACConfig tunes PAC script download and evaluation.
type PACConfig struct {
	ExecutionTimeout int    `mapstructure:"execution_timeout"` // Seconds the resolver waits for a PAC result
	PollIntervalMs   int    `mapstructure:"poll_interval_ms"`
	FetchTimeout     int    `mapstructure:"fetch_timeout"` // Seconds
	ScriptTTL        int    `mapstructure:"script_ttl"`    // Seconds a downloaded script is reused
	Charset          string `mapstructure:"charset"`       // Optional, e.g. "windows-1251"
}

// ServiceConfig configures the resolve service.
type ServiceConfig struct {
	SocketPath    string `mapstructure:"socket_path"`
	StatsInterval int    `mapstructure:"stats_interval"` // Seconds between stats log lines
}

// DefaultSocketPath is the per-user service socket.
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("hostproxy-%d.sock", os.Getuid()))
}

func (p PACConfig) ExecutionTimeoutDuration() time.Duration {
	return time.Duration(p.ExecutionTimeout) * time.Second
}

func (p PACConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

func (p PACConfig) FetchTimeoutDuration() time.Duration {
	return time.Duration(p.FetchTimeout) * time.Second
}

func (p PACConfig) ScriptTTLDuration() time.Duration {
	return time.Duration(p.ScriptTTL) * time.Second
}

// LoadConfig reads configuration from a file, environment variables, and
// defaults. An empty path or a missing file leaves defaults and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// HOSTPROXY_SOURCE_TYPE, HOSTPROXY_PAC_EXECUTION_TIMEOUT, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			slog.Warn("Could not get absolute config path, using provided path", "path", configPath, "error", err)
			absPath = configPath
		}
		v.SetConfigFile(absPath)
		if filepath.Ext(absPath) == "" {
			v.SetConfigType("yaml")
		}

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				slog.Debug("Config file not found, using defaults and environment variables", "path", absPath)
			} else {
				return nil, fmt.Errorf("failed to read config file %s: %w", absPath, err)
			}
		} else {
			slog.Debug("Loaded configuration file", "path", absPath)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	config.Source.Type = strings.ToLower(strings.TrimSpace(config.Source.Type))
	config.Credentials.Store = strings.ToLower(strings.TrimSpace(config.Credentials.Store))

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// validateConfig checks the consistency and validity of the configuration.
func validateConfig(cfg *Config) error {
	switch cfg.Source.Type {
	case SourceSystem, SourceEnv:
	case SourceFile:
		if cfg.Source.Path == "" {
			return errors.New("source.path is required when source.type is file")
		}
	default:
		return fmt.Errorf("invalid source.type '%s', must be one of: system, env, file", cfg.Source.Type)
	}

	switch cfg.Credentials.Store {
	case StoreSystem, StoreNone:
	case StoreFile:
		if cfg.Credentials.Path == "" {
			return errors.New("credentials.path is required when credentials.store is file")
		}
	default:
		return fmt.Errorf("invalid credentials.store '%s', must be one of: system, file, none", cfg.Credentials.Store)
	}

	if cfg.PAC.ExecutionTimeout <= 0 {
		return errors.New("pac.execution_timeout must be a positive number of seconds")
	}
	if cfg.PAC.PollIntervalMs <= 0 {
		return errors.New("pac.poll_interval_ms must be positive")
	}
	if cfg.PAC.FetchTimeout <= 0 {
		return errors.New("pac.fetch_timeout must be a positive number of seconds")
	}
	if cfg.PAC.ScriptTTL <= 0 {
		return errors.New("pac.script_ttl must be a positive number of seconds")
	}
	if cfg.PAC.FetchTimeout > cfg.PAC.ExecutionTimeout {
		slog.Debug("pac.fetch_timeout exceeds pac.execution_timeout, slow downloads will disable the proxy",
			"fetch_timeout", cfg.PAC.FetchTimeout, "execution_timeout", cfg.PAC.ExecutionTimeout)
	}

	if cfg.Service.SocketPath == "" {
		return errors.New("service.socket_path must be specified")
	}
	if cfg.Service.StatsInterval <= 0 {
		return errors.New("service.stats_interval must be a positive number of seconds")
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		slog.Warn("Unknown log_level, falling back to info", "log_level", cfg.LogLevel)
	}
	return nil
}

// setDefaults configures the default values in viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_path", DefaultLogPath)

	v.SetDefault("source.type", DefaultSourceType)
	v.SetDefault("source.path", "")

	v.SetDefault("credentials.store", DefaultCredentialStore)
	v.SetDefault("credentials.path", "")

	v.SetDefault("pac.execution_timeout", DefaultPacExecutionTimeout)
	v.SetDefault("pac.poll_interval_ms", DefaultPacPollIntervalMs)
	v.SetDefault("pac.fetch_timeout", DefaultPacFetchTimeout)
	v.SetDefault("pac.script_ttl", DefaultPacScriptTTL)
	v.SetDefault("pac.charset", DefaultPacCharset)

	v.SetDefault("service.socket_path", DefaultSocketPath())
	v.SetDefault("service.stats_interval", DefaultStatsInterval)
}

// SaveConfig writes cfg to path. The format follows the file extension.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_path", cfg.LogPath)
	v.Set("source.type", cfg.Source.Type)
	v.Set("source.path", cfg.Source.Path)
	v.Set("credentials.store", cfg.Credentials.Store)
	v.Set("credentials.path", cfg.Credentials.Path)
	v.Set("pac.execution_timeout", cfg.PAC.ExecutionTimeout)
	v.Set("pac.poll_interval_ms", cfg.PAC.PollIntervalMs)
	v.Set("pac.fetch_timeout", cfg.PAC.FetchTimeout)
	v.Set("pac.script_ttl", cfg.PAC.ScriptTTL)
	v.Set("pac.charset", cfg.PAC.Charset)
	v.Set("service.socket_path", cfg.Service.SocketPath)
	v.Set("service.stats_interval", cfg.Service.StatsInterval)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to save configuration to %s: %w", path, err)
	}
	if err := os.Chmod(path, 0640); err != nil {
		slog.Warn("Failed to set permissions on saved config file", "path", path, "error", err)
	}
	slog.Info("Configuration saved", "path", path)
	return nil
}
