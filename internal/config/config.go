package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for groundpool.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   toml:"server"`
	Auth     AuthConfig     `mapstructure:"auth"     toml:"auth"`
	Pool     PoolConfig     `mapstructure:"pool"     toml:"pool"`
	Upstream UpstreamConfig `mapstructure:"upstream" toml:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"    toml:"cache"`
	Tracing  TracingConfig  `mapstructure:"tracing"  toml:"tracing"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  toml:"metrics"`
}

// ServerConfig holds the core HTTP server settings.
type ServerConfig struct {
	Port         int    `mapstructure:"port"          toml:"port"`
	LogLevel     string `mapstructure:"log_level"     toml:"log_level"`
	DataDir      string `mapstructure:"data_dir"      toml:"data_dir"`
	Region       string `mapstructure:"region"        toml:"region"`
	TLSEnabled   bool   `mapstructure:"tls_enabled"   toml:"tls_enabled"`
	CertFile     string `mapstructure:"cert_file"     toml:"cert_file"`
	KeyFile      string `mapstructure:"key_file"      toml:"key_file"`
	ReadTimeout  int    `mapstructure:"read_timeout"  toml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" toml:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"  toml:"idle_timeout"`
}

// AuthConfig protects the admin endpoints with a bearer token.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Token   string `mapstructure:"token"   toml:"token"`
}

// PoolConfig controls the agent pool: where the agents document lives,
// whether to watch it for changes, and the model assumed when a request
// does not name one.
type PoolConfig struct {
	AgentsFile   string `mapstructure:"agents_file"   toml:"agents_file"`
	Watch        bool   `mapstructure:"watch"         toml:"watch"`
	DefaultModel string `mapstructure:"default_model" toml:"default_model"`
}

// UpstreamConfig describes the grounding backend selected agents are
// dispatched to.
type UpstreamConfig struct {
	Endpoint string `mapstructure:"endpoint" toml:"endpoint"`
	KeyRef   string `mapstructure:"key_ref"  toml:"key_ref"`
	Timeout  int    `mapstructure:"timeout"  toml:"timeout"` // seconds
}

// TimeoutDuration returns the upstream timeout as a time.Duration.
func (u UpstreamConfig) TimeoutDuration() time.Duration {
	if u.Timeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(u.Timeout) * time.Second
}

// CacheConfig controls the in-memory answer cache.
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"     toml:"enabled"`
	TTLSeconds int  `mapstructure:"ttl_seconds" toml:"ttl_seconds"`
	MaxEntries int  `mapstructure:"max_entries" toml:"max_entries"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"` // defaults to "groundpool"
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`  // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`     // skip TLS for dev
}

// MetricsConfig controls request-history retention.
type MetricsConfig struct {
	RetentionDays int `mapstructure:"retention_days" toml:"retention_days"`
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (GROUNDPOOL_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.groundpool/groundpool.toml
//  4. ./groundpool.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Set all defaults from the default config so viper knows every key.
	setViperDefaults(v)

	// Environment variable overlay: GROUNDPOOL_SERVER_PORT etc.
	v.SetEnvPrefix("GROUNDPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Determine which file(s) to read.
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".groundpool"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("groundpool")
	}

	if err := v.ReadInConfig(); err != nil {
		// If no config file exists we still proceed with defaults + env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Store the resolved config file path.
	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Expand ~ in paths.
	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)
	cfg.Pool.AgentsFile = expandHome(cfg.Pool.AgentsFile)

	// Azure App Service sets REGION_NAME; fall back to it when the config
	// does not pin a region explicitly.
	if cfg.Server.Region == "" {
		cfg.Server.Region = regionFromEnv()
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// regionFromEnv resolves the deployment region from the App Service
// convention, then the generic variable, then "local".
func regionFromEnv() string {
	if r := os.Getenv("REGION_NAME"); r != "" {
		return r
	}
	if r := os.Getenv("AZURE_REGION"); r != "" {
		return r
	}
	return "local"
}

// InitConfig writes the default configuration file to
// ~/.groundpool/groundpool.toml. If the file already exists it is not
// overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".groundpool")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	cfg := DefaultConfig()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to the given path in TOML format.
func ExportConfig(path string) error {
	cfg := Get()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ImportConfig reads a TOML config file and makes it the current config.
// The imported config is also persisted to the active config file so changes
// survive restarts.
func ImportConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return err
	}
	set(cfg)

	// Persist to the active config file so changes survive restart.
	if dest := ConfigFilePath(); dest != "" {
		out, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config for persistence: %w", err)
		}
		if err := os.WriteFile(dest, out, 0o600); err != nil {
			return fmt.Errorf("persisting imported config: %w", err)
		}
	}

	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every known key with viper so that env var binding
// works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Server
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.region", d.Server.Region)
	v.SetDefault("server.tls_enabled", d.Server.TLSEnabled)
	v.SetDefault("server.cert_file", d.Server.CertFile)
	v.SetDefault("server.key_file", d.Server.KeyFile)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)

	// Auth
	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.token", d.Auth.Token)

	// Pool
	v.SetDefault("pool.agents_file", d.Pool.AgentsFile)
	v.SetDefault("pool.watch", d.Pool.Watch)
	v.SetDefault("pool.default_model", d.Pool.DefaultModel)

	// Upstream
	v.SetDefault("upstream.endpoint", d.Upstream.Endpoint)
	v.SetDefault("upstream.key_ref", d.Upstream.KeyRef)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)

	// Cache
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl_seconds", d.Cache.TTLSeconds)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)

	// Tracing
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)

	// Metrics
	v.SetDefault("metrics.retention_days", d.Metrics.RetentionDays)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
