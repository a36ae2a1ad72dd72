package config

// DefaultPort is the default port for the HTTP server.
const DefaultPort = 8080

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.groundpool"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "groundpool.toml"

// DefaultAgentsFile is the default agents document path (before tilde expansion).
const DefaultAgentsFile = "~/.groundpool/agents.yaml"

// DefaultModel is the model assumed when a request does not name one.
const DefaultModel = "gpt-4o"

// DefaultUpstreamTimeout is the default upstream call timeout in seconds.
// Grounded searches routinely run for tens of seconds.
const DefaultUpstreamTimeout = 60

// DefaultCacheTTL is the default answer cache TTL in seconds. Short on
// purpose: grounded answers go stale with the web.
const DefaultCacheTTL = 120

// DefaultCacheMaxEntries is the default answer cache capacity.
const DefaultCacheMaxEntries = 1000

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
// Set high to accommodate slow grounding runs.
const DefaultWriteTimeout = 120

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultRetentionDays is the default request-history retention in days.
const DefaultRetentionDays = 30

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "groundpool"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultPort,
			LogLevel:     DefaultLogLevel,
			DataDir:      DefaultDataDir,
			Region:       "",
			TLSEnabled:   false,
			CertFile:     "",
			KeyFile:      "",
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
		},
		Auth: AuthConfig{
			Enabled: false,
			Token:   "",
		},
		Pool: PoolConfig{
			AgentsFile:   DefaultAgentsFile,
			Watch:        true,
			DefaultModel: DefaultModel,
		},
		Upstream: UpstreamConfig{
			Endpoint: "",
			KeyRef:   "keyring://groundpool/upstream",
			Timeout:  DefaultUpstreamTimeout,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: DefaultCacheTTL,
			MaxEntries: DefaultCacheMaxEntries,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
		Metrics: MetricsConfig{
			RetentionDays: DefaultRetentionDays,
		},
	}
}
