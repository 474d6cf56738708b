package config

import "time"

// Cache backend types.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// Blob store types.
const (
	BlobStoreDir = "dir"
	BlobStoreS3  = "s3"
)

// DefaultCacheControl is applied to every response unless a rule or the
// response itself sets cache-control.
const DefaultCacheControl = "public, max-age=0, must-revalidate"

// Config is the root service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Admin      AdminConfig      `yaml:"admin" json:"admin"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Tracing    TracingConfig    `yaml:"tracing" json:"tracing"`
	Routes     RoutesConfig     `yaml:"routes" json:"routes"`
	Assets     AssetsConfig     `yaml:"assets" json:"assets"`
	Functions  FunctionsConfig  `yaml:"functions" json:"functions"`
	Middleware MiddlewareConfig `yaml:"middleware" json:"middleware"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	RateLimit  *RateLimitConfig `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
}

// ServerConfig configures the public HTTP listener.
type ServerConfig struct {
	Listen          string   `yaml:"listen" json:"listen"`
	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout     Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// MaxBodySize caps the request body in bytes. Zero disables the limit.
	MaxBodySize int64 `yaml:"maxBodySize,omitempty" json:"maxBodySize,omitempty"`

	// TrustedProxies lists CIDRs or addresses whose X-Forwarded-For is
	// believed when identifying clients.
	TrustedProxies []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty"`
}

// AdminConfig configures the metrics and health listener.
type AdminConfig struct {
	Listen      string `yaml:"listen" json:"listen"`
	MetricsPath string `yaml:"metricsPath,omitempty" json:"metricsPath,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// RoutesConfig points at the build-output routing file.
type RoutesConfig struct {
	Path  string `yaml:"path" json:"path"`
	Watch bool   `yaml:"watch" json:"watch"`

	// Wildcard maps a request host to the value substituted for $wildcard.
	Wildcard map[string]string `yaml:"wildcard,omitempty" json:"wildcard,omitempty"`

	DefaultCacheControl string `yaml:"defaultCacheControl,omitempty" json:"defaultCacheControl,omitempty"`

	// MaxCheckDepth bounds the filesystem/miss/rewrite recursion.
	MaxCheckDepth int `yaml:"maxCheckDepth,omitempty" json:"maxCheckDepth,omitempty"`
}

// AssetsConfig describes where the build output lives.
type AssetsConfig struct {
	Manifest string          `yaml:"manifest" json:"manifest"`
	Blobs    BlobStoreConfig `yaml:"blobs" json:"blobs"`
}

// BlobStoreConfig selects the content-addressed store for static assets.
type BlobStoreConfig struct {
	Type string         `yaml:"type" json:"type"`
	Dir  string         `yaml:"dir,omitempty" json:"dir,omitempty"`
	S3   *S3BlobsConfig `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// S3BlobsConfig configures an S3 (or S3-compatible) blob store.
type S3BlobsConfig struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	UsePathStyle    bool   `yaml:"usePathStyle,omitempty" json:"usePathStyle,omitempty"`
	AccessKeyID     string `yaml:"accessKeyID,omitempty" json:"accessKeyID,omitempty"`
	SecretAccessKey string `yaml:"secretAccessKey,omitempty" json:"secretAccessKey,omitempty"`
}

// FunctionsConfig configures the function runtime the executor talks to.
type FunctionsConfig struct {
	BaseURL        string                `yaml:"baseURL" json:"baseURL"`
	Timeout        Duration              `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
	Retry          *RetryConfig          `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// MiddlewareConfig configures the middleware runtime.
type MiddlewareConfig struct {
	BaseURL string   `yaml:"baseURL,omitempty" json:"baseURL,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// CircuitBreakerConfig configures the per-function circuit breaker.
type CircuitBreakerConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Threshold int      `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Timeout   Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// RetryConfig configures retries of idempotent function calls.
type RetryConfig struct {
	MaxRetries     int      `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`
	InitialBackoff Duration `yaml:"initialBackoff,omitempty" json:"initialBackoff,omitempty"`
	MaxBackoff     Duration `yaml:"maxBackoff,omitempty" json:"maxBackoff,omitempty"`
}

// CacheConfig configures the key/value store backing the dispatch cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Type    string `yaml:"type" json:"type"`

	// ServiceID namespaces all keys written by this deployment.
	ServiceID string `yaml:"serviceId,omitempty" json:"serviceId,omitempty"`

	// TTL is the store-level time-to-live. Zero keeps entries until evicted;
	// freshness is decided by entry metadata, not by the store.
	TTL Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	MaxEntries int `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`

	// BackgroundTimeout bounds each regeneration task.
	BackgroundTimeout Duration `yaml:"backgroundTimeout,omitempty" json:"backgroundTimeout,omitempty"`

	Redis *RedisCacheConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisCacheConfig contains Redis-specific cache configuration.
type RedisCacheConfig struct {
	// URL is the connection URL for standalone mode.
	// Format: redis://[user:password@]host:port[/db]
	URL string `yaml:"url" json:"url"`

	Sentinel *RedisSentinelConfig `yaml:"sentinel,omitempty" json:"sentinel,omitempty"`

	PoolSize       int      `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`
	ConnectTimeout Duration `yaml:"connectTimeout,omitempty" json:"connectTimeout,omitempty"`
	ReadTimeout    Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout   Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	KeyPrefix      string   `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}

// RedisSentinelConfig contains Redis Sentinel configuration.
type RedisSentinelConfig struct {
	MasterName       string   `yaml:"masterName" json:"masterName"`
	SentinelAddrs    []string `yaml:"sentinelAddrs" json:"sentinelAddrs"`
	SentinelPassword string   `yaml:"sentinelPassword,omitempty" json:"sentinelPassword,omitempty"`
	Password         string   `yaml:"password,omitempty" json:"password,omitempty"`
	DB               int      `yaml:"db,omitempty" json:"db,omitempty"`
}

// RateLimitConfig configures inbound rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerSecond int  `yaml:"requestsPerSecond" json:"requestsPerSecond"`
	Burst             int  `yaml:"burst" json:"burst"`
	PerClient         bool `yaml:"perClient,omitempty" json:"perClient,omitempty"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
			MaxBodySize:     10 << 20,
		},
		Admin: AdminConfig{
			Listen:      ":9090",
			MetricsPath: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			SamplingRate: 1.0,
			ServiceName:  "avaroute",
		},
		Routes: RoutesConfig{
			Path:                "config.json",
			Watch:               true,
			DefaultCacheControl: DefaultCacheControl,
			MaxCheckDepth:       50,
		},
		Assets: AssetsConfig{
			Manifest: "manifest.yaml",
			Blobs:    BlobStoreConfig{Type: BlobStoreDir, Dir: "static"},
		},
		Functions: FunctionsConfig{
			Timeout: Duration(30 * time.Second),
		},
		Middleware: MiddlewareConfig{
			Timeout: Duration(10 * time.Second),
		},
		Cache: CacheConfig{
			Enabled:           true,
			Type:              CacheTypeMemory,
			ServiceID:         "default",
			MaxEntries:        10000,
			BackgroundTimeout: Duration(30 * time.Second),
		},
	}
}
