package config

import (
	"fmt"
	"strings"

	"github.com/vyrodovalexey/avaroute/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Is makes ValidationErrors match util.ErrConfigInvalid.
func (e ValidationErrors) Is(target error) bool {
	return target == util.ErrConfigInvalid
}

type validator struct {
	errors ValidationErrors
}

func (v *validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

// ValidateConfig validates a service configuration.
func ValidateConfig(cfg *Config) error {
	v := &validator{}
	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&cfg.Server)
	v.validateLogging(&cfg.Logging)
	v.validateRoutes(&cfg.Routes)
	v.validateAssets(&cfg.Assets)
	v.validateFunctions(&cfg.Functions)
	v.validateMiddleware(&cfg.Middleware)
	v.validateCache(&cfg.Cache)
	v.validateRateLimit(cfg.RateLimit)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *validator) validateServer(s *ServerConfig) {
	if s.Listen == "" {
		v.addError("server.listen", "listen address is required")
	}
	if s.MaxBodySize < 0 {
		v.addError("server.maxBodySize", "must be non-negative")
	}
}

func (v *validator) validateLogging(l *LoggingConfig) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("unknown level %q", l.Level))
	}
	if l.Format != "json" && l.Format != "console" {
		v.addError("logging.format", "format must be json or console")
	}
}

func (v *validator) validateRoutes(r *RoutesConfig) {
	if r.Path == "" {
		v.addError("routes.path", "route file path is required")
	}
	if r.MaxCheckDepth < 0 {
		v.addError("routes.maxCheckDepth", "must be non-negative")
	}
}

func (v *validator) validateAssets(a *AssetsConfig) {
	if a.Manifest == "" {
		v.addError("assets.manifest", "manifest path is required")
	}
	switch a.Blobs.Type {
	case BlobStoreDir, "":
		if a.Blobs.Dir == "" {
			v.addError("assets.blobs.dir", "directory is required for dir blob store")
		}
	case BlobStoreS3:
		if a.Blobs.S3 == nil || a.Blobs.S3.Bucket == "" {
			v.addError("assets.blobs.s3.bucket", "bucket is required for s3 blob store")
		} else if a.Blobs.S3.Region == "" {
			v.addError("assets.blobs.s3.region", "region is required for s3 blob store")
		}
	default:
		v.addError("assets.blobs.type", fmt.Sprintf("unknown blob store type %q", a.Blobs.Type))
	}
}

func (v *validator) validateFunctions(f *FunctionsConfig) {
	if f.BaseURL != "" {
		if err := util.ValidateURL(f.BaseURL); err != nil {
			v.addError("functions.baseURL", err.Error())
		}
	}
	if f.CircuitBreaker != nil && f.CircuitBreaker.Enabled && f.CircuitBreaker.Threshold < 0 {
		v.addError("functions.circuitBreaker.threshold", "must be non-negative")
	}
	if f.Retry != nil && f.Retry.MaxRetries < 0 {
		v.addError("functions.retry.maxRetries", "must be non-negative")
	}
}

func (v *validator) validateMiddleware(m *MiddlewareConfig) {
	if m.BaseURL == "" {
		return
	}
	if err := util.ValidateURL(m.BaseURL); err != nil {
		v.addError("middleware.baseURL", err.Error())
	}
}

func (v *validator) validateCache(c *CacheConfig) {
	if !c.Enabled {
		return
	}
	if c.ServiceID == "" {
		v.addError("cache.serviceId", "service id is required when cache is enabled")
	}
	if strings.ContainsAny(c.ServiceID, ":") {
		v.addError("cache.serviceId", "service id must not contain ':'")
	}
	switch c.Type {
	case CacheTypeMemory, "":
	case CacheTypeRedis:
		if c.Redis == nil {
			v.addError("cache.redis", "redis configuration is required")
		} else if c.Redis.URL == "" && (c.Redis.Sentinel == nil || c.Redis.Sentinel.MasterName == "") {
			v.addError("cache.redis.url", "url or sentinel is required")
		}
	default:
		v.addError("cache.type", fmt.Sprintf("unknown cache type %q", c.Type))
	}
}

func (v *validator) validateRateLimit(rl *RateLimitConfig) {
	if rl == nil || !rl.Enabled {
		return
	}
	if rl.RequestsPerSecond <= 0 {
		v.addError("rateLimit.requestsPerSecond", "must be positive")
	}
	if rl.Burst <= 0 {
		v.addError("rateLimit.burst", "must be positive")
	}
}
