package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaroute/internal/util"
)

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "missing listen",
			mutate:  func(c *Config) { c.Server.Listen = "" },
			wantErr: "server.listen",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Assets.Blobs = BlobStoreConfig{Type: BlobStoreS3} },
			wantErr: "assets.blobs.s3.bucket",
		},
		{
			name:    "unknown blob store",
			mutate:  func(c *Config) { c.Assets.Blobs.Type = "gcs" },
			wantErr: "assets.blobs.type",
		},
		{
			name:    "bad function url",
			mutate:  func(c *Config) { c.Functions.BaseURL = "ftp://fn" },
			wantErr: "functions.baseURL",
		},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Cache.Type = CacheTypeRedis; c.Cache.Redis = &RedisCacheConfig{} },
			wantErr: "cache.redis.url",
		},
		{
			name:    "service id with colon",
			mutate:  func(c *Config) { c.Cache.ServiceID = "a:b" },
			wantErr: "cache.serviceId",
		},
		{
			name: "rate limit without burst",
			mutate: func(c *Config) {
				c.RateLimit = &RateLimitConfig{Enabled: true, RequestsPerSecond: 10}
			},
			wantErr: "rateLimit.burst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.Is(err, util.ErrConfigInvalid))
		})
	}
}

func TestValidateConfig_Nil(t *testing.T) {
	t.Parallel()

	err := ValidateConfig(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration is nil")
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())

	errs := ValidationErrors{{Path: "a", Message: "x"}, {Message: "y"}}
	assert.Contains(t, errs.Error(), "2 validation errors")
	assert.Contains(t, errs.Error(), "1. a: x")
	assert.Contains(t, errs.Error(), "2. y")
}
