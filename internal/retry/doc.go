// Package retry provides exponential backoff retries for store and
// function calls.
//
//	err := retry.Do(ctx, cfg, func() error { return call() }, &retry.Options{
//		Operation:   "redis.get",
//		ShouldRetry: retry.IsRetryableNetError,
//	})
package retry
