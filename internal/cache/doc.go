// Package cache provides the key/value stores backing the dispatch cache.
//
// Two backends are available:
//
//   - memory: an in-process LRU with optional per-entry TTL
//   - redis: standalone or sentinel Redis via go-redis, with retries
//
// Stores hold opaque byte values. Freshness of dispatch entries is decided
// by their metadata, so entries are normally written without a TTL.
package cache
