// Package dispatch serves paths the router resolved to an asset.
//
// Static assets are read from the blob store and always considered fresh.
// Function assets go through a key/value cache with incremental static
// regeneration: fresh entries are served as HIT, expired entries inside
// their stale-while-revalidate window as STALE with a background refresh,
// misses with a prerender fallback as PRERENDER with background
// regeneration, and other misses execute the function inline (MISS).
//
// Cache layout, for entry id <serviceId>:<path>:<query>:
//
//	e<id>                 response body
//	m<id>                 JSON metadata {status, headers, createTimeMs, sMaxAge?, staleWhileRevalidate?}
//	g<serviceId>:<group>  JSON {refreshTimeMs}
//
// Concurrent regenerations of one entry are not coordinated; the last
// writer wins.
package dispatch
