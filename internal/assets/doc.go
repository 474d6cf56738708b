// Package assets describes the build output the router dispatches to.
//
// A manifest maps request paths to static files (stored by content digest
// in a BlobStore) or to functions (executed by the function runtime,
// optionally with prerender settings for incremental regeneration).
// Registry answers the router's filesystem checks from the manifest.
package assets
