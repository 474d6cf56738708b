package assets

import (
	"context"
	"fmt"
)

// Registry resolves request paths to assets. It is immutable and safe for
// concurrent use.
type Registry struct {
	assets map[string]*Asset
	blobs  BlobStore
}

// NewRegistry creates a registry over a validated manifest.
func NewRegistry(m *Manifest, blobs BlobStore) *Registry {
	return &Registry{assets: m.Assets, blobs: blobs}
}

// Exists reports whether path names an asset.
func (r *Registry) Exists(path string) bool {
	_, ok := r.assets[path]
	return ok
}

// Lookup returns the asset at path.
func (r *Registry) Lookup(path string) (*Asset, bool) {
	a, ok := r.assets[path]
	return a, ok
}

// Content returns the bytes of a static asset.
func (r *Registry) Content(ctx context.Context, a *Asset) ([]byte, error) {
	if a.Type != KindStatic {
		return nil, fmt.Errorf("asset %s is not static", a.Path)
	}
	if r.blobs == nil {
		return nil, fmt.Errorf("no blob store configured for %s", a.Path)
	}
	return r.blobs.Get(ctx, a.Digest)
}

// Len returns the number of assets.
func (r *Registry) Len() int {
	return len(r.assets)
}
