package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/avaroute/internal/cache"
	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/router"
)

// entry is a cached response read back from the store.
type entry struct {
	meta  *Metadata
	body  []byte
	group *GroupMarker
}

func (e *entry) response() *router.Response {
	header := e.meta.Headers.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &router.Response{Status: e.meta.Status, Header: header, Body: e.body}
}

func isMiss(err error) bool {
	return errors.Is(err, cache.ErrCacheMiss) || errors.Is(err, cache.ErrCacheDisabled)
}

// lookup reads metadata, body and group marker concurrently. Any failure
// is reported as a miss.
func (d *Dispatcher) lookup(ctx context.Context, keys Keys) *entry {
	var metaRaw, body, groupRaw []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		metaRaw, err = d.store.Get(gctx, keys.Metadata)
		return err
	})
	g.Go(func() error {
		var err error
		body, err = d.store.Get(gctx, keys.Body)
		return err
	})
	if keys.Group != "" {
		g.Go(func() error {
			var err error
			groupRaw, err = d.store.Get(gctx, keys.Group)
			if isMiss(err) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		if !isMiss(err) {
			d.storeError(ctx, "read", keys.Metadata, err)
		}
		return nil
	}

	meta, err := decodeMetadata(metaRaw)
	if err != nil {
		d.storeError(ctx, "decode", keys.Metadata, err)
		return nil
	}
	e := &entry{meta: meta, body: body}
	if groupRaw != nil {
		var gm GroupMarker
		if err := json.Unmarshal(groupRaw, &gm); err != nil {
			d.storeError(ctx, "decode", keys.Group, err)
			return nil
		}
		e.group = &gm
	}
	return e
}

// writeEntry stores body before metadata so a reader never sees metadata
// without its body.
func (d *Dispatcher) writeEntry(ctx context.Context, keys Keys, meta *Metadata, body []byte) {
	raw, err := json.Marshal(meta)
	if err != nil {
		d.storeError(ctx, "encode", keys.Metadata, err)
		return
	}
	if body == nil {
		body = []byte{}
	}
	if err := d.store.Set(ctx, keys.Body, body, d.storeTTL); err != nil {
		d.storeError(ctx, "write", keys.Body, err)
		return
	}
	if err := d.store.Set(ctx, keys.Metadata, raw, d.storeTTL); err != nil {
		d.storeError(ctx, "write", keys.Metadata, err)
	}
}

func (d *Dispatcher) writeGroup(ctx context.Context, key string, refreshMs int64) error {
	raw, err := json.Marshal(GroupMarker{RefreshTimeMs: refreshMs})
	if err != nil {
		return err
	}
	// Group markers must outlive the entries they invalidate.
	if err := d.store.Set(ctx, key, raw, -1); err != nil {
		d.storeError(ctx, "write", key, err)
		return err
	}
	return nil
}

func (d *Dispatcher) storeError(ctx context.Context, op, key string, err error) {
	getDispatchMetrics().storeErrors.WithLabelValues(op).Inc()
	d.logger.WithContext(ctx).Warn("cache store failure treated as miss",
		observability.String("operation", op),
		observability.String("key", key),
		observability.Error(err),
	)
}
