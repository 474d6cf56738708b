package dispatch

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avaroute/internal/assets"
)

// Metadata describes a cached function response. The body is stored under
// a separate key.
type Metadata struct {
	Status               int         `json:"status"`
	Headers              http.Header `json:"headers"`
	CreateTimeMs         int64       `json:"createTimeMs"`
	SMaxAge              *int        `json:"sMaxAge,omitempty"`
	StaleWhileRevalidate *int        `json:"staleWhileRevalidate,omitempty"`
}

// GroupMarker records when a prerender group was last revalidated.
type GroupMarker struct {
	RefreshTimeMs int64 `json:"refreshTimeMs"`
}

func decodeMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Freshness classifies a cached entry.
type Freshness int

// Freshness values.
const (
	Expired Freshness = iota
	Fresh
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "expired"
	}
}

// Classify decides whether meta can be served at now. The entry's own
// s-maxage overrides the asset expiration; zero counts as unset. A group
// refresh newer than the entry expires it. An expired entry stays servable
// as stale for stale-while-revalidate seconds past its expiry; a window of
// zero is unbounded and an absent window disables stale serving.
func Classify(meta *Metadata, exp assets.Expiration, group *GroupMarker, now time.Time) Freshness {
	nowMs := now.UnixMilli()

	never := exp.Never
	ttl := int64(exp.Seconds)
	if meta.SMaxAge != nil && *meta.SMaxAge > 0 {
		never = false
		ttl = int64(*meta.SMaxAge)
	}

	expiresAt := meta.CreateTimeMs + ttl*1000
	expired := !never && nowMs > expiresAt
	if group != nil && group.RefreshTimeMs > meta.CreateTimeMs {
		expired = true
		if never || group.RefreshTimeMs < expiresAt {
			expiresAt = group.RefreshTimeMs
		}
	}
	if !expired {
		return Fresh
	}

	swr := meta.StaleWhileRevalidate
	switch {
	case swr == nil:
		return Expired
	case *swr == 0:
		return Stale
	case nowMs <= expiresAt+int64(*swr)*1000:
		return Stale
	default:
		return Expired
	}
}

// expirationOf returns the configured expiration of a function asset.
// Functions without prerender settings rely on s-maxage alone.
func expirationOf(a *assets.Asset) assets.Expiration {
	if a.Prerender == nil {
		return assets.Expiration{}
	}
	return a.Prerender.Expiration
}

func cacheableMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}
