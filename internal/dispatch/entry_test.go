package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/avaroute/internal/assets"
)

func intPtr(n int) *int { return &n }

func TestClassify(t *testing.T) {
	t.Parallel()

	created := time.UnixMilli(1_700_000_000_000)
	at := func(d time.Duration) time.Time { return created.Add(d) }

	tests := []struct {
		name  string
		meta  Metadata
		exp   assets.Expiration
		group *GroupMarker
		now   time.Time
		want  Freshness
	}{
		{
			name: "within s-maxage",
			meta: Metadata{SMaxAge: intPtr(60), StaleWhileRevalidate: intPtr(30)},
			now:  at(59 * time.Second),
			want: Fresh,
		},
		{
			name: "inside stale window",
			meta: Metadata{SMaxAge: intPtr(60), StaleWhileRevalidate: intPtr(30)},
			now:  at(61 * time.Second),
			want: Stale,
		},
		{
			name: "past stale window",
			meta: Metadata{SMaxAge: intPtr(60), StaleWhileRevalidate: intPtr(30)},
			now:  at(95 * time.Second),
			want: Expired,
		},
		{
			name: "expired without stale window",
			meta: Metadata{SMaxAge: intPtr(60)},
			now:  at(61 * time.Second),
			want: Expired,
		},
		{
			name: "zero stale window is unbounded",
			meta: Metadata{SMaxAge: intPtr(60), StaleWhileRevalidate: intPtr(0)},
			now:  at(240 * time.Hour),
			want: Stale,
		},
		{
			name: "asset expiration when s-maxage absent",
			exp:  assets.Expiration{Seconds: 10},
			now:  at(9 * time.Second),
			want: Fresh,
		},
		{
			name: "zero s-maxage falls back to asset expiration",
			meta: Metadata{SMaxAge: intPtr(0)},
			exp:  assets.Expiration{Seconds: 10},
			now:  at(9 * time.Second),
			want: Fresh,
		},
		{
			name: "asset expiration elapsed",
			exp:  assets.Expiration{Seconds: 10},
			now:  at(11 * time.Second),
			want: Expired,
		},
		{
			name: "never expires",
			exp:  assets.NeverExpires,
			now:  at(24 * 365 * time.Hour),
			want: Fresh,
		},
		{
			name: "s-maxage overrides never",
			meta: Metadata{SMaxAge: intPtr(5)},
			exp:  assets.NeverExpires,
			now:  at(6 * time.Second),
			want: Expired,
		},
		{
			name:  "group refreshed after creation",
			exp:   assets.NeverExpires,
			group: &GroupMarker{RefreshTimeMs: at(time.Second).UnixMilli()},
			now:   at(2 * time.Second),
			want:  Expired,
		},
		{
			name:  "group refreshed before creation",
			exp:   assets.NeverExpires,
			group: &GroupMarker{RefreshTimeMs: at(-time.Second).UnixMilli()},
			now:   at(2 * time.Second),
			want:  Fresh,
		},
		{
			name:  "group refresh opens stale window",
			meta:  Metadata{StaleWhileRevalidate: intPtr(30)},
			exp:   assets.NeverExpires,
			group: &GroupMarker{RefreshTimeMs: at(time.Second).UnixMilli()},
			now:   at(20 * time.Second),
			want:  Stale,
		},
		{
			name: "no expiration expires immediately",
			now:  at(time.Millisecond),
			want: Expired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			meta := tt.meta
			meta.CreateTimeMs = created.UnixMilli()
			got := Classify(&meta, tt.exp, tt.group, tt.now)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}
