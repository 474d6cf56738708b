package dispatch

import (
	"net/url"
	"sort"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// segmentReserved reports whether c must be escaped in a key segment.
func segmentReserved(c byte, query bool) bool {
	switch c {
	case '%', '#', '?', '*', '[', ']', '\n', '\r', ':', ';':
		return true
	case '&', '=':
		return query
	}
	return false
}

// EncodeKvSegment percent-encodes the characters that delimit store keys.
// The escape character itself is encoded, so the mapping is injective.
func EncodeKvSegment(s string) string {
	return encodeSegment(s, false)
}

func encodeSegment(s string, query bool) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if segmentReserved(s[i], query) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if segmentReserved(c, query) {
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&15])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// EncodeQuery serializes the query for a cache key. A nil allow list keeps
// every key in sorted order; otherwise only the listed keys are kept, in
// list order.
func EncodeQuery(q url.Values, allow []string) string {
	keys := allow
	if allow == nil {
		keys = make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	var b strings.Builder
	for _, k := range keys {
		vals, ok := q[k]
		if !ok {
			continue
		}
		ek := encodeSegment(k, true)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(ek)
			b.WriteByte('=')
			b.WriteString(encodeSegment(v, true))
		}
	}
	return b.String()
}

// Keys are the store keys of one cache entry.
type Keys struct {
	Body     string
	Metadata string
	// Group is empty when the asset has no prerender group.
	Group string
}

// EntryKeys derives the store keys for path and query.
func EntryKeys(serviceID, path string, q url.Values, allow []string, group string) Keys {
	id := serviceID + ":" + EncodeKvSegment(path) + ":" + EncodeQuery(q, allow)
	k := Keys{Body: "e" + id, Metadata: "m" + id}
	if group != "" {
		k.Group = GroupKey(serviceID, group)
	}
	return k
}

// GroupKey returns the key of a prerender group's refresh marker.
func GroupKey(serviceID, group string) string {
	return "g" + serviceID + ":" + EncodeKvSegment(group)
}
