package router

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Snapshot is the rollback state of a MatchContext.
type Snapshot struct {
	Path  string
	Query url.Values
}

// MatchContext is the per-request state threaded through evaluation. It is
// not safe for concurrent use.
type MatchContext struct {
	Method string
	// Host is the request host without port, lower-cased.
	Host      string
	Path      string
	Query     url.Values
	Header    http.Header
	RequestID string

	// RemoteAddr and TLS describe the inbound connection.
	RemoteAddr string
	TLS        bool

	// Status is the response status set by rules; zero means unset.
	Status int

	// Phase and Outcome record which phase produced the response and how.
	// Route sets them before returning.
	Phase   string
	Outcome string

	respHeader http.Header

	cookies map[string]string

	bodySrc  io.Reader
	bodyMax  int64
	body     []byte
	bodyRead bool
	bodyErr  error
}

// NewMatchContext builds a context from an inbound request. The request
// body is read lazily on the first call to Body.
func NewMatchContext(r *http.Request) *MatchContext {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	path := r.URL.Path
	if path == "" {
		path = "/"
	}

	mc := &MatchContext{
		Method:     r.Method,
		Host:       strings.ToLower(host),
		Path:       path,
		Query:      r.URL.Query(),
		Header:     r.Header.Clone(),
		RemoteAddr: r.RemoteAddr,
		TLS:        r.TLS != nil,
		respHeader: make(http.Header),
	}
	if mc.Header == nil {
		mc.Header = make(http.Header)
	}
	if r.Body != nil && r.Body != http.NoBody && hasBody(r.Method) {
		mc.bodySrc = r.Body
	}
	return mc
}

func hasBody(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}

// SetBodyLimit caps the number of bytes Body will read. Zero means no limit.
func (mc *MatchContext) SetBodyLimit(n int64) {
	mc.bodyMax = n
}

// Body returns the request body, reading it on first use. It is nil for GET
// and HEAD requests.
func (mc *MatchContext) Body() ([]byte, error) {
	if mc.bodyRead {
		return mc.body, mc.bodyErr
	}
	mc.bodyRead = true
	if mc.bodySrc == nil {
		return nil, nil
	}

	src := mc.bodySrc
	if mc.bodyMax > 0 {
		src = io.LimitReader(src, mc.bodyMax+1)
	}
	data, err := io.ReadAll(src)
	switch {
	case err != nil:
		mc.bodyErr = fmt.Errorf("failed to read request body: %w", err)
	case mc.bodyMax > 0 && int64(len(data)) > mc.bodyMax:
		mc.bodyErr = fmt.Errorf("request body exceeds %d bytes", mc.bodyMax)
	default:
		mc.body = data
	}
	return mc.body, mc.bodyErr
}

// Cookies returns the request cookies by name, parsed on first use.
func (mc *MatchContext) Cookies() map[string]string {
	if mc.cookies != nil {
		return mc.cookies
	}
	req := &http.Request{Header: http.Header{"Cookie": mc.Header.Values("Cookie")}}
	parsed := req.Cookies()
	mc.cookies = make(map[string]string, len(parsed))
	for _, c := range parsed {
		if _, dup := mc.cookies[c.Name]; !dup {
			mc.cookies[c.Name] = c.Value
		}
	}
	return mc.cookies
}

// SetRequestHeader replaces a request header. An empty value removes it.
func (mc *MatchContext) SetRequestHeader(name, value string) {
	if value == "" {
		mc.Header.Del(name)
	} else {
		mc.Header.Set(name, value)
	}
	if http.CanonicalHeaderKey(name) == "Cookie" {
		mc.cookies = nil
	}
}

// SetResponseHeader sets a response header. An existing value is kept
// unless replace is true. It reports whether the header was written.
func (mc *MatchContext) SetResponseHeader(name, value string, replace bool) bool {
	if !replace && mc.respHeader.Get(name) != "" {
		return false
	}
	mc.respHeader.Set(name, value)
	return true
}

// ResponseHeader returns the accumulated response headers.
func (mc *MatchContext) ResponseHeader() http.Header {
	return mc.respHeader
}

// Snapshot captures path and query.
func (mc *MatchContext) Snapshot() Snapshot {
	return Snapshot{Path: mc.Path, Query: cloneValues(mc.Query)}
}

// Restore rolls path and query back to s.
func (mc *MatchContext) Restore(s Snapshot) {
	mc.Path = s.Path
	mc.Query = cloneValues(s.Query)
}

// Rewrite points the context at dest. A query string in dest is merged
// into the current query, replacing keys it names.
func (mc *MatchContext) Rewrite(dest string) {
	path, rawQuery, hasQuery := strings.Cut(dest, "?")
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	mc.Path = path

	if !hasQuery {
		return
	}
	extra, err := url.ParseQuery(rawQuery)
	if err != nil {
		return
	}
	if mc.Query == nil {
		mc.Query = make(url.Values, len(extra))
	}
	for k, v := range extra {
		mc.Query[k] = v
	}
}

// URL returns the current path and query.
func (mc *MatchContext) URL() string {
	if len(mc.Query) == 0 {
		return mc.Path
	}
	return mc.Path + "?" + mc.Query.Encode()
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return url.Values{}
	}
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
