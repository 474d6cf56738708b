package functions

import (
	"net/http"

	"github.com/vyrodovalexey/avaroute/internal/router"
)

// Headers exchanged with the function runtime.
const (
	HeaderInvokePath   = "X-Invoke-Path"
	HeaderMatchedPath  = "X-Matched-Path"
	HeaderRouteMatches = "X-Route-Matches"
)

// Request is a resolved function invocation. It owns copies of everything
// it carries so it can be replayed after the inbound request completes.
type Request struct {
	Function string
	Method   string
	// Path is the asset path that resolved to the function.
	Path string
	// URL is the routed path and query.
	URL     string
	Header  http.Header
	Body    []byte
	Matches string
}

// NewRequest captures the state of mc for invoking function.
func NewRequest(mc *router.MatchContext, function, path, matches string) (*Request, error) {
	body, err := mc.Body()
	if err != nil {
		return nil, err
	}
	return &Request{
		Function: function,
		Method:   mc.Method,
		Path:     path,
		URL:      mc.URL(),
		Header:   mc.Header.Clone(),
		Body:     body,
		Matches:  matches,
	}, nil
}

// Idempotent reports whether the request may be safely retried.
func (r *Request) Idempotent() bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}
