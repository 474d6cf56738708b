package functions

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/proxy"
)

// DefaultMaxResponseSize caps buffered runtime responses.
const DefaultMaxResponseSize = 32 << 20

// runtimeClient sends routed requests to <baseURL>/<name>.
type runtimeClient struct {
	http    *http.Client
	baseURL *url.URL
	maxSize int64
}

func newRuntimeClient(baseURL string, timeout time.Duration) (*runtimeClient, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("invalid runtime base URL %q", baseURL)
	}
	return &runtimeClient{
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: u,
		maxSize: DefaultMaxResponseSize,
	}, nil
}

func (c *runtimeClient) endpoint(name string) string {
	u := *c.baseURL
	escaped := strings.TrimSuffix(u.EscapedPath(), "/") + "/" + url.PathEscape(name)
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + name
	u.RawPath = escaped
	return u.String()
}

// response is a buffered runtime response.
type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *runtimeClient) do(ctx context.Context, name string, req *Request) (*response, error) {
	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, c.endpoint(name), body)
	if err != nil {
		return nil, err
	}
	hreq.Header = req.Header.Clone()
	proxy.RemoveHopHeaders(hreq.Header)
	hreq.Header.Set(HeaderInvokePath, req.URL)
	if req.Path != "" {
		hreq.Header.Set(HeaderMatchedPath, req.Path)
	}
	if req.Matches != "" {
		hreq.Header.Set(HeaderRouteMatches, req.Matches)
	}
	observability.InjectTraceContext(ctx, hreq)

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime response: %w", err)
	}
	if int64(len(data)) > c.maxSize {
		return nil, fmt.Errorf("runtime response exceeds %d bytes", c.maxSize)
	}

	header := resp.Header.Clone()
	proxy.RemoveHopHeaders(header)
	header.Del("Content-Length")
	return &response{status: resp.StatusCode, header: header, body: data}, nil
}
