package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/router"
)

const tracerName = "avaroute/proxy"

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// RemoveHopHeaders deletes hop-by-hop headers from h, including any named
// in its Connection header.
func RemoveHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// Forwarder sends a routed request to an absolute URL.
type Forwarder struct {
	client *http.Client
	logger observability.Logger
}

// Option is a functional option for configuring the forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger for the forwarder.
func WithLogger(logger observability.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithTransport sets the transport used for upstream requests.
func WithTransport(transport http.RoundTripper) Option {
	return func(f *Forwarder) {
		f.client.Transport = transport
	}
}

// WithTimeout bounds each upstream request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		f.client.Timeout = d
	}
}

// NewForwarder creates a forwarder. Redirects from upstream are returned to
// the client rather than followed.
func NewForwarder(opts ...Option) *Forwarder {
	f := &Forwarder{
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward sends the request held by mc to target. The returned response
// streams the upstream body; the caller must close it.
func (f *Forwarder) Forward(ctx context.Context, target string, mc *router.MatchContext) (*router.Response, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, NewInvalidTargetError(target, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, NewInvalidTargetError(target, nil)
	}
	if u.RawQuery == "" && len(mc.Query) > 0 {
		u.RawQuery = mc.Query.Encode()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "proxy.Forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", mc.Method),
			attribute.String("proxy.host", u.Host),
		),
	)
	defer span.End()

	body, err := mc.Body()
	if err != nil {
		return nil, NewProxyError("read", target, "failed to read request body", err)
	}
	var reader io.Reader = http.NoBody
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, mc.Method, u.String(), reader)
	if err != nil {
		return nil, NewProxyError("build", target, "failed to build upstream request", err)
	}
	f.director(req, mc)
	observability.InjectTraceContext(ctx, req)

	start := time.Now()
	resp, err := f.client.Do(req)
	m := getProxyMetrics()
	m.upstreamDuration.WithLabelValues(u.Host).Observe(time.Since(start).Seconds())
	if err != nil {
		errType, cause := classify(err)
		m.errorsTotal.WithLabelValues(errType).Inc()
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		f.logger.Warn("proxy request failed",
			observability.String("target", target),
			observability.String("error_type", errType),
			observability.Error(err),
		)
		return nil, NewProxyError("forward", target, "upstream request failed", errors.Join(cause, err))
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	header := resp.Header.Clone()
	RemoveHopHeaders(header)
	header.Del("Content-Length")

	return &router.Response{
		Status: resp.StatusCode,
		Header: header,
		Stream: resp.Body,
	}, nil
}

// director prepares the outbound request headers.
func (f *Forwarder) director(req *http.Request, mc *router.MatchContext) {
	req.Header = mc.Header.Clone()
	RemoveHopHeaders(req.Header)

	if clientIP, _, err := net.SplitHostPort(mc.RemoteAddr); err == nil {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	if mc.TLS {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	if mc.Host != "" {
		req.Header.Set("X-Forwarded-Host", mc.Host)
	}
	if mc.RequestID != "" {
		req.Header.Set(router.HeaderRequestID, mc.RequestID)
	}
}

func classify(err error) (string, error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout", ErrUpstreamTimeout
	}
	return "unavailable", ErrUpstreamUnavailable
}
