package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/vyrodovalexey/avaroute/internal/encoding"
	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/proxy"
	"github.com/vyrodovalexey/avaroute/internal/router"
)

var (
	redirectPage = template.Must(template.New("redirect").Parse(
		`<!DOCTYPE html><html><head><meta charset="utf-8"><title>{{.Status}}</title></head>` +
			`<body>Redirecting to <a href="{{.Location}}">{{.Location}}</a></body></html>` + "\n"))

	errorPage = template.Must(template.New("error").Parse(
		`<!DOCTYPE html><html><head><meta charset="utf-8"><title>{{.Code}}: {{.Message}}</title></head>` +
			`<body><h1>{{.Code}}</h1><p>{{.Message}}</p></body></html>` + "\n"))
)

// Responder renders redirect, proxy, synthetic and error outcomes.
type Responder struct {
	forwarder  *proxy.Forwarder
	negotiator encoding.Negotiator
	logger     observability.Logger
}

// Option configures a Responder.
type Option func(*Responder)

// WithLogger sets the responder logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *Responder) {
		r.logger = logger
	}
}

// WithForwarder sets the forwarder used for proxy outcomes.
func WithForwarder(f *proxy.Forwarder) Option {
	return func(r *Responder) {
		r.forwarder = f
	}
}

// New creates a responder.
func New(opts ...Option) *Responder {
	r := &Responder{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	if r.forwarder == nil {
		r.forwarder = proxy.NewForwarder(proxy.WithLogger(r.logger))
	}
	r.negotiator = encoding.NewNegotiator(
		[]string{encoding.ContentTypeHTML, encoding.ContentTypeJSON, encoding.ContentTypeText},
		encoding.WithDefaultType(encoding.ContentTypeText),
		encoding.WithNegotiatorLogger(r.logger),
	)
	return r
}

// Respond renders outcome for the request in mc.
func (r *Responder) Respond(ctx context.Context, outcome router.Outcome, mc *router.MatchContext) (*router.Response, error) {
	switch o := outcome.(type) {
	case router.Redirect:
		return r.redirect(o, mc)
	case router.Proxy:
		resp, err := r.forwarder.Forward(ctx, o.URL, mc)
		if err != nil && proxy.IsProxyError(err) {
			r.logger.WithContext(ctx).Warn("proxy upstream failed",
				observability.String("target", o.URL),
				observability.Error(err),
			)
			return r.errorResponse(http.StatusBadGateway, mc)
		}
		return resp, err
	case router.Synthetic:
		if o.Response == nil {
			return nil, errors.New("synthetic outcome without a response")
		}
		if o.Response.Header == nil {
			o.Response.Header = make(http.Header)
		}
		return o.Response, nil
	case router.Error:
		if o.Err != nil {
			r.logger.Debug("rendering error outcome",
				observability.Int("status", o.Status),
				observability.Error(o.Err),
			)
		}
		return r.errorResponse(o.Status, mc)
	default:
		return nil, fmt.Errorf("cannot render %s outcome", outcome.Kind())
	}
}

func (r *Responder) redirect(o router.Redirect, mc *router.MatchContext) (*router.Response, error) {
	data := struct {
		Status   int
		Location string
	}{o.Status, o.Location}

	var body []byte
	contentType := r.negotiator.Negotiate(mc.Header.Get("Accept"))
	switch contentType {
	case encoding.ContentTypeHTML:
		var sb strings.Builder
		if err := redirectPage.Execute(&sb, data); err != nil {
			return nil, err
		}
		body = []byte(sb.String())
	case encoding.ContentTypeJSON:
		var err error
		body, err = json.Marshal(map[string]any{"redirect": o.Location, "status": o.Status})
		if err != nil {
			return nil, err
		}
	default:
		body = fmt.Appendf(nil, "Redirecting to %s (%d)\n", o.Location, o.Status)
	}

	resp := router.NewResponse(o.Status, body)
	resp.Header.Set("Location", o.Location)
	resp.Header.Set("Content-Type", withCharset(contentType))
	return resp, nil
}

// errorBody is the JSON shape of generated error responses.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (r *Responder) errorResponse(status int, mc *router.MatchContext) (*router.Response, error) {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	detail := errorDetail{Code: status, Message: http.StatusText(status)}
	if detail.Message == "" {
		detail.Message = "Error"
	}

	var body []byte
	contentType := r.negotiator.Negotiate(mc.Header.Get("Accept"))
	switch contentType {
	case encoding.ContentTypeHTML:
		var sb strings.Builder
		if err := errorPage.Execute(&sb, detail); err != nil {
			return nil, err
		}
		body = []byte(sb.String())
	case encoding.ContentTypeJSON:
		var err error
		body, err = json.Marshal(errorBody{Error: detail})
		if err != nil {
			return nil, err
		}
	default:
		body = fmt.Appendf(nil, "%d %s\n", detail.Code, detail.Message)
	}

	resp := router.NewResponse(status, body)
	resp.Header.Set("Content-Type", withCharset(contentType))
	resp.Header.Set("X-Content-Type-Options", "nosniff")
	return resp, nil
}

func withCharset(contentType string) string {
	if contentType == encoding.ContentTypeJSON {
		return contentType
	}
	return contentType + "; charset=utf-8"
}
