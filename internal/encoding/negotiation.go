package encoding

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/avaroute/internal/observability"
)

// Content types the router renders itself.
const (
	ContentTypeJSON = "application/json"
	ContentTypeHTML = "text/html"
	ContentTypeText = "text/plain"
)

// Negotiator handles content type negotiation.
type Negotiator interface {
	// Negotiate selects the best content type based on the Accept header.
	Negotiate(acceptHeader string) string
}

// negotiator implements the Negotiator interface.
type negotiator struct {
	logger         observability.Logger
	supportedTypes []string
	defaultType    string
}

// NegotiatorOption is a functional option for configuring the negotiator.
type NegotiatorOption func(*negotiator)

// WithDefaultType sets the default content type.
func WithDefaultType(contentType string) NegotiatorOption {
	return func(n *negotiator) {
		n.defaultType = contentType
	}
}

// WithNegotiatorLogger sets the logger for the negotiator.
func WithNegotiatorLogger(logger observability.Logger) NegotiatorOption {
	return func(n *negotiator) {
		n.logger = logger
	}
}

// NewNegotiator creates a new content type negotiator. Supported types are
// listed in server preference order.
func NewNegotiator(supportedTypes []string, opts ...NegotiatorOption) Negotiator {
	n := &negotiator{
		logger:         observability.NopLogger(),
		supportedTypes: supportedTypes,
		defaultType:    ContentTypeJSON,
	}

	for _, opt := range opts {
		opt(n)
	}

	// Ensure we have at least one supported type
	if len(n.supportedTypes) == 0 {
		n.supportedTypes = []string{n.defaultType}
	}

	return n
}

// Negotiate selects the best content type based on the Accept header.
func (n *negotiator) Negotiate(acceptHeader string) string {
	if acceptHeader == "" {
		getMetrics().negotiations.WithLabelValues(n.defaultType, "default").Inc()
		return n.defaultType
	}

	mediaTypes := parseAcceptHeader(acceptHeader)

	// Highest quality first; ties keep the client's order.
	sort.SliceStable(mediaTypes, func(i, j int) bool {
		return mediaTypes[i].quality > mediaTypes[j].quality
	})

	for _, mt := range mediaTypes {
		if mt.quality <= 0 {
			break
		}
		for _, supported := range n.supportedTypes {
			if matchMediaType(mt.mediaType, supported) {
				n.logger.Debug("content type negotiated",
					observability.String("accept", acceptHeader),
					observability.String("selected", supported))
				getMetrics().negotiations.WithLabelValues(supported, "matched").Inc()
				return supported
			}
		}
	}

	n.logger.Debug("no matching content type, using default",
		observability.String("accept", acceptHeader),
		observability.String("default", n.defaultType))
	getMetrics().negotiations.WithLabelValues(n.defaultType, "default").Inc()

	return n.defaultType
}

// mediaType represents a parsed media type from the Accept header.
type mediaType struct {
	mediaType string
	quality   float64
}

// parseAcceptHeader parses an Accept header into media types with quality values.
// Example: "application/json, text/html;q=0.9, */*;q=0.8"
func parseAcceptHeader(header string) []mediaType {
	parts := strings.Split(header, ",")
	result := make([]mediaType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		mt := mediaType{quality: 1.0}

		segments := strings.Split(part, ";")
		mt.mediaType = strings.ToLower(strings.TrimSpace(segments[0]))

		for _, segment := range segments[1:] {
			segment = strings.TrimSpace(segment)
			if qStr, ok := strings.CutPrefix(segment, "q="); ok {
				if q, err := strconv.ParseFloat(qStr, 64); err == nil {
					mt.quality = q
				}
			}
		}

		result = append(result, mt)
	}

	return result
}

// matchMediaType checks if a requested media type matches a supported type.
// Supports wildcards (*/*) and partial wildcards (text/*).
func matchMediaType(requested, supported string) bool {
	if requested == supported || requested == "*/*" {
		return true
	}

	if prefix, ok := strings.CutSuffix(requested, "/*"); ok {
		return strings.HasPrefix(supported, prefix+"/")
	}

	return false
}
