package cachecontrol

import (
	"strconv"
	"strings"

	"github.com/vyrodovalexey/avaroute/internal/observability"
)

// Directive names.
const (
	DirectiveSMaxAge              = "s-maxage"
	DirectiveStaleWhileRevalidate = "stale-while-revalidate"
	DirectivePublic               = "public"
	DirectivePrivate              = "private"
	DirectiveNoStore              = "no-store"
	DirectiveNoCache              = "no-cache"
)

// Directives holds the parsed fields. Nil pointers mean the directive was
// absent or unusable.
type Directives struct {
	SMaxAge              *int
	StaleWhileRevalidate *int
	// Public is false when a directive forbids shared caching.
	Public bool
}

// Option configures Parse.
type Option func(*parser)

// WithLogger logs ignored directives at debug level.
func WithLogger(logger observability.Logger) Option {
	return func(p *parser) {
		p.logger = logger
	}
}

type parser struct {
	logger observability.Logger
}

// Parse parses a Cache-Control value. Unknown or malformed directives are
// skipped.
func Parse(value string, opts ...Option) Directives {
	p := &parser{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(p)
	}

	d := Directives{Public: true}
	if strings.TrimSpace(value) == "" {
		return d
	}

	for _, part := range strings.Split(value, ",") {
		name, arg, hasArg := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.ToLower(strings.TrimSpace(name))
		arg = strings.Trim(strings.TrimSpace(arg), `"`)

		switch name {
		case "":
			continue
		case DirectiveSMaxAge:
			d.SMaxAge = p.seconds(name, arg, hasArg)
		case DirectiveStaleWhileRevalidate:
			d.StaleWhileRevalidate = p.seconds(name, arg, hasArg)
		case DirectivePrivate, DirectiveNoStore, DirectiveNoCache:
			d.Public = false
		}
	}
	return d
}

func (p *parser) seconds(name, arg string, hasArg bool) *int {
	if !hasArg {
		p.logger.Debug("cache-control directive without value",
			observability.String("directive", name))
		return nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		p.logger.Debug("ignoring malformed cache-control directive",
			observability.String("directive", name),
			observability.String("value", arg))
		return nil
	}
	return &n
}
