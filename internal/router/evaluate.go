package router

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/pattern"
	"github.com/vyrodovalexey/avaroute/internal/routes"
	"github.com/vyrodovalexey/avaroute/internal/util"
)

// evaluate runs the rules of one phase against the context. Rule effects
// are applied to the context as they happen.
func (r *Router) evaluate(ctx context.Context, ev *evaluation, phase routes.Phase) (*PhaseResult, error) {
	mc := ev.mc
	ev.current = phase
	res := &PhaseResult{Phase: phase}
	before := mc.Path

	for _, rule := range r.routes.Phase(phase) {
		if err := checkStructure(phase, rule); err != nil {
			return nil, err
		}
		if !rule.AllowsMethod(mc.Method) {
			continue
		}
		// Error rules carrying a status only handle that status.
		if phase == routes.PhaseError && rule.Status != 0 && rule.Status != ev.errStatus {
			continue
		}

		tokens := r.tokens(mc)
		if !matchConditions(rule, mc, tokens) {
			continue
		}
		m := rule.Matcher.Match(mc.Path)
		if m == nil {
			continue
		}

		res.Rule = rule
		res.Check = res.Check || rule.Check

		if target, ok := resolveLocale(rule.Locale, mc); ok && target != mc.Path {
			res.Outcome = Redirect{Status: http.StatusTemporaryRedirect, Location: target}
			return res, nil
		}

		var (
			dest   string
			status int
			cont   = rule.Continue
			inline *Response
		)

		if rule.IsMiddleware() {
			mr, err := r.runMiddleware(ctx, ev, rule)
			if err != nil {
				return nil, err
			}
			dest, status, cont, inline = mr.Dest, mr.Status, mr.Continue, mr.Response
			applyMiddlewareHeaders(mc, mr)
		} else {
			if rule.Dest != "" {
				dest = pattern.Substitute(rule.Dest, m, tokens)
			}
			if phase != routes.PhaseError {
				status = rule.Status
			}
			replace := rule.Override && phase.AllowsHeaderOverride()
			for _, h := range rule.Headers {
				mc.SetResponseHeader(h.Name, pattern.Substitute(h.Value, m, tokens), replace)
			}
		}

		if status != 0 {
			mc.Status = status
		}
		if dest != "" {
			res.Matches = encodeMatches(m)
			ev.matches = res.Matches
		}

		if dest != "" && util.IsAbsoluteURL(dest) {
			res.Outcome = Proxy{URL: dest}
			return res, nil
		}
		if util.IsRedirectStatus(status) {
			location := mc.ResponseHeader().Get("Location")
			if location == "" {
				location = dest
			}
			if location != "" {
				res.Outcome = Redirect{Status: status, Location: location}
				return res, nil
			}
		}
		if dest != "" {
			mc.Rewrite(dest)
		}
		if inline != nil {
			res.Outcome = Synthetic{Response: inline}
			return res, nil
		}
		if !cont {
			break
		}
	}

	if phase != routes.PhaseError && mc.Status != 0 && !util.IsSuccessOrRedirect(mc.Status) {
		res.Outcome = Error{Status: mc.Status}
		return res, nil
	}

	d := Dest{Path: mc.Path}
	if phase == routes.PhaseRewrite {
		d.OriginalPath = before
	}
	res.Outcome = d
	return res, nil
}

// tokens returns the extra substitution tokens available to every rule.
func (r *Router) tokens(mc *MatchContext) map[string]string {
	tokens := make(map[string]string, 1)
	if v, ok := r.wildcard[mc.Host]; ok {
		tokens["wildcard"] = v
	}
	return tokens
}

// checkStructure rejects rules a phase cannot honor.
func checkStructure(phase routes.Phase, rule *routes.Rule) error {
	switch {
	case phase == routes.PhaseHit && (rule.Dest != "" || rule.Status != 0 || rule.Check || !rule.Continue):
		return util.NewStructuralError(string(phase), rule.Index, "hit rules may only add headers and must continue")
	case phase == routes.PhaseError && rule.Check:
		return util.NewStructuralError(string(phase), rule.Index, "error rules cannot check the filesystem")
	case rule.IsMiddleware() && phase != routes.PhaseNull:
		return util.NewStructuralError(string(phase), rule.Index, "middleware outside the null phase")
	}
	return nil
}

func (r *Router) runMiddleware(ctx context.Context, ev *evaluation, rule *routes.Rule) (mr *MiddlewareResult, err error) {
	if r.hooks.Middleware == nil {
		return nil, r.executionFailure("middleware", fmt.Errorf("no executor for middleware %q", rule.Middleware))
	}

	defer func() {
		if p := recover(); p != nil {
			mr = nil
			err = r.executionFailure("middleware", fmt.Errorf("panic in middleware %q: %v", rule.Middleware, p))
		}
	}()

	mr, err = r.hooks.Middleware.Execute(ctx, rule.Middleware, ev.mc)
	if err != nil {
		return nil, r.executionFailure("middleware", fmt.Errorf("middleware %q: %w", rule.Middleware, err))
	}
	if mr == nil {
		mr = &MiddlewareResult{Continue: true}
	}

	ev.logger.Debug("middleware executed",
		observability.String("middleware", rule.Middleware),
		observability.Bool("continue", mr.Continue),
		observability.String("dest", mr.Dest))

	return mr, nil
}

func applyMiddlewareHeaders(mc *MatchContext, mr *MiddlewareResult) {
	for name, vals := range mr.RequestHeaders {
		if len(vals) == 0 {
			mc.SetRequestHeader(name, "")
			continue
		}
		mc.SetRequestHeader(name, vals[0])
		for _, v := range vals[1:] {
			mc.Header.Add(name, v)
		}
	}
	for name, vals := range mr.Headers {
		for i, v := range vals {
			if i == 0 {
				mc.SetResponseHeader(name, v, true)
				continue
			}
			mc.respHeader.Add(name, v)
		}
	}
}

func (r *Router) executionFailure(hook string, err error) error {
	getRouterMetrics().executionErrors.WithLabelValues(hook).Inc()
	return &halt{status: http.StatusInternalServerError, err: util.NewExecutionError(hook, err)}
}
