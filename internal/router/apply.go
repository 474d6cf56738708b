package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/routes"
)

// apply acts on a phase result. A nil response with a nil error means the
// phase produced nothing and evaluation moves on.
func (r *Router) apply(ctx context.Context, ev *evaluation, res *PhaseResult) (*Response, error) {
	switch o := res.Outcome.(type) {
	case Dest:
		return r.applyDest(ctx, ev, res, o)
	case Error:
		return nil, &halt{status: o.Status, err: o.Err}
	default:
		ev.decide(res.Phase, o.Kind())
		return r.respond(ctx, ev, o)
	}
}

// applyDest resolves a path against the filesystem. Misses fall through
// the filesystem, miss and rewrite phases depending on the phase that
// produced the path and whether it asked for a check.
func (r *Router) applyDest(ctx context.Context, ev *evaluation, res *PhaseResult, d Dest) (*Response, error) {
	ev.depth++
	if ev.depth > r.maxDepth {
		return nil, &halt{
			status: http.StatusInternalServerError,
			err:    fmt.Errorf("filesystem check exceeded %d levels", r.maxDepth),
		}
	}

	if r.hooks.FileSystem.Exists(d.Path) {
		return r.serve(ctx, ev, res.Phase, d.Path)
	}

	switch res.Phase {
	case routes.PhaseFilesystem, routes.PhaseMiss, routes.PhaseHit, routes.PhaseError:
		return nil, nil
	case routes.PhaseRewrite:
		if d.Path == d.OriginalPath {
			return nil, nil
		}
	}

	if !res.Check {
		return r.tryMiss(ctx, ev)
	}

	fs, err := r.evaluate(ctx, ev, routes.PhaseFilesystem)
	if err != nil {
		return nil, err
	}
	if fs.Matched() {
		resp, err := r.apply(ctx, ev, fs)
		if err != nil || resp != nil {
			return resp, err
		}
	}

	resp, err := r.tryMiss(ctx, ev)
	if err != nil || resp != nil {
		return resp, err
	}

	rw, err := r.evaluate(ctx, ev, routes.PhaseRewrite)
	if err != nil {
		return nil, err
	}
	if !rw.Matched() {
		return nil, nil
	}
	return r.apply(ctx, ev, rw)
}

// tryMiss evaluates the miss phase speculatively; path and query are
// rolled back afterwards whatever the result.
func (r *Router) tryMiss(ctx context.Context, ev *evaluation) (*Response, error) {
	snap := ev.mc.Snapshot()
	defer ev.mc.Restore(snap)

	res, err := r.evaluate(ctx, ev, routes.PhaseMiss)
	if err != nil || !res.Matched() {
		return nil, err
	}
	return r.apply(ctx, ev, res)
}

// serve runs the hit phase and dispatches path.
func (r *Router) serve(ctx context.Context, ev *evaluation, phase routes.Phase, path string) (*Response, error) {
	if _, err := r.evaluate(ctx, ev, routes.PhaseHit); err != nil {
		return nil, err
	}
	ev.decide(phase, Dest{}.Kind())
	return r.dispatch(ctx, ev, path)
}

// applyErrorPhase serves the error phase outcome with the failure status.
func (r *Router) applyErrorPhase(ctx context.Context, ev *evaluation, res *PhaseResult, status int) (*Response, error) {
	switch o := res.Outcome.(type) {
	case Dest:
		if !r.hooks.FileSystem.Exists(o.Path) {
			return nil, nil
		}
		resp, err := r.dispatch(ctx, ev, o.Path)
		if err != nil {
			return nil, err
		}
		ev.decide(routes.PhaseError, Error{}.Kind())
		resp.Status = status
		return resp, nil
	case Error:
		return nil, nil
	default:
		ev.decide(routes.PhaseError, o.Kind())
		return r.respond(ctx, ev, o)
	}
}

func (r *Router) dispatch(ctx context.Context, ev *evaluation, path string) (resp *Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			resp = nil
			err = r.executionFailure("dispatch", fmt.Errorf("panic dispatching %s: %v", path, p))
		}
	}()

	resp, err = r.hooks.Dispatcher.Dispatch(ctx, ev.mc, path, ev.matches)
	if err != nil {
		return nil, r.executionFailure("dispatch", fmt.Errorf("dispatch %s: %w", path, err))
	}
	if resp == nil {
		return nil, r.executionFailure("dispatch", fmt.Errorf("dispatch %s returned no response", path))
	}

	ev.logger.Debug("dispatched",
		observability.String("path", path),
		observability.Int("status", resp.Status))

	return resp, nil
}

// respond renders a terminal outcome. Failures become a 500 halt.
func (r *Router) respond(ctx context.Context, ev *evaluation, o Outcome) (resp *Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			resp = nil
			err = r.executionFailure("responder", fmt.Errorf("panic rendering %s: %v", o.Kind(), p))
		}
	}()

	resp, err = r.hooks.Responder.Respond(ctx, o, ev.mc)
	if err != nil {
		return nil, r.executionFailure("responder", fmt.Errorf("render %s: %w", o.Kind(), err))
	}
	if resp == nil {
		return nil, r.executionFailure("responder", errors.New("render "+o.Kind()+" returned no response"))
	}
	return resp, nil
}
