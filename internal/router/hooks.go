package router

import (
	"context"
	"net/http"
)

// FileSystem reports whether a resolved path names an asset.
type FileSystem interface {
	Exists(path string) bool
}

// MiddlewareResult is what a middleware invocation asks the router to do.
type MiddlewareResult struct {
	Status int
	Dest   string
	// Headers are response headers.
	Headers http.Header
	// RequestHeaders replace request headers before evaluation continues.
	RequestHeaders http.Header
	Continue       bool
	// Response, when set, is returned to the client as-is.
	Response *Response
}

// MiddlewareExecutor runs a middleware function.
type MiddlewareExecutor interface {
	Execute(ctx context.Context, ref string, mc *MatchContext) (*MiddlewareResult, error)
}

// Dispatcher serves a path that exists on the filesystem. matches carries
// the encoded route captures for the function being executed.
type Dispatcher interface {
	Dispatch(ctx context.Context, mc *MatchContext, path, matches string) (*Response, error)
}

// Responder renders redirect, proxy, synthetic and error outcomes.
type Responder interface {
	Respond(ctx context.Context, outcome Outcome, mc *MatchContext) (*Response, error)
}

// Hooks bundles the collaborators the router calls out to.
type Hooks struct {
	FileSystem FileSystem
	Middleware MiddlewareExecutor
	Dispatcher Dispatcher
	Responder  Responder
}
