// Package router implements the phase state machine that evaluates a
// RouteSet against one request.
//
// A request is wrapped in a MatchContext and evaluated through the null,
// main and resource phases in turn. Each phase yields an Outcome:
//
//   - Redirect, Proxy, Synthetic and Error are rendered by the Responder
//   - Dest is resolved against the FileSystem; hits are served by the
//     Dispatcher, misses recurse through the filesystem, miss and rewrite
//     phases
//
// When no phase produces a response the error phase runs once, and a 404
// (or the remembered failure status) is rendered otherwise.
//
// # Usage
//
//	rt, err := router.New(rs, router.Hooks{
//	    FileSystem: registry,
//	    Dispatcher: dispatcher,
//	    Responder:  renderer,
//	})
//	resp := rt.Route(ctx, router.NewMatchContext(r))
package router
