package router

import (
	"github.com/vyrodovalexey/avaroute/internal/routes"
)

// Outcome is the terminal result of evaluating a phase. The concrete types
// are Redirect, Proxy, Dest, Synthetic and Error.
type Outcome interface {
	// Kind names the outcome for logs and metrics.
	Kind() string
	outcome()
}

// Redirect sends the client elsewhere.
type Redirect struct {
	Status   int
	Location string
}

// Proxy forwards the request to an absolute URL.
type Proxy struct {
	URL string
}

// Dest asks for the current path to be resolved against the filesystem.
// OriginalPath is the path before a rewrite phase ran.
type Dest struct {
	Path         string
	OriginalPath string
}

// Synthetic is a response produced inline by middleware.
type Synthetic struct {
	Response *Response
}

// Error is a routing or execution failure with the status to render.
type Error struct {
	Status int
	Err    error
}

func (Redirect) Kind() string  { return "redirect" }
func (Proxy) Kind() string     { return "proxy" }
func (Dest) Kind() string      { return "dest" }
func (Synthetic) Kind() string { return "synthetic" }
func (Error) Kind() string     { return "error" }

func (Redirect) outcome()  {}
func (Proxy) outcome()     {}
func (Dest) outcome()      {}
func (Synthetic) outcome() {}
func (Error) outcome()     {}

// PhaseResult is the outcome of one phase with the rule that decided it.
type PhaseResult struct {
	Phase   routes.Phase
	Outcome Outcome

	// Rule is the last rule that matched, nil when none did.
	Rule *routes.Rule
	// Check is set when any matched rule asked for a filesystem check.
	Check bool
	// Matches is the encoded capture set of the last matched rule.
	Matches string
}

// Matched reports whether any rule in the phase matched.
func (r *PhaseResult) Matched() bool {
	return r.Rule != nil
}
