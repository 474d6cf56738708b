// Package health serves liveness and readiness probes for the admin
// listener.
//
// Liveness only reports that the process is serving. Readiness runs every
// registered check with a timeout; a failing critical check, or a server
// that is draining for shutdown, answers 503.
//
//	checker := health.NewChecker(version)
//	checker.Register("cache", store.Ping, health.Critical())
package health
