// Package server assembles the routing engine into a running service.
//
// A Server owns two listeners. The public listener evaluates every request
// against the current route set. The admin listener serves Prometheus
// metrics, health probes and route inspection. The route set is swapped
// atomically on reload, so in-flight requests finish against the set they
// started with.
package server
