// Package cachecontrol extracts the shared-cache directives the dispatch
// layer needs from a Cache-Control header.
package cachecontrol
