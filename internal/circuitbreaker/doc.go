// Package circuitbreaker keeps one gobreaker circuit per upstream function
// so that a failing function is short-circuited without affecting others.
package circuitbreaker
