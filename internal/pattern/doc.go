// Package pattern compiles route source patterns into matchers and
// substitutes capture tokens into destination and header templates.
//
// Compiled matchers are memoized in a Cache keyed by pattern text. A Cache
// is an ordinary value owned by whoever builds rule sets, so independent
// rule sets and tests never share state unless they share the Cache.
package pattern
