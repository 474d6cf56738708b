// Package routes builds an immutable RouteSet from build-output rules.
//
// Rules are partitioned into phases by "handle" delimiters. Rules before
// the first delimiter form the null phase. A synthetic main phase holding a
// single match-anything rule is always present.
//
// Construction validates phase constraints and fails fast with a
// *util.ValidationError listing every offending rule.
package routes
