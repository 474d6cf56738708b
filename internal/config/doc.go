// Package config provides configuration types and loading for the routing
// engine.
//
// Two documents are loaded through this package:
//
//   - the service configuration (YAML, with ${VAR} and ${VAR:-default}
//     environment substitution), described by Config;
//   - the build-output routing file (JSON), described by RouteFile. It is
//     decoded with the same YAML decoder since JSON is valid YAML.
//
// Watcher reloads either document on change with a debounce delay.
package config
