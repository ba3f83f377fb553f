// Package config loads runtime configuration from environment
// variables and the optional YAML script manifest that maps worker
// aliases to script paths.
package config
