// Package config loads chatd configuration from YAML.
//
// Files may reference environment variables with ${VAR} syntax; values are
// expanded before parsing. LoadAndValidate is the entry point for the
// binary: load, apply defaults, validate.
package config
