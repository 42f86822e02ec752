// Package config defines volguard's Config struct, its zero-config
// defaults, and YAML file loading, following the same precedence
// the teacher's cmd/warren/apply.go establishes for flags vs. file
// values: the struct's defaults apply first, an optional file
// overrides them, and explicit command-line flags override both.
package config
