// Package config defines the plugin option schema and resolves it into the
// immutable configuration of a build session.
//
// Options come either from Go code or from a YAML document:
//
//	release: true
//	inlineWasm: false
//	wasmOptArgs: ["-Oz"]
//	experimental:
//	  declarationDir: types
//
// Unknown keys are rejected at every nesting level. Deprecated keys are
// migrated once, in Resolve, through a fixed table, and each produces a
// warning.
package config
