package toolchain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolchain reports a failed compile or glue generation step: a
	// non-zero exit or an executable that could not be started.
	ErrToolchain = errors.New("compilation failed")

	// ErrOptimize reports a failed wasm-opt run. It is never fatal.
	ErrOptimize = errors.New("wasm optimization failed")

	// ErrResolution reports workspace metadata that could not be understood.
	ErrResolution = errors.New("could not resolve workspace metadata")
)

// CommandError describes a subprocess that failed.
type CommandError struct {
	Name   string
	Args   []string
	Err    error
	Stderr string
}

func (e *CommandError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s: %v", e.Name, strings.Join(e.Args, " "), e.Err)
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		sb.WriteString("\n")
		sb.WriteString(msg)
	}
	return sb.String()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
