// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package toolchain runs the external programs that turn a crate into a
// loadable wasm module: cargo, wasm-bindgen and wasm-opt.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/goplus/rustwasm/internal/env"
	"go.uber.org/zap"
)

// Runner invokes toolchain subprocesses. A Runner is safe for concurrent use;
// serializing cargo invocations is left to the caller.
type Runner struct {
	cargo   string
	wasmOpt string
	verbose bool
	logger  *zap.Logger
	stdout  io.Writer
	stderr  io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for command tracing.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithVerbose keeps subprocess detail in returned errors.
func WithVerbose(v bool) Option {
	return func(r *Runner) { r.verbose = v }
}

// WithOutput sets where the output of build steps is streamed.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithCargo overrides the cargo executable.
func WithCargo(path string) Option {
	return func(r *Runner) { r.cargo = path }
}

// WithWasmOpt overrides the wasm-opt executable.
func WithWasmOpt(path string) Option {
	return func(r *Runner) { r.wasmOpt = path }
}

// New returns a Runner whose executables come from the environment.
func New(opts ...Option) *Runner {
	r := &Runner{
		cargo:   env.Cargo(),
		wasmOpt: env.WasmOpt(),
		logger:  zap.NewNop(),
		stdout:  os.Stderr,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// fail turns a subprocess error into ErrToolchain. Details are dropped unless
// the runner is verbose.
func (r *Runner) fail(err error) error {
	if r.verbose {
		return fmt.Errorf("%w: %w", ErrToolchain, err)
	}
	return ErrToolchain
}

// run executes name in dir, streaming its output.
func (r *Runner) run(ctx context.Context, dir, name string, args ...string) error {
	r.logger.Debug("Running "+name, zap.Strings("args", args), zap.String("dir", dir))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stdout = r.stdout
	cmd.Stderr = io.MultiWriter(r.stderr, &stderr)
	if err := cmd.Run(); err != nil {
		return &CommandError{Name: name, Args: args, Err: err, Stderr: stderr.String()}
	}
	return nil
}

// output executes name in dir and returns its standard output.
func (r *Runner) output(ctx context.Context, dir, name string, args ...string) (string, error) {
	r.logger.Debug("Running "+name, zap.Strings("args", args), zap.String("dir", dir))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &CommandError{Name: name, Args: args, Err: err, Stderr: stderr.String()}
	}
	return stdout.String(), nil
}
