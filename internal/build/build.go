// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package build turns crate manifests into loaded wasm modules, running the
// toolchain at most once per crate per session.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/goplus/rustwasm/internal/codegen"
	"github.com/goplus/rustwasm/internal/config"
	"github.com/goplus/rustwasm/internal/dts"
	"github.com/goplus/rustwasm/internal/fetch"
	"github.com/goplus/rustwasm/internal/lock"
	"github.com/goplus/rustwasm/internal/manifest"
	"github.com/goplus/rustwasm/internal/metrics"
	"github.com/goplus/rustwasm/internal/toolchain"
	"github.com/goplus/rustwasm/internal/wasm"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OutputDir is the directory under the cargo target directory that holds the
// glue of every crate.
const OutputDir = "rustwasm"

const (
	wasmFile    = "index_bg.wasm"
	wasmOptFile = "wasm_opt.wasm"
)

// DefaultLock serializes cargo invocations across every Builder of the
// process.
var DefaultLock = new(lock.Lock)

// Locker runs f while holding an exclusive lock.
type Locker interface {
	Do(ctx context.Context, f func(ctx context.Context) error) error
}

// Toolchain runs the external build steps.
type Toolchain interface {
	TargetDir(ctx context.Context, dir string) (string, error)
	Nightly(ctx context.Context, dir string) (bool, error)
	PackageVersion(ctx context.Context, dir, pkg string) (string, error)
	Compile(ctx context.Context, dir string, opts toolchain.CompileOptions) error
	GenerateGlue(ctx context.Context, bin, dir string, opts toolchain.GlueOptions) error
	Optimize(ctx context.Context, dir, input, output string, args []string) error
}

// Fetcher provides the wasm-bindgen executable of a workspace.
type Fetcher interface {
	Ensure(ctx context.Context, dir string) (string, error)
}

// Asset is a file handed to the host for emission.
type Asset struct {
	Name     string // base name, the host picks the final file name
	FileName string // exact output path, set instead of Name
	Source   []byte
}

// Host is the part of the bundler a build reports to.
type Host interface {
	EmitFile(asset Asset) (ref string, err error)
	Warn(msg string)
}

// Result is a built crate. It must not be modified.
type Result struct {
	Name       string // sanitized crate name
	Version    string // package version
	Manifest   string // manifest path
	Dir        string // crate directory
	Wasm       []byte
	Digest     digest.Digest
	Optimized  bool
	OutDir     string // glue directory
	GlueEntry  string // OutDir/index.js
	ImportPath string // virtual path of GlueEntry
	AssetRef   string // empty when the binary is inlined
}

// Builder builds crates for the current session.
type Builder struct {
	lock         Locker
	newToolchain func(cfg *config.Config) Toolchain
	newFetcher   func(tools Toolchain) Fetcher
	logger       *zap.Logger
	metrics      *metrics.Collector

	mu      sync.Mutex
	session *Session
}

// Option configures a Builder.
type Option func(*Builder)

// WithLock sets the lock held while cargo runs.
func WithLock(l Locker) Option {
	return func(b *Builder) { b.lock = l }
}

// WithToolchain runs every session's steps with t.
func WithToolchain(t Toolchain) Option {
	return func(b *Builder) {
		b.newToolchain = func(*config.Config) Toolchain { return t }
	}
}

// WithFetcher gives every session a Fetcher made by newFetcher.
func WithFetcher(newFetcher func(tools Toolchain) Fetcher) Option {
	return func(b *Builder) { b.newFetcher = newFetcher }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithMetrics records pipeline metrics in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(b *Builder) { b.metrics = c }
}

// New returns a Builder with a session for cfg.
func New(cfg *config.Config, opts ...Option) *Builder {
	b := &Builder{
		lock:   DefaultLock,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.newToolchain == nil {
		b.newToolchain = func(cfg *config.Config) Toolchain {
			return toolchain.New(toolchain.WithVerbose(cfg.Verbose), toolchain.WithLogger(b.logger))
		}
	}
	if b.newFetcher == nil {
		b.newFetcher = func(tools Toolchain) Fetcher {
			return fetch.New(tools, fetch.WithLogger(b.logger), fetch.WithMetrics(b.metrics))
		}
	}
	b.Reset(cfg)
	return b
}

// Reset discards the current session and starts a new one for cfg.
// Builds still running finish in the discarded session.
func (b *Builder) Reset(cfg *config.Config) {
	tools := b.newToolchain(cfg)
	s := newSession(cfg, tools, b.newFetcher(tools))

	b.mu.Lock()
	b.session = s
	b.mu.Unlock()
}

// Session returns the current session.
func (b *Builder) Session() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// Build returns the build of the manifest at path in the current session.
func (b *Builder) Build(ctx context.Context, host Host, path string) (*Result, error) {
	return b.BuildIn(ctx, b.Session(), host, path)
}

// BuildIn returns the build of the manifest at path in session s, running the
// pipeline if no other caller in s has. Every caller observes the same result
// or the same error; failures are not retried within a session.
//
// The pipeline does not stop when ctx is cancelled: its result is shared by
// callers that are still waiting.
func (b *Builder) BuildIn(ctx context.Context, s *Session, host Host, path string) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	return s.builds.Do(path, func() (*Result, error) {
		res, err := b.build(ctx, s, host, path)
		b.metrics.RecordBuild(err)
		return res, err
	})
}

func (b *Builder) build(ctx context.Context, s *Session, host Host, manifestPath string) (*Result, error) {
	cfg := s.cfg
	dir := filepath.Dir(manifestPath)

	m, err := manifest.Read(manifestPath)
	if err != nil {
		return nil, err
	}
	if !m.HasDependency(fetch.Package) {
		return nil, fmt.Errorf("%w: %s: %s is not a dependency of the crate", config.ErrConfig, manifestPath, fetch.Package)
	}
	name := m.Name()
	log := b.logger.With(zap.String("crate", name), zap.String("version", m.Package.Version))

	// wasm-bindgen is fetched while cargo runs.
	var (
		bindgen   string
		targetDir string
		g         errgroup.Group
	)
	g.Go(func() error {
		defer b.metrics.RecordStep(metrics.StepFetch, time.Now())
		bin, err := s.fetcher.Ensure(ctx, dir)
		bindgen = bin
		return err
	})
	g.Go(func() error {
		start := time.Now()
		td, err := s.targetDir(ctx, dir)
		if err != nil {
			return err
		}
		nightly := false
		if cfg.Release && (cfg.Optimize || cfg.Strip.Location || cfg.Strip.FormatDebug) {
			if nightly, err = s.isNightly(ctx, dir); err != nil {
				return err
			}
		}
		b.metrics.RecordStep(metrics.StepResolve, start)
		targetDir = td

		return b.compile(ctx, s, log, manifestPath, toolchain.CompileOptions{
			Release:   cfg.Release,
			Optimize:  cfg.Optimize,
			Nightly:   nightly,
			Atomics:   cfg.Atomics,
			RustcArgs: cfg.RustcArgs,
			CargoArgs: cfg.CargoArgs,

			StripLocation:    cfg.Strip.Location,
			StripFormatDebug: cfg.Strip.FormatDebug,
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	wasmPath := toolchain.ArtifactPath(targetDir, name, cfg.Release)
	outDir := filepath.Join(targetDir, OutputDir, name)
	log.Debug("Using rustc output", zap.String("path", wasmPath))
	log.Debug("Using output directory", zap.String("dir", outDir))

	if err := os.RemoveAll(outDir); err != nil {
		return nil, err
	}
	start := time.Now()
	err = s.tools.GenerateGlue(ctx, bindgen, dir, toolchain.GlueOptions{
		Wasm:       wasmPath,
		OutDir:     outDir,
		Typescript: cfg.DeclarationDir != "",
		Args:       cfg.WasmBindgenArgs,
	})
	if err != nil {
		return nil, err
	}
	b.metrics.RecordStep(metrics.StepGlue, start)

	var (
		bin       []byte
		optimized bool
	)
	g = errgroup.Group{}
	g.Go(func() error {
		if cfg.Release && cfg.Optimize {
			optimized = b.optimize(ctx, s, host, log, outDir)
		}
		data, err := os.ReadFile(filepath.Join(outDir, wasmFile))
		bin = data
		return err
	})
	if cfg.DeclarationDir != "" {
		g.Go(func() error {
			defer b.metrics.RecordStep(metrics.StepDecls, time.Now())
			if err := dts.Write(name, cfg.DeclarationDir, outDir); err != nil {
				return err
			}
			return dts.WriteCustom(name, cfg.DeclarationDir, cfg.InlineWasm, cfg.Synchronous)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Name:       name,
		Version:    m.Package.Version,
		Manifest:   manifestPath,
		Dir:        dir,
		Wasm:       bin,
		Digest:     digest.FromBytes(bin),
		Optimized:  optimized,
		OutDir:     outDir,
		GlueEntry:  filepath.Join(outDir, toolchain.GlueName+".js"),
		ImportPath: codegen.ImportPath(name),
	}
	if !cfg.InlineWasm {
		ref, err := host.EmitFile(assetFor(cfg, name, bin))
		if err != nil {
			return nil, err
		}
		s.addAsset(ref)
		res.AssetRef = ref
	}
	if err := saveRecord(outDir, res, cfg.Release); err != nil {
		log.Debug("Could not write build record", zap.Error(err))
	}
	return res, nil
}

func (b *Builder) compile(ctx context.Context, s *Session, log *zap.Logger, manifestPath string, opts toolchain.CompileOptions) error {
	queued := time.Now()
	return b.lock.Do(ctx, func(ctx context.Context) error {
		b.metrics.RecordLockWait(time.Since(queued))
		defer b.metrics.RecordStep(metrics.StepCompile, time.Now())

		log.Debug("Compiling", zap.String("manifest", manifestPath))
		return s.tools.Compile(ctx, filepath.Dir(manifestPath), opts)
	})
}

// optimize runs wasm-opt over the binary in outDir and reports whether the
// optimized binary was kept. Failures are reported as warnings.
func (b *Builder) optimize(ctx context.Context, s *Session, host Host, log *zap.Logger, outDir string) bool {
	defer b.metrics.RecordStep(metrics.StepOptimize, time.Now())

	binPath := filepath.Join(outDir, wasmFile)
	original, err := os.ReadFile(binPath)
	if err != nil {
		b.warn(s, host, "wasm-opt failed", err)
		return false
	}

	if err := s.tools.Optimize(ctx, outDir, wasmFile, wasmOptFile, s.cfg.WasmOptArgs); err != nil {
		b.warn(s, host, "wasm-opt failed", err)
		return false
	}

	result, err := os.ReadFile(binPath)
	if err == nil {
		if err = wasm.Validate(ctx, result); err == nil {
			return true
		}
		if wasm.Validate(ctx, original) != nil {
			// Neither binary validates: the validator cannot judge this module.
			log.Debug("Skipping validation of optimized binary", zap.Error(err))
			return true
		}
	}
	if werr := os.WriteFile(binPath, original, 0o644); werr != nil {
		err = errors.Join(err, werr)
	}
	b.warn(s, host, "wasm-opt produced an invalid binary", fmt.Errorf("%w: %w", toolchain.ErrOptimize, err))
	return false
}

func (b *Builder) warn(s *Session, host Host, msg string, err error) {
	b.metrics.RecordWarning()
	if s.cfg.Verbose {
		msg += ": " + err.Error()
	}
	host.Warn(msg + ", using the unoptimized binary")
}

func assetFor(cfg *config.Config, name string, bin []byte) Asset {
	if cfg.AssetDir != "" {
		return Asset{FileName: path.Join(cfg.AssetDir, name+".wasm"), Source: bin}
	}
	return Asset{Name: name + ".wasm", Source: bin}
}
