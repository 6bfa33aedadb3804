// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package plugin routes the virtual modules of built crates through the hooks
// of a module bundler.
//
// Importing a Cargo.toml yields a root module generated for the crate. The
// root imports the wasm-bindgen glue through a path next to the manifest,
// which the plugin maps back to the output directory, and, when the binary is
// inlined, a sibling module holding the bytes.
package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/rustwasm/internal/build"
	"github.com/goplus/rustwasm/internal/codegen"
	"github.com/goplus/rustwasm/internal/config"
	"github.com/goplus/rustwasm/internal/manifest"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Host is the bundler the plugin is attached to.
type Host interface {
	build.Host

	// AddWatchFile makes changes to path trigger a rebuild.
	AddWatchFile(path string)

	// ModuleMeta returns the identity recorded for the module id.
	ModuleMeta(id string) (*Identity, bool)
}

// Plugin implements the bundler hooks.
type Plugin struct {
	opts      *config.Options
	builder   *build.Builder
	logger    *zap.Logger
	buildOpts []build.Option
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithLogger sets the logger of the plugin and its builds.
func WithLogger(l *zap.Logger) Option {
	return func(p *Plugin) { p.logger = l }
}

// WithBuildOptions passes opts to the Builder.
func WithBuildOptions(opts ...build.Option) Option {
	return func(p *Plugin) { p.buildOpts = append(p.buildOpts, opts...) }
}

// New returns a plugin for opts. The options are resolved again at every
// BuildStart; New only rejects invalid ones early.
func New(opts *config.Options, options ...Option) (*Plugin, error) {
	p := &Plugin{
		opts:   opts,
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(p)
	}
	cfg, _, err := config.Resolve(opts, false)
	if err != nil {
		return nil, err
	}
	p.builder = build.New(cfg, append([]build.Option{build.WithLogger(p.logger)}, p.buildOpts...)...)
	return p, nil
}

// Builder returns the builder of the plugin.
func (p *Plugin) Builder() *build.Builder {
	return p.builder
}

// BuildStart starts a new session. watchMode reports whether the host
// rebuilds on change.
func (p *Plugin) BuildStart(host Host, watchMode bool) error {
	cfg, warnings, err := config.Resolve(p.opts, watchMode)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		host.Warn(w)
	}
	p.builder.Reset(cfg)
	p.logger.Debug("Session started",
		zap.Bool("watch", cfg.Watch),
		zap.Bool("release", cfg.Release),
		zap.Bool("inline", cfg.InlineWasm))
	return nil
}

// ResolveID claims the import id from importer. It returns nil for imports
// the plugin does not own.
func (p *Plugin) ResolveID(host Host, id, importer string, isEntry bool) (*Resolved, error) {
	cfg := p.builder.Session().Config()

	target, explicit := strings.CutSuffix(id, codegen.InitSuffix)
	if filepath.Base(target) == manifest.FileName {
		path, err := absPath(target, importer)
		if err != nil {
			return nil, err
		}
		if !cfg.Filter(path) {
			return nil, nil
		}
		meta := &Identity{
			Kind:     Root,
			Manifest: path,
			Flavor:   codegen.Flavor{Entry: isEntry, Explicit: explicit},
		}
		rid := path
		if explicit {
			rid += codegen.InitSuffix
		}
		if isEntry {
			rid += codegen.EntrySuffix
		}
		return &Resolved{ID: rid, Meta: meta, SideEffects: isEntry}, nil
	}

	if importer == "" || !strings.HasPrefix(id, ".") {
		return nil, nil
	}
	parent, ok := host.ModuleMeta(importer)
	if !ok || parent.RealPath == "" {
		return nil, nil
	}

	rid := filepath.Join(filepath.Dir(importer), id)
	switch {
	case strings.HasPrefix(id, codegen.Prefix) && strings.HasSuffix(id, codegen.InlineSuffix):
		return &Resolved{ID: rid, Meta: &Identity{Kind: Binary, Manifest: parent.Manifest}}, nil
	case strings.HasPrefix(id, codegen.Prefix):
		return &Resolved{ID: rid, Meta: &Identity{
			Kind:     Glue,
			Manifest: parent.Manifest,
			RealPath: parent.RealPath,
		}, SideEffects: true}, nil
	}
	return &Resolved{ID: rid, Meta: &Identity{
		Kind:     Glue,
		Manifest: parent.Manifest,
		RealPath: filepath.Join(filepath.Dir(parent.RealPath), id),
	}, SideEffects: true}, nil
}

// Load returns the module id, or nil if the plugin does not own it.
func (p *Plugin) Load(ctx context.Context, host Host, id string) (*Module, error) {
	meta, ok := host.ModuleMeta(id)
	if !ok {
		return nil, nil
	}
	switch meta.Kind {
	case Root:
		return p.loadRoot(ctx, host, meta)
	case Glue:
		p.logger.Debug("Loading file", zap.String("path", meta.RealPath))
		data, err := os.ReadFile(meta.RealPath)
		if err != nil {
			return nil, err
		}
		return &Module{Code: string(data), SideEffects: true, Meta: meta}, nil
	case Binary:
		res, ok := p.builder.Session().Lookup(meta.Manifest)
		if !ok {
			return nil, fmt.Errorf("plugin: %s: binary requested before the crate was built", meta.Manifest)
		}
		out := codegen.Binary(res.Wasm)
		return &Module{Code: out.Code, Map: out.Map, SideEffects: out.SideEffects, Meta: meta}, nil
	}
	return nil, fmt.Errorf("plugin: %s: unknown module kind %v", id, meta.Kind)
}

func (p *Plugin) loadRoot(ctx context.Context, host Host, meta *Identity) (*Module, error) {
	// A concurrent BuildStart must not pair this config with another session.
	s := p.builder.Session()
	cfg := s.Config()
	mode := codegen.Mode{
		Inline:        cfg.InlineWasm,
		Sync:          cfg.Synchronous,
		NodeJS:        cfg.NodeJS,
		DirectExports: cfg.DirectExports,
	}
	if err := mode.Validate(); err != nil {
		return nil, err
	}

	var (
		res *build.Result
		g   errgroup.Group
	)
	g.Go(func() (err error) {
		res, err = p.builder.BuildIn(ctx, s, host, meta.Manifest)
		return
	})
	if cfg.Watch {
		g.Go(func() error {
			return watchFiles(host, filepath.Dir(meta.Manifest), cfg.WatchPatterns)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out, err := codegen.Generate(codegen.Input{
		Name:     res.Name,
		RealPath: res.GlueEntry,
		AssetRef: res.AssetRef,
		Flavor:   meta.Flavor,
		Mode:     mode,
	})
	if err != nil {
		return nil, err
	}
	return &Module{
		Code:        out.Code,
		Map:         out.Map,
		SideEffects: out.SideEffects,
		Meta: &Identity{
			Kind:     Root,
			Manifest: meta.Manifest,
			Flavor:   meta.Flavor,
			RealPath: out.RealPath,
		},
	}, nil
}

// ResolveFileURL returns the expression for the URL of an asset this plugin
// emitted in the current session.
func (p *Plugin) ResolveFileURL(ref, fileName string) (string, bool) {
	s := p.builder.Session()
	if !s.HasAsset(ref) {
		return "", false
	}
	cfg := s.Config()
	return cfg.ImportHook(cfg.ServerPath + fileName), true
}

func absPath(id, importer string) (string, error) {
	if importer != "" && !filepath.IsAbs(id) {
		return filepath.Join(filepath.Dir(importer), id), nil
	}
	return filepath.Abs(id)
}
