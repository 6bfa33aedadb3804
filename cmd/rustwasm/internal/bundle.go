package internal

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/goplus/rustwasm/internal/codegen"
	"github.com/goplus/rustwasm/internal/config"
	"github.com/goplus/rustwasm/internal/plugin"
	"github.com/opencontainers/go-digest"
)

// namespace holds the esbuild paths of every module the plugin owns.
const namespace = "rustwasm"

// summary describes the output of one crate.
type summary struct {
	Name      string
	Entry     string // bundle, relative to the output directory
	Modules   int
	Size      int
	Digest    digest.Digest
	Optimized bool
}

// bundle builds the crate at manifestPath through p and writes its module
// graph, bundled by esbuild, to <outDir>/<name>.js. Imports the plugin does
// not own stay external.
func bundle(ctx context.Context, p *plugin.Plugin, h *host, manifestPath, outDir string, explicit bool) (*summary, error) {
	entry := manifestPath
	if explicit {
		entry += codegen.InitSuffix
	}

	g := &graph{ctx: ctx, plugin: p, host: h}
	result := api.Build(api.BuildOptions{
		EntryPoints: []string{entry},
		Bundle:      true,
		Format:      api.FormatESModule,
		Platform:    api.PlatformNeutral,
		Target:      api.ESNext,
		Outdir:      outDir,
		Write:       false,
		LogLevel:    api.LogLevelSilent,
		Plugins: []api.Plugin{{
			Name:  namespace,
			Setup: g.setup,
		}},
	})
	if err := g.failure(result.Errors); err != nil {
		return nil, err
	}
	if len(result.OutputFiles) != 1 {
		return nil, fmt.Errorf("%s: esbuild produced %d files", manifestPath, len(result.OutputFiles))
	}

	res, ok := p.Builder().Session().Lookup(manifestPath)
	if !ok {
		return nil, fmt.Errorf("%s: crate was not built", manifestPath)
	}
	name := res.Name + ".js"
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(outDir, name), result.OutputFiles[0].Contents, 0o644); err != nil {
		return nil, err
	}
	return &summary{
		Name:      res.Name,
		Entry:     name,
		Modules:   g.modules,
		Size:      len(res.Wasm),
		Digest:    res.Digest,
		Optimized: res.Optimized,
	}, nil
}

// graph drives the plugin from esbuild callbacks, which run concurrently.
type graph struct {
	ctx    context.Context
	plugin *plugin.Plugin
	host   *host

	mu      sync.Mutex
	err     error // first plugin error
	modules int
}

func (g *graph) setup(build api.PluginBuild) {
	build.OnResolve(api.OnResolveOptions{Filter: ".*"}, g.resolve)
	build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: namespace}, g.load)
}

func (g *graph) resolve(args api.OnResolveArgs) (api.OnResolveResult, error) {
	importer := ""
	if args.Kind != api.ResolveEntryPoint && args.Namespace == namespace {
		importer = args.Importer
	}
	r, err := g.plugin.ResolveID(g.host, args.Path, importer, false)
	if err != nil {
		return api.OnResolveResult{}, g.fail(err)
	}
	if r == nil {
		if args.Kind == api.ResolveEntryPoint {
			return api.OnResolveResult{}, g.fail(fmt.Errorf("%s: excluded by the include and exclude patterns", args.Path))
		}
		return api.OnResolveResult{Path: args.Path, External: true}, nil
	}
	g.host.setMeta(r.ID, r.Meta)

	sideEffects := api.SideEffectsTrue
	if !r.SideEffects {
		sideEffects = api.SideEffectsFalse
	}
	return api.OnResolveResult{Path: r.ID, Namespace: namespace, SideEffects: sideEffects}, nil
}

func (g *graph) load(args api.OnLoadArgs) (api.OnLoadResult, error) {
	m, err := g.plugin.Load(g.ctx, g.host, args.Path)
	if err != nil {
		return api.OnLoadResult{}, g.fail(err)
	}
	if m == nil {
		return api.OnLoadResult{}, g.fail(fmt.Errorf("%s: module not owned by the plugin", args.Path))
	}
	g.host.setMeta(args.Path, m.Meta)

	g.mu.Lock()
	g.modules++
	g.mu.Unlock()

	code := g.resolveFileURLs(m.Code)
	return api.OnLoadResult{Contents: &code, Loader: api.LoaderJS}, nil
}

// resolveFileURLs replaces asset URL placeholders in code.
func (g *graph) resolveFileURLs(code string) string {
	if !strings.Contains(code, codegen.AssetURL("")) {
		return code
	}
	// Longer references first: asset1 is a prefix of asset10.
	refs := g.host.refs()
	slices.SortFunc(refs, func(a, b string) int { return cmp.Compare(len(b), len(a)) })

	var pairs []string
	for _, ref := range refs {
		name, _ := g.host.fileName(ref)
		url, ok := g.plugin.ResolveFileURL(ref, name)
		if !ok {
			url = "new URL(" + config.JSString(name) + ", import.meta.url).href"
		}
		pairs = append(pairs, codegen.AssetURL(ref), url)
	}
	return strings.NewReplacer(pairs...).Replace(code)
}

func (g *graph) fail(err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err == nil {
		g.err = err
	}
	return err
}

// failure returns the first plugin error, which keeps its sentinel, or the
// esbuild diagnostics.
func (g *graph) failure(msgs []api.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	if len(msgs) == 0 {
		return nil
	}
	errs := make([]error, len(msgs))
	for i, m := range msgs {
		if m.Location != nil {
			errs[i] = fmt.Errorf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
		} else {
			errs[i] = errors.New(m.Text)
		}
	}
	return errors.Join(errs...)
}
