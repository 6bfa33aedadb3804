// Package fetch makes the wasm-bindgen executable matching a workspace
// available, downloading release archives into a shared cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/goplus/rustwasm/internal/env"
	"github.com/goplus/rustwasm/internal/metrics"
	"github.com/goplus/rustwasm/internal/par"
	"github.com/goplus/rustwasm/internal/toolchain"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

// ErrFetch reports that wasm-bindgen could not be downloaded or unpacked.
var ErrFetch = errors.New("could not fetch wasm-bindgen")

// Package is the crate whose version selects the wasm-bindgen release.
const Package = "wasm-bindgen"

// DefaultBaseURL is where wasm-bindgen release archives are downloaded from.
const DefaultBaseURL = "https://github.com/rustwasm/wasm-bindgen/releases/download"

// VersionResolver reports the version of a package a workspace depends on.
type VersionResolver interface {
	PackageVersion(ctx context.Context, dir, pkg string) (string, error)
}

// Fetcher resolves wasm-bindgen executables. Concurrent requests for the same
// executable share a single download; results, failures included, are kept
// for the lifetime of the Fetcher.
type Fetcher struct {
	resolver VersionResolver
	cacheDir string
	baseURL  string
	client   *http.Client
	goos     string
	goarch   string
	logger   *zap.Logger
	metrics  *metrics.Collector

	inflight par.Cache[string, string]
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithCacheDir sets the shared cache root.
func WithCacheDir(dir string) Option {
	return func(f *Fetcher) { f.cacheDir = dir }
}

// WithBaseURL sets the release download location.
func WithBaseURL(url string) Option {
	return func(f *Fetcher) { f.baseURL = url }
}

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithPlatform selects the release built for goos/goarch.
func WithPlatform(goos, goarch string) Option {
	return func(f *Fetcher) {
		f.goos = goos
		f.goarch = goarch
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithMetrics records downloads in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(f *Fetcher) { f.metrics = c }
}

// New returns a Fetcher that asks resolver for the required version.
func New(resolver VersionResolver, opts ...Option) *Fetcher {
	f := &Fetcher{
		resolver: resolver,
		cacheDir: env.CacheDir(),
		baseURL:  DefaultBaseURL,
		client:   http.DefaultClient,
		goos:     runtime.GOOS,
		goarch:   runtime.GOARCH,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Ensure returns the path of the wasm-bindgen executable for the workspace in
// dir. The WASM_BINDGEN_BIN environment variable takes precedence over
// everything else.
func (f *Fetcher) Ensure(ctx context.Context, dir string) (string, error) {
	if bin, ok := env.WasmBindgen(); ok {
		return bin, nil
	}

	version, err := f.resolver.PackageVersion(ctx, dir, Package)
	if err != nil {
		return "", err
	}
	if v := "v" + version; !semver.IsValid(v) || semver.Canonical(v) != v {
		return "", fmt.Errorf("%w: invalid %s version %q", toolchain.ErrResolution, Package, version)
	}
	artifact, err := Artifact(version, f.goos, f.goarch)
	if err != nil {
		return "", err
	}
	exeFile := env.ExeName(f.goos, Package)
	exe := filepath.Join(f.cacheDir, artifact, exeFile)

	// The download is shared: a caller that gives up must not fail the others.
	ctx = context.WithoutCancel(ctx)
	return f.inflight.Do(exe, func() (string, error) {
		return f.install(ctx, version, artifact, exeFile)
	})
}

func (f *Fetcher) install(ctx context.Context, version, artifact, exeFile string) (string, error) {
	exe := filepath.Join(f.cacheDir, artifact, exeFile)
	f.logger.Debug("Searching for wasm-bindgen", zap.String("path", exe))
	if _, err := os.Stat(exe); err == nil {
		return exe, nil
	}

	f.logger.Info("Downloading wasm-bindgen", zap.String("version", version))
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}
	tmp, err := os.MkdirTemp(f.cacheDir, ".download-")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer os.RemoveAll(tmp)

	if err := download(ctx, f.client, URL(f.baseURL, version, artifact), tmp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}
	f.metrics.RecordDownload()

	if _, err := os.Stat(filepath.Join(tmp, artifact, exeFile)); err != nil {
		return "", fmt.Errorf("%w: archive does not contain %s/%s", ErrFetch, artifact, exeFile)
	}
	if err := os.Rename(filepath.Join(tmp, artifact), filepath.Join(f.cacheDir, artifact)); err != nil {
		// Another process may have installed it first.
		if _, serr := os.Stat(exe); serr != nil {
			return "", fmt.Errorf("%w: %w", ErrFetch, err)
		}
	}
	return exe, nil
}

// State reports the state of the cache entry for the executable exe.
func (f *Fetcher) State(exe string) par.State {
	return f.inflight.State(exe)
}
