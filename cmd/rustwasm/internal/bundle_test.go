package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goplus/rustwasm/internal/build"
	"github.com/goplus/rustwasm/internal/config"
	"github.com/goplus/rustwasm/internal/lock"
	"github.com/goplus/rustwasm/internal/plugin"
	"github.com/goplus/rustwasm/internal/toolchain"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestHashedName(t *testing.T) {
	got := hashedName("my_lib.wasm", emptyModule)
	want := "my_lib-" + digest.FromBytes(emptyModule).Encoded()[:8] + ".wasm"
	if got != want {
		t.Errorf("hashedName = %q, want %q", got, want)
	}
}

func TestHostEmitFile(t *testing.T) {
	h := newHost(zap.NewNop())
	ref, err := h.EmitFile(build.Asset{FileName: "wasm/my_lib.wasm", Source: emptyModule})
	if err != nil {
		t.Fatal(err)
	}
	if name, ok := h.fileName(ref); !ok || name != "wasm/my_lib.wasm" {
		t.Errorf("fileName(%q) = %q, %v", ref, name, ok)
	}
	if _, err := h.EmitFile(build.Asset{FileName: "../escape.wasm"}); err == nil {
		t.Error("EmitFile accepted a file name outside the output directory")
	}
}

func TestFormatSize(t *testing.T) {
	for n, want := range map[int]string{512: "512 B", 2048: "2.0 KiB", 3 << 20: "3.0 MiB"} {
		if got := formatSize(n); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", n, got, want)
		}
	}
}

// stubToolchain writes a fixed glue instead of running cargo.
type stubToolchain struct {
	targetDir string
	glue      string // index.js, a default glue when empty
}

func (s *stubToolchain) TargetDir(ctx context.Context, dir string) (string, error) {
	return s.targetDir, nil
}

func (s *stubToolchain) Nightly(ctx context.Context, dir string) (bool, error) { return false, nil }

func (s *stubToolchain) PackageVersion(ctx context.Context, dir, pkg string) (string, error) {
	return "0.2.92", nil
}

func (s *stubToolchain) Compile(ctx context.Context, dir string, opts toolchain.CompileOptions) error {
	return nil
}

func (s *stubToolchain) GenerateGlue(ctx context.Context, bin, dir string, opts toolchain.GlueOptions) error {
	if err := os.MkdirAll(filepath.Join(opts.OutDir, "snippets"), 0o755); err != nil {
		return err
	}
	glue := s.glue
	if glue == "" {
		glue = "import { helper } from './snippets/helper.js';\nexport default async function __wbg_init() { helper(); }\n"
	}
	files := map[string][]byte{
		"index.js":           []byte(glue),
		"index_bg.wasm":      emptyModule,
		"snippets/helper.js": []byte("import { x } from \"lodash\";\nexport function helper() { return x(); }\n"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(opts.OutDir, filepath.FromSlash(name)), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubToolchain) Optimize(ctx context.Context, dir, input, output string, args []string) error {
	return nil
}

type stubFetcher struct{}

func (stubFetcher) Ensure(ctx context.Context, dir string) (string, error) {
	return "wasm-bindgen", nil
}

func newTestPlugin(t *testing.T, opts *config.Options, tools *stubToolchain) (*plugin.Plugin, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "my-lib")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "Cargo.toml")
	content := "[package]\nname = \"my-lib\"\nversion = \"0.1.0\"\n\n[dependencies]\nwasm-bindgen = \"0.2\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	tools.targetDir = t.TempDir()
	p, err := plugin.New(opts, plugin.WithBuildOptions(
		build.WithLock(new(lock.Lock)),
		build.WithToolchain(tools),
		build.WithFetcher(func(build.Toolchain) build.Fetcher { return stubFetcher{} }),
	))
	if err != nil {
		t.Fatal(err)
	}
	return p, path
}

func readBundle(t *testing.T, outDir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(outDir, "my_lib.js"))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestBundleExternal(t *testing.T) {
	p, path := newTestPlugin(t, nil, &stubToolchain{})
	h := newHost(zap.NewNop())
	if err := p.BuildStart(h, false); err != nil {
		t.Fatal(err)
	}
	outDir := t.TempDir()

	s, err := bundle(context.Background(), p, h, path, outDir, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.writeAssets(outDir); err != nil {
		t.Fatal(err)
	}
	if s.Name != "my_lib" || s.Entry != "my_lib.js" || s.Modules != 3 {
		t.Errorf("summary = %+v", s)
	}

	code := readBundle(t, outDir)
	asset := hashedName("my_lib.wasm", emptyModule)
	for _, want := range []string{
		`new URL("` + asset + `", import.meta.url).href`,
		"function __wbg_init()",
		"function helper()",
		`from "lodash"`,
	} {
		if !strings.Contains(code, want) {
			t.Errorf("bundle lacks %q:\n%s", want, code)
		}
	}
	if strings.Contains(code, "ROLLUP_FILE_URL") {
		t.Errorf("bundle kept an asset placeholder:\n%s", code)
	}
	if _, err := os.Stat(filepath.Join(outDir, asset)); err != nil {
		t.Error(err)
	}
}

func TestBundleServerPath(t *testing.T) {
	p, path := newTestPlugin(t, &config.Options{ServerPath: "/static/"}, &stubToolchain{})
	h := newHost(zap.NewNop())
	if err := p.BuildStart(h, false); err != nil {
		t.Fatal(err)
	}
	outDir := t.TempDir()
	if _, err := bundle(context.Background(), p, h, path, outDir, false); err != nil {
		t.Fatal(err)
	}
	want := `"/static/` + hashedName("my_lib.wasm", emptyModule) + `"`
	if code := readBundle(t, outDir); !strings.Contains(code, want) {
		t.Errorf("bundle lacks %s:\n%s", want, code)
	}
}

func TestBundleInline(t *testing.T) {
	p, path := newTestPlugin(t, &config.Options{InlineWasm: true}, &stubToolchain{})
	h := newHost(zap.NewNop())
	if err := p.BuildStart(h, false); err != nil {
		t.Fatal(err)
	}
	outDir := t.TempDir()

	s, err := bundle(context.Background(), p, h, path, outDir, true)
	if err != nil {
		t.Fatal(err)
	}
	if s.Modules != 4 {
		t.Errorf("Modules = %d, want 4", s.Modules)
	}
	code := readBundle(t, outDir)
	for _, want := range []string{
		"AGFzbQEAAAA=",
		"async function init(options)",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("bundle lacks %q:\n%s", want, code)
		}
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("inline output has %d files, want 1", len(entries))
	}
}

func TestBundleIgnoresImportsInComments(t *testing.T) {
	tools := &stubToolchain{glue: `// import { gone } from "./missing.js";
/* export * from "./also-missing.js"; */
const note = "import('./not-a-module.js')";
import { helper } from "./snippets/helper.js";
export default async function __wbg_init() { helper(); return note; }
`}
	p, path := newTestPlugin(t, nil, tools)
	h := newHost(zap.NewNop())
	if err := p.BuildStart(h, false); err != nil {
		t.Fatal(err)
	}
	s, err := bundle(context.Background(), p, h, path, t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	if s.Modules != 3 {
		t.Errorf("Modules = %d, want 3", s.Modules)
	}
}

func TestBundleKeepsPluginError(t *testing.T) {
	p, path := newTestPlugin(t, nil, &stubToolchain{})
	if err := os.WriteFile(path, []byte("[package]\nname = \"my-lib\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newHost(zap.NewNop())
	if err := p.BuildStart(h, false); err != nil {
		t.Fatal(err)
	}
	_, err := bundle(context.Background(), p, h, path, t.TempDir(), false)
	if !errors.Is(err, config.ErrConfig) {
		t.Errorf("bundle() error = %v, want %v", err, config.ErrConfig)
	}
}
