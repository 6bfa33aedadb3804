package toolchain

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
)

// fakeTool writes a shell script named tool that runs body.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

func quiet(opts ...Option) *Runner {
	return New(append([]Option{WithOutput(io.Discard, io.Discard)}, opts...)...)
}

func TestCompileArgs(t *testing.T) {
	base := []string{"rustc", "--lib", "--target", "wasm32-unknown-unknown", "--crate-type", "cdylib"}
	tests := []struct {
		name string
		opts CompileOptions
		want []string
	}{
		{
			name: "dev",
			opts: CompileOptions{},
			want: base,
		},
		{
			name: "dev optimized",
			opts: CompileOptions{Optimize: true},
			want: append(slices.Clone(base),
				"--config", `profile.dev.panic="abort"`,
				"--config", `profile.dev.lto="off"`,
				"--config", "profile.dev.debug=false",
			),
		},
		{
			name: "release",
			opts: CompileOptions{Release: true},
			want: append(slices.Clone(base), "--release"),
		},
		{
			name: "release optimized",
			opts: CompileOptions{Release: true, Optimize: true},
			want: append(slices.Clone(base), "--release",
				"--config", `profile.release.panic="abort"`,
				"--config", "profile.release.lto=true",
				"--config", "profile.release.codegen-units=1",
				"--config", "profile.release.strip=true",
			),
		},
		{
			name: "release optimized nightly",
			opts: CompileOptions{Release: true, Optimize: true, Nightly: true},
			want: append(slices.Clone(base), "--release",
				"--config", `profile.release.panic="immediate-abort"`,
				"--config", "profile.release.lto=true",
				"--config", "profile.release.codegen-units=1",
				"--config", "profile.release.strip=true",
				"-Z", "panic-immediate-abort",
				"-Z", "build-std",
				"-Z", "build-std-features=optimize_for_size",
			),
		},
		{
			name: "atomics",
			opts: CompileOptions{Atomics: true, RustcArgs: []string{"-C", "opt-level=s"}},
			want: append(slices.Clone(base),
				"-Z", "build-std",
				"--config", `build.rustflags=["-C","target-feature=+atomics,+bulk-memory,+mutable-globals",`+
					`"-C","link-args=--shared-memory","-C","link-args=--import-memory",`+
					`"-C","link-args=--export=__wasm_init_tls","-C","link-args=--export=__tls_size",`+
					`"-C","link-args=--export=__tls_align","-C","link-args=--export=__tls_base",`+
					`"-C","opt-level=s"]`,
			),
		},
		{
			name: "strip on stable",
			opts: CompileOptions{Release: true, StripLocation: true, StripFormatDebug: true},
			want: append(slices.Clone(base), "--release"),
		},
		{
			name: "strip in dev",
			opts: CompileOptions{Nightly: true, StripLocation: true, StripFormatDebug: true},
			want: base,
		},
		{
			name: "strip release nightly",
			opts: CompileOptions{Release: true, Nightly: true, StripLocation: true, StripFormatDebug: true},
			want: append(slices.Clone(base), "--release",
				"--config", `build.rustflags=["-Z","location-detail=none","-Z","fmt-debug=none"]`,
			),
		},
		{
			name: "atomics strip optimized nightly",
			opts: CompileOptions{
				Release: true, Optimize: true, Nightly: true, Atomics: true, StripLocation: true,
				CargoArgs: []string{"--features", "threads"},
			},
			want: append(slices.Clone(base),
				"-Z", "build-std",
				"--release",
				"--config", `profile.release.panic="immediate-abort"`,
				"--config", "profile.release.lto=true",
				"--config", "profile.release.codegen-units=1",
				"--config", "profile.release.strip=true",
				"-Z", "panic-immediate-abort",
				"-Z", "build-std",
				"-Z", "build-std-features=optimize_for_size",
				"--config", `build.rustflags=["-C","target-feature=+atomics,+bulk-memory,+mutable-globals",`+
					`"-C","link-args=--shared-memory","-C","link-args=--import-memory",`+
					`"-C","link-args=--export=__wasm_init_tls","-C","link-args=--export=__tls_size",`+
					`"-C","link-args=--export=__tls_align","-C","link-args=--export=__tls_base",`+
					`"-Z","location-detail=none"]`,
				"--features", "threads",
			),
		},
		{
			name: "rustc and cargo args",
			opts: CompileOptions{
				RustcArgs: []string{"-C", "target-feature=+simd128", "<&>"},
				CargoArgs: []string{"--features", "web"},
			},
			want: append(slices.Clone(base),
				"--config", `build.rustflags=["-C","target-feature=+simd128","<&>"]`,
				"--features", "web",
			),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompileArgs(tt.opts); !slices.Equal(got, tt.want) {
				t.Errorf("CompileArgs() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestGlueArgs(t *testing.T) {
	got := GlueArgs(GlueOptions{Wasm: "a.wasm", OutDir: "out", Args: []string{"--debug"}})
	want := []string{"--out-dir", "out", "--out-name", "index", "--target", "web", "--no-typescript", "a.wasm", "--debug"}
	if !slices.Equal(got, want) {
		t.Errorf("GlueArgs() = %q, want %q", got, want)
	}

	got = GlueArgs(GlueOptions{Wasm: "a.wasm", OutDir: "out", Typescript: true})
	if slices.Contains(got, "--no-typescript") {
		t.Errorf("GlueArgs(Typescript) = %q, should keep declarations", got)
	}
}

func TestArtifactPath(t *testing.T) {
	if got, want := ArtifactPath("/t", "my_lib", true), filepath.Join("/t", Target, "release", "my_lib.wasm"); got != want {
		t.Errorf("release = %q, want %q", got, want)
	}
	if got, want := ArtifactPath("/t", "my_lib", false), filepath.Join("/t", Target, "debug", "my_lib.wasm"); got != want {
		t.Errorf("debug = %q, want %q", got, want)
	}
}

func TestParseTargetDir(t *testing.T) {
	got, err := parseTargetDir([]byte(`{"packages":[],"target_directory":"/w/target","version":1}`))
	if err != nil || got != "/w/target" {
		t.Fatalf("parseTargetDir() = %q, %v", got, err)
	}
	for _, data := range []string{`{"version":1}`, `not json`, `{"target_directory":""}`} {
		_, err := parseTargetDir([]byte(data))
		if !errors.Is(err, ErrResolution) {
			t.Errorf("parseTargetDir(%s) err = %v, want ErrResolution", data, err)
		}
		if err != nil && !strings.Contains(err.Error(), "target_directory") {
			t.Errorf("error %q does not name the field", err)
		}
	}
}

func TestParsePkgid(t *testing.T) {
	tests := []struct {
		spec string
		want string
	}{
		{"registry+https://github.com/rust-lang/crates.io-index#wasm-bindgen@0.2.92\n", "0.2.92"},
		{"https://github.com/rust-lang/crates.io-index#wasm-bindgen:0.2.87\r\n", "0.2.87"},
	}
	for _, tt := range tests {
		got, err := parsePkgid("wasm-bindgen", tt.spec)
		if err != nil || got != tt.want {
			t.Errorf("parsePkgid(%q) = %q, %v; want %q", tt.spec, got, err, tt.want)
		}
	}
	if _, err := parsePkgid("wasm-bindgen", "error: package ID specification not found\n"); !errors.Is(err, ErrResolution) {
		t.Errorf("err = %v, want ErrResolution", err)
	}
}

func TestIsNightly(t *testing.T) {
	if !isNightly("cargo 1.80.0-nightly (b1feb75d0 2024-06-07)\n") {
		t.Error("nightly not detected")
	}
	if isNightly("cargo 1.79.0 (ffa9cf99a 2024-06-03)\n") {
		t.Error("stable reported as nightly")
	}
}

func TestResolvers(t *testing.T) {
	cargo := fakeTool(t, `case "$1" in
metadata) echo '{"target_directory":"/w/target"}' ;;
--version) echo 'cargo 1.80.0-nightly (b1feb75d0 2024-06-07)' ;;
pkgid) echo "registry+https://github.com/rust-lang/crates.io-index#$2@0.2.92" ;;
esac`)
	r := quiet(WithCargo(cargo))
	ctx := context.Background()
	dir := t.TempDir()

	if got, err := r.TargetDir(ctx, dir); err != nil || got != "/w/target" {
		t.Errorf("TargetDir() = %q, %v", got, err)
	}
	if got, err := r.Nightly(ctx, dir); err != nil || !got {
		t.Errorf("Nightly() = %v, %v", got, err)
	}
	if got, err := r.PackageVersion(ctx, dir, "wasm-bindgen"); err != nil || got != "0.2.92" {
		t.Errorf("PackageVersion() = %q, %v", got, err)
	}
}

func TestCompile(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "args")
	cargo := fakeTool(t, `echo "$PWD" > `+log+`; echo "$@" >> `+log)

	r := quiet(WithCargo(cargo))
	if err := r.Compile(context.Background(), dir, CompileOptions{Release: true}); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	data, err := os.ReadFile(log)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("log = %q", data)
	}
	if got := strings.Join(CompileArgs(CompileOptions{Release: true}), " "); lines[1] != got {
		t.Errorf("args = %q, want %q", lines[1], got)
	}
}

func TestCompileFailure(t *testing.T) {
	cargo := fakeTool(t, `echo "error[E0425]: cannot find value" >&2; exit 101`)
	ctx := context.Background()

	err := quiet(WithCargo(cargo)).Compile(ctx, t.TempDir(), CompileOptions{})
	if err != ErrToolchain {
		t.Errorf("non-verbose err = %v, want bare ErrToolchain", err)
	}

	err = quiet(WithCargo(cargo), WithVerbose(true)).Compile(ctx, t.TempDir(), CompileOptions{})
	if !errors.Is(err, ErrToolchain) {
		t.Fatalf("verbose err = %v, want ErrToolchain", err)
	}
	if !strings.Contains(err.Error(), "E0425") {
		t.Errorf("verbose err %q lost the tool output", err)
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Errorf("verbose err %v does not carry the command", err)
	}
}

func TestCompileMissingExecutable(t *testing.T) {
	r := quiet(WithCargo(filepath.Join(t.TempDir(), "no-such-cargo")))
	err := r.Compile(context.Background(), t.TempDir(), CompileOptions{})
	if !errors.Is(err, ErrToolchain) {
		t.Errorf("err = %v, want ErrToolchain", err)
	}
}

func TestGenerateGlue(t *testing.T) {
	bindgen := fakeTool(t, `mkdir -p "$2" && echo "export default function init() {}" > "$2/$4.js"`)
	out := filepath.Join(t.TempDir(), "out")
	err := quiet().GenerateGlue(context.Background(), bindgen, t.TempDir(), GlueOptions{Wasm: "a.wasm", OutDir: out})
	if err != nil {
		t.Fatalf("GenerateGlue: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "index.js")); err != nil {
		t.Errorf("glue not written: %v", err)
	}
}

func TestOptimize(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "index_bg.wasm")
	if err := os.WriteFile(input, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	wasmOpt := fakeTool(t, `printf optimized > "$3"`)
	if err := quiet(WithWasmOpt(wasmOpt)).Optimize(ctx, dir, "index_bg.wasm", "index_bg.opt.wasm", []string{"-O"}); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if data, _ := os.ReadFile(input); string(data) != "optimized" {
		t.Errorf("input = %q, want optimized", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "index_bg.opt.wasm")); !os.IsNotExist(err) {
		t.Errorf("output still present: %v", err)
	}

	broken := fakeTool(t, `exit 1`)
	err := quiet(WithWasmOpt(broken)).Optimize(ctx, dir, "index_bg.wasm", "index_bg.opt.wasm", nil)
	if !errors.Is(err, ErrOptimize) {
		t.Errorf("err = %v, want ErrOptimize", err)
	}
	if data, _ := os.ReadFile(input); string(data) != "optimized" {
		t.Errorf("input changed after failure: %q", data)
	}
}
