package toolchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Target is the compilation target of every crate.
const Target = "wasm32-unknown-unknown"

// CompileOptions selects the cargo profile and extra arguments of a compile.
type CompileOptions struct {
	Release   bool
	Optimize  bool
	Nightly   bool
	Atomics   bool // shared memory and thread-local storage
	RustcArgs []string
	CargoArgs []string

	// Applied to nightly release builds only.
	StripLocation    bool
	StripFormatDebug bool
}

// CompileArgs returns the arguments passed to cargo for opts.
func CompileArgs(opts CompileOptions) []string {
	args := []string{
		"rustc",
		"--lib",
		"--target", Target,
		"--crate-type", "cdylib",
	}
	config := func(kv string) {
		args = append(args, "--config", kv)
	}

	var rustflags []string
	if opts.Atomics {
		rustflags = append(rustflags,
			"-C", "target-feature=+atomics,+bulk-memory,+mutable-globals",
			"-C", "link-args=--shared-memory",
			"-C", "link-args=--import-memory",
			"-C", "link-args=--export=__wasm_init_tls",
			"-C", "link-args=--export=__tls_size",
			"-C", "link-args=--export=__tls_align",
			"-C", "link-args=--export=__tls_base",
		)
		args = append(args, "-Z", "build-std")
	}

	if opts.Release {
		args = append(args, "--release")
		if opts.Nightly {
			if opts.StripLocation {
				rustflags = append(rustflags, "-Z", "location-detail=none")
			}
			if opts.StripFormatDebug {
				rustflags = append(rustflags, "-Z", "fmt-debug=none")
			}
		}
		if opts.Optimize {
			if opts.Nightly {
				config(`profile.release.panic="immediate-abort"`)
			} else {
				config(`profile.release.panic="abort"`)
			}
			config("profile.release.lto=true")
			config("profile.release.codegen-units=1")
			config("profile.release.strip=true")
			if opts.Nightly {
				args = append(args,
					"-Z", "panic-immediate-abort",
					"-Z", "build-std",
					"-Z", "build-std-features=optimize_for_size",
				)
			}
		}
	} else if opts.Optimize {
		config(`profile.dev.panic="abort"`)
		config(`profile.dev.lto="off"`)
		config("profile.dev.debug=false")
	}

	rustflags = append(rustflags, opts.RustcArgs...)
	if len(rustflags) > 0 {
		config("build.rustflags=" + jsonList(rustflags))
	}
	return append(args, opts.CargoArgs...)
}

func jsonList(list []string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(list); err != nil {
		panic(err) // a []string always encodes
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// ArtifactPath returns the path of the wasm file cargo produces for the
// crate name.
func ArtifactPath(targetDir, name string, release bool) string {
	profile := "debug"
	if release {
		profile = "release"
	}
	return filepath.Join(targetDir, Target, profile, name+".wasm")
}

// Compile runs cargo in dir.
func (r *Runner) Compile(ctx context.Context, dir string, opts CompileOptions) error {
	if err := r.run(ctx, dir, r.cargo, CompileArgs(opts)...); err != nil {
		return r.fail(err)
	}
	return nil
}

// TargetDir returns the target directory of the workspace containing dir.
func (r *Runner) TargetDir(ctx context.Context, dir string) (string, error) {
	out, err := r.output(ctx, dir, r.cargo, "metadata", "--format-version", "1", "--no-deps", "--color", "never")
	if err != nil {
		return "", r.fail(err)
	}
	return parseTargetDir([]byte(out))
}

func parseTargetDir(data []byte) (string, error) {
	var meta struct {
		TargetDirectory string `json:"target_directory"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", fmt.Errorf("%w: target_directory: %v", ErrResolution, err)
	}
	if meta.TargetDirectory == "" {
		return "", fmt.Errorf("%w: missing target_directory", ErrResolution)
	}
	return meta.TargetDirectory, nil
}

// Nightly reports whether the toolchain selected in dir is a nightly one.
func (r *Runner) Nightly(ctx context.Context, dir string) (bool, error) {
	out, err := r.output(ctx, dir, r.cargo, "--version")
	if err != nil {
		return false, r.fail(err)
	}
	return isNightly(out), nil
}

func isNightly(version string) bool {
	return strings.Contains(version, "-nightly ")
}

var pkgidVersion = regexp.MustCompile(`([\d.]+)[\r\n]*$`)

// PackageVersion returns the version of the package pkg that the workspace in
// dir depends on.
func (r *Runner) PackageVersion(ctx context.Context, dir, pkg string) (string, error) {
	out, err := r.output(ctx, dir, r.cargo, "pkgid", pkg)
	if err != nil {
		return "", r.fail(err)
	}
	return parsePkgid(pkg, out)
}

func parsePkgid(pkg, spec string) (string, error) {
	m := pkgidVersion.FindStringSubmatch(spec)
	if m == nil {
		return "", fmt.Errorf("%w: could not determine %s version", ErrResolution, pkg)
	}
	return m[1], nil
}
