package toolchain

import "context"

// GlueName is the base name of every file wasm-bindgen writes.
const GlueName = "index"

// GlueOptions describes one wasm-bindgen run.
type GlueOptions struct {
	Wasm       string // compiled artifact
	OutDir     string
	Typescript bool // also write index.d.ts
	Args       []string
}

// GlueArgs returns the arguments passed to wasm-bindgen for opts.
func GlueArgs(opts GlueOptions) []string {
	args := []string{
		"--out-dir", opts.OutDir,
		"--out-name", GlueName,
		"--target", "web",
	}
	if !opts.Typescript {
		args = append(args, "--no-typescript")
	}
	args = append(args, opts.Wasm)
	return append(args, opts.Args...)
}

// GenerateGlue runs the wasm-bindgen executable bin in dir.
func (r *Runner) GenerateGlue(ctx context.Context, bin, dir string, opts GlueOptions) error {
	if err := r.run(ctx, dir, bin, GlueArgs(opts)...); err != nil {
		return r.fail(err)
	}
	return nil
}
