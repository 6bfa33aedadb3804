package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Optimize runs wasm-opt on dir/input, writing dir/output, and then moves the
// result over the input. The input is left untouched on failure.
func (r *Runner) Optimize(ctx context.Context, dir, input, output string, args []string) error {
	argv := append([]string{input, "--output", output}, args...)
	if err := r.run(ctx, dir, r.wasmOpt, argv...); err != nil {
		return fmt.Errorf("%w: %w", ErrOptimize, err)
	}
	if err := os.Rename(filepath.Join(dir, output), filepath.Join(dir, input)); err != nil {
		return fmt.Errorf("%w: %w", ErrOptimize, err)
	}
	return nil
}
