package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/goplus/rustwasm/internal/build"
	"github.com/goplus/rustwasm/internal/config"
	"github.com/goplus/rustwasm/internal/wasm"
	"github.com/spf13/cobra"
)

var inspectConfig string

var inspectCmd = &cobra.Command{
	Use:   "inspect <Cargo.toml>",
	Short: "Build a crate and list the interface of its binary",
	Long:  `Inspect builds a crate and lists the functions and memories its WebAssembly binary exports and imports.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectConfig, "config", "c", "", "Option file (YAML)")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	opts, err := loadOptions(inspectConfig)
	if err != nil {
		return err
	}
	if verbose {
		opts.Verbose = true
	}
	// Nothing is emitted: the binary is read from the build result.
	opts.InlineWasm = true

	cfg, warnings, err := config.Resolve(opts, false)
	if err != nil {
		return err
	}
	h := newHost(logger)
	for _, w := range warnings {
		h.Warn(w)
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	res, err := build.New(cfg, build.WithLogger(logger)).Build(ctx, h, path)
	if err != nil {
		return err
	}
	info, err := wasm.Inspect(ctx, res.Wasm)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", res.Name, err)
	}

	w := cmd.OutOrStdout()
	title := res.Name
	if res.Version != "" {
		title += " v" + res.Version
	}
	printInfo(w, title, info)
	if rec, err := build.LoadRecord(res.OutDir); err == nil {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("built %s, %s, %s",
			rec.BuildTime.Format(time.DateTime), formatSize(len(res.Wasm)), rec.Digest)))
	}
	return nil
}
