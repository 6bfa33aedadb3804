package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/goplus/rustwasm/internal/build"
	"github.com/goplus/rustwasm/internal/manifest"
	"github.com/goplus/rustwasm/internal/metrics"
	"github.com/goplus/rustwasm/internal/par"
	"github.com/goplus/rustwasm/internal/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	buildConfig    string
	buildOutput    string
	buildWatchMode bool
	buildMetrics   bool
	buildJobs      int
	buildInit      bool
)

var buildCmd = &cobra.Command{
	Use:   "build [Cargo.toml...]",
	Short: "Build crates into JavaScript modules",
	Long: `Build compiles each crate and writes the modules that load it to the output
directory. Without arguments it builds the crate in the current directory.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildConfig, "config", "c", "", "Option file (YAML)")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "dist", "Output directory")
	buildCmd.Flags().BoolVar(&buildWatchMode, "watch-mode", false, "Build with watch mode defaults")
	buildCmd.Flags().BoolVar(&buildMetrics, "metrics", false, "Print build metrics")
	buildCmd.Flags().IntVarP(&buildJobs, "jobs", "j", runtime.NumCPU(), "Number of crates built in parallel")
	buildCmd.Flags().BoolVar(&buildInit, "init", false, "Export an init function instead of initializing on load")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{manifest.FileName}
	}
	opts, err := loadOptions(buildConfig)
	if err != nil {
		return err
	}
	if verbose {
		opts.Verbose = true
	}
	outDir, err := filepath.Abs(buildOutput)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	var (
		reg       *prometheus.Registry
		collector *metrics.Collector
	)
	if buildMetrics {
		reg = prometheus.NewRegistry()
		collector = metrics.NewCollector(reg)
	}

	p, err := plugin.New(opts,
		plugin.WithLogger(logger),
		plugin.WithBuildOptions(build.WithMetrics(collector)))
	if err != nil {
		return err
	}
	h := newHost(logger)
	if err := p.BuildStart(h, buildWatchMode); err != nil {
		return err
	}

	ctx := context.Background()

	var work par.Work[string]
	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		work.Add(path)
	}

	var (
		mu        sync.Mutex
		summaries []*summary
	)
	buildErr := work.Do(max(buildJobs, 1), func(path string) error {
		s, err := bundle(ctx, p, h, path, outDir, buildInit)
		if err != nil {
			return err
		}
		mu.Lock()
		summaries = append(summaries, s)
		mu.Unlock()
		return nil
	})
	if err := h.writeAssets(outDir); err != nil {
		return fmt.Errorf("failed to write assets: %w", err)
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	w := cmd.OutOrStdout()
	printSummary(w, outDir, summaries)
	if files := h.watchList(); len(files) > 0 {
		logger.Sugar().Debugf("Watching %d files", len(files))
	}
	if reg != nil {
		if err := metrics.WriteText(w, reg); err != nil {
			return err
		}
	}
	return buildErr
}
