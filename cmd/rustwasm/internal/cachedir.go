package internal

import (
	"fmt"
	"os"

	"github.com/goplus/rustwasm/internal/env"
	"github.com/spf13/cobra"
)

var cacheDirClean bool

var cacheDirCmd = &cobra.Command{
	Use:   "cache-dir",
	Short: "Print the directory holding downloaded tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := env.CacheDir()
		if cacheDirClean {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("failed to clean cache: %w", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), dir)
		return nil
	},
}

func init() {
	cacheDirCmd.Flags().BoolVar(&cacheDirClean, "clean", false, "Remove the cached tools")
	rootCmd.AddCommand(cacheDirCmd)
}
