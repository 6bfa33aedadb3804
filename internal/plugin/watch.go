package plugin

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// watchFiles registers the files of dir matching patterns.
func watchFiles(host Host, dir string, patterns []string) error {
	fsys := os.DirFS(dir)
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, filepath.ToSlash(pattern), doublestar.WithFilesOnly())
		if err != nil {
			return err
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			host.AddWatchFile(filepath.Join(dir, filepath.FromSlash(m)))
		}
	}
	return nil
}
