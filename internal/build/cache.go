package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"
)

// Output directory layout:
//
//	<targetDir>/rustwasm/<name>/
//	  index.js            # glue
//	  index_bg.wasm       # binary
//	  index.d.ts          # declarations, when requested
//	  .build.json         # build record
const recordFile = ".build.json"

// Record describes the last build written to an output directory.
type Record struct {
	Manifest  string        `json:"manifest"`
	Version   string        `json:"version"`
	Digest    digest.Digest `json:"digest"`
	Release   bool          `json:"release"`
	Optimized bool          `json:"optimized"`
	BuildTime time.Time     `json:"build_time"`
}

func saveRecord(outDir string, res *Result, release bool) error {
	data, err := json.MarshalIndent(&Record{
		Manifest:  res.Manifest,
		Version:   res.Version,
		Digest:    res.Digest,
		Release:   release,
		Optimized: res.Optimized,
		BuildTime: time.Now(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, recordFile), data, 0o644)
}

// LoadRecord reads the build record of an output directory.
func LoadRecord(outDir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(outDir, recordFile))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
