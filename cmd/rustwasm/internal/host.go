package internal

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goplus/rustwasm/internal/build"
	"github.com/goplus/rustwasm/internal/plugin"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

// host is a minimal in-process bundler host. It keeps module metadata and
// emitted assets for one session.
type host struct {
	logger *zap.Logger

	mu       sync.Mutex
	meta     map[string]*plugin.Identity
	assets   map[string]*asset // by reference
	watched  map[string]bool
	warnings []string
}

type asset struct {
	fileName string // relative to the output directory
	source   []byte
}

func newHost(logger *zap.Logger) *host {
	return &host{
		logger:  logger,
		meta:    make(map[string]*plugin.Identity),
		assets:  make(map[string]*asset),
		watched: make(map[string]bool),
	}
}

// EmitFile records a, naming it <stem>-<digest8><ext> unless it carries an
// exact file name.
func (h *host) EmitFile(a build.Asset) (string, error) {
	name := a.FileName
	if name == "" {
		name = hashedName(a.Name, a.Source)
	}
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("asset file name %q escapes the output directory", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	ref := fmt.Sprintf("asset%d", len(h.assets)+1)
	h.assets[ref] = &asset{fileName: name, source: a.Source}
	h.logger.Debug("Emitted asset", zap.String("ref", ref), zap.String("file", name))
	return ref, nil
}

func (h *host) Warn(msg string) {
	h.mu.Lock()
	h.warnings = append(h.warnings, msg)
	h.mu.Unlock()
	h.logger.Warn(msg)
}

func (h *host) AddWatchFile(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watched[path] = true
}

func (h *host) ModuleMeta(id string) (*plugin.Identity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	meta, ok := h.meta[id]
	return meta, ok
}

func (h *host) setMeta(id string, meta *plugin.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.meta[id] = meta
}

// fileName returns the file name of the asset ref.
func (h *host) fileName(ref string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.assets[ref]
	if !ok {
		return "", false
	}
	return a.fileName, true
}

// refs returns the references of every emitted asset.
func (h *host) refs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	refs := make([]string, 0, len(h.assets))
	for ref := range h.assets {
		refs = append(refs, ref)
	}
	return refs
}

// watchList returns the registered watch files in order.
func (h *host) watchList() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	files := make([]string, 0, len(h.watched))
	for f := range h.watched {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// writeAssets writes every emitted asset under outDir.
func (h *host) writeAssets(outDir string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range h.assets {
		dest := filepath.Join(outDir, filepath.FromSlash(a.fileName))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dest, a.source, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func hashedName(name string, source []byte) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s-%s%s", stem, digest.FromBytes(source).Encoded()[:8], ext)
}
