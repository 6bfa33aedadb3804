package build

import (
	"context"
	"sync"

	"github.com/goplus/rustwasm/internal/config"
	"github.com/goplus/rustwasm/internal/par"
)

// Session is the state of one build run. Every table is discarded when the
// Builder is reset.
type Session struct {
	cfg     *config.Config
	tools   Toolchain
	fetcher Fetcher

	builds     par.Cache[string, *Result] // by manifest path
	targetDirs par.Cache[string, string]  // by workspace dir
	nightly    par.Cache[string, bool]    // by workspace dir

	mu     sync.Mutex
	assets map[string]bool
}

func newSession(cfg *config.Config, tools Toolchain, fetcher Fetcher) *Session {
	return &Session{
		cfg:     cfg,
		tools:   tools,
		fetcher: fetcher,
		assets:  make(map[string]bool),
	}
}

// Config returns the configuration of the session.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Lookup returns the build of the manifest at path if it has finished.
func (s *Session) Lookup(path string) (*Result, bool) {
	res, err, ok := s.builds.Get(path)
	return res, ok && err == nil
}

// Builds reports how many crates were requested in the session.
func (s *Session) Builds() int {
	return s.builds.Len()
}

// HasAsset reports whether ref was emitted in this session.
func (s *Session) HasAsset(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assets[ref]
}

func (s *Session) addAsset(ref string) {
	s.mu.Lock()
	s.assets[ref] = true
	s.mu.Unlock()
}

func (s *Session) targetDir(ctx context.Context, dir string) (string, error) {
	return s.targetDirs.Do(dir, func() (string, error) {
		return s.tools.TargetDir(ctx, dir)
	})
}

func (s *Session) isNightly(ctx context.Context, dir string) (bool, error) {
	return s.nightly.Do(dir, func() (bool, error) {
		return s.tools.Nightly(ctx, dir)
	})
}
