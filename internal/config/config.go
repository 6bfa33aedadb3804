package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// ErrConfig reports an invalid configuration: an unknown option, an
// incompatible combination of options or a manifest that cannot be built.
var ErrConfig = errors.New("invalid configuration")

// Options is the user-supplied option tree. Pointer fields distinguish an
// unset option from an explicit false so that Resolve can apply defaults.
type Options struct {
	Include         []string     `yaml:"include"`
	Exclude         []string     `yaml:"exclude"`
	Watch           *bool        `yaml:"watch"`
	WatchPatterns   []string     `yaml:"watchPatterns"`
	Release         *bool        `yaml:"release"`
	Optimize        *bool        `yaml:"optimize"`
	InlineWasm      bool         `yaml:"inlineWasm"`
	NodeJS          bool         `yaml:"nodejs"`
	Verbose         bool         `yaml:"verbose"`
	ServerPath      string       `yaml:"serverPath"`
	CargoArgs       []string     `yaml:"cargoArgs"`
	RustcArgs       []string     `yaml:"rustcArgs"`
	WasmBindgenArgs []string     `yaml:"wasmBindgenArgs"`
	WasmOptArgs     []string     `yaml:"wasmOptArgs"`
	Experimental    Experimental `yaml:"experimental"`

	// Deprecated.
	Debug        *bool  `yaml:"debug"`
	OutDir       string `yaml:"outDir"`
	WasmPackPath string `yaml:"wasmPackPath"`

	// ImportHook turns the public path of an emitted binary into the
	// expression inserted into generated code. Defaults to a string literal.
	ImportHook func(path string) string `yaml:"-"`
}

// Experimental holds options whose behaviour may still change.
type Experimental struct {
	Synchronous    bool   `yaml:"synchronous"`
	DeclarationDir string `yaml:"declarationDir"`
	DirectExports  bool   `yaml:"directExports"`
	Atomics        bool   `yaml:"atomics"`
	Strip          Strip  `yaml:"strip"`

	// Deprecated: use DeclarationDir.
	TypescriptDeclarationDir string `yaml:"typescriptDeclarationDir"`
}

// Strip removes debugging data from release builds on nightly toolchains.
type Strip struct {
	Location    bool `yaml:"location"`
	FormatDebug bool `yaml:"formatDebug"`
}

// Parse decodes a YAML option tree. Unknown keys at any level are rejected.
// An empty document yields zero Options.
func Parse(r io.Reader) (*Options, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var opts Options
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return &opts, nil
}

// Load parses the YAML option file at path.
func Load(path string) (*Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	opts, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}

// Config is the resolved configuration of one build session. It must not be
// modified once returned by Resolve.
type Config struct {
	Include         []string
	Exclude         []string
	Watch           bool
	WatchPatterns   []string
	Release         bool
	Optimize        bool
	InlineWasm      bool
	NodeJS          bool
	Verbose         bool
	ServerPath      string
	CargoArgs       []string
	RustcArgs       []string
	WasmBindgenArgs []string
	WasmOptArgs     []string
	Synchronous     bool
	DeclarationDir  string
	DirectExports   bool
	Atomics         bool
	Strip           Strip
	AssetDir        string // from the deprecated outDir option
	ImportHook      func(path string) string
}

var defaultWatchPatterns = []string{"src/**"}

var defaultWasmOptArgs = []string{"-O"}

// Resolve validates opts, applies the deprecation table and defaults, and
// returns the session configuration together with deprecation warnings.
// watchMode reports whether the host runs in watch mode: it defaults watch to
// true and release to false. opts is not modified.
func Resolve(opts *Options, watchMode bool) (*Config, []string, error) {
	if opts == nil {
		opts = &Options{}
	}
	o := *opts

	var warnings []string
	for _, d := range deprecations {
		if d.present(&o) {
			warnings = append(warnings, d.migrate(&o))
		}
	}

	cfg := &Config{
		Include:         slices.Clone(o.Include),
		Exclude:         slices.Clone(o.Exclude),
		Watch:           boolOr(o.Watch, watchMode),
		WatchPatterns:   slices.Clone(o.WatchPatterns),
		Release:         boolOr(o.Release, !watchMode),
		Optimize:        boolOr(o.Optimize, true),
		InlineWasm:      o.InlineWasm,
		NodeJS:          o.NodeJS,
		Verbose:         o.Verbose,
		ServerPath:      o.ServerPath,
		CargoArgs:       slices.Clone(o.CargoArgs),
		RustcArgs:       slices.Clone(o.RustcArgs),
		WasmBindgenArgs: slices.Clone(o.WasmBindgenArgs),
		WasmOptArgs:     slices.Clone(o.WasmOptArgs),
		Synchronous:     o.Experimental.Synchronous,
		DeclarationDir:  o.Experimental.DeclarationDir,
		DirectExports:   o.Experimental.DirectExports,
		Atomics:         o.Experimental.Atomics,
		Strip:           o.Experimental.Strip,
		AssetDir:        o.OutDir,
		ImportHook:      o.ImportHook,
	}
	if cfg.WatchPatterns == nil {
		cfg.WatchPatterns = slices.Clone(defaultWatchPatterns)
	}
	if cfg.WasmOptArgs == nil {
		cfg.WasmOptArgs = slices.Clone(defaultWasmOptArgs)
	}
	if cfg.ImportHook == nil {
		cfg.ImportHook = JSString
	}
	if cfg.DeclarationDir != "" {
		abs, err := filepath.Abs(cfg.DeclarationDir)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: experimental.declarationDir: %v", ErrConfig, err)
		}
		cfg.DeclarationDir = abs
	}

	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	return cfg, warnings, nil
}

func (c *Config) validate() error {
	if c.Synchronous && !c.InlineWasm {
		return fmt.Errorf("%w: experimental.synchronous can only be used with inlineWasm: true", ErrConfig)
	}
	for _, group := range [][]string{c.Include, c.Exclude, c.WatchPatterns} {
		for _, p := range group {
			if !doublestar.ValidatePattern(p) {
				return fmt.Errorf("%w: invalid pattern %q", ErrConfig, p)
			}
		}
	}
	return nil
}

// Filter reports whether the manifest at path is handled: it must match an
// include pattern, if any, and no exclude pattern.
func (c *Config) Filter(path string) bool {
	p := filepath.ToSlash(path)
	if len(c.Include) > 0 && !matchAny(c.Include, p) {
		return false
	}
	return !matchAny(c.Exclude, p)
}

func matchAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(filepath.ToSlash(pattern), p); ok {
			return true
		}
	}
	return false
}

// JSString returns s as a JavaScript string literal.
func JSString(s string) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		panic(err) // a string always encodes
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func boolOr(p *bool, fallback bool) bool {
	if p == nil {
		return fallback
	}
	return *p
}
