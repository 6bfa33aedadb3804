// Package manifest reads the parts of a Cargo.toml that the build needs.
package manifest

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goplus/rustwasm/internal/config"
)

// FileName is the base name of a crate manifest.
const FileName = "Cargo.toml"

// DynamicCrateType is the crate type wasm-bindgen can consume.
const DynamicCrateType = "cdylib"

// Manifest is a parsed crate manifest.
type Manifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
	Lib struct {
		CrateType []string `toml:"crate-type"`
	} `toml:"lib"`
	Dependencies map[string]toml.Primitive `toml:"dependencies"`
	Target       map[string]struct {
		Dependencies map[string]toml.Primitive `toml:"dependencies"`
	} `toml:"target"`
}

// Parse decodes manifest text. The package name is required.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, err
	}
	if m.Package.Name == "" {
		return nil, fmt.Errorf("missing package.name")
	}
	return &m, nil
}

// Read reads and parses the manifest at path, and checks that it can be
// compiled to a loadable binary.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Validate rejects a manifest whose declared crate types exclude cdylib.
// A manifest without [lib] crate-type is accepted: the compile step requests
// cdylib itself.
func (m *Manifest) Validate() error {
	ct := m.Lib.CrateType
	if len(ct) == 0 || slices.Contains(ct, DynamicCrateType) {
		return nil
	}
	return fmt.Errorf("%w: crate-type %q must include %q", config.ErrConfig, ct, DynamicCrateType)
}

// Name returns the package name with every "-" replaced by "_", which is how
// cargo names the compiled artifact.
func (m *Manifest) Name() string {
	return SanitizeName(m.Package.Name)
}

// SanitizeName turns a package name into the artifact name used by cargo.
func SanitizeName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// HasDependency reports whether the manifest declares a direct dependency,
// for every target or a specific one.
func (m *Manifest) HasDependency(name string) bool {
	if _, ok := m.Dependencies[name]; ok {
		return true
	}
	for _, t := range m.Target {
		if _, ok := t.Dependencies[name]; ok {
			return true
		}
	}
	return false
}
