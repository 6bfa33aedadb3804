package plugin

import (
	"github.com/goplus/rustwasm/internal/codegen"
)

// Kind is the kind of a module owned by the plugin.
type Kind int

const (
	Root   Kind = iota + 1 // a crate manifest
	Glue                   // a file generated by wasm-bindgen
	Binary                 // the inlined binary of a crate
)

func (k Kind) String() string {
	switch k {
	case Root:
		return "root"
	case Glue:
		return "glue"
	case Binary:
		return "binary"
	}
	return "unknown"
}

// Identity is the metadata the host keeps for every module the plugin
// resolves or loads.
type Identity struct {
	Kind     Kind
	Manifest string         // manifest path, Root and Binary
	Flavor   codegen.Flavor // Root
	RealPath string         // file relative imports resolve against, empty for an unloaded Root
}

// Resolved is the result of resolving an import to a plugin module.
type Resolved struct {
	ID          string
	Meta        *Identity
	SideEffects bool
}

// Module is a loaded module. Meta replaces the identity kept for its id.
type Module struct {
	Code        string
	Map         string
	SideEffects bool
	Meta        *Identity
}
