// Package codegen renders the JavaScript modules that load a built crate.
//
// A crate is exposed in one of four shapes, selected by whether the binary is
// inlined or emitted as a separate asset, and by whether the module
// initializes itself (default flavor) or exports an init function (explicit
// flavor). Each shape comes in an asynchronous and, for inline binaries, a
// synchronous variant.
package codegen

import (
	"fmt"
	"strings"

	"github.com/goplus/rustwasm/internal/config"
)

// Virtual module ids.
const (
	Prefix       = "./.__rustwasm__"
	EntrySuffix  = "?entry"
	InitSuffix   = "?init"
	InlineSuffix = "?inline"
)

// SourceMap is the empty source map attached to generated modules.
const SourceMap = `{"mappings":""}`

// ImportPath returns the virtual path the root module imports the glue of
// the crate name from. It lives next to the manifest so that package imports
// inside the glue resolve as if it were part of the crate.
func ImportPath(name string) string {
	return Prefix + name + "/index.js"
}

// BinaryPath returns the virtual id of the module holding the inlined binary
// of the crate name.
func BinaryPath(name string) string {
	return Prefix + name + "/index_bg.wasm" + InlineSuffix
}

// Flavor is the requested interface of a root module.
type Flavor struct {
	Entry    bool // the module is a bundle entry point
	Explicit bool // export init instead of initializing on load
}

// Mode holds the session options that affect generated code.
type Mode struct {
	Inline        bool
	Sync          bool
	NodeJS        bool
	DirectExports bool
}

// Validate rejects modes no shape exists for.
func (m Mode) Validate() error {
	if m.Sync && !m.Inline {
		return fmt.Errorf("%w: experimental.synchronous can only be used with inlineWasm: true", config.ErrConfig)
	}
	return nil
}

// Input describes the root module to generate.
type Input struct {
	Name     string // sanitized crate name
	RealPath string // glue entry on disk
	AssetRef string // reference of the emitted binary, external mode only
	Flavor   Flavor
	Mode     Mode
}

// Output is a generated module.
type Output struct {
	Code        string
	Map         string
	SideEffects bool
	RealPath    string // glue entry the module's relative imports are resolved against
}

// Generate renders the root module for in.
func Generate(in Input) (*Output, error) {
	if err := in.Mode.Validate(); err != nil {
		return nil, err
	}
	if !in.Mode.Inline && in.AssetRef == "" {
		return nil, fmt.Errorf("codegen: %s: missing asset reference", in.Name)
	}

	var (
		code        string
		sideEffects bool
	)
	switch {
	case in.Mode.Inline && in.Flavor.Explicit:
		code = inlineExplicit(in)
	case in.Mode.Inline:
		code, sideEffects = inlineDefault(in)
	case in.Flavor.Explicit:
		code = externalExplicit(in)
	default:
		code, sideEffects = externalDefault(in)
	}
	return &Output{
		Code:        code,
		Map:         SourceMap,
		SideEffects: sideEffects,
		RealPath:    in.RealPath,
	}, nil
}

func quote(s string) string {
	return config.JSString(s)
}

// header imports the glue, re-exporting it for non-entry direct exports.
func header(sb *strings.Builder, in Input) {
	importPath := quote(ImportPath(in.Name))
	if !in.Flavor.Entry && in.Mode.DirectExports {
		fmt.Fprintf(sb, "export * from %s;\n", importPath)
	}
	fmt.Fprintf(sb, "import * as exports from %s;\n", importPath)
}

func inlineDefault(in Input) (string, bool) {
	var sb strings.Builder
	header(&sb, in)
	fmt.Fprintf(&sb, "import wasm_code from %s;\n\n", quote(BinaryPath(in.Name)))

	direct := in.Mode.DirectExports
	if in.Mode.Sync {
		if in.Flavor.Entry || direct {
			sb.WriteString("exports.initSync({ module: wasm_code });\n")
			return sb.String(), true
		}
		sb.WriteString(`export default () => {
    exports.initSync({ module: wasm_code });
    return exports;
};
`)
		return sb.String(), false
	}

	switch {
	case direct:
		sb.WriteString("await exports.default({ module_or_path: wasm_code });\n")
		return sb.String(), true
	case in.Flavor.Entry:
		sb.WriteString("exports.default({ module_or_path: wasm_code }).catch(console.error);\n")
		return sb.String(), true
	}
	sb.WriteString(`export default async (opt = {}) => {
    let { initializeHook } = opt;

    if (initializeHook != null) {
        await initializeHook(exports.default, wasm_code);
    } else {
        await exports.default({ module_or_path: wasm_code });
    }

    return exports;
};
`)
	return sb.String(), false
}

func inlineExplicit(in Input) string {
	var sb strings.Builder
	header(&sb, in)
	fmt.Fprintf(&sb, "import wasm_code from %s;\n\n", quote(BinaryPath(in.Name)))
	sb.WriteString("export const module = wasm_code;\n\n")

	if in.Mode.Sync {
		sb.WriteString(`export function init(options) {
    exports.initSync({ module: options.module, memory: options.memory });
    return exports;
}
`)
		return sb.String()
	}
	sb.WriteString(explicitInit)
	return sb.String()
}

const explicitInit = `export async function init(options) {
    await exports.default({ module_or_path: await options.module, memory: options.memory });
    return exports;
}
`

const loadFile = `function loadFile(url) {
    return new Promise((resolve, reject) => {
        require("fs").readFile(url, (err, data) => {
            if (err) {
                reject(err);
            } else {
                resolve(data);
            }
        });
    });
}

`

// AssetURL returns the expression the host replaces with the runtime URL of
// the asset ref.
func AssetURL(ref string) string {
	return "import.meta.ROLLUP_FILE_URL_" + ref
}

func externalDefault(in Input) (string, bool) {
	var sb strings.Builder
	header(&sb, in)
	fmt.Fprintf(&sb, "\nconst wasm_path = %s;\n\n", AssetURL(in.AssetRef))

	load := func(path string) string { return path }
	if in.Mode.NodeJS {
		sb.WriteString(loadFile)
		load = func(path string) string { return "loadFile(" + path + ")" }
	}

	switch {
	case in.Mode.DirectExports:
		fmt.Fprintf(&sb, "await exports.default({ module_or_path: %s });\n", load("wasm_path"))
		return sb.String(), true
	case in.Flavor.Entry:
		fmt.Fprintf(&sb, "exports.default({ module_or_path: %s }).catch(console.error);\n", load("wasm_path"))
		return sb.String(), true
	}
	fmt.Fprintf(&sb, `export default async (opt = {}) => {
    let { importHook, serverPath, initializeHook } = opt;

    let final_path = wasm_path;

    if (serverPath != null) {
        final_path = serverPath + /[^\/\\]*$/.exec(final_path)[0];
    }

    if (importHook != null) {
        final_path = importHook(final_path);
    }

    if (initializeHook != null) {
        await initializeHook(exports.default, final_path);
    } else {
        await exports.default({ module_or_path: %s });
    }

    return exports;
};
`, load("final_path"))
	return sb.String(), false
}

func externalExplicit(in Input) string {
	var sb strings.Builder
	header(&sb, in)
	fmt.Fprintf(&sb, "\nexport const module = %s;\n\n", AssetURL(in.AssetRef))
	sb.WriteString(explicitInit)
	return sb.String()
}
