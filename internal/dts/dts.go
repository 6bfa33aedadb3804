// Package dts writes TypeScript declarations for built crates.
package dts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	initInput   = regexp.MustCompile(`export type InitInput = [\s\S]*`)
	blankLines  = regexp.MustCompile(`\n\n\n+`)
	blankClosed = regexp.MustCompile(`\n\n+\}`)
)

// Trim removes the loader part of a generated declaration, keeping the
// declarations of the crate exports.
func Trim(decl string) string {
	decl = initInput.ReplaceAllString(decl, "")
	decl = blankLines.ReplaceAllString(decl, "\n\n")
	decl = blankClosed.ReplaceAllString(decl, "\n}")
	return strings.TrimSpace(decl)
}

// Write copies outDir/index.d.ts, trimmed, to dir/<name>.d.ts.
func Write(name, dir, outDir string) error {
	data, err := os.ReadFile(filepath.Join(outDir, "index.d.ts"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name+".d.ts"), []byte(Trim(string(data))), 0o644)
}

// WriteCustom writes dir/<name>_custom.d.ts, the declaration of the explicit
// init flavor.
func WriteCustom(name, dir string, inline, sync bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name+"_custom.d.ts"), []byte(Custom(name, inline, sync)), 0o644)
}

// Custom returns the declaration of the explicit init flavor.
func Custom(name string, inline, sync bool) string {
	if sync {
		return fmt.Sprintf(`export type Module = BufferSource | WebAssembly.Module;

export type InitOutput = typeof import("./%s");

export interface InitOptions {
    module: Module;

    memory?: WebAssembly.Memory;
}

export const module: Uint8Array;

export function init(options: InitOptions): InitOutput;
`, name)
	}

	moduleType := "URL"
	if inline {
		moduleType = "Uint8Array"
	}
	return fmt.Sprintf(`export type Module = RequestInfo | URL | Response | BufferSource | WebAssembly.Module;

export type InitOutput = typeof import("./%s");

export interface InitOptions {
    module: Module | Promise<Module>;

    memory?: WebAssembly.Memory;
}

export const module: %s;

export function init(options: InitOptions): Promise<InitOutput>;
`, name, moduleType)
}
