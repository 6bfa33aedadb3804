// Package env resolves tool executables and the shared cache directory,
// honouring environment overrides.
package env

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
)

// Environment variables that override tool lookup.
const (
	CargoBin       = "CARGO_BIN"
	WasmBindgenBin = "WASM_BINDGEN_BIN"
	WasmOptBin     = "WASM_OPT_BIN"
	CacheDirVar    = "RUSTWASM_CACHE_DIR"
)

const cacheName = "rustwasm"

// Get returns the value of the environment variable name, or fallback when it
// is unset. An empty but set variable is returned as is.
func Get(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}

// Cargo returns the cargo executable.
func Cargo() string {
	return Get(CargoBin, "cargo")
}

// WasmOpt returns the wasm-opt executable.
func WasmOpt() string {
	if runtime.GOOS == "windows" {
		return Get(WasmOptBin, "wasm-opt.cmd")
	}
	return Get(WasmOptBin, "wasm-opt")
}

// WasmBindgen returns the wasm-bindgen override and whether it is set.
func WasmBindgen() (string, bool) {
	v, ok := os.LookupEnv(WasmBindgenBin)
	return v, ok && v != ""
}

// CacheDir returns the shared cache root that holds downloaded tools.
// It is $RUSTWASM_CACHE_DIR when set, otherwise <XDG cache home>/rustwasm.
func CacheDir() string {
	if dir := os.Getenv(CacheDirVar); dir != "" {
		return dir
	}
	return filepath.Join(xdg.CacheHome, cacheName)
}

// ExeName appends the executable suffix of goos to name.
func ExeName(goos, name string) string {
	if goos == "windows" {
		return name + ".exe"
	}
	return name
}
