package fetch

import (
	"fmt"
	"strings"
)

// triples maps GOOS/GOARCH to the target triple of a published release.
var triples = map[string]string{
	"linux/amd64":   "x86_64-unknown-linux-musl",
	"linux/arm64":   "aarch64-unknown-linux-gnu",
	"darwin/amd64":  "x86_64-apple-darwin",
	"darwin/arm64":  "aarch64-apple-darwin",
	"windows/amd64": "x86_64-pc-windows-msvc",
	"windows/arm64": "x86_64-pc-windows-msvc", // runs under emulation
}

// Artifact returns the release artifact name of version for goos/goarch.
func Artifact(version, goos, goarch string) (string, error) {
	triple, ok := triples[goos+"/"+goarch]
	if !ok {
		return "", fmt.Errorf("%w: no release for %s/%s, set WASM_BINDGEN_BIN", ErrFetch, goos, goarch)
	}
	return "wasm-bindgen-" + version + "-" + triple, nil
}

// URL returns the download location of an artifact archive.
func URL(baseURL, version, artifact string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + version + "/" + artifact + ".tar.gz"
}
