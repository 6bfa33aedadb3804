package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goplus/rustwasm/internal/config"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestRead(t *testing.T) {
	path := writeManifest(t, `
[package]
name = "my-lib"
version = "0.1.0"

[lib]
crate-type = ["cdylib", "rlib"]

[dependencies]
wasm-bindgen = "0.2.92"
`)
	m, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := m.Name(); got != "my_lib" {
		t.Errorf("Name() = %q, want my_lib", got)
	}
	if m.Package.Version != "0.1.0" {
		t.Errorf("version = %q, want 0.1.0", m.Package.Version)
	}
	if !m.HasDependency("wasm-bindgen") {
		t.Error("HasDependency(wasm-bindgen) = false")
	}
	if m.HasDependency("serde") {
		t.Error("HasDependency(serde) = true")
	}
}

func TestHasTargetDependency(t *testing.T) {
	m, err := Parse([]byte(`
[package]
name = "a"

[target.'cfg(target_arch = "wasm32")'.dependencies]
wasm-bindgen = { workspace = true }
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !m.HasDependency("wasm-bindgen") {
		t.Error("HasDependency(wasm-bindgen) = false for a target dependency")
	}
	if m.HasDependency("js-sys") {
		t.Error("HasDependency(js-sys) = true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name:    "no lib section",
			content: "[package]\nname = \"a\"\n",
		},
		{
			name:    "cdylib",
			content: "[package]\nname = \"a\"\n[lib]\ncrate-type = [\"cdylib\"]\n",
		},
		{
			name:    "rlib only",
			content: "[package]\nname = \"a\"\n[lib]\ncrate-type = [\"rlib\"]\n",
			wantErr: true,
		},
		{
			name:    "staticlib only",
			content: "[package]\nname = \"a\"\n[lib]\ncrate-type = [\"staticlib\", \"lib\"]\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(writeManifest(t, tt.content))
			if tt.wantErr {
				if !errors.Is(err, config.ErrConfig) {
					t.Fatalf("err = %v, want ErrConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse([]byte("[package]\nversion = \"1\"\n")); err == nil {
		t.Error("missing name: expected error")
	}
	if _, err := Parse([]byte("[package\n")); err == nil {
		t.Error("malformed toml: expected error")
	}
}

func TestSanitizeName(t *testing.T) {
	for in, want := range map[string]string{
		"my-lib":     "my_lib",
		"plain":      "plain",
		"a-b-c":      "a_b_c",
		"already_ok": "already_ok",
	} {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
