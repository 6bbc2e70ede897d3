package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/pgpagebackup/pkg/pagefile"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg != DefaultConfig() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadOverlaysJSONC(t *testing.T) {
	dir := t.TempDir()

	jsonc := `{
		// prefer pglz, disable checksums
		"compress_alg": "pglz",
		"checksums_enabled": false,
	}`

	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(jsonc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.CompressAlg != "pglz" {
		t.Fatalf("CompressAlg = %q, want pglz", cfg.CompressAlg)
	}

	if cfg.ChecksumsEnabled {
		t.Fatalf("ChecksumsEnabled = true, want false (overridden)")
	}

	// Untouched fields keep their defaults.
	if cfg.CompressLevel != DefaultConfig().CompressLevel {
		t.Fatalf("CompressLevel = %d, want default %d", cfg.CompressLevel, DefaultConfig().CompressLevel)
	}
}

func TestLoadRejectsUnknownAlg(t *testing.T) {
	dir := t.TempDir()

	jsonc := `{"compress_alg": "lz4"}`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(jsonc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(dir); !errors.Is(err, ErrUnknownAlg) {
		t.Fatalf("err = %v, want ErrUnknownAlg", err)
	}
}

func TestConfigAlg(t *testing.T) {
	cases := []struct {
		name string
		want pagefile.Alg
	}{
		{"", pagefile.AlgNone},
		{"none", pagefile.AlgNone},
		{"zlib", pagefile.AlgZLIB},
		{"pglz", pagefile.AlgPGLZ},
	}

	for _, c := range cases {
		cfg := Config{CompressAlg: c.name}

		got, err := cfg.Alg()
		if err != nil {
			t.Fatalf("Alg(%q): %v", c.name, err)
		}

		if got != c.want {
			t.Fatalf("Alg(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}
