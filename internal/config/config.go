// Package config loads driver-wide defaults for the backup/restore engine
// from a JSONC (hujson) file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/pgpagebackup/pkg/pagefile"
)

// ConfigFileName is the default config file name looked up in the
// effective working directory.
const ConfigFileName = ".pgpagebackup.jsonc"

// Config holds the engine-wide defaults the CLI layer (out of scope,
// spec §1) would otherwise hard-code: compression choice, checksum
// policy, the relation segment size, and stdio buffering thresholds
// (spec §6 "Constants").
type Config struct {
	CompressAlg   string `json:"compress_alg"`
	CompressLevel int    `json:"compress_level"`

	ChecksumsEnabled bool `json:"checksums_enabled"`

	RelsegSize int32 `json:"relseg_size"`

	// StdioBufSize is the full-buffering size used for sequential-scan
	// backups (spec §4.4: "for sequential scan, full buffering is
	// enabled").
	StdioBufSize int `json:"stdio_bufsize"`

	StrictPageChecks bool `json:"strict_page_checks"`
}

// DefaultConfig mirrors the typical on-disk defaults for this format.
func DefaultConfig() Config {
	return Config{
		CompressAlg:      "zlib",
		CompressLevel:    1,
		ChecksumsEnabled: true,
		RelsegSize:       pagefile.RELSEGSize,
		StdioBufSize:     64 * 1024,
		StrictPageChecks: true,
	}
}

// ErrUnknownAlg is returned when compress_alg names something other than
// "none", "zlib", or "pglz".
var ErrUnknownAlg = errors.New("config: unknown compress_alg")

// Alg resolves CompressAlg to its pagefile.Alg tag.
func (c Config) Alg() (pagefile.Alg, error) {
	switch c.CompressAlg {
	case "", "none":
		return pagefile.AlgNone, nil
	case "zlib":
		return pagefile.AlgZLIB, nil
	case "pglz":
		return pagefile.AlgPGLZ, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlg, c.CompressAlg)
	}
}

// Load reads ConfigFileName from dir if present, overlaying it onto
// DefaultConfig. A missing file is not an error.
func Load(dir string) (Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(dir, ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s is not valid JSONC: %w", path, err)
	}

	overlay := DefaultConfig()
	if err := json.Unmarshal(standardized, &overlay); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	if _, err := overlay.Alg(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	return overlay, nil
}
