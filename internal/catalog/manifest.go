package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/pgpagebackup/pkg/pagefile"
)

// manifestVersion guards the on-disk JSON shape so a future format change
// can be detected instead of silently misread.
const manifestVersion = 1

// manifestFile is the JSON sidecar written next to a framed backup file: a
// small summary of the backup's filelist, independent of the (potentially
// multi-gigabyte) framed data itself. It lets a catalogue reader resolve a
// restore chain (spec §4.7) without re-scanning frame files.
type manifestFile struct {
	Version  int             `json:"version"`
	ID       string          `json:"id"`
	Mode     string          `json:"mode"`
	StartLSN uint64          `json:"start_lsn"`
	Backup   [3]int          `json:"backup_version"`
	Files    []manifestEntry `json:"files"`
}

type manifestEntry struct {
	RelPath          string `json:"rel_path"`
	Segno            uint32 `json:"segno"`
	Tablespace       uint32 `json:"tablespace"`
	DB               uint32 `json:"db"`
	Rel              uint32 `json:"rel"`
	Size             int64  `json:"size"`
	NBlocks          int64  `json:"n_blocks"`
	ReadSize         int64  `json:"read_size"`
	WriteSize        int64  `json:"write_size"`
	UncompressedSize int64  `json:"uncompressed_size"`
	CRC              uint32 `json:"crc"`
	CompressAlg      uint8  `json:"compress_alg"`
}

// WriteManifest serializes b's filelist summary and writes it to path with
// a write-then-rename swap, so a reader never observes a partially written
// manifest (the teacher gives ticket files and the binary cache the same
// guarantee via the same library; see cache_binary.go's writeBinaryCache).
func WriteManifest(path string, b *Backup) error {
	m := manifestFile{
		Version:  manifestVersion,
		ID:       b.ID,
		Mode:     b.Mode.String(),
		StartLSN: b.StartLSN,
		Backup:   b.Version,
		Files:    make([]manifestEntry, len(b.Files)),
	}

	for i, f := range b.Files {
		m.Files[i] = manifestEntry{
			RelPath:          f.RelPath,
			Segno:            f.Segno,
			Tablespace:       f.Tablespace,
			DB:               f.DB,
			Rel:              f.Rel,
			Size:             f.Size,
			NBlocks:          f.NBlocks,
			ReadSize:         f.ReadSize,
			WriteSize:        f.WriteSize,
			UncompressedSize: f.UncompressedSize,
			CRC:              f.CRC,
			CompressAlg:      uint8(f.CompressAlg),
		}
	}

	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: marshal manifest: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("catalog: write manifest %s: %w", path, err)
	}

	return nil
}

// ReadManifest reads back a manifest written by WriteManifest and
// reconstructs the Backup summary it describes.
func ReadManifest(path string) (*Backup, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read manifest %s: %w", path, err)
	}

	var m manifestFile

	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("catalog: unmarshal manifest %s: %w", path, err)
	}

	if m.Version != manifestVersion {
		return nil, fmt.Errorf("catalog: manifest %s: unsupported version %d", path, m.Version)
	}

	b := &Backup{
		ID:       m.ID,
		Mode:     parseMode(m.Mode),
		StartLSN: m.StartLSN,
		Version:  m.Backup,
		Files:    make([]*FileEntry, len(m.Files)),
	}

	for i, e := range m.Files {
		b.Files[i] = &FileEntry{
			RelPath:          e.RelPath,
			Segno:            e.Segno,
			Tablespace:       e.Tablespace,
			DB:               e.DB,
			Rel:              e.Rel,
			Size:             e.Size,
			NBlocks:          e.NBlocks,
			ReadSize:         e.ReadSize,
			WriteSize:        e.WriteSize,
			UncompressedSize: e.UncompressedSize,
			CRC:              e.CRC,
			CompressAlg:      pagefile.Alg(e.CompressAlg),
		}
	}

	return b, nil
}

func parseMode(s string) Mode {
	switch s {
	case "full":
		return ModeFull
	case "page":
		return ModePage
	case "delta":
		return ModeDelta
	case "ptrack":
		return ModePtrack
	default:
		return Mode(99)
	}
}
