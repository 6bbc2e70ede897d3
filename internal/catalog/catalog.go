// Package catalog holds the minimal slice of backup-catalogue state the
// core needs to resolve a restore chain and to track one file's progress
// through a backup (spec §3, §7.1/7.6/7.7). Full catalogue management
// (retention, locking, remote storage, WAL archiving) is out of scope
// (spec §1) — this package models only the borrowed contract: FileEntry
// records and the ordered Chain a restore walks, plus the small JSON
// manifest sidecar (manifest.go) that accompanies a framed backup file on
// disk.
package catalog

import (
	"sort"

	"github.com/calvinalkan/pgpagebackup/pkg/pagefile"
)

// Sentinel write_size values (spec §3, §6).
const (
	// BytesInvalid marks a FileEntry whose backup made no changes: the
	// incremental driver stored nothing for this file.
	BytesInvalid int64 = -1
	// FileNotFound marks a FileEntry whose source vanished during backup
	// under missing_ok (spec §4.6 pre-loop).
	FileNotFound int64 = -2
)

// FileEntry is the per-segment record the backup/restore drivers read and
// mutate (spec §3 "FileEntry").
type FileEntry struct {
	RelPath string
	Segno   uint32

	Tablespace uint32
	DB         uint32
	Rel        uint32

	Size int64

	Pagemap       []uint64 // nil/empty means "no pagemap" (spec §4.4)
	PagemapAbsent bool

	ExistsInPrev bool

	NBlocks          int64
	ReadSize         int64
	WriteSize        int64
	UncompressedSize int64
	CRC              uint32

	CompressAlg pagefile.Alg
}

// UsePagemap implements the spec §4.6 loop-selection predicate:
// use_pagemap = (pagemap non-empty) ∧ (not absent) ∧ exists_in_prev ∧ bitmap present.
func (f *FileEntry) UsePagemap() bool {
	return len(f.Pagemap) > 0 && !f.PagemapAbsent && f.ExistsInPrev
}

// Backup is one point-in-time backup: its mode, the LSN it started at (for
// DELTA comparisons by later incrementals), its format version (for CRC
// and compression-compat selection), and its filelist sorted by RelPath
// for the binary-search lookup C7 performs (spec §4.7).
type Backup struct {
	ID        string
	Mode      Mode
	StartLSN  uint64
	Version   [3]int // Major, Minor, Patch
	Files     []*FileEntry
}

// Mode is the backup mode selecting C3/C6's incremental strategy (spec §2,
// GLOSSARY).
type Mode int

const (
	ModeFull Mode = iota
	ModePage
	ModeDelta
	ModePtrack
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModePage:
		return "page"
	case ModeDelta:
		return "delta"
	case ModePtrack:
		return "ptrack"
	default:
		return "unknown"
	}
}

// SortFiles sorts Files by RelPath, establishing the precondition C7's
// lookup relies on.
func (b *Backup) SortFiles() {
	sort.Slice(b.Files, func(i, j int) bool { return b.Files[i].RelPath < b.Files[j].RelPath })
}

// Lookup binary-searches Files for relPath (spec §4.7: "binary search").
func (b *Backup) Lookup(relPath string) (*FileEntry, bool) {
	i := sort.Search(len(b.Files), func(i int) bool { return b.Files[i].RelPath >= relPath })
	if i < len(b.Files) && b.Files[i].RelPath == relPath {
		return b.Files[i], true
	}

	return nil, false
}

// Chain is a backup chain ordered newest-first, as a catalogue typically
// stores it (most recent backup at index 0, its FULL ancestor last). C7
// walks it oldest-to-newest (spec §4.7), so callers use OldestToNewest rather than
// ranging over Chain directly.
type Chain []*Backup

// OldestToNewest returns the chain reversed: FULL first, most recent last,
// matching the replay order spec §4.7 requires ("iterate the parent chain
// from oldest (FULL) to newest").
func (c Chain) OldestToNewest() []*Backup {
	out := make([]*Backup, len(c))
	for i, b := range c {
		out[len(c)-1-i] = b
	}

	return out
}
