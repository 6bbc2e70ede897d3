package backup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/calvinalkan/pgpagebackup/internal/catalog"
	"github.com/calvinalkan/pgpagebackup/pkg/pagefile"
	"github.com/calvinalkan/pgpagebackup/pkg/vfs"
)

func validPage(absBlock uint32, lsn uint64) []byte {
	page := make([]byte, pagefile.BLCKSZ)
	h := pagefile.PageHeader{
		LSN:                lsn,
		Lower:              pagefile.HeaderSize,
		Upper:              pagefile.BLCKSZ,
		Special:            pagefile.BLCKSZ,
		PageSizeAndVersion: pagefile.BLCKSZ,
	}
	pagefile.EncodeHeader(page, h)
	pagefile.SetChecksum(page, pagefile.ComputePageChecksum(page, absBlock))

	return page
}

// TestBackupFileZeroPageFull covers spec §8 scenario 1: a single all-zero
// page, FULL mode, must still be framed in full.
func TestBackupFileZeroPageFull(t *testing.T) {
	fs := vfs.NewFake()
	fs.Seed("/src/rel", make([]byte, pagefile.BLCKSZ))

	file := &catalog.FileEntry{RelPath: "rel"}

	opts := Options{
		SrcPath:       "/src/rel",
		DstPath:       "/dst/rel",
		Mode:          catalog.ModeFull,
		Alg:           pagefile.AlgNone,
		BackupVersion: pagefile.Version{Major: 2, Minor: 0, Patch: 30},
	}

	if err := BackupFile(context.Background(), fs, file, opts); err != nil {
		t.Fatalf("BackupFile: %v", err)
	}

	if file.WriteSize != pagefile.FrameHeaderSize+pagefile.BLCKSZ {
		t.Fatalf("WriteSize = %d, want header+BLCKSZ", file.WriteSize)
	}

	if file.NBlocks != 1 {
		t.Fatalf("NBlocks = %d, want 1", file.NBlocks)
	}

	data, ok := fs.ReadFile("/dst/rel")
	if !ok || len(data) != int(file.WriteSize) {
		t.Fatalf("destination file missing or wrong size: ok=%v len=%d", ok, len(data))
	}
}

// TestBackupFileDeltaSkipsOldPages covers spec §8 scenario 2: DELTA against
// a page whose LSN predates the parent backup writes nothing and marks
// write_size invalid.
func TestBackupFileDeltaSkipsOldPages(t *testing.T) {
	fs := vfs.NewFake()
	fs.Seed("/src/rel", validPage(0, 0x500))

	file := &catalog.FileEntry{RelPath: "rel", ExistsInPrev: true}

	opts := Options{
		SrcPath:            "/src/rel",
		DstPath:            "/dst/rel",
		Mode:               catalog.ModeDelta,
		Alg:                pagefile.AlgNone,
		ChecksumsEnabled:   true,
		PrevBackupStartLSN: 0x1000,
		BackupVersion:      pagefile.Version{Major: 2, Minor: 0, Patch: 30},
	}

	if err := BackupFile(context.Background(), fs, file, opts); err != nil {
		t.Fatalf("BackupFile: %v", err)
	}

	if file.WriteSize != catalog.BytesInvalid {
		t.Fatalf("WriteSize = %d, want BytesInvalid (all pages skipped)", file.WriteSize)
	}

	if _, ok := fs.ReadFile("/dst/rel"); ok {
		t.Fatalf("expected empty destination file to be removed")
	}
}

// TestBackupFilePageBitmapAscendingOrder covers spec §8 scenario 3: PAGE
// mode with a pagemap of {0,2} must visit blocks in ascending order and
// write exactly those two frames.
func TestBackupFilePageBitmapAscendingOrder(t *testing.T) {
	fs := vfs.NewFake()

	page0 := validPage(0, 0x10)
	page1 := validPage(1, 0x10)
	page2 := validPage(2, 0x10)

	full := append(append(append([]byte{}, page0...), page1...), page2...)
	fs.Seed("/src/rel", full)

	file := &catalog.FileEntry{
		RelPath:      "rel",
		ExistsInPrev: true,
		Pagemap:      []uint64{0b101}, // blocks 0 and 2
	}

	opts := Options{
		SrcPath:       "/src/rel",
		DstPath:       "/dst/rel",
		Mode:          catalog.ModePage,
		Alg:           pagefile.AlgNone,
		BackupVersion: pagefile.Version{Major: 2, Minor: 0, Patch: 30},
	}

	if err := BackupFile(context.Background(), fs, file, opts); err != nil {
		t.Fatalf("BackupFile: %v", err)
	}

	data, ok := fs.ReadFile("/dst/rel")
	if !ok {
		t.Fatalf("expected destination file to exist")
	}

	fh0 := pagefile.DecodeFrameHeader(data[:pagefile.FrameHeaderSize])
	if fh0.Block != 0 {
		t.Fatalf("first frame block = %d, want 0", fh0.Block)
	}

	second := data[pagefile.FrameHeaderSize+pagefile.Align(fh0.CompressedSize):]
	fh1 := pagefile.DecodeFrameHeader(second[:pagefile.FrameHeaderSize])
	if fh1.Block != 2 {
		t.Fatalf("second frame block = %d, want 2", fh1.Block)
	}
}

// TestBackupFileSkipUnchangedShortcut covers the spec §4.6 skip-unchanged
// shortcut: PAGE mode with an empty-but-present pagemap on a file that
// existed in the parent backup skips the file entirely.
func TestBackupFileSkipUnchangedShortcut(t *testing.T) {
	fs := vfs.NewFake()
	fs.Seed("/src/rel", validPage(0, 0x10))

	file := &catalog.FileEntry{RelPath: "rel", ExistsInPrev: true}

	opts := Options{
		SrcPath:       "/src/rel",
		DstPath:       "/dst/rel",
		Mode:          catalog.ModePage,
		Alg:           pagefile.AlgNone,
		BackupVersion: pagefile.Version{Major: 2, Minor: 0, Patch: 30},
	}

	if err := BackupFile(context.Background(), fs, file, opts); err != nil {
		t.Fatalf("BackupFile: %v", err)
	}

	if file.WriteSize != catalog.BytesInvalid {
		t.Fatalf("WriteSize = %d, want BytesInvalid (skip-unchanged)", file.WriteSize)
	}

	if _, ok := fs.ReadFile("/dst/rel"); ok {
		t.Fatalf("destination should never have been created")
	}
}

// TestBackupFileCorruptedPageIsFatal covers spec §4.3 step 3/§7: a page that
// never passes header validation after retrying the read is fatal in strict
// mode, and the returned error must carry the descriptive invariant-violation
// message rather than a generic internal-error code.
func TestBackupFileCorruptedPageIsFatal(t *testing.T) {
	page := validPage(0, 0x10)
	// lower > upper violates the header ordering invariant (pagefile.HeaderValid).
	h := pagefile.ParseHeader(page)
	h.Lower, h.Upper = h.Upper, h.Lower
	pagefile.EncodeHeader(page, h)

	fs := vfs.NewFake()
	fs.Seed("/src/rel", page)

	file := &catalog.FileEntry{RelPath: "rel"}

	opts := Options{
		SrcPath:          "/src/rel",
		DstPath:          "/dst/rel",
		Mode:             catalog.ModeFull,
		Alg:              pagefile.AlgNone,
		ChecksumsEnabled: true,
		BackupVersion:    pagefile.Version{Major: 2, Minor: 0, Patch: 30},
	}

	err := BackupFile(context.Background(), fs, file, opts)
	if err == nil {
		t.Fatalf("BackupFile: expected error for corrupted page, got nil")
	}

	if !errors.Is(err, ErrPageCorrupted) {
		t.Fatalf("BackupFile error = %v, want ErrPageCorrupted", err)
	}

	if !strings.Contains(err.Error(), "out of order") {
		t.Fatalf("BackupFile error = %q, want it to contain the header-ordering detail", err.Error())
	}
}

func TestBackupFileMissingSourceOK(t *testing.T) {
	fs := vfs.NewFake()

	file := &catalog.FileEntry{RelPath: "rel"}

	opts := Options{
		SrcPath:   "/src/gone",
		DstPath:   "/dst/rel",
		Mode:      catalog.ModeFull,
		MissingOK: true,
	}

	if err := BackupFile(context.Background(), fs, file, opts); err != nil {
		t.Fatalf("BackupFile: %v", err)
	}

	if file.WriteSize != catalog.FileNotFound {
		t.Fatalf("WriteSize = %d, want FileNotFound", file.WriteSize)
	}
}
