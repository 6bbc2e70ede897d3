package pageread

import (
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

// TestPreparePageTornThenClean covers spec §8: 99 torn reads followed by one
// clean read must still resolve to PageIsOk, staying within the 100-attempt
// budget.
func TestPreparePageTornThenClean(t *testing.T) {
	fs := vfs.NewFake()
	fs.Seed("/rel", validPage(0, 0x1000))

	f, err := fs.Open("/rel")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ff := f.(*vfs.FakeFile)
	for i := 0; i < 99; i++ {
		ff.ScriptRead(0, 10, nil)
	}

	res, err := PreparePage(nil, f, 0, Options{Mode: catalog.ModeFull, ChecksumsEnabled: true})
	if err != nil {
		t.Fatalf("PreparePage: %v", err)
	}

	if res.Code != pagefile.PageIsOk {
		t.Fatalf("Code = %v, want PageIsOk", res.Code)
	}

	if res.PageLSN != 0x1000 {
		t.Fatalf("PageLSN = %#x, want %#x", res.PageLSN, 0x1000)
	}
}

// TestPreparePageExhaustsRetries covers spec §8: 100 consecutive torn reads
// exhaust the retry budget and resolve to PageIsCorrupted.
func TestPreparePageExhaustsRetries(t *testing.T) {
	fs := vfs.NewFake()
	fs.Seed("/rel", validPage(0, 0x1000))

	f, _ := fs.Open("/rel")
	ff := f.(*vfs.FakeFile)

	for i := 0; i < PageReadAttempts; i++ {
		ff.ScriptRead(0, 10, nil)
	}

	res, err := PreparePage(nil, f, 0, Options{Mode: catalog.ModeFull, ChecksumsEnabled: true, Strict: true})
	if err != nil {
		t.Fatalf("PreparePage: %v", err)
	}

	if res.Code != pagefile.PageIsCorrupted {
		t.Fatalf("Code = %v, want PageIsCorrupted", res.Code)
	}

	if res.Severity != SeverityError {
		t.Fatalf("Severity = %v, want SeverityError (strict)", res.Severity)
	}
}

func TestPreparePageNonStrictCorruptionIsWarning(t *testing.T) {
	fs := vfs.NewFake()
	page := validPage(0, 0x1000)
	page[19] = 0x01 // corrupt the page_size high byte, fails HeaderValid
	fs.Seed("/rel", page)

	f, _ := fs.Open("/rel")

	res, err := PreparePage(nil, f, 0, Options{Mode: catalog.ModeFull, ChecksumsEnabled: true, Strict: false})
	if err != nil {
		t.Fatalf("PreparePage: %v", err)
	}

	if res.Code != pagefile.PageIsCorrupted {
		t.Fatalf("Code = %v, want PageIsCorrupted", res.Code)
	}

	if res.Severity != SeverityWarning {
		t.Fatalf("Severity = %v, want SeverityWarning (non-strict)", res.Severity)
	}
}

func TestPreparePageZeroedPage(t *testing.T) {
	fs := vfs.NewFake()
	fs.Seed("/rel", make([]byte, pagefile.BLCKSZ))

	f, _ := fs.Open("/rel")

	res, err := PreparePage(nil, f, 0, Options{Mode: catalog.ModeFull, ChecksumsEnabled: true})
	if err != nil {
		t.Fatalf("PreparePage: %v", err)
	}

	if res.Code != pagefile.PageIsOk || res.PageLSN != 0 {
		t.Fatalf("res = %+v, want PageIsOk/LSN=0", res)
	}
}

func TestPreparePageTruncated(t *testing.T) {
	fs := vfs.NewFake()
	fs.Seed("/rel", make([]byte, 0))

	f, _ := fs.Open("/rel")

	res, err := PreparePage(nil, f, 0, Options{Mode: catalog.ModeFull, ChecksumsEnabled: true})
	if err != nil {
		t.Fatalf("PreparePage: %v", err)
	}

	if res.Code != pagefile.PageIsTruncated {
		t.Fatalf("Code = %v, want PageIsTruncated", res.Code)
	}
}

// TestPreparePageDeltaSkipsOldPage covers spec §4.3 step 5: DELTA skips a
// page whose LSN predates the parent backup's start LSN.
func TestPreparePageDeltaSkipsOldPage(t *testing.T) {
	fs := vfs.NewFake()
	fs.Seed("/rel", validPage(0, 0x500))

	f, _ := fs.Open("/rel")

	res, err := PreparePage(nil, f, 0, Options{
		Mode:               catalog.ModeDelta,
		ChecksumsEnabled:   true,
		ExistsInPrev:       true,
		PrevBackupStartLSN: 0x1000,
	})
	if err != nil {
		t.Fatalf("PreparePage: %v", err)
	}

	if res.Code != pagefile.SkipCurrentPage {
		t.Fatalf("Code = %v, want SkipCurrentPage", res.Code)
	}
}

// TestPreparePageDeltaAlwaysCopiesZeroLSN covers spec §4.3 step 5's
// exception: zero-LSN pages are never skipped even in DELTA mode.
func TestPreparePageDeltaAlwaysCopiesZeroLSN(t *testing.T) {
	fs := vfs.NewFake()
	fs.Seed("/rel", make([]byte, pagefile.BLCKSZ))

	f, _ := fs.Open("/rel")

	res, err := PreparePage(nil, f, 0, Options{
		Mode:               catalog.ModeDelta,
		ChecksumsEnabled:   true,
		ExistsInPrev:       true,
		PrevBackupStartLSN: 0x1000,
	})
	if err != nil {
		t.Fatalf("PreparePage: %v", err)
	}

	if res.Code != pagefile.PageIsOk {
		t.Fatalf("Code = %v, want PageIsOk (zero-LSN page always copied)", res.Code)
	}
}
