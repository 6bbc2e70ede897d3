// Package pageread implements the page reader (C3, spec §4.3): a
// retry-until-stable read of one block, with validator integration, the
// PTRACK shared-buffer fallback, and the DELTA skip filter.
package pageread

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/calvinalkan/pgpagebackup/internal/catalog"
	"github.com/calvinalkan/pgpagebackup/internal/dbagent"
	"github.com/calvinalkan/pgpagebackup/pkg/cancel"
	"github.com/calvinalkan/pgpagebackup/pkg/pagefile"
)

// PageReadAttempts is the retry budget for a torn/invalid page read (spec
// §6 "PAGE_READ_ATTEMPTS = 100").
const PageReadAttempts = 100

// Severity distinguishes a hard corruption failure from an informative one
// (spec §4.3 step 3, §7): "report at severity ERROR if strict else
// WARNING".
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityError
)

// Options parameterizes one PreparePage call (spec §4.3 signature:
// "prepare_page(file, blknum, source, mode, prev_lsn, ptrack_ver, strict)").
type Options struct {
	Mode               catalog.Mode
	PrevBackupStartLSN uint64
	PtrackVer          int
	Strict             bool
	ChecksumsEnabled   bool
	ExistsInPrev       bool

	// AbsoluteBlock is segno*RELSEG_SIZE+blkno (spec §3), fed to the
	// checksum function.
	AbsoluteBlock uint32

	// Tablespace/DB/Rel identify the relation for BlockSource.GetBlock.
	Tablespace, DB, Rel uint32

	// BlockSource supplies shared-buffer pages for PTRACK versions in
	// [15, 20). Required only when that path can be taken.
	BlockSource dbagent.BlockSource

	// Cancel is polled at the top of PreparePage (spec §4.3 step 1). Nil
	// means "never cancelled".
	Cancel *cancel.Group
}

// Result is PreparePage's (code, page_lsn, page_bytes) return plus the
// descriptive error and severity the driver logs on corruption.
type Result struct {
	Code     pagefile.Code
	PageLSN  uint64
	Page     []byte
	Severity Severity
	Detail   string
}

// ErrSharedBufferCorrupt is fatal (spec §4.3 step 4: "HEADER_INVALID is
// fatal; shared-buffer corruption is unacceptable").
var ErrSharedBufferCorrupt = errors.New("pageread: shared-buffer page failed header validation")

// PreparePage implements the spec §4.3 algorithm. src is read at
// blknum*BLCKSZ for BLCKSZ bytes; io.ReaderAt matches vfs.File exactly.
func PreparePage(ctx context.Context, src io.ReaderAt, blknum uint32, opts Options) (Result, error) {
	if err := checkCancel(ctx, opts.Cancel); err != nil {
		return Result{}, err
	}

	// PTRACK versions >=20 are read from disk like any other mode (spec
	// §4.3 Tie-breaks); only [15, 20) goes to shared buffers.
	if opts.Mode == catalog.ModePtrack && opts.PtrackVer >= 15 && opts.PtrackVer < 20 {
		res, err := ptrackRead(ctx, blknum, opts)
		if err != nil {
			return Result{}, err
		}

		return applyDeltaFilter(res, opts), nil
	}

	res, err := retryRead(src, blknum, opts)
	if err != nil {
		return Result{}, err
	}

	return applyDeltaFilter(res, opts), nil
}

func checkCancel(ctx context.Context, g *cancel.Group) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if g == nil {
		return nil
	}

	return g.Check()
}

func retryRead(src io.ReaderAt, blknum uint32, opts Options) (Result, error) {
	page := make([]byte, pagefile.BLCKSZ)
	offset := int64(blknum) * int64(pagefile.BLCKSZ)

	var (
		lastCode            pagefile.Code
		lastHeader          pagefile.PageHeader
		lastLSN             uint64
		lastPage            []byte
		sawChecksumMismatch bool
	)

	for attempt := 0; attempt < PageReadAttempts; attempt++ {
		n, err := src.ReadAt(page, offset)

		if n == 0 && errors.Is(err, io.EOF) {
			return Result{Code: pagefile.PageIsTruncated}, nil
		}

		if err != nil && !errors.Is(err, io.EOF) {
			return Result{}, fmt.Errorf("pageread: block %d: read failed: %w", blknum, err)
		}

		if n < pagefile.BLCKSZ {
			// Partial/torn read: treat as transient, retry (spec §4.3
			// step 2, "0 < read < BLCKSZ -> log and retry").
			continue
		}

		code, lsn := pagefile.ValidatePage(page, opts.AbsoluteBlock, 0, opts.ChecksumsEnabled)
		lastCode, lastLSN = code, lsn
		lastHeader = pagefile.ParseHeader(page)
		lastPage = append([]byte(nil), page...)

		switch code {
		case pagefile.Zeroed:
			return Result{Code: pagefile.PageIsOk, PageLSN: 0, Page: page}, nil
		case pagefile.Valid:
			return Result{Code: pagefile.PageIsOk, PageLSN: lsn, Page: page}, nil
		case pagefile.HeaderInvalid:
			continue
		case pagefile.ChecksumMismatch:
			sawChecksumMismatch = true
			continue
		default:
			continue
		}
	}

	detail := describeFailure(lastCode, lastHeader, lastPage, opts.AbsoluteBlock, sawChecksumMismatch)

	severity := SeverityWarning
	if opts.Strict {
		severity = SeverityError
	}

	// Non-strict callers (checkdb, ptrack-supported backup) still get
	// PageIsCorrupted here — spec §4.3 step 3 only changes the reported
	// severity, not the returned code, once all retries are exhausted.
	return Result{Code: pagefile.PageIsCorrupted, PageLSN: lastLSN, Severity: severity, Detail: detail}, nil
}

func describeFailure(code pagefile.Code, h pagefile.PageHeader, page []byte, absBlock uint32, checksumSeen bool) string {
	switch {
	case checksumSeen && len(page) == pagefile.BLCKSZ:
		calculated := pagefile.ComputePageChecksum(page, absBlock)
		return fmt.Sprintf("page verification failed, calculated checksum %d but expected %d", calculated, h.Checksum)
	case code == pagefile.HeaderInvalid:
		return describeHeaderInvalid(h)
	default:
		return "page header invalid after all retries"
	}
}

func describeHeaderInvalid(h pagefile.PageHeader) string {
	switch {
	case h.PageSizeAndVersion&0xFF00 != pagefile.BLCKSZ&0xFF00:
		return "invalid page header: page_size mismatch"
	case h.Flags&^pagefile.ValidFlagBits != 0:
		return "invalid page header: unknown flag bits set"
	case !(pagefile.HeaderSize <= h.Lower && h.Lower <= h.Upper && h.Upper <= h.Special && h.Special <= pagefile.BLCKSZ):
		return fmt.Sprintf("invalid page header: lower=%d upper=%d special=%d out of order", h.Lower, h.Upper, h.Special)
	default:
		return "invalid page header: special offset not MAXALIGNed"
	}
}

func ptrackRead(ctx context.Context, blknum uint32, opts Options) (Result, error) {
	if opts.BlockSource == nil {
		return Result{}, errors.New("pageread: ptrack mode requires a BlockSource")
	}

	page, err := opts.BlockSource.GetBlock(ctx, opts.Tablespace, opts.DB, opts.Rel, blknum)
	if err != nil {
		return Result{}, fmt.Errorf("pageread: block %d: ptrack get_block failed: %w", blknum, err)
	}

	if page == nil {
		return Result{Code: pagefile.PageIsTruncated}, nil
	}

	if len(page) != pagefile.BLCKSZ {
		return Result{}, fmt.Errorf("pageread: block %d: %w", blknum, dbagent.ErrShortSharedBufferRead)
	}

	code, lsn := pagefile.ValidatePage(page, opts.AbsoluteBlock, 0, opts.ChecksumsEnabled)

	switch code {
	case pagefile.Zeroed:
		return Result{Code: pagefile.PageIsOk, Page: page}, nil
	case pagefile.HeaderInvalid:
		return Result{}, fmt.Errorf("pageread: block %d: %w", blknum, ErrSharedBufferCorrupt)
	case pagefile.ChecksumMismatch:
		if opts.ChecksumsEnabled {
			checksum := pagefile.ComputePageChecksum(page, opts.AbsoluteBlock)
			pagefile.SetChecksum(page, checksum)
		}

		return Result{Code: pagefile.PageIsOk, PageLSN: lsn, Page: page}, nil
	default:
		return Result{Code: pagefile.PageIsOk, PageLSN: lsn, Page: page}, nil
	}
}

// applyDeltaFilter implements spec §4.3 step 5: DELTA skips pages whose
// LSN predates the parent backup, except zero-LSN pages which DELTA always
// copies.
func applyDeltaFilter(res Result, opts Options) Result {
	if res.Code != pagefile.PageIsOk {
		return res
	}

	if opts.Mode == catalog.ModeDelta && opts.ExistsInPrev && res.PageLSN != 0 && res.PageLSN < opts.PrevBackupStartLSN {
		return Result{Code: pagefile.SkipCurrentPage, PageLSN: res.PageLSN}
	}

	return res
}
