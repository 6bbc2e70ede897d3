// Package verify implements the validator driver (C8, spec §4.8): a
// live-scan checker for a database file still on disk, and a replay
// checker for an already-framed backup file.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/calvinalkan/pgpagebackup/internal/catalog"
	"github.com/calvinalkan/pgpagebackup/internal/pageread"
	"github.com/calvinalkan/pgpagebackup/pkg/pagefile"
	"github.com/calvinalkan/pgpagebackup/pkg/vfs"
)

// CheckDataFile implements `check_data_file` (spec §4.8): runs the C3 loop
// with strict=false over every block of a live database file, returning
// false if any block was PageIsCorrupted.
func CheckDataFile(ctx context.Context, src vfs.File, nblocks int64, segno uint32, checksumsEnabled bool) (bool, error) {
	ok := true

	for blkno := int64(0); blkno < nblocks; blkno++ {
		absBlock := pagefile.AbsoluteBlockNumber(segno, uint32(blkno))

		res, err := pageread.PreparePage(ctx, src, uint32(blkno), pageread.Options{
			Mode:             catalog.ModeFull,
			Strict:           false,
			ChecksumsEnabled: checksumsEnabled,
			AbsoluteBlock:    absBlock,
		})
		if err != nil {
			return false, err
		}

		if res.Code == pagefile.PageIsCorrupted {
			ok = false
		}

		if res.Code == pagefile.PageIsTruncated {
			break
		}
	}

	return ok, nil
}

// ErrCRCMismatch is returned when the replayed CRC does not match the
// backup's stored file.crc (spec §4.8).
var ErrCRCMismatch = errors.New("verify: final CRC does not match stored file CRC")

// Report is CheckFilePages' verdict: whether the file is structurally and
// checksum-valid, and any LSN-from-future observations (which are
// informative, spec §4.8/§7, and never fail validation on their own).
type Report struct {
	Valid         bool
	LSNFromFuture bool
	FirstBadBlock uint32
	FailureDetail string
}

// CheckFilePages implements `check_file_pages` (spec §4.8): replays the
// framed backup file, rolls the CRC per §4.5, decompresses where needed,
// validates every page via C2 with stopLSN engaged, and compares the final
// CRC against entry.CRC. A frame cut short at EOF (odd size page) marks the
// report invalid and ends the replay without returning an error.
func CheckFilePages(in io.ReaderAt, entry *catalog.FileEntry, backupVersion pagefile.Version, stopLSN uint64, checksumsEnabled bool) (Report, error) {
	crcw := pagefile.NewCRC(backupVersion)

	var offset int64

	report := Report{Valid: true}

	for {
		var hdr [pagefile.FrameHeaderSize]byte

		n, err := in.ReadAt(hdr[:], offset)
		if n == 0 && errors.Is(err, io.EOF) {
			break
		}

		if n < len(hdr) {
			report.Valid = false
			if report.FailureDetail == "" {
				report.FailureDetail = pagefile.ErrOddSizePage.Error()
			}

			return report, nil
		}

		if _, err := crcw.Write(hdr[:]); err != nil {
			return Report{}, err
		}

		offset += int64(n)

		fh := pagefile.DecodeFrameHeader(hdr[:])

		if fh.CompressedSize == pagefile.TruncateMarker {
			break
		}

		if fh.CompressedSize == 0 && fh.Block == 0 {
			continue
		}

		if fh.CompressedSize > pagefile.BLCKSZ {
			return Report{}, fmt.Errorf("verify: %w", pagefile.ErrFrameTooLarge)
		}

		padded := pagefile.Align(fh.CompressedSize)
		payload := make([]byte, padded)

		pn, err := in.ReadAt(payload, offset)
		if pn < len(payload) {
			report.Valid = false
			if report.FailureDetail == "" {
				report.FirstBadBlock = fh.Block
				report.FailureDetail = pagefile.ErrOddSizePage.Error()
			}

			return report, nil
		}

		if _, err := crcw.Write(payload); err != nil {
			return Report{}, err
		}

		offset += int64(pn)

		page, derr := pagefile.DecodeFramePayload(payload, fh, entry.CompressAlg, backupVersion)
		if derr != nil {
			report.Valid = false

			if report.FailureDetail == "" {
				report.FirstBadBlock = fh.Block
				report.FailureDetail = derr.Error()
			}

			continue
		}

		absBlock := pagefile.AbsoluteBlockNumber(entry.Segno, fh.Block)

		code, _ := pagefile.ValidatePage(page, absBlock, stopLSN, checksumsEnabled)

		switch code {
		case pagefile.HeaderInvalid, pagefile.ChecksumMismatch:
			report.Valid = false

			if report.FailureDetail == "" {
				report.FirstBadBlock = fh.Block
				report.FailureDetail = code.String()
			}
		case pagefile.LSNFromFuture:
			report.LSNFromFuture = true
		}
	}

	if crcw.Sum32() != entry.CRC {
		report.Valid = false

		return report, fmt.Errorf("verify: %w", ErrCRCMismatch)
	}

	return report, nil
}
