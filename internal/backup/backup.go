// Package backup implements the file backup driver (C6, spec §4.6):
// orchestrates the page reader, pagemap iterator, and framed writer for
// one source file, deciding skip-unchanged and delegating to a remote
// agent when the source lives on a remote host.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/calvinalkan/pgpagebackup/internal/catalog"
	"github.com/calvinalkan/pgpagebackup/internal/dbagent"
	"github.com/calvinalkan/pgpagebackup/internal/pageread"
	"github.com/calvinalkan/pgpagebackup/pkg/cancel"
	"github.com/calvinalkan/pgpagebackup/pkg/pagefile"
	"github.com/calvinalkan/pgpagebackup/pkg/pagemap"
	"github.com/calvinalkan/pgpagebackup/pkg/vfs"
)

// Options configures one file's backup (spec §4.6 "Inputs").
type Options struct {
	SrcPath, DstPath string

	PrevBackupStartLSN uint64
	Mode               catalog.Mode
	Alg                pagefile.Alg
	Level              int
	ChecksumsEnabled   bool
	PtrackVer          int
	MissingOK          bool

	BackupVersion pagefile.Version

	// Segno/Tablespace/DB/Rel identify the relation (spec §3). Segno feeds
	// AbsoluteBlockNumber for checksums; Tablespace/DB/Rel are passed to
	// BlockSource.GetBlock.
	Segno, Tablespace, DB, Rel uint32

	FileMode    os.FileMode
	BlockSource dbagent.BlockSource
	RemoteAgent dbagent.RemoteAgent

	Cancel *cancel.Group
}

// ErrInternal wraps an unexpected C3 return code (spec §4.6: "Anything
// else -> internal error").
var ErrInternal = errors.New("backup: unexpected page reader return code")

// ErrPageCorrupted is returned when a page fails validation after retrying
// the read and, in strict mode, is fatal (spec §4.3 step 3, §7).
var ErrPageCorrupted = errors.New("backup: page failed validation")

// BackupFile runs the C6 algorithm for one FileEntry against fsys (spec
// §4.6). It mutates file in place (n_blocks, read_size, write_size,
// uncompressed_size, crc, compress_alg) and returns nil on success; on
// failure file's counters reflect partial progress and the error
// describes the fatal condition.
func BackupFile(ctx context.Context, fsys vfs.FS, file *catalog.FileEntry, opts Options) error {
	info, err := fsys.Stat(opts.SrcPath)
	if err != nil {
		if opts.MissingOK && errors.Is(err, vfs.ErrNotExist) {
			file.WriteSize = catalog.FileNotFound
			return nil
		}

		return fmt.Errorf("backup: stat %s: %w", opts.SrcPath, err)
	}

	// A size not aligned to BLCKSZ is a benign race with a growing source
	// file (spec §4.6 pre-loop); the driver simply processes whole blocks.
	nblocks := info.Size() / pagefile.BLCKSZ
	file.NBlocks = nblocks

	if shouldSkipUnchanged(file, opts) {
		file.WriteSize = catalog.BytesInvalid
		return nil
	}

	file.ReadSize = 0
	file.WriteSize = 0
	file.UncompressedSize = 0
	file.CompressAlg = opts.Alg

	src, err := fsys.Open(opts.SrcPath)
	if err != nil {
		if opts.MissingOK && errors.Is(err, vfs.ErrNotExist) {
			file.WriteSize = catalog.FileNotFound
			return nil
		}

		return fmt.Errorf("backup: open source %s: %w", opts.SrcPath, err)
	}
	defer src.Close()

	if opts.RemoteAgent != nil {
		return backupRemote(ctx, file, opts, nblocks)
	}

	if err := backupLocal(ctx, fsys, src, file, opts, nblocks); err != nil {
		return err
	}

	if file.WriteSize <= 0 {
		// No point storing an empty destination file (spec §4.6 post-loop).
		if err := fsys.Remove(opts.DstPath); err != nil && !errors.Is(err, vfs.ErrNotExist) {
			return fmt.Errorf("backup: remove empty destination %s: %w", opts.DstPath, err)
		}
	}

	return nil
}

// shouldSkipUnchanged implements the spec §4.6 "Skip-unchanged shortcut".
func shouldSkipUnchanged(file *catalog.FileEntry, opts Options) bool {
	if opts.Mode != catalog.ModePage && opts.Mode != catalog.ModePtrack {
		return false
	}

	return len(file.Pagemap) == 0 && file.ExistsInPrev && !file.PagemapAbsent
}

func backupRemote(ctx context.Context, file *catalog.FileEntry, opts Options, nblocks int64) error {
	outcome, err := opts.RemoteAgent.SendPages(
		ctx, opts.SrcPath, opts.DstPath, file, opts.PrevBackupStartLSN, opts.Alg, opts.Level, 1, file.Pagemap,
	)
	if err != nil {
		return fmt.Errorf("backup: remote send_pages: %w", err)
	}

	switch outcome.Result {
	case dbagent.SendOK:
		file.ReadSize = outcome.BlocksRead * pagefile.BLCKSZ
		return finalize(file, opts)
	case dbagent.SendRemoteError:
		return fmt.Errorf("backup: remote agent error at block %d: %s", outcome.ErrBlknum, outcome.ErrMsg)
	case dbagent.SendPageCorruption:
		return fmt.Errorf("backup: remote page corruption at block %d: %s", outcome.ErrBlknum, outcome.ErrMsg)
	case dbagent.SendWriteFailed:
		return fmt.Errorf("backup: remote write failed at block %d: %s", outcome.ErrBlknum, outcome.ErrMsg)
	default:
		return fmt.Errorf("backup: %w: %d", ErrInternal, outcome.Result)
	}
}

// blockCursor is the common shape of pagemap.Cursor and sequentialCursor,
// letting backupLocal stay agnostic to which one spec §4.6's loop
// selection picked.
type blockCursor interface {
	Next() bool
	Block() uint32
}

type sequentialCursor struct {
	n   int64
	pos int64
}

func (c *sequentialCursor) Next() bool {
	if c.pos >= c.n {
		return false
	}

	c.pos++

	return true
}

func (c *sequentialCursor) Block() uint32 { return uint32(c.pos - 1) }

func selectCursor(file *catalog.FileEntry, nblocks int64) blockCursor {
	if file.UsePagemap() {
		bm := pagemap.FromWords(file.Pagemap, int(nblocks))
		return bm.Iterate()
	}

	return &sequentialCursor{n: nblocks}
}

func backupLocal(ctx context.Context, fsys vfs.FS, src vfs.File, file *catalog.FileEntry, opts Options, nblocks int64) error {
	dst, err := fsys.Create(opts.DstPath)
	if err != nil {
		return fmt.Errorf("backup: create destination %s: %w", opts.DstPath, err)
	}
	defer dst.Close()

	if opts.FileMode != 0 {
		if err := dst.Chmod(opts.FileMode); err != nil {
			return fmt.Errorf("backup: chmod destination %s: %w", opts.DstPath, err)
		}
	}

	crcw := pagefile.NewCRC(opts.BackupVersion)
	w := io.Writer(dst)

	cursor := selectCursor(file, nblocks)

	for cursor.Next() {
		blkno := cursor.Block()
		absBlock := pagefile.AbsoluteBlockNumber(opts.Segno, blkno)

		res, err := pageread.PreparePage(ctx, src, blkno, pageread.Options{
			Mode:               opts.Mode,
			PrevBackupStartLSN: opts.PrevBackupStartLSN,
			PtrackVer:          opts.PtrackVer,
			Strict:             true,
			ChecksumsEnabled:   opts.ChecksumsEnabled,
			ExistsInPrev:       file.ExistsInPrev,
			AbsoluteBlock:      absBlock,
			Tablespace:         opts.Tablespace,
			DB:                 opts.DB,
			Rel:                opts.Rel,
			BlockSource:        opts.BlockSource,
			Cancel:             opts.Cancel,
		})
		if err != nil {
			return err
		}

		switch res.Code {
		case pagefile.PageIsTruncated:
			file.CRC = crcw.Sum32()
			return finalize(file, opts)
		case pagefile.SkipCurrentPage:
			file.ReadSize += pagefile.BLCKSZ
		case pagefile.PageIsCorrupted:
			return fmt.Errorf("backup: block %d: %w (severity %d): %s", blkno, ErrPageCorrupted, res.Severity, res.Detail)
		case pagefile.PageIsOk:
			n, err := pagefile.WriteFrame(w, crcw, blkno, res.Page, opts.Alg, opts.Level)
			if err != nil {
				return fmt.Errorf("backup: write frame for block %d: %w", blkno, err)
			}

			file.WriteSize += n
			file.UncompressedSize += pagefile.BLCKSZ
			file.ReadSize += pagefile.BLCKSZ
		default:
			return fmt.Errorf("backup: %w: %s", ErrInternal, res.Code)
		}
	}

	file.CRC = crcw.Sum32()

	return finalize(file, opts)
}

func finalize(file *catalog.FileEntry, opts Options) error {
	if opts.Mode == catalog.ModeFull || opts.Mode == catalog.ModeDelta {
		file.NBlocks = file.ReadSize / pagefile.BLCKSZ
	}

	incremental := opts.Mode == catalog.ModePage || opts.Mode == catalog.ModePtrack || opts.Mode == catalog.ModeDelta
	if incremental && file.ExistsInPrev && file.WriteSize == 0 && file.NBlocks > 0 {
		file.WriteSize = catalog.BytesInvalid
	}

	return nil
}
