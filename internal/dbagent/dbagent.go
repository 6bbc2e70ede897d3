// Package dbagent defines the contracts for the two external collaborators
// spec.md treats as out-of-scope RPC peers (spec §1, §4.3, §4.6, §6): the
// live database connection that can hand back a page from shared buffers
// (PTRACK's get_block), and the remote-agent transport that can perform an
// entire file's backup on the core's behalf (send_pages). The core only
// calls these through the interfaces below; it never implements either
// side.
package dbagent

import (
	"context"
	"errors"

	"github.com/calvinalkan/pgpagebackup/internal/catalog"
	"github.com/calvinalkan/pgpagebackup/pkg/pagefile"
)

// BlockSource is the PTRACK shared-buffer collaborator (spec §4.3 step 4):
// "ask the database to supply the block from shared buffers". Used only
// when mode == PTRACK and 15 <= ptrack_ver < 20; newer PTRACK versions go
// through the ordinary on-disk retry path instead (spec §4.3 Tie-breaks).
type BlockSource interface {
	// GetBlock fetches block blkno of the given relation from shared
	// buffers. A nil page with a nil error means the block was truncated
	// (spec §4.3 step 4: "a null return means the block was truncated").
	GetBlock(ctx context.Context, tablespace, db, rel uint32, blkno uint32) (page []byte, err error)
}

// ErrShortSharedBufferRead is fatal (spec §4.3 step 4: "a returned buffer
// not equal to BLCKSZ is fatal").
var ErrShortSharedBufferRead = errors.New("dbagent: shared-buffer read did not return BLCKSZ bytes")

// SendResult is the remote-agent's send_pages outcome (spec §4.6, §6).
type SendResult int

const (
	// SendOK means blocks were read and written without incident;
	// BlocksRead holds the count.
	SendOK SendResult = iota
	SendRemoteError
	SendPageCorruption
	SendWriteFailed
)

// SendOutcome is the full return of RemoteAgent.SendPages (spec §6:
// "returns (blocks_read | REMOTE_ERROR | PAGE_CORRUPTION | WRITE_FAILED),
// and on non-success populates err_blknum and optionally errmsg").
type SendOutcome struct {
	Result     SendResult
	BlocksRead int64
	ErrBlknum  uint32
	ErrMsg     string
}

// RemoteAgent is the out-of-scope RPC transport the file backup driver
// delegates to when the source file lives on a remote host (spec §4.6
// "Loop selection: Remote source"). The core never implements this
// transport; it only interprets SendOutcome.
type RemoteAgent interface {
	SendPages(
		ctx context.Context,
		srcPath, dstPath string,
		file *catalog.FileEntry,
		lsnCutoff uint64,
		alg pagefile.Alg,
		level int,
		checksumVersion int,
		pagemap []uint64,
	) (SendOutcome, error)
}
