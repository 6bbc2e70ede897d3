package pagefile

import (
	"encoding/binary"
	"fmt"
	"hash"
	"io"
)

// FrameHeaderSize is the on-disk size of a frame's BackupPageHeader
// (spec §6): a little-endian uint32 block number and a little-endian int32
// compressed size.
const FrameHeaderSize = 8

// TruncateMarker is the compressed_size sentinel meaning "truncate the
// target file to block*BLCKSZ and stop" (spec §3, §6).
const TruncateMarker int32 = -1

// FrameHeader is the BackupPageHeader record that precedes every frame's
// payload (spec §3, §6).
type FrameHeader struct {
	Block          uint32
	CompressedSize int32
}

// EncodeFrameHeader serializes h to its 8-byte little-endian wire form.
func EncodeFrameHeader(h FrameHeader) [FrameHeaderSize]byte {
	var buf [FrameHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Block)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.CompressedSize))

	return buf
}

// DecodeFrameHeader parses an 8-byte little-endian BackupPageHeader.
func DecodeFrameHeader(buf []byte) FrameHeader {
	return FrameHeader{
		Block:          binary.LittleEndian.Uint32(buf[0:4]),
		CompressedSize: int32(binary.LittleEndian.Uint32(buf[4:8])),
	}
}

// WriteFrame implements the framed writer's per-page sequence (spec §4.5):
// compress, decide raw-vs-compressed, pad to MAXALIGN, fold the staged
// bytes into crcw in write order, then emit them to w.
//
// It returns the number of bytes written to w (header + padded payload),
// which callers add to FileEntry.WriteSize, and the uncompressed size
// counter bump is always BLCKSZ regardless of outcome (left to the caller,
// since this function doesn't know about FileEntry).
func WriteFrame(w io.Writer, crcw hash.Hash32, blkno uint32, page []byte, alg Alg, level int) (int64, error) {
	scratch := make([]byte, minScratch)

	compressedSize := BLCKSZ
	payload := page

	n, err := Compress(scratch, page, alg, level)
	if err == nil && n > 0 && n < BLCKSZ {
		compressedSize = n
		payload = scratch[:n]
	}

	header := EncodeFrameHeader(FrameHeader{Block: blkno, CompressedSize: int32(compressedSize)})
	padded := Align(int32(compressedSize))

	buf := make([]byte, FrameHeaderSize+int(padded))
	copy(buf, header[:])
	copy(buf[FrameHeaderSize:], payload)
	// Bytes from len(payload) to padded are left zero (MAXALIGN padding,
	// spec §6: part of the CRC input and the on-disk file).

	if _, err := crcw.Write(buf); err != nil {
		return 0, err
	}

	nw, err := w.Write(buf)
	if err != nil {
		return int64(nw), err
	}

	return int64(nw), nil
}

// WriteTruncateFrame emits the truncate-marker frame (spec §3, §4.7 step 4):
// a header with CompressedSize == TruncateMarker and no payload.
func WriteTruncateFrame(w io.Writer, crcw hash.Hash32, blkno uint32) (int64, error) {
	header := EncodeFrameHeader(FrameHeader{Block: blkno, CompressedSize: TruncateMarker})

	if _, err := crcw.Write(header[:]); err != nil {
		return 0, err
	}

	nw, err := w.Write(header[:])

	return int64(nw), err
}

// DecodeFramePayload turns one frame's raw padded payload bytes back into
// a BLCKSZ page, consulting MayBeCompressed for the ambiguous
// compressed_size==BLCKSZ case (spec §4.7 step 8). Shared by the restore
// driver (C7) and the validator driver (C8), which both replay frame
// streams the same way.
func DecodeFramePayload(payload []byte, fh FrameHeader, alg Alg, backupVersion Version) ([]byte, error) {
	compressed := fh.CompressedSize != BLCKSZ
	if !compressed {
		compressed = MayBeCompressed(payload, alg, backupVersion)
	}

	if !compressed {
		page := make([]byte, BLCKSZ)
		copy(page, payload)

		return page, nil
	}

	dst := make([]byte, 2*BLCKSZ)

	n, err := Decompress(dst, payload[:fh.CompressedSize], alg)
	if err != nil {
		return nil, fmt.Errorf("decompress block %d: %w", fh.Block, err)
	}

	if n != BLCKSZ {
		return nil, fmt.Errorf("decompress block %d: got %d bytes, want %d", fh.Block, n, BLCKSZ)
	}

	return dst[:BLCKSZ], nil
}

// MayBeCompressed is the pre-2.0.23 bug-compatibility predicate (spec §4.7
// step 8): a page whose compressed form happened to equal BLCKSZ was
// written as "compressed" without being marked as such. It is consulted
// only when header.CompressedSize == BLCKSZ, i.e. the frame looks raw.
//
// payload is the BLCKSZ bytes read from the backup file for this frame,
// interpreted first as a literal (uncompressed) page.
func MayBeCompressed(payload []byte, alg Alg, backupVersion Version) bool {
	if len(payload) < HeaderSize {
		return false
	}

	h := ParseHeader(payload)
	if HeaderValid(h) {
		return false
	}

	if backupVersion.Compare(Version{2, 0, 23}) >= 0 {
		return false
	}

	if alg == AlgZLIB {
		return len(payload) > 0 && payload[0] == 0x78
	}

	return true
}
