package pagefile

import (
	"bytes"
	"testing"
)

// TestWriteFrameZeroPageFull covers spec §8 scenario 1: with AlgNone the
// compression step always fails, so the framed writer stores the zero-filled
// page raw, with compressed_size == BLCKSZ and the page itself as payload.
func TestWriteFrameZeroPageFull(t *testing.T) {
	page := make([]byte, BLCKSZ)

	var buf bytes.Buffer

	crc := NewCRC(Version{2, 0, 30})

	n, err := WriteFrame(&buf, crc, 0, page, AlgNone, 0)
	if err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	fh := DecodeFrameHeader(buf.Bytes()[:FrameHeaderSize])
	if fh.Block != 0 {
		t.Fatalf("block = %d, want 0", fh.Block)
	}

	if fh.CompressedSize != BLCKSZ {
		t.Fatalf("compressed_size = %d, want BLCKSZ (AlgNone never compresses)", fh.CompressedSize)
	}

	if n != FrameHeaderSize+BLCKSZ {
		t.Fatalf("wrote %d bytes, want %d", n, FrameHeaderSize+BLCKSZ)
	}

	payload := buf.Bytes()[FrameHeaderSize:]
	if !bytes.Equal(payload, page) {
		t.Fatalf("payload does not match source page")
	}
}

func TestWriteFrameCompressedShrinksOutput(t *testing.T) {
	page := make([]byte, BLCKSZ) // all zero: compresses very well

	var buf bytes.Buffer

	crc := NewCRC(Version{2, 0, 30})

	n, err := WriteFrame(&buf, crc, 3, page, AlgZLIB, 1)
	if err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	fh := DecodeFrameHeader(buf.Bytes()[:FrameHeaderSize])
	if fh.CompressedSize >= BLCKSZ {
		t.Fatalf("compressed_size = %d, want < BLCKSZ", fh.CompressedSize)
	}

	if int64(n) != int64(FrameHeaderSize)+int64(Align(fh.CompressedSize)) {
		t.Fatalf("wrote %d bytes, want header+MAXALIGN(compressed_size)", n)
	}
}

func TestWriteTruncateFrame(t *testing.T) {
	var buf bytes.Buffer

	crc := NewCRC(Version{2, 0, 30})

	n, err := WriteTruncateFrame(&buf, crc, 5)
	if err != nil {
		t.Fatalf("WriteTruncateFrame: %v", err)
	}

	if n != FrameHeaderSize {
		t.Fatalf("wrote %d bytes, want %d", n, FrameHeaderSize)
	}

	fh := DecodeFrameHeader(buf.Bytes())
	if fh.Block != 5 || fh.CompressedSize != TruncateMarker {
		t.Fatalf("fh = %+v, want block=5 compressed_size=TruncateMarker", fh)
	}
}

func TestDecodeFramePayloadRaw(t *testing.T) {
	page := make([]byte, BLCKSZ)
	page[100] = 0x42

	got, err := DecodeFramePayload(page, FrameHeader{Block: 1, CompressedSize: BLCKSZ}, AlgNone, Version{2, 0, 30})
	if err != nil {
		t.Fatalf("DecodeFramePayload: %v", err)
	}

	if !bytes.Equal(got, page) {
		t.Fatalf("expected raw payload to pass through unchanged")
	}
}

func TestDecodeFramePayloadCompressed(t *testing.T) {
	page := make([]byte, BLCKSZ)
	for i := 0; i < 1000; i++ {
		page[i] = byte(i)
	}

	dst := make([]byte, minScratch)

	n, err := Compress(dst, page, AlgZLIB, 1)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	got, err := DecodeFramePayload(dst[:n], FrameHeader{Block: 2, CompressedSize: int32(n)}, AlgZLIB, Version{2, 0, 30})
	if err != nil {
		t.Fatalf("DecodeFramePayload: %v", err)
	}

	if !bytes.Equal(got, page) {
		t.Fatalf("decompressed payload does not match original page")
	}
}

func TestMayBeCompressedPreCompatDetectsZLIB(t *testing.T) {
	page := make([]byte, BLCKSZ)
	for i := 0; i < 1000; i++ {
		page[i] = byte(i)
	}

	dst := make([]byte, minScratch)

	n, err := Compress(dst, page, AlgZLIB, 1)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	// Simulate the legacy bug: compressed form padded out to exactly
	// BLCKSZ, with compressed_size wrongly recorded as BLCKSZ (spec §4.7
	// step 8). The padded bytes therefore fail HeaderValid (they are
	// compressed garbage, not a real page).
	payload := make([]byte, BLCKSZ)
	copy(payload, dst[:n])

	if HeaderValid(ParseHeader(payload)) {
		t.Skip("compressed bytes happened to parse as a valid header; regenerate fixture")
	}

	if !MayBeCompressed(payload, AlgZLIB, Version{2, 0, 22}) {
		t.Fatalf("expected MayBeCompressed to detect pre-2.0.23 compressed frame")
	}

	if MayBeCompressed(payload, AlgZLIB, Version{2, 0, 23}) {
		t.Fatalf("expected MayBeCompressed to return false at/after 2.0.23")
	}
}
