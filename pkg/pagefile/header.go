package pagefile

import "encoding/binary"

// HeaderSize is the byte length of the fixed page header prefix (spec §3).
const HeaderSize = 24

// ValidFlagBits is the bitmask of flag bits a page header may legally set.
// Any bit outside this mask fails the header validity predicate.
const ValidFlagBits = 0x0007

// pageSizeMask isolates the size bits of PageSizeAndVersion; the low byte
// carries the page layout version.
const pageSizeMask = 0xFF00

// PageHeader is the semantic view of a page's fixed header prefix (spec §3).
//
// LSN is stored on disk as two 32-bit halves, high half first (the
// "big-endian composite" spec §3 describes), not as a single little-endian
// uint64 — see ParseHeader/EncodeHeader.
type PageHeader struct {
	LSN               uint64
	Checksum          uint16
	Flags             uint16
	Lower             uint16
	Upper             uint16
	Special           uint16
	PageSizeAndVersion uint16
}

// ParseHeader reads the fixed header prefix out of a BLCKSZ page buffer.
// It does not validate; see [HeaderValid] and [ValidatePage].
func ParseHeader(page []byte) PageHeader {
	hi := binary.LittleEndian.Uint32(page[0:4])
	lo := binary.LittleEndian.Uint32(page[4:8])

	return PageHeader{
		LSN:                uint64(hi)<<32 | uint64(lo),
		Checksum:           binary.LittleEndian.Uint16(page[8:10]),
		Flags:              binary.LittleEndian.Uint16(page[10:12]),
		Lower:              binary.LittleEndian.Uint16(page[12:14]),
		Upper:              binary.LittleEndian.Uint16(page[14:16]),
		Special:            binary.LittleEndian.Uint16(page[16:18]),
		PageSizeAndVersion: binary.LittleEndian.Uint16(page[18:20]),
	}
}

// EncodeHeader writes h into the first HeaderSize bytes of page.
func EncodeHeader(page []byte, h PageHeader) {
	hi := uint32(h.LSN >> 32)
	lo := uint32(h.LSN)

	binary.LittleEndian.PutUint32(page[0:4], hi)
	binary.LittleEndian.PutUint32(page[4:8], lo)
	binary.LittleEndian.PutUint16(page[8:10], h.Checksum)
	binary.LittleEndian.PutUint16(page[10:12], h.Flags)
	binary.LittleEndian.PutUint16(page[12:14], h.Lower)
	binary.LittleEndian.PutUint16(page[14:16], h.Upper)
	binary.LittleEndian.PutUint16(page[16:18], h.Special)
	binary.LittleEndian.PutUint16(page[18:20], h.PageSizeAndVersion)
}

// SetChecksum overwrites just the checksum field of an already-encoded page.
func SetChecksum(page []byte, checksum uint16) {
	binary.LittleEndian.PutUint16(page[8:10], checksum)
}

// HeaderValid evaluates the header validity predicate of spec §3:
//
//	page_size == BLCKSZ
//	flags &^ ValidFlagBits == 0
//	HeaderSize <= lower <= upper <= special <= BLCKSZ
//	special == MAXALIGN(special)
//
// It does not classify all-zero pages as a separate case; callers do that
// (spec §4.2 step 2) because HeaderValid has no way to see the whole page.
func HeaderValid(h PageHeader) bool {
	if h.PageSizeAndVersion&pageSizeMask != BLCKSZ&pageSizeMask {
		return false
	}

	if h.Flags&^ValidFlagBits != 0 {
		return false
	}

	if !(HeaderSize <= h.Lower && h.Lower <= h.Upper && h.Upper <= h.Special && int(h.Special) <= BLCKSZ) {
		return false
	}

	if int32(h.Special) != Align(int32(h.Special)) {
		return false
	}

	return true
}

// IsZeroed reports whether every byte of page is zero.
func IsZeroed(page []byte) bool {
	for _, b := range page {
		if b != 0 {
			return false
		}
	}

	return true
}
