package pagefile

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// zlibEncode compresses src into dst at the given zlib level. Compression
// "succeeds" per spec §4.5 only when the result is strictly shorter than
// BLCKSZ; callers (the framed writer) decide whether to keep it.
func zlibEncode(dst, src []byte, level int) (int, error) {
	if level < zlib.HuffmanOnly || level > zlib.BestCompression {
		level = zlib.DefaultCompression
	}

	var buf bytes.Buffer

	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return 0, err
	}

	if _, err := w.Write(src); err != nil {
		_ = w.Close()
		return 0, err
	}

	if err := w.Close(); err != nil {
		return 0, err
	}

	if buf.Len() > len(dst) {
		return 0, ErrShortBuffer
	}

	return copy(dst, buf.Bytes()), nil
}

func zlibDecode(dst, src []byte) (int, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, err
	}
	defer r.Close()

	n := 0

	for {
		if n == len(dst) {
			// Destination exhausted; confirm the stream is actually done.
			var probe [1]byte

			_, rerr := r.Read(probe[:])
			if rerr == io.EOF {
				return n, nil
			}

			return n, ErrShortBuffer
		}

		m, rerr := r.Read(dst[n:])
		n += m

		if rerr == io.EOF {
			return n, nil
		}

		if rerr != nil {
			return n, rerr
		}
	}
}
