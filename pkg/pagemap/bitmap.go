// Package pagemap implements the bitmap driving PAGE-mode backups (spec
// §4.3, C4): a word-packed bit-per-block map over a relation file, plus an
// ascending-order cursor that the backup driver (internal/backup) consults
// instead of falling back to a full sequential scan.
package pagemap

// Bitmap is a word-packed, bit-per-block map: bit n set means block n
// changed since the parent backup and must be read (spec §4.3).
type Bitmap struct {
	words []uint64
	nbits int
}

// NewBitmap allocates a bitmap capable of addressing nblocks blocks, all
// initially clear.
func NewBitmap(nblocks int) *Bitmap {
	return &Bitmap{
		words: make([]uint64, (nblocks+63)/64),
		nbits: nblocks,
	}
}

// FromWords wraps a caller-supplied word slice (e.g. decoded straight off
// disk) as a Bitmap addressing nbits blocks. len(words) must be at least
// (nbits+63)/64.
func FromWords(words []uint64, nbits int) *Bitmap {
	return &Bitmap{words: words, nbits: nbits}
}

// Set marks block n as changed.
func (b *Bitmap) Set(n int) {
	if n < 0 || n >= b.nbits {
		return
	}

	b.words[n/64] |= 1 << uint(n%64)
}

// Test reports whether block n is marked.
func (b *Bitmap) Test(n int) bool {
	if n < 0 || n >= b.nbits {
		return false
	}

	return b.words[n/64]&(1<<uint(n%64)) != 0
}

// Len returns the number of blocks the bitmap addresses.
func (b *Bitmap) Len() int { return b.nbits }

// Words returns the underlying word slice, for serialization.
func (b *Bitmap) Words() []uint64 { return b.words }

// Cursor is an ascending-order iterator over a Bitmap's set bits (spec
// §4.3: "the pagemap loop visits blocks in ascending order, same as the
// sequential-scan fallback, so retry/corruption semantics don't depend on
// which loop produced the block number").
type Cursor struct {
	b   *Bitmap
	pos int
}

// Iterate returns a Cursor starting before the first block.
func (b *Bitmap) Iterate() *Cursor {
	return &Cursor{b: b, pos: -1}
}

// Next advances to the next set bit and reports whether one was found.
func (c *Cursor) Next() bool {
	for c.pos++; c.pos < c.b.nbits; c.pos++ {
		if c.b.Test(c.pos) {
			return true
		}
	}

	return false
}

// Block returns the block number Next last stopped on.
func (c *Cursor) Block() uint32 { return uint32(c.pos) }
