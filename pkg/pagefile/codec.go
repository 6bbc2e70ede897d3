package pagefile

// Alg identifies a compression algorithm tag. The tag is the on-disk
// contract (spec §4.1, Design Notes §9) — dispatch is internal to this
// package and may change without affecting already-written backups.
type Alg uint32

const (
	AlgNone        Alg = 0
	AlgNotDefined  Alg = 1
	AlgZLIB        Alg = 2
	AlgPGLZ        Alg = 3
)

func (a Alg) String() string {
	switch a {
	case AlgNone:
		return "none"
	case AlgNotDefined:
		return "not-defined"
	case AlgZLIB:
		return "zlib"
	case AlgPGLZ:
		return "pglz"
	default:
		return "unknown"
	}
}

// codec is an opaque (encode, decode) pair keyed by algorithm tag (Design
// Notes §9: "a registry of (encode, decode, name) triples").
type codec struct {
	name    string
	encode  func(dst, src []byte, level int) (int, error)
	decode  func(dst, src []byte) (int, error)
}

var registry = map[Alg]codec{
	AlgNone: {
		name:   "none",
		encode: func(dst, src []byte, level int) (int, error) { return 0, ErrUnsupportedAlg },
		decode: func(dst, src []byte) (int, error) { return 0, ErrUnsupportedAlg },
	},
	AlgNotDefined: {
		name:   "not-defined",
		encode: func(dst, src []byte, level int) (int, error) { return 0, ErrUnsupportedAlg },
		decode: func(dst, src []byte) (int, error) { return 0, ErrUnsupportedAlg },
	},
	AlgZLIB: {
		name:   "zlib",
		encode: zlibEncode,
		decode: zlibDecode,
	},
	AlgPGLZ: {
		name:   "pglz",
		encode: pglzEncode,
		decode: pglzDecode,
	},
}

// minScratch is the minimum destination buffer size the registry requires
// (spec §4.1: "caller provides dst of at least 2*BLCKSZ for safety").
const minScratch = 2 * BLCKSZ

// Compress writes the compressed form of src into dst using alg at the
// given level, returning the number of bytes written. Callers must size dst
// at least 2*BLCKSZ. NONE and NotDefined always fail (spec §4.1).
func Compress(dst, src []byte, alg Alg, level int) (int, error) {
	if len(dst) < minScratch {
		return 0, ErrShortBuffer
	}

	c, ok := registry[alg]
	if !ok {
		return 0, ErrUnsupportedAlg
	}

	return c.encode(dst, src, level)
}

// Decompress writes the decompressed form of src into dst using alg,
// returning the number of bytes written.
func Decompress(dst, src []byte, alg Alg) (int, error) {
	if len(dst) < minScratch {
		return 0, ErrShortBuffer
	}

	c, ok := registry[alg]
	if !ok {
		return 0, ErrUnsupportedAlg
	}

	return c.decode(dst, src)
}
