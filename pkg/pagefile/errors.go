package pagefile

import "errors"

// ErrUnsupportedAlg is returned by the codec registry for algorithm tags
// that never compress or decompress (NONE, NotDefined) and for unknown tags.
var ErrUnsupportedAlg = errors.New("pagefile: invalid compression algorithm")

// ErrShortBuffer is returned when a caller-supplied destination buffer is
// smaller than the 2*BLCKSZ the registry requires (spec §4.1).
var ErrShortBuffer = errors.New("pagefile: destination buffer too small")

// ErrFrameTooLarge is returned when a frame's declared compressed_size
// exceeds BLCKSZ during decode (spec §4.7 step 6: corruption, always fatal).
var ErrFrameTooLarge = errors.New("pagefile: compressed_size exceeds BLCKSZ")

// ErrOddSizePage describes a frame whose header or payload hits EOF partway
// through (spec §4.7 step 1); the validator driver reports its text in a
// Report's FailureDetail.
var ErrOddSizePage = errors.New("pagefile: odd size page found")
