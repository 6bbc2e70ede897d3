// Package pagefile defines the on-disk shapes shared by the backup and
// restore drivers: the fixed-size page header (spec §3), the page checksum
// and validity predicate (spec §4.2), the compression codec registry
// (spec §4.1), and the per-page frame format written by the backup driver
// and replayed by restore/verify (spec §4.5, §6).
//
// Nothing in this package touches a filesystem; it operates on in-memory
// byte slices and io.Writer/io.Reader so it can be exercised without disk
// I/O and reused identically by backup, restore, and verify.
package pagefile

// BLCKSZ is the fixed page size. PostgreSQL-compatible deployments use 8192;
// this is a compile-time constant per spec §3, not configurable per file.
const BLCKSZ = 8192

// RELSEGSize (RELSEG_SIZE) is the number of blocks per relation segment file.
const RELSEGSize = 131072

// MaxAlign is the alignment boundary for frame payloads (spec §6).
const MaxAlign = 8

// Align rounds x up to the next multiple of MaxAlign.
func Align(x int32) int32 {
	return (x + MaxAlign - 1) &^ (MaxAlign - 1)
}

// AbsoluteBlockNumber computes the absolute block number fed to the
// checksum function: segno*RELSEG_SIZE + blkno (spec §3).
func AbsoluteBlockNumber(segno, blkno uint32) uint32 {
	return segno*RELSEGSize + blkno
}
