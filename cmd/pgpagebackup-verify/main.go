// Command pgpagebackup-verify is a thin diagnostic CLI over the validator
// driver (C8, spec §4.8): it re-reads a framed backup file, recomputes its
// CRC, decompresses and revalidates every page, and reports the result.
// It is not a backup-catalogue CLI (spec §1 scopes catalogue management
// out of the core).
package main

import (
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/pgpagebackup/internal/catalog"
	"github.com/calvinalkan/pgpagebackup/internal/verify"
	"github.com/calvinalkan/pgpagebackup/pkg/pagefile"
	"github.com/calvinalkan/pgpagebackup/pkg/vfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	flags := flag.NewFlagSet("pgpagebackup-verify", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		crc           uint32
		nblocks       int64
		segno         uint
		compressAlg   uint
		checksums     bool
		stopLSN       uint64
		backupVersion string
	)

	flags.Uint32Var(&crc, "crc", 0, "expected whole-file CRC recorded in the catalogue")
	flags.Int64Var(&nblocks, "n-blocks", 0, "file.n_blocks recorded in the catalogue")
	flags.UintVar(&segno, "segno", 0, "segment index of this file")
	flags.UintVar(&compressAlg, "compress-alg", uint(pagefile.AlgNone), "codec tag (0=none,2=zlib,3=pglz)")
	flags.BoolVar(&checksums, "checksums", true, "treat the source database as checksum-enabled")
	flags.Uint64Var(&stopLSN, "stop-lsn", 0, "warn about pages whose LSN exceeds this value (0 disables the check)")
	flags.StringVar(&backupVersion, "backup-version", "2.0.30", "backup format version, for CRC/compat selection")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}

		return 2
	}

	if flags.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: pgpagebackup-verify [flags] <backup-file>")
		return 2
	}

	version, err := parseVersion(backupVersion)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	fsys := vfs.NewReal()

	f, err := fsys.Open(flags.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer f.Close()

	entry := &catalog.FileEntry{
		Segno:       uint32(segno),
		NBlocks:     nblocks,
		CRC:         crc,
		CompressAlg: pagefile.Alg(compressAlg),
	}

	report, err := verify.CheckFilePages(f, entry, version, stopLSN, checksums)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", flags.Arg(0), err)
		return 1
	}

	if report.LSNFromFuture {
		fmt.Fprintf(stdout, "%s: warning: LSN from future observed\n", flags.Arg(0))
	}

	if !report.Valid {
		fmt.Fprintf(stdout, "%s: INVALID: block %d: %s\n", flags.Arg(0), report.FirstBadBlock, report.FailureDetail)
		return 1
	}

	fmt.Fprintf(stdout, "%s: OK\n", flags.Arg(0))

	return 0
}

func parseVersion(s string) (pagefile.Version, error) {
	var v pagefile.Version

	n, err := fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch)
	if err != nil || n != 3 {
		return pagefile.Version{}, fmt.Errorf("invalid --backup-version %q, want MAJOR.MINOR.PATCH", s)
	}

	return v, nil
}
