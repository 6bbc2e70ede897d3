// Package vfs provides a filesystem seam between the page-backup engine and
// the operating system.
//
// Backup and restore run against files that can be megabytes to terabytes
// in size and must tolerate torn reads from a live database; tests need to
// inject truncated reads, partial writes, and I/O errors at specific byte
// offsets without touching a real disk. [FS] and [File] exist so production
// code depends on an interface and tests can swap in [Fake].
package vfs

import (
	"io"
	"os"
)

// File represents an open file.
//
// OS-backed implementations behave like [os.File]: in particular [File.Fd]
// returns a descriptor usable with raw syscalls until the file is closed.
// The in-memory [FakeFile] has no descriptor; its Fd returns 0.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.ReadWriteCloser
	io.Seeker

	Fd() uintptr
	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
	Chmod(mode os.FileMode) error
}

// FS abstracts the filesystem operations the backup/restore drivers need.
//
// Paths use OS semantics, not the slash-separated semantics of the standard
// library io/fs package.
type FS interface {
	Open(path string) (File, error)
	Create(path string) (File, error)
	OpenFile(path string, flag int, perm os.FileMode) (File, error)
	Stat(path string) (os.FileInfo, error)
	Remove(path string) error
	MkdirAll(path string, perm os.FileMode) error
}

// Real implements [FS] against the operating system. All methods are
// passthroughs to the [os] package.
type Real struct{}

// NewReal returns a [Real] filesystem.
func NewReal() *Real { return &Real{} }

func (r *Real) Open(path string) (File, error) { return os.Open(path) }

func (r *Real) Create(path string) (File, error) { return os.Create(path) }

func (r *Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

func (r *Real) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }

func (r *Real) Remove(path string) error { return os.Remove(path) }

func (r *Real) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

var _ FS = (*Real)(nil)
var _ File = (*os.File)(nil)
