package vfs

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// ErrNotExist is returned by [Fake] operations on unknown paths.
var ErrNotExist = os.ErrNotExist

// Fake is an in-memory [FS] for tests. It is safe for concurrent use.
//
// Reads can be scripted to return short or torn results via
// [FakeFile.ScriptRead], which lets tests exercise the page reader's retry
// loop (spec §4.3) without touching a real disk.
type Fake struct {
	mu    sync.Mutex
	files map[string]*fakeInode
}

// NewFake returns an empty in-memory filesystem.
func NewFake() *Fake {
	return &Fake{files: make(map[string]*fakeInode)}
}

type fakeInode struct {
	mu   sync.Mutex
	data []byte
	mode os.FileMode
}

// Seed creates or overwrites a file with the given content, bypassing Open.
func (f *Fake) Seed(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	f.files[path] = &fakeInode{data: cp, mode: 0o644}
}

// ReadFile returns the current bytes stored for path.
func (f *Fake) ReadFile(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	in, ok := f.files[path]
	if !ok {
		return nil, false
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	cp := make([]byte, len(in.data))
	copy(cp, in.data)

	return cp, true
}

func (f *Fake) getOrCreate(path string) *fakeInode {
	f.mu.Lock()
	defer f.mu.Unlock()

	in, ok := f.files[path]
	if !ok {
		in = &fakeInode{mode: 0o644}
		f.files[path] = in
	}

	return in
}

func (f *Fake) Open(path string) (File, error) {
	f.mu.Lock()
	in, ok := f.files[path]
	f.mu.Unlock()

	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: ErrNotExist}
	}

	return &FakeFile{inode: in}, nil
}

func (f *Fake) Create(path string) (File, error) {
	in := f.getOrCreate(path)

	in.mu.Lock()
	in.data = nil
	in.mu.Unlock()

	return &FakeFile{inode: in}, nil
}

func (f *Fake) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	f.mu.Lock()
	in, ok := f.files[path]
	f.mu.Unlock()

	if !ok {
		if flag&os.O_CREATE == 0 {
			return nil, &os.PathError{Op: "open", Path: path, Err: ErrNotExist}
		}

		in = f.getOrCreate(path)
		in.mode = perm
	}

	if flag&os.O_TRUNC != 0 {
		in.mu.Lock()
		in.data = nil
		in.mu.Unlock()
	}

	return &FakeFile{inode: in, appendOnly: flag&os.O_APPEND != 0}, nil
}

func (f *Fake) Stat(path string) (os.FileInfo, error) {
	f.mu.Lock()
	in, ok := f.files[path]
	f.mu.Unlock()

	if !ok {
		return nil, &os.PathError{Op: "stat", Path: path, Err: ErrNotExist}
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	return fakeInfo{name: path, size: int64(len(in.data)), mode: in.mode}, nil
}

func (f *Fake) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.files[path]; !ok {
		return &os.PathError{Op: "remove", Path: path, Err: ErrNotExist}
	}

	delete(f.files, path)

	return nil
}

func (f *Fake) MkdirAll(string, os.FileMode) error { return nil }

// shortRead, when set, forces the next Nth ReadAt call at the given offset
// to return fewer bytes than requested (a torn read). Consumed on use.
type shortRead struct {
	offset int64
	n      int
	err    error
}

// FakeFile is an in-memory [File] backed by a [Fake] inode.
type FakeFile struct {
	inode      *fakeInode
	pos        int64
	closed     bool
	appendOnly bool

	mu     sync.Mutex
	script []shortRead
}

// ScriptRead arranges for the next ReadAt at the given offset to return only
// n bytes (or err, if non-nil) instead of the full requested length. Used to
// simulate torn pages and I/O errors across the retry loop in spec §4.3.
func (ff *FakeFile) ScriptRead(offset int64, n int, err error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.script = append(ff.script, shortRead{offset: offset, n: n, err: err})
}

func (ff *FakeFile) takeScript(offset int64) (shortRead, bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	for i, s := range ff.script {
		if s.offset == offset {
			ff.script = append(ff.script[:i], ff.script[i+1:]...)
			return s, true
		}
	}

	return shortRead{}, false
}

func (ff *FakeFile) ReadAt(p []byte, off int64) (int, error) {
	if s, ok := ff.takeScript(off); ok {
		if s.err != nil {
			return 0, s.err
		}

		n := s.n
		if n > len(p) {
			n = len(p)
		}

		ff.inode.mu.Lock()
		if off < int64(len(ff.inode.data)) {
			avail := ff.inode.data[off:]
			if n > len(avail) {
				n = len(avail)
			}

			copy(p[:n], avail[:n])
		} else {
			n = 0
		}
		ff.inode.mu.Unlock()

		return n, nil
	}

	ff.inode.mu.Lock()
	defer ff.inode.mu.Unlock()

	if off >= int64(len(ff.inode.data)) {
		return 0, io.EOF
	}

	n := copy(p, ff.inode.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (ff *FakeFile) WriteAt(p []byte, off int64) (int, error) {
	ff.inode.mu.Lock()
	defer ff.inode.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(ff.inode.data)) {
		grown := make([]byte, end)
		copy(grown, ff.inode.data)
		ff.inode.data = grown
	}

	copy(ff.inode.data[off:end], p)

	return len(p), nil
}

func (ff *FakeFile) Read(p []byte) (int, error) {
	n, err := ff.ReadAt(p, ff.pos)
	ff.pos += int64(n)

	return n, err
}

func (ff *FakeFile) Write(p []byte) (int, error) {
	n, err := ff.WriteAt(p, ff.pos)
	ff.pos += int64(n)

	return n, err
}

func (ff *FakeFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		ff.pos = offset
	case io.SeekCurrent:
		ff.pos += offset
	case io.SeekEnd:
		ff.inode.mu.Lock()
		ff.pos = int64(len(ff.inode.data)) + offset
		ff.inode.mu.Unlock()
	default:
		return 0, errors.New("vfs: invalid whence")
	}

	return ff.pos, nil
}

func (ff *FakeFile) Close() error {
	ff.closed = true
	return nil
}

func (ff *FakeFile) Fd() uintptr { return 0 }

func (ff *FakeFile) Stat() (os.FileInfo, error) {
	ff.inode.mu.Lock()
	defer ff.inode.mu.Unlock()

	return fakeInfo{size: int64(len(ff.inode.data)), mode: ff.inode.mode}, nil
}

func (ff *FakeFile) Sync() error { return nil }

func (ff *FakeFile) Truncate(size int64) error {
	ff.inode.mu.Lock()
	defer ff.inode.mu.Unlock()

	switch {
	case size <= int64(len(ff.inode.data)):
		ff.inode.data = ff.inode.data[:size]
	default:
		grown := make([]byte, size)
		copy(grown, ff.inode.data)
		ff.inode.data = grown
	}

	return nil
}

func (ff *FakeFile) Chmod(mode os.FileMode) error {
	ff.inode.mu.Lock()
	defer ff.inode.mu.Unlock()
	ff.inode.mode = mode

	return nil
}

type fakeInfo struct {
	name string
	size int64
	mode os.FileMode
}

func (fi fakeInfo) Name() string       { return fi.name }
func (fi fakeInfo) Size() int64        { return fi.size }
func (fi fakeInfo) Mode() os.FileMode  { return fi.mode }
func (fi fakeInfo) ModTime() (t time.Time) { return t }
func (fi fakeInfo) IsDir() bool        { return false }
func (fi fakeInfo) Sys() any           { return nil }

var (
	_ FS   = (*Fake)(nil)
	_ File = (*FakeFile)(nil)
)
