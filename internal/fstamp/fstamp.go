// Package fstamp computes the two-tier file fingerprints the planner
// relies on: a cheap mtime stamp available right after a walk, and a
// content stamp filled in lazily only when the mtime fast path misses.
package fstamp

import (
	"fmt"
	"os"
	"syscall"

	"github.com/lun-run/lun/internal/xhash"
)

// Stamp is a fingerprint of either a file's (metadata, mtime) or its
// (metadata, content).
type Stamp xhash.Hash128

// File is a lazily-enriched fingerprint of one file on disk.
//
// ContentStamp is absent (ok == false) until FillContent is called; this
// is the "defined set-once transition" spec.md's design notes call for.
type File struct {
	Path string
	Size int64

	metaHash  xhash.Hash128
	mtimeNs   int64
	mtimeOK   bool
	contentOK bool
	content   Stamp
}

// Stat reads a file's metadata and produces its cheap (mtime) stamp. The
// content stamp is left unfilled.
func Stat(path string) (File, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}

	var uid, gid, mode uint32
	mode = uint32(info.Mode())
	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		uid = sys.Uid
		gid = sys.Gid
		mode = sys.Mode
	}

	d := xhash.New()
	d.Write([]byte(path))
	d.WriteUint64(uint64(info.Size()))
	d.WriteUint32(uid)
	d.WriteUint32(gid)
	d.WriteUint32(mode)
	metaHash := d.Sum()

	return File{
		Path:     path,
		Size:     info.Size(),
		metaHash: metaHash,
		mtimeNs:  info.ModTime().UnixNano(),
		mtimeOK:  true,
	}, nil
}

// MtimeStamp returns the mtime-tier stamp: hash(metadata-sub-hash, mtime-ns).
func (f *File) MtimeStamp() Stamp {
	d := xhash.New()
	d.WriteHash128(f.metaHash)
	d.WriteUint64(uint64(f.mtimeNs))
	return Stamp(d.Sum())
}

// HasContentStamp reports whether FillContent has already been called
// successfully.
func (f *File) HasContentStamp() bool {
	return f.contentOK
}

// ContentStamp returns the content-tier stamp. It panics if FillContent
// has not yet succeeded — callers must check HasContentStamp (or rely on
// FillContent's error) first, matching the invariant that a content key is
// never computed before the content stamp is populated.
func (f *File) ContentStamp() Stamp {
	if !f.contentOK {
		panic("fstamp: ContentStamp called before FillContent succeeded")
	}
	return f.content
}

// FillContent reads the file's bytes, hashes them together with the
// metadata-sub-hash, and populates the content stamp. It is a no-op if the
// content stamp is already filled.
func (f *File) FillContent() error {
	if f.contentOK {
		return nil
	}
	content, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Path, err)
	}
	contentHash := xhash.Hash(content)

	d := xhash.New()
	d.WriteHash128(f.metaHash)
	d.WriteHash128(contentHash)
	f.content = Stamp(d.Sum())
	f.contentOK = true
	return nil
}
