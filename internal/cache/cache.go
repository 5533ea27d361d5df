// Package cache implements lun's work-skipping cache: a persistent,
// bounded-size record of (file, tool) pairs already processed. See
// spec.md §4.3 for the on-disk contract this package is a faithful
// implementation of.
package cache

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/lun-run/lun/internal/fstamp"
	"github.com/lun-run/lun/internal/xhash"
)

// Key is the logical pair (file-stamp, tool-stamp) a cache entry records.
type Key struct {
	Stamp     fstamp.Stamp
	ToolStamp xhash.Hash128
}

// KeyHash is the sole value actually stored on disk: a hash of a Key.
type KeyHash xhash.Hash128

// Hash reduces a Key to its stored KeyHash.
func (k Key) Hash() KeyHash {
	d := xhash.New()
	d.WriteHash128(xhash.Hash128(k.Stamp))
	d.WriteHash128(k.ToolStamp)
	return KeyHash(d.Sum())
}

// Writer is the write-only capability: workers that must record
// completions but never decide whether work is needed.
type Writer interface {
	Done(k Key)
	DoneHash(kh KeyHash)
	Flush() (cacheFull bool, err error)
}

// Cache is the full read/write capability the planner consults.
type Cache interface {
	Writer
	Needed(k Key) bool
}

// Stats summarizes a cache's on-disk state for introspection (`lun cache
// stats`).
type Stats struct {
	Records          int
	ApproxRuns       int // max(counter) + 1
	AddedThisRun     int // records with counter == 0
	PercentOfCapacity float64
}

// version is lun's own release triple; a cache file stamped with any
// other version is discarded rather than partially interpreted.
type version struct {
	Major, Minor, Patch uint16
}

const (
	headerSize = 6  // 3 × u16
	recordSize = 18 // u16 counter + u128 key hash
)

// CurrentVersion is the version every freshly-written cache file is
// stamped with, and the only version an existing file is accepted under.
var CurrentVersion = version{Major: 0, Minor: 1, Patch: 0}

// DefaultMaxBytes is a byte budget corresponding to roughly 2^17 entries,
// spec.md §4.3's suggested default size.
const DefaultMaxBytes = headerSize + (1<<17)*recordSize

// FileCache is the persistent Cache implementation: an in-memory map,
// mutated during planning and execution, flushed to a single file.
type FileCache struct {
	path     string
	maxBytes int64
	entries  map[KeyHash]uint16
}

// Load reads path into a FileCache. A missing file is an empty cache; a
// corrupt or version-mismatched file is deleted and also yields an empty
// cache — there is no partial recovery by design (spec.md §4.3, §7).
// The discard is silent: no warning is logged and the caller gets no
// indication that a file was removed.
func Load(path string, maxBytes int64) (*FileCache, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	fc := &FileCache{path: path, maxBytes: maxBytes, entries: make(map[KeyHash]uint16)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return nil, fmt.Errorf("reading cache %s: %w", path, err)
	}

	if !cacheOK(data) {
		_ = os.Remove(path)
		return fc, nil
	}

	body := data[headerSize:]
	for off := 0; off < len(body); off += recordSize {
		rec := body[off : off+recordSize]
		counter := binary.LittleEndian.Uint16(rec[0:2])
		var hb [16]byte
		copy(hb[:], rec[2:18])
		fc.entries[KeyHash(xhash.Hash128FromBytes(hb))] = counter
	}
	return fc, nil
}

// cacheOK validates the version header and record alignment without
// attempting to interpret anything further.
func cacheOK(data []byte) bool {
	if len(data) < headerSize {
		return false
	}
	major := binary.LittleEndian.Uint16(data[0:2])
	minor := binary.LittleEndian.Uint16(data[2:4])
	patch := binary.LittleEndian.Uint16(data[4:6])
	if major != CurrentVersion.Major || minor != CurrentVersion.Minor || patch != CurrentVersion.Patch {
		return false
	}
	return (len(data)-headerSize)%recordSize == 0
}

// Needed reports whether k's hash is absent from the cache. A hit resets
// the entry's counter to 0 ("touched this run") — needed() is
// deliberately non-pure; see spec.md §9's design note on this coupling.
func (c *FileCache) Needed(k Key) bool {
	kh := k.Hash()
	if _, ok := c.entries[kh]; ok {
		c.entries[kh] = 0
		return false
	}
	return true
}

// Done records k as complete, with counter 0.
func (c *FileCache) Done(k Key) {
	c.DoneHash(k.Hash())
}

// DoneHash records a precomputed KeyHash as complete, with counter 0.
func (c *FileCache) DoneHash(kh KeyHash) {
	c.entries[kh] = 0
}

// Flush increments every counter by one (saturating), evicts down to the
// byte budget (oldest-first, ties broken by ascending hash value), and
// atomically rewrites the cache file. It reports whether eviction
// occurred.
func (c *FileCache) Flush() (bool, error) {
	maxEntries := int((c.maxBytes - headerSize) / recordSize)
	if maxEntries < 0 {
		maxEntries = 0
	}

	type entry struct {
		hash    KeyHash
		counter uint16
	}
	entries := make([]entry, 0, len(c.entries))
	for h, cnt := range c.entries {
		if cnt != ^uint16(0) {
			cnt++
		}
		entries = append(entries, entry{hash: h, counter: cnt})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].counter != entries[j].counter {
			return entries[i].counter < entries[j].counter
		}
		return hashLess(entries[i].hash, entries[j].hash)
	})

	full := len(entries) > maxEntries
	if full {
		entries = entries[:maxEntries]
	}

	// Sort again, this time purely by hash, for a deterministic on-disk
	// order independent of how ties were broken above (spec.md §8's
	// determinism-of-on-disk-order law).
	sort.Slice(entries, func(i, j int) bool { return hashLess(entries[i].hash, entries[j].hash) })

	buf := make([]byte, headerSize+len(entries)*recordSize)
	binary.LittleEndian.PutUint16(buf[0:2], CurrentVersion.Major)
	binary.LittleEndian.PutUint16(buf[2:4], CurrentVersion.Minor)
	binary.LittleEndian.PutUint16(buf[4:6], CurrentVersion.Patch)
	for i, e := range entries {
		off := headerSize + i*recordSize
		binary.LittleEndian.PutUint16(buf[off:off+2], e.counter)
		hb := xhash.Hash128(e.hash).Bytes()
		copy(buf[off+2:off+18], hb[:])
	}

	if err := writeFileAtomic(c.path, buf); err != nil {
		return full, fmt.Errorf("writing cache %s: %w", c.path, err)
	}

	c.entries = make(map[KeyHash]uint16, len(entries))
	for _, e := range entries {
		c.entries[e.hash] = e.counter
	}
	return full, nil
}

func hashLess(a, b KeyHash) bool {
	ha, hb := xhash.Hash128(a), xhash.Hash128(b)
	if ha.Hi != hb.Hi {
		return ha.Hi < hb.Hi
	}
	return ha.Lo < hb.Lo
}

// writeFileAtomic replaces path's whole contents in one write, via a
// temp-file-then-rename so a concurrent reader never observes a
// half-written cache.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Stats reports the cache's current introspection summary.
func (c *FileCache) Stats() Stats {
	st := Stats{Records: len(c.entries)}
	maxEntries := int((c.maxBytes - headerSize) / recordSize)
	var maxCounter uint16
	for _, cnt := range c.entries {
		if cnt > maxCounter {
			maxCounter = cnt
		}
		if cnt == 0 {
			st.AddedThisRun++
		}
	}
	st.ApproxRuns = int(maxCounter) + 1
	if maxEntries > 0 {
		st.PercentOfCapacity = 100 * float64(st.Records) / float64(maxEntries)
	}
	return st
}

// GC opens the cache at path, flushes it under budget, and reports
// whether eviction occurred.
func GC(path string, maxBytes int64) (bool, error) {
	c, err := Load(path, maxBytes)
	if err != nil {
		return false, err
	}
	return c.Flush()
}

// Nop is a Cache that disables caching entirely: Needed is always true,
// the writes are no-ops, and Flush never evicts.
type Nop struct{}

func (Nop) Needed(Key) bool      { return true }
func (Nop) Done(Key)             {}
func (Nop) DoneHash(KeyHash)     {}
func (Nop) Flush() (bool, error) { return false, nil }

var (
	_ Cache = (*FileCache)(nil)
	_ Cache = Nop{}
)
