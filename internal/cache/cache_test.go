package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lun-run/lun/internal/fstamp"
	"github.com/lun-run/lun/internal/xhash"
)

func testKey(seed uint64) Key {
	return Key{
		Stamp:     fstamp.Stamp(xhash.Hash128{Lo: seed, Hi: seed * 7}),
		ToolStamp: xhash.Hash128{Lo: seed + 1, Hi: seed + 2},
	}
}

func TestNeededTrueForUnseenKey(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "c"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Needed(testKey(1)) {
		t.Error("expected an unseen key to be needed")
	}
}

func TestDoneThenNotNeeded(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "c"), 0)
	if err != nil {
		t.Fatal(err)
	}
	k := testKey(1)
	c.Done(k)
	if c.Needed(k) {
		t.Error("expected a recorded key to no longer be needed")
	}
}

func TestNeededResetsCounterOnHit(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "c"), 0)
	if err != nil {
		t.Fatal(err)
	}
	k := testKey(1)
	c.Done(k)
	if _, err := c.Flush(); err != nil {
		t.Fatal(err)
	}
	if c.entries[k.Hash()] == 0 {
		t.Fatal("expected flush to have incremented the counter")
	}
	c.Needed(k) // a hit resets the counter to 0
	if c.entries[k.Hash()] != 0 {
		t.Error("expected Needed to reset the counter on a cache hit")
	}
}

func TestFlushRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c")
	c, err := Load(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	k1, k2 := testKey(1), testKey(2)
	c.Done(k1)
	c.Done(k2)
	if _, err := c.Flush(); err != nil {
		t.Fatal(err)
	}

	c2, err := Load(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if c2.Needed(k1) || c2.Needed(k2) {
		t.Error("expected both keys to survive a flush/reload round trip")
	}
}

func TestLoadMissingFileIsEmptyCache(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.entries) != 0 {
		t.Error("expected an empty cache for a missing file")
	}
}

func TestLoadCorruptFileDiscardsToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c")
	if err := os.WriteFile(path, []byte{0xff, 0xff, 0xff}, 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.entries) != 0 {
		t.Error("expected a corrupt cache file to be discarded, not partially read")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected the corrupt file to be removed")
	}
}

func TestLoadVersionMismatchDiscardsToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c")
	buf := make([]byte, headerSize+recordSize)
	// Header claims major version 99, which never matches CurrentVersion.
	buf[0] = 99
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.entries) != 0 {
		t.Error("expected a version-mismatched cache to be discarded")
	}
}

func TestFlushEvictsToMaxEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c")
	maxBytes := int64(headerSize + 2*recordSize) // room for exactly 2 entries
	c, err := Load(path, maxBytes)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(0); i < 5; i++ {
		c.Done(testKey(i))
	}
	full, err := c.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if !full {
		t.Error("expected Flush to report eviction when over budget")
	}
	if len(c.entries) != 2 {
		t.Fatalf("expected eviction down to 2 entries, got %d", len(c.entries))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > maxBytes {
		t.Errorf("on-disk size %d exceeds budget %d", info.Size(), maxBytes)
	}
}

func TestFlushPrefersLowerCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c")
	maxBytes := int64(headerSize + 1*recordSize)
	c, err := Load(path, maxBytes)
	if err != nil {
		t.Fatal(err)
	}
	older, newer := testKey(1), testKey(2)
	c.Done(older)
	if _, err := c.Flush(); err != nil { // older's counter is now 1
		t.Fatal(err)
	}
	c.Done(newer) // newer's counter is 0
	if _, err := c.Flush(); err != nil {
		t.Fatal(err)
	}
	if !c.Needed(older) {
		t.Error("expected the higher-counter (less recently touched) key to be evicted")
	}
	if c.Needed(newer) {
		t.Error("expected newer to survive")
	}
}

func TestNoRecordOnFailure(t *testing.T) {
	// A batch that fails never calls Done/DoneHash for its keys: verify
	// the key remains needed.
	c, err := Load(filepath.Join(t.TempDir(), "c"), 0)
	if err != nil {
		t.Fatal(err)
	}
	k := testKey(1)
	if !c.Needed(k) {
		t.Fatal("expected key to be needed before any Done call")
	}
	if !c.Needed(k) {
		t.Error("expected key to remain needed since nothing recorded it done")
	}
}

func TestNopAlwaysNeeded(t *testing.T) {
	var n Nop
	k := testKey(1)
	n.Done(k)
	if !n.Needed(k) {
		t.Error("expected Nop to always report needed, even after Done")
	}
	full, err := n.Flush()
	if err != nil || full {
		t.Errorf("expected Nop.Flush() to be (false, nil), got (%v, %v)", full, err)
	}
}

func TestStatsCountsAddedThisRun(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "c"), 0)
	if err != nil {
		t.Fatal(err)
	}
	c.Done(testKey(1))
	c.Done(testKey(2))
	st := c.Stats()
	if st.Records != 2 {
		t.Errorf("expected 2 records, got %d", st.Records)
	}
	if st.AddedThisRun != 2 {
		t.Errorf("expected 2 added this run, got %d", st.AddedThisRun)
	}
}
