// Package xhash provides the 128-bit fingerprint primitive every stamp in
// lun is built from: a deterministic, endian-stable hash over a canonical
// byte stream.
package xhash

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// Hash128 is a 128-bit digest, serialized little-endian (Lo first, then Hi)
// wherever it touches disk or another hash.
type Hash128 struct {
	Lo, Hi uint64
}

// Bytes returns the 16-byte little-endian encoding of h.
func (h Hash128) Bytes() [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], h.Lo)
	binary.LittleEndian.PutUint64(b[8:16], h.Hi)
	return b
}

// Hash128FromBytes decodes the little-endian encoding produced by Bytes.
func Hash128FromBytes(b [16]byte) Hash128 {
	return Hash128{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}
}

// Digest accumulates a canonical byte stream and produces a Hash128.
// Structured inputs must be fed as fixed-width little-endian integers and
// raw bytes; never via textual formatting.
type Digest struct {
	h *xxh3.Hasher
}

// New returns an empty Digest.
func New() *Digest {
	return &Digest{h: xxh3.New()}
}

// Write feeds raw bytes into the running hash.
func (d *Digest) Write(p []byte) {
	_, _ = d.h.Write(p)
}

// WriteUint64 feeds a little-endian u64 into the running hash.
func (d *Digest) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	d.Write(b[:])
}

// WriteUint32 feeds a little-endian u32 into the running hash.
func (d *Digest) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	d.Write(b[:])
}

// WriteHash128 mixes a sub-hash into the outer digest via its 16-byte
// little-endian encoding — never via textual formatting.
func (d *Digest) WriteHash128(h Hash128) {
	b := h.Bytes()
	d.Write(b[:])
}

// Sum finalizes and returns the digest.
func (d *Digest) Sum() Hash128 {
	u := d.h.Sum128()
	return Hash128{Lo: u.Lo, Hi: u.Hi}
}

// Hash is a one-shot convenience for hashing a single byte string.
func Hash(b []byte) Hash128 {
	u := xxh3.Hash128(b)
	return Hash128{Lo: u.Lo, Hi: u.Hi}
}
