// Package wire holds the pieces of the binary persistence format shared by
// hll, cms, and heavyhitters, following the teacher's per-package
// magic-header convention (see internal/limite/cms/cms.go and
// internal/limite/hyperloglog/header.go): each sketch package still owns
// its own magic, version, and layout, but all of them delegate the
// integrity trailer to this package so the on-disk contract is consistent.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ChecksumSize is the width in bytes of the trailer appended by
// AppendChecksum.
const ChecksumSize = 8

// AppendChecksum returns payload with an 8-byte little-endian xxhash64
// checksum of payload appended. xxhash is the teacher's own dependency,
// already vetted for exactly this kind of fast, non-cryptographic integrity
// role in its binary formats -- reused here instead of dropped, since the
// sketches' own row/column hashing must stay bit-exact FastHash64 per the
// wire contract in spec section 6.3 and cannot serve double duty.
func AppendChecksum(payload []byte) []byte {
	sum := xxhash.Sum64(payload)
	out := make([]byte, len(payload)+ChecksumSize)
	copy(out, payload)
	binary.LittleEndian.PutUint64(out[len(payload):], sum)
	return out
}

// SplitChecksum splits data into its payload and trailing checksum,
// verifying the checksum matches. It returns the payload (without the
// trailer) on success.
func SplitChecksum(data []byte) ([]byte, error) {
	if len(data) < ChecksumSize {
		return nil, fmt.Errorf("wire: data too short for checksum trailer (%d bytes)", len(data))
	}
	split := len(data) - ChecksumSize
	payload, trailer := data[:split], data[split:]

	want := binary.LittleEndian.Uint64(trailer)
	got := xxhash.Sum64(payload)
	if got != want {
		return nil, fmt.Errorf("wire: checksum mismatch (want %016x, got %016x)", want, got)
	}
	return payload, nil
}
