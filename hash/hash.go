// Package hash implements the two non-cryptographic hash functions the rest
// of this module builds on: FastHash64/32 (Zilong Tan's fasthash, itself a
// tuned derivative of Google's CityHash mixing step) and the standard
// x86_32 variant of MurmurHash3.
//
// Both are pure functions of (bytes, seed). Their bit patterns are part of
// the on-disk and cross-language contract for every sketch in this module:
// a CMS or Heavy-Hitters row hashed by one implementation must land on the
// same column when hashed by another. Do not "improve" the mixing constants.
package hash

import "encoding/binary"

// fastHashMix is the constant from the reference fasthash C++ implementation.
const fastHashMix = 0x880355f21e6d1965

// FastHash64 computes the 64-bit fasthash of data seeded with seed. It
// consumes the input in 8-byte little-endian words, folding each through
// the mix step, then folds the trailing 0-7 bytes before one final mix.
func FastHash64(data []byte, seed uint64) uint64 {
	const m = fastHashMix

	h := seed ^ (uint64(len(data)) * m)

	n := len(data) / 8
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint64(data[i*8:])
		h ^= mix64(v)
		h *= m
	}

	tail := data[n*8:]
	var v uint64
	switch len(tail) {
	case 7:
		v ^= uint64(tail[6]) << 48
		fallthrough
	case 6:
		v ^= uint64(tail[5]) << 40
		fallthrough
	case 5:
		v ^= uint64(tail[4]) << 32
		fallthrough
	case 4:
		v ^= uint64(tail[3]) << 24
		fallthrough
	case 3:
		v ^= uint64(tail[2]) << 16
		fallthrough
	case 2:
		v ^= uint64(tail[1]) << 8
		fallthrough
	case 1:
		v ^= uint64(tail[0])
		h ^= mix64(v)
		h *= m
	}

	return mix64(h)
}

// mix64 is the fasthash avalanche step: XOR-shift by 23, multiply by
// 0x2127599bf4325c37, then XOR-shift by 47.
func mix64(h uint64) uint64 {
	h ^= h >> 23
	h *= 0x2127599bf4325c37
	h ^= h >> 47
	return h
}

// FastHash32 derives a 32-bit hash from FastHash64 by folding the high word
// out of the low word, per the reference implementation's fasthash32.
func FastHash32(data []byte, seed uint64) uint32 {
	h := FastHash64(data, seed)
	return uint32(h - (h >> 32))
}

// MurmurHash3_x86_32 computes the 32-bit x86 variant of MurmurHash3. It is
// not used by any sketch's row derivation (that is FastHash64's job) but is
// exposed because its bit-exact behavior is part of this package's contract.
func MurmurHash3_x86_32(data []byte, seed uint32) uint32 {
	const (
		c1 = 0xcc9e2d51
		c2 = 0x1b873593
	)

	h := seed
	n := len(data) / 4

	for i := 0; i < n; i++ {
		k := binary.LittleEndian.Uint32(data[i*4:])
		k *= c1
		k = rotl32(k, 15)
		k *= c2

		h ^= k
		h = rotl32(h, 13)
		h = h*5 + 0xe6546b64
	}

	tail := data[n*4:]
	var k uint32
	switch len(tail) {
	case 3:
		k ^= uint32(tail[2]) << 16
		fallthrough
	case 2:
		k ^= uint32(tail[1]) << 8
		fallthrough
	case 1:
		k ^= uint32(tail[0])
		k *= c1
		k = rotl32(k, 15)
		k *= c2
		h ^= k
	}

	h ^= uint32(len(data))
	h = fmix32(h)

	return h
}

func rotl32(x uint32, r uint) uint32 {
	return (x << r) | (x >> (32 - r))
}

// fmix32 is MurmurHash3's 32-bit finalizer.
func fmix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
