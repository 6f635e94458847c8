package hll

import (
	"encoding/binary"
	"fmt"

	"sketchkit.dev/sketchkit/internal/wire"
	"sketchkit.dev/sketchkit/sketcherr"
)

// Wire format (little-endian), before the shared checksum trailer:
//
//	+-------+---------+-----+----------+----------+----------+------------------+
//	| Magic | Version |  P  | reserved |   Seed   |  NAdded  |    NRecords      | ...
//	+-------+---------+-----+----------+----------+----------+------------------+
//	   4B       2B      1B      1B         8B          8B            8B
//
// followed by len(registers) = 2^P register bytes, then an 8-byte xxhash64
// checksum of everything before it (internal/wire.AppendChecksum).
const (
	magic       = "HLL2"
	version     = 1
	headerSize  = 4 + 2 + 1 + 1 + 8 + 8 + 8
	fixedFields = headerSize
)

// Serialize encodes h into its persisted byte form, including the trailing
// integrity checksum.
func (h *HLL) Serialize() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buf := make([]byte, headerSize+len(h.registers))
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], version)
	buf[6] = h.cfg.P
	buf[7] = 0
	binary.LittleEndian.PutUint64(buf[8:16], h.cfg.Seed)
	binary.LittleEndian.PutUint64(buf[16:24], h.nAdded)
	binary.LittleEndian.PutUint64(buf[24:32], h.nRecords)
	copy(buf[fixedFields:], h.registers)

	return wire.AppendChecksum(buf)
}

// Deserialize reconstructs an HLL from bytes produced by Serialize.
func Deserialize(data []byte) (*HLL, error) {
	payload, err := wire.SplitChecksum(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sketcherr.ErrFormat, err)
	}
	if len(payload) < headerSize {
		return nil, fmt.Errorf("%w: hll payload too short (%d bytes)", sketcherr.ErrFormat, len(payload))
	}
	if string(payload[0:4]) != magic {
		return nil, fmt.Errorf("%w: hll: bad magic %q", sketcherr.ErrFormat, payload[0:4])
	}
	if got := binary.LittleEndian.Uint16(payload[4:6]); got != version {
		return nil, fmt.Errorf("%w: hll: unsupported version %d", sketcherr.ErrFormat, got)
	}

	p := payload[6]
	cfg := Config{
		P:    p,
		Seed: binary.LittleEndian.Uint64(payload[8:16]),
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: hll: %v", sketcherr.ErrFormat, err)
	}

	wantLen := fixedFields + int(uint64(1)<<p)
	if len(payload) != wantLen {
		return nil, fmt.Errorf("%w: hll: declared p=%d implies %d bytes, got %d", sketcherr.ErrFormat, p, wantLen, len(payload))
	}

	h := &HLL{
		cfg:      cfg,
		nAdded:   binary.LittleEndian.Uint64(payload[16:24]),
		nRecords: binary.LittleEndian.Uint64(payload[24:32]),
	}
	h.registers = make([]byte, uint64(1)<<p)
	copy(h.registers, payload[fixedFields:])
	return h, nil
}
