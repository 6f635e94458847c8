package cms

import (
	"encoding/binary"
	"fmt"

	"sketchkit.dev/sketchkit/internal/prng"
	"sketchkit.dev/sketchkit/internal/wire"
	"sketchkit.dev/sketchkit/sketcherr"
)

// Wire format (little-endian), before the shared checksum trailer:
//
//	Magic(4) Version(2) Variant(1) reserved(1) Width(4) Depth(4) Seed(8)
//	NumReserved(8) MaxCount(8) NAdded(8) NRecords(8)
//
// followed by width*depth*elemSize(variant) matrix bytes, row-major
// [depth][width], then an 8-byte xxhash64 checksum of everything before it.
const (
	magic      = "CMS2"
	version    = 1
	headerSize = 4 + 2 + 1 + 1 + 4 + 4 + 8 + 8 + 8 + 8 + 8
)

// Serialize encodes s into its persisted byte form, including the trailing
// integrity checksum.
func (s *Sketch) Serialize() []byte {
	buf := make([]byte, headerSize+len(s.matrix))
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], version)
	buf[6] = byte(s.cfg.Variant)
	buf[7] = 0
	binary.LittleEndian.PutUint32(buf[8:12], s.cfg.Width)
	binary.LittleEndian.PutUint32(buf[12:16], s.cfg.Depth)
	binary.LittleEndian.PutUint64(buf[16:24], s.cfg.Seed)
	binary.LittleEndian.PutUint64(buf[24:32], s.cfg.NumReserved)
	binary.LittleEndian.PutUint64(buf[32:40], s.cfg.MaxCount)
	binary.LittleEndian.PutUint64(buf[40:48], s.nAdded)
	binary.LittleEndian.PutUint64(buf[48:56], s.nRecords)
	copy(buf[headerSize:], s.matrix)

	return wire.AppendChecksum(buf)
}

// Deserialize reconstructs a Sketch from bytes produced by Serialize.
func Deserialize(data []byte) (*Sketch, error) {
	payload, err := wire.SplitChecksum(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sketcherr.ErrFormat, err)
	}
	if len(payload) < headerSize {
		return nil, fmt.Errorf("%w: cms payload too short (%d bytes)", sketcherr.ErrFormat, len(payload))
	}
	if string(payload[0:4]) != magic {
		return nil, fmt.Errorf("%w: cms: bad magic %q", sketcherr.ErrFormat, payload[0:4])
	}
	if got := binary.LittleEndian.Uint16(payload[4:6]); got != version {
		return nil, fmt.Errorf("%w: cms: unsupported version %d", sketcherr.ErrFormat, got)
	}

	cfg := Config{
		Variant:     Variant(payload[6]),
		Width:       binary.LittleEndian.Uint32(payload[8:12]),
		Depth:       binary.LittleEndian.Uint32(payload[12:16]),
		Seed:        binary.LittleEndian.Uint64(payload[16:24]),
		NumReserved: binary.LittleEndian.Uint64(payload[24:32]),
		MaxCount:    binary.LittleEndian.Uint64(payload[32:40]),
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: cms: %v", sketcherr.ErrFormat, err)
	}

	wantLen := headerSize + int(uint64(cfg.Width)*uint64(cfg.Depth)*uint64(cfg.Variant.elemSize()))
	if len(payload) != wantLen {
		return nil, fmt.Errorf("%w: cms: declared dimensions imply %d bytes, got %d", sketcherr.ErrFormat, wantLen, len(payload))
	}

	s := &Sketch{
		cfg:      cfg,
		nAdded:   binary.LittleEndian.Uint64(payload[40:48]),
		nRecords: binary.LittleEndian.Uint64(payload[48:56]),
	}
	s.matrix = make([]byte, wantLen-headerSize)
	copy(s.matrix, payload[headerSize:])

	if cfg.Variant.isLog() {
		x, err := deriveBaseX(cfg.NumReserved, cfg.MaxCount, cfg.Variant.storageMax())
		if err != nil {
			return nil, err
		}
		s.baseX = x
		s.pr = prng.New(cfg.Seed)
	}

	return s, nil
}
