// Package heavyhitters implements Topkapi, the Mandal et al. 2018 algorithm
// for parallel top-k / phi-heavy-hitter estimation over a byte-key stream.
//
// Each of the d*w grid cells holds a single (key, length, counter) triple
// instead of a plain counter, so the sketch can report *which* keys are
// frequent, not just how frequent an already-known key is. The add/merge
// rules are ported directly from original_source/sketchnu/heavyhitters.py's
// `_add`/`_merge` (Numba-jitted loops over three parallel numpy arrays
// there; here, one byte-backed matrix of fixed-size cells, in the teacher's
// zero-copy style).
package heavyhitters

import (
	"bytes"
	"fmt"
	"sort"

	"sketchkit.dev/sketchkit/hash"
	"sketchkit.dev/sketchkit/sketcherr"
)

// Config is a Heavy-Hitters sketch's immutable construction parameters.
// Merge requires every field to match exactly.
type Config struct {
	Width     uint32
	Depth     uint32 // default 4
	MaxKeyLen uint8
	Phi       float64 // default 1/Width
	Seed      uint64
}

// DefaultConfig fills in depth=4 and phi=1/width per spec.md section 3.4.
func DefaultConfig(width uint32, maxKeyLen uint8) Config {
	return Config{
		Width:     width,
		Depth:     4,
		MaxKeyLen: maxKeyLen,
		Phi:       1.0 / float64(width),
		Seed:      0,
	}
}

func (c Config) validate() error {
	if c.Width == 0 {
		return fmt.Errorf("%w: heavyhitters: width must be > 0", sketcherr.ErrConfig)
	}
	if c.Depth == 0 {
		return fmt.Errorf("%w: heavyhitters: depth must be > 0", sketcherr.ErrConfig)
	}
	if c.MaxKeyLen == 0 {
		return fmt.Errorf("%w: heavyhitters: max_key_len must be > 0", sketcherr.ErrConfig)
	}
	if c.Phi <= 0 || c.Phi > 1 {
		return fmt.Errorf("%w: heavyhitters: phi=%v must be in (0,1]", sketcherr.ErrConfig, c.Phi)
	}
	return nil
}

const counterSize = 4 // uint32

func (c Config) cellSize() int { return int(c.MaxKeyLen) + 1 + counterSize }

// Sketch is a Topkapi Heavy-Hitters sketch.
type Sketch struct {
	cfg Config

	matrix []byte // depth*width*cellSize bytes, row-major

	nAdded   uint64
	nRecords uint64
}

// New builds an empty Heavy-Hitters sketch.
func New(cfg Config) (*Sketch, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Sketch{
		cfg:    cfg,
		matrix: make([]byte, uint64(cfg.Width)*uint64(cfg.Depth)*uint64(cfg.cellSize())),
	}, nil
}

// Config returns the sketch's construction parameters.
func (s *Sketch) Config() Config { return s.cfg }

func (s *Sketch) columnFor(key []byte, row uint32) uint32 {
	h := hash.FastHash64(key, s.cfg.Seed+uint64(row))
	return uint32(h % uint64(s.cfg.Width))
}

func (s *Sketch) cellOffset(row, col uint32) uint64 {
	return (uint64(row)*uint64(s.cfg.Width) + uint64(col)) * uint64(s.cfg.cellSize())
}

// cell is a decoded view of one grid cell.
type cell struct {
	key     []byte // first length bytes of the key slot, may be empty
	length  uint8
	counter uint32
}

func (s *Sketch) getCell(row, col uint32) cell {
	off := s.cellOffset(row, col)
	maxLen := int(s.cfg.MaxKeyLen)
	length := s.matrix[off+uint64(maxLen)]
	return cell{
		key:     s.matrix[off : off+uint64(length)],
		length:  length,
		counter: le32(s.matrix[off+uint64(maxLen)+1:]),
	}
}

func (s *Sketch) setCellKey(row, col uint32, key []byte) {
	off := s.cellOffset(row, col)
	maxLen := int(s.cfg.MaxKeyLen)
	slot := s.matrix[off : off+uint64(maxLen)]
	clear(slot)
	copy(slot, key)
	s.matrix[off+uint64(maxLen)] = uint8(len(key))
}

func (s *Sketch) setCellCounter(row, col uint32, counter uint32) {
	off := s.cellOffset(row, col)
	maxLen := int(s.cfg.MaxKeyLen)
	putLE32(s.matrix[off+uint64(maxLen)+1:], counter)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Add incorporates key into the sketch with count 1.
func (s *Sketch) Add(key []byte) error { return s.AddN(key, 1) }

// AddN incorporates key with the given count, following spec.md section
// 4.4's per-row rule: a matching cell simply accumulates; a non-matching
// cell's counter is decremented, and if that decrement crosses zero, the
// cell's key is replaced and its counter becomes (count - previous_cnt) --
// the same single logical step original_source's `_add` performs, so a
// multi-count add behaves like that many repeated unit adds.
func (s *Sketch) AddN(key []byte, count uint32) error {
	if len(key) > int(s.cfg.MaxKeyLen) {
		return fmt.Errorf("%w: heavyhitters: key length %d exceeds max_key_len %d", sketcherr.ErrConfig, len(key), s.cfg.MaxKeyLen)
	}
	if count == 0 {
		return nil
	}

	for i := uint32(0); i < s.cfg.Depth; i++ {
		col := s.columnFor(key, i)
		c := s.getCell(i, col)

		if int(c.length) == len(key) && bytes.Equal(c.key, key) {
			next := c.counter + count
			if next < c.counter { // overflow guard
				next = ^uint32(0)
			}
			s.setCellCounter(i, col, next)
			continue
		}

		signed := int64(c.counter) - int64(count)
		if signed < 0 {
			s.setCellKey(i, col, key)
			s.setCellCounter(i, col, uint32(-signed))
		} else {
			s.setCellCounter(i, col, uint32(signed))
		}
	}

	s.nAdded += uint64(count)
	return nil
}

// AddNgram shingles key into overlapping byte n-grams and adds each one,
// supplementing spec.md with original_source/sketchnu's `_add_ngram`. Keys
// shorter than n are added whole.
func (s *Sketch) AddNgram(key []byte, n int) error {
	if n <= 0 || len(key) < n {
		return s.Add(key)
	}
	for i := 0; i+n <= len(key); i++ {
		if err := s.Add(key[i : i+n]); err != nil {
			return err
		}
	}
	return nil
}

// UpdateNgram applies AddNgram to every key.
func (s *Sketch) UpdateNgram(keys [][]byte, n int) error {
	for _, k := range keys {
		if err := s.AddNgram(k, n); err != nil {
			return err
		}
	}
	return nil
}

// Update adds every key in input. Accepted shapes are [][]byte (each
// element added with count 1) and map[string]uint32 (each key added with
// its mapped count).
func (s *Sketch) Update(input any) error {
	switch v := input.(type) {
	case [][]byte:
		for _, k := range v {
			if err := s.Add(k); err != nil {
				return err
			}
		}
	case map[string]uint32:
		for k, count := range v {
			if err := s.AddN([]byte(k), count); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: heavyhitters.Update: unsupported input type %T", sketcherr.ErrConfig, input)
	}
	return nil
}

// KeyCount is one entry of a Query result.
type KeyCount struct {
	Key   []byte
	Count uint32
}

// Query returns the estimated top-k keys by frequency. threshold, if > 0,
// is combined with phi*n_added via max(); otherwise phi*n_added alone is
// the cutoff. Ties are broken by lexicographic key order.
//
// Per spec.md section 4.4 step 1, the candidate set is built by scanning
// *every* d*w cell and taking the maximum counter per unique key across all
// of them -- not just row 0, which is the shortcut both the teacher's
// HeavyKeeper-derived candidate scan and the Python original actually take.
// See DESIGN.md for why this spec follows the costlier, more accurate
// scan.
func (s *Sketch) Query(k int, threshold float64) []KeyCount {
	best := make(map[string]uint32)

	for i := uint32(0); i < s.cfg.Depth; i++ {
		for j := uint32(0); j < s.cfg.Width; j++ {
			c := s.getCell(i, j)
			if c.counter == 0 {
				continue // undefined key contents, treated as empty
			}
			keyStr := string(c.key)
			if c.counter > best[keyStr] {
				best[keyStr] = c.counter
			}
		}
	}

	cutoff := s.cfg.Phi * float64(s.nAdded)
	if threshold > 0 && threshold > cutoff {
		cutoff = threshold
	}

	results := make([]KeyCount, 0, len(best))
	for key, count := range best {
		if float64(count) >= cutoff {
			results = append(results, KeyCount{Key: []byte(key), Count: count})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return bytes.Compare(results[i].Key, results[j].Key) < 0
	})

	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// NAdded returns the total count of keys added.
func (s *Sketch) NAdded() uint64 { return s.nAdded }

// NRecords returns the externally-set record counter.
func (s *Sketch) NRecords() uint64 { return s.nRecords }

// AddRecord increments the record counter by one.
func (s *Sketch) AddRecord() { s.nRecords++ }

// UpdateRecords increments the record counter by n.
func (s *Sketch) UpdateRecords(n uint64) { s.nRecords += n }
