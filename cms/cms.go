// Package cms implements the Count-Min Sketch with Conservative Update, in
// three counter-width variants sharing one matrix abstraction: Linear
// (32-bit exact-until-overflow counters), Log16, and Log8 (16- and 8-bit
// approximate counters that trade a little accuracy at high counts for a
// much smaller footprint).
//
// This generalizes the teacher's internal/limite/cms/cms.go, which only
// ever stored fixed uint32 counters: the zero-copy byte-backed matrix, the
// two-pass conservative-update algorithm, and the magic/version header
// layout all come from there. The three counter widths are modeled as a
// tagged variant rather than three separate types sharing an interface --
// one enum field picked at construction, matched once per hot-path call --
// since the difference between variants is entirely in how a cell is
// encoded and decoded, not in the conservative-update control flow itself.
package cms

import (
	"encoding/binary"
	"fmt"
	"math"

	"sketchkit.dev/sketchkit/hash"
	"sketchkit.dev/sketchkit/internal/prng"
	"sketchkit.dev/sketchkit/sketcherr"
)

// Variant selects a Count-Min Sketch's counter width and encoding.
type Variant uint8

const (
	// Linear stores exact 32-bit counters, saturating at 2^32-1.
	Linear Variant = iota
	// Log16 stores 16-bit approximate counters.
	Log16
	// Log8 stores 8-bit approximate counters.
	Log8
)

func (v Variant) String() string {
	switch v {
	case Linear:
		return "linear"
	case Log16:
		return "log16"
	case Log8:
		return "log8"
	default:
		return fmt.Sprintf("cms.Variant(%d)", uint8(v))
	}
}

func (v Variant) elemSize() int {
	switch v {
	case Linear:
		return 4
	case Log16:
		return 2
	case Log8:
		return 1
	default:
		return 0
	}
}

func (v Variant) storageMax() uint64 {
	switch v {
	case Linear:
		return math.MaxUint32
	case Log16:
		return math.MaxUint16
	case Log8:
		return math.MaxUint8
	default:
		return 0
	}
}

func (v Variant) isLog() bool { return v == Log8 || v == Log16 }

// Config is a Count-Min Sketch's immutable construction parameters. Merge
// requires every field to match exactly.
type Config struct {
	Variant     Variant
	Width       uint32
	Depth       uint32 // default 8, per spec.md section 3.3
	Seed        uint64
	MaxCount    uint64 // log variants only
	NumReserved uint64 // log variants only
}

// DefaultConfig fills in the depth and, for log variants, the
// max_count/num_reserved defaults from spec.md section 3.3: log8 defaults
// to num_reserved=15, log16 to num_reserved=1023, both with
// max_count=2^32-1 (the point at which the approximate counter's real-count
// estimate saturates, independent of the much smaller raw storage max each
// width actually has).
func DefaultConfig(variant Variant, width uint32) Config {
	cfg := Config{Variant: variant, Width: width, Depth: 8, Seed: 0}
	switch variant {
	case Log8:
		cfg.NumReserved = 15
		cfg.MaxCount = math.MaxUint32
	case Log16:
		cfg.NumReserved = 1023
		cfg.MaxCount = math.MaxUint32
	}
	return cfg
}

func (c Config) validate() error {
	if c.Width == 0 {
		return fmt.Errorf("%w: cms: width must be > 0", sketcherr.ErrConfig)
	}
	if c.Depth == 0 {
		return fmt.Errorf("%w: cms: depth must be > 0", sketcherr.ErrConfig)
	}
	switch c.Variant {
	case Linear, Log16, Log8:
	default:
		return fmt.Errorf("%w: cms: unrecognized variant %d", sketcherr.ErrConfig, c.Variant)
	}
	if c.Variant.isLog() {
		max := c.Variant.storageMax()
		if c.NumReserved >= max {
			return fmt.Errorf("%w: cms: num_reserved=%d >= storage max %d for %s", sketcherr.ErrConfig, c.NumReserved, max, c.Variant)
		}
		if c.MaxCount <= c.NumReserved {
			return fmt.Errorf("%w: cms: max_count=%d must exceed num_reserved=%d", sketcherr.ErrConfig, c.MaxCount, c.NumReserved)
		}
	}
	return nil
}

// Sketch is a Count-Min Sketch over one of the three counter-width
// variants. A fresh Sketch's matrix is entirely zeroed.
type Sketch struct {
	cfg Config

	matrix []byte // depth*width*elemSize bytes, row-major

	nAdded   uint64
	nRecords uint64

	saturated       bool
	saturationCount uint64

	baseX float64      // log variants only, derived at construction
	pr    *prng.Source // log variants only
}

// New builds an empty Count-Min Sketch.
func New(cfg Config) (*Sketch, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Sketch{
		cfg:    cfg,
		matrix: make([]byte, uint64(cfg.Width)*uint64(cfg.Depth)*uint64(cfg.Variant.elemSize())),
	}

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

// Config returns the sketch's construction parameters.
func (s *Sketch) Config() Config { return s.cfg }

// Saturated reports whether any counter has ever been capped at its storage
// max: for Linear, an add or merge whose result would have exceeded 2^32-1;
// for the log variants, a counter reaching its storage max, or a merge whose
// decoded sum reached max_count.
func (s *Sketch) Saturated() bool { return s.saturated }

// SaturationCount returns how many times a cell has been capped as
// described for Saturated since construction. This is a SaturationNotice
// per spec.md section 7:
// observable, never an error.
func (s *Sketch) SaturationCount() uint64 { return s.saturationCount }

func (s *Sketch) columnFor(key []byte, row uint32) uint32 {
	h := hash.FastHash64(key, s.cfg.Seed+uint64(row))
	return uint32(h % uint64(s.cfg.Width))
}

func (s *Sketch) offset(row, col uint32) uint64 {
	return (uint64(row)*uint64(s.cfg.Width) + uint64(col)) * uint64(s.cfg.Variant.elemSize())
}

func (s *Sketch) rawGet(row, col uint32) uint64 {
	off := s.offset(row, col)
	switch s.cfg.Variant {
	case Linear:
		return uint64(binary.LittleEndian.Uint32(s.matrix[off:]))
	case Log16:
		return uint64(binary.LittleEndian.Uint16(s.matrix[off:]))
	default:
		return uint64(s.matrix[off])
	}
}

func (s *Sketch) rawSet(row, col uint32, v uint64) {
	off := s.offset(row, col)
	switch s.cfg.Variant {
	case Linear:
		binary.LittleEndian.PutUint32(s.matrix[off:], uint32(v))
	case Log16:
		binary.LittleEndian.PutUint16(s.matrix[off:], uint16(v))
	default:
		s.matrix[off] = byte(v)
	}
}

// Add increments key's estimated frequency by one.
func (s *Sketch) Add(key []byte) { s.AddN(key, 1) }

// AddN increments key's estimated frequency by count, using Conservative
// Update: the minimum raw counter across the d rows is found first, and
// only cells at that minimum are candidates for modification. This is the
// same two-pass min-then-raise shape as the teacher's CMS.Incr,
// generalized from a fixed uint32 matrix to all three widths. A count
// above one ends where count unit adds would: Linear raises every row
// below min+count to min+count in one pass, and the log variants repeat
// the unit step count times, recomputing the minimum after each step.
//
// The minimum (and the candidate test) operate on the raw stored counter,
// not the decoded real-count estimate: for the log variants the raw
// integer *is* the approximate counter being incremented, per the
// glossary's "approximate counter" definition -- decode is only needed to
// turn a raw counter into a real-count estimate, which Query and Merge do,
// not Add.
func (s *Sketch) AddN(key []byte, count uint64) {
	if count == 0 {
		return
	}

	depth := s.cfg.Depth
	cols := make([]uint32, depth)
	raws := make([]uint64, depth)
	min := uint64(math.MaxUint64)

	for i := uint32(0); i < depth; i++ {
		cols[i] = s.columnFor(key, i)
		raws[i] = s.rawGet(i, cols[i])
		if raws[i] < min {
			min = raws[i]
		}
	}

	if s.cfg.Variant == Linear {
		target := min + count
		max := s.cfg.Variant.storageMax()
		if target > max || target < min { // target < min guards count's own overflow
			target = max
			s.saturated = true
			s.saturationCount++
		}
		for i := uint32(0); i < depth; i++ {
			if raws[i] < target {
				s.rawSet(i, cols[i], target)
			}
		}
	} else {
		max := s.cfg.Variant.storageMax()
		for step := uint64(0); step < count && min < max; step++ {
			for i := uint32(0); i < depth; i++ {
				if raws[i] != min {
					continue
				}
				before := raws[i]
				c := s.applyLogIncrements(before, 1)
				if c == max && before != max {
					s.saturated = true
					s.saturationCount++
				}
				raws[i] = c
				s.rawSet(i, cols[i], c)
			}
			min = uint64(math.MaxUint64)
			for _, r := range raws {
				if r < min {
					min = r
				}
			}
		}
	}

	s.nAdded += count
}

// applyLogIncrements performs count logical increments of the log-counter
// algorithm in spec.md section 4.3 starting from raw value c.
func (s *Sketch) applyLogIncrements(c, count uint64) uint64 {
	max := s.cfg.Variant.storageMax()
	for step := uint64(0); step < count; step++ {
		if c >= max {
			break
		}
		if c <= s.cfg.NumReserved {
			c++
			continue
		}
		p := math.Pow(s.baseX, -(float64(c) - float64(s.cfg.NumReserved)))
		if s.pr.Float64() < p {
			c++
		}
	}
	return c
}

// Query returns the estimated frequency of key: the minimum decoded
// counter value across the d rows.
func (s *Sketch) Query(key []byte) uint64 {
	depth := s.cfg.Depth
	min := uint64(math.MaxUint64)
	for i := uint32(0); i < depth; i++ {
		col := s.columnFor(key, i)
		v := s.decode(s.rawGet(i, col))
		if v < min {
			min = v
		}
	}
	return min
}

// Update adds every key in input. Accepted shapes are [][]byte (each
// element added with count 1) and map[string]uint64 (each key added with
// its mapped count).
func (s *Sketch) Update(input any) error {
	switch v := input.(type) {
	case [][]byte:
		for _, k := range v {
			s.Add(k)
		}
	case map[string]uint64:
		for k, count := range v {
			s.AddN([]byte(k), count)
		}
	default:
		return fmt.Errorf("%w: cms.Update: unsupported input type %T", sketcherr.ErrConfig, input)
	}
	return nil
}

// NAdded returns the total count of keys added, including duplicates and
// per-key counts from Update's mapping form.
func (s *Sketch) NAdded() uint64 { return s.nAdded }

// NRecords returns the externally-set record counter.
func (s *Sketch) NRecords() uint64 { return s.nRecords }

// AddRecord increments the record counter by one.
func (s *Sketch) AddRecord() { s.nRecords++ }

// UpdateRecords increments the record counter by n.
func (s *Sketch) UpdateRecords(n uint64) { s.nRecords += n }
