// Package hll implements HyperLogLog++, a cardinality estimator that tracks
// the approximate number of distinct byte-string keys seen in a stream
// using a fixed m = 2^p bytes of memory regardless of how many keys are
// added.
//
// Unlike the teacher's HyperLogLog (internal/pds/hyperloglog), which keeps
// a sparse encoding for low-cardinality sets and promotes to dense past a
// threshold, this implementation is always dense: sparse HyperLogLog
// registers are an explicit non-goal here. What survives from the teacher
// is the separation of a small fixed header from the register array, the
// double-checked-locking cache for the (expensive) cardinality estimate,
// and the 8-way loop unrolling in the register-merge hot path.
package hll

import (
	"fmt"
	"math"
	"math/bits"
	"sync"

	"sketchkit.dev/sketchkit/hash"
	"sketchkit.dev/sketchkit/persist"
	"sketchkit.dev/sketchkit/sketcherr"
)

// Config is a HyperLogLog's immutable construction parameters. Merge
// requires both fields to match exactly.
type Config struct {
	// P is the precision: registers = 2^P. Must be in [7, 16].
	P uint8
	// Seed is mixed into every FastHash64 call this sketch makes.
	Seed uint64
}

func (c Config) validate() error {
	if c.P < minP || c.P > maxP {
		return fmt.Errorf("%w: p=%d out of range [%d,%d]", sketcherr.ErrConfig, c.P, minP, maxP)
	}
	return nil
}

// HLL is a HyperLogLog++ cardinality sketch.
type HLL struct {
	cfg Config

	mu        sync.RWMutex
	registers []byte // len 2^P, one byte per register

	nAdded   uint64
	nRecords uint64

	cacheValid bool
	cached     float64
}

// New builds an empty HyperLogLog with the given configuration.
func New(cfg Config) (*HLL, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &HLL{
		cfg:       cfg,
		registers: make([]byte, uint64(1)<<cfg.P),
	}, nil
}

// Add incorporates key into the estimate.
func (h *HLL) Add(key []byte) {
	idx, rank := indexAndRank(key, h.cfg.Seed, h.cfg.P)

	h.mu.Lock()
	if rank > h.registers[idx] {
		h.registers[idx] = rank
		h.cacheValid = false
	}
	h.nAdded++
	h.mu.Unlock()
}

// indexAndRank implements the add-time hash split from spec section 4.2:
// h = fasthash64(key, seed); idx = h >> (64-p); w = h<<p | (1<<(p-1));
// rank = count_leading_zeros(w) + 1.
func indexAndRank(key []byte, seed uint64, p uint8) (idx uint64, rank byte) {
	h := hash.FastHash64(key, seed)
	idx = h >> (64 - p)
	w := (h << p) | (uint64(1) << (p - 1))
	rank = byte(bits.LeadingZeros64(w)) + 1
	return idx, rank
}

// Update adds every key in input. Accepted shapes are [][]byte (each
// element added once) and map[string]uint64 (each key added once,
// regardless of its mapped count -- per spec.md's "Open Questions"
// resolution, HLL credits n_added by 1 per distinct call and ignores
// multiplicities for cardinality accounting).
func (h *HLL) Update(input any) error {
	switch v := input.(type) {
	case [][]byte:
		for _, k := range v {
			h.Add(k)
		}
	case map[string]uint64:
		for k := range v {
			h.Add([]byte(k))
		}
	default:
		return fmt.Errorf("%w: hll.Update: unsupported input type %T", sketcherr.ErrConfig, input)
	}
	return nil
}

// Query returns the current cardinality estimate. The expensive
// recomputation is cached with double-checked locking so that repeated
// queries between adds are cheap, the same pattern the teacher's HLL.Count
// uses.
func (h *HLL) Query() float64 {
	h.mu.RLock()
	if h.cacheValid {
		v := h.cached
		h.mu.RUnlock()
		return v
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cacheValid {
		return h.cached
	}

	v := h.estimate()
	h.cached = v
	h.cacheValid = true
	return v
}

// estimate computes the raw HLL estimate, applies the linear-counting
// fallback for sparsely-populated register sets, and otherwise
// bias-corrects the raw estimate by k-NN interpolation on the per-p tables
// when it falls inside the correction region. Caller must hold h.mu.
func (h *HLL) estimate() float64 {
	m := float64(len(h.registers))

	var sum float64
	var zeros int
	for _, r := range h.registers {
		sum += math.Ldexp(1, -int(r))
		if r == 0 {
			zeros++
		}
	}

	t := &pTables[h.cfg.P]
	e := t.alpha * m * m / sum

	if zeros > 0 && e <= t.linearThreshold {
		return m * math.Log(m/float64(zeros))
	}

	if e <= 5*m {
		bias := knnBias(t, e, 6)
		return e - bias
	}
	return e
}

// Merge folds other into h. Registers become element-wise max; n_added and
// n_records sum. Requires identical Config.
func (h *HLL) Merge(other *HLL) error {
	if h.cfg != other.cfg {
		return fmt.Errorf("%w: hll.Merge: config mismatch", sketcherr.ErrIncompatibleSketch)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	if mergeMax(h.registers, other.registers) {
		h.cacheValid = false
	}
	h.nAdded += other.nAdded
	h.nRecords += other.nRecords
	return nil
}

// mergeMax applies dst[i] = max(dst[i], src[i]) across the full register
// array, unrolled by 8 to mirror the teacher's MergeInto hot path.
func mergeMax(dst, src []byte) bool {
	changed := false
	n := len(dst) - len(dst)%8
	for i := 0; i < n; i += 8 {
		for j := 0; j < 8; j++ {
			if src[i+j] > dst[i+j] {
				dst[i+j] = src[i+j]
				changed = true
			}
		}
	}
	for i := n; i < len(dst); i++ {
		if src[i] > dst[i] {
			dst[i] = src[i]
			changed = true
		}
	}
	return changed
}

// NAdded returns the total number of Add calls (including duplicates).
func (h *HLL) NAdded() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nAdded
}

// NRecords returns the externally-set record counter.
func (h *HLL) NRecords() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nRecords
}

// AddRecord increments the record counter by one.
func (h *HLL) AddRecord() { h.UpdateRecords(1) }

// UpdateRecords increments the record counter by n.
func (h *HLL) UpdateRecords(n uint64) {
	h.mu.Lock()
	h.nRecords += n
	h.mu.Unlock()
}

// Config returns the sketch's construction parameters.
func (h *HLL) Config() Config { return h.cfg }

// Registers returns a copy of the register array, chiefly for tests.
func (h *HLL) Registers() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]byte, len(h.registers))
	copy(out, h.registers)
	return out
}

// Save serializes h and writes it to path.
func (h *HLL) Save(path string, opts ...persist.Option) error {
	return persist.Save(path, h.Serialize(), opts...)
}

// LoadFile reads an HLL previously written with Save.
func LoadFile(path string) (*HLL, error) {
	data, err := persist.Load(path)
	if err != nil {
		return nil, err
	}
	return Deserialize(data)
}
