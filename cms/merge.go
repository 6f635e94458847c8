package cms

import (
	"fmt"

	"sketchkit.dev/sketchkit/sketcherr"
)

// Merge folds other into s. Requires identical Config. Linear counters are
// combined with an element-wise saturating sum; log counters are decoded,
// summed as real counts, and re-encoded to the nearest raw value
// (round-to-nearest, ties to even), preserving monotonicity -- exactly the
// rule in spec.md section 4.3.
func (s *Sketch) Merge(other *Sketch) error {
	if s.cfg != other.cfg {
		return fmt.Errorf("%w: cms.Merge: config mismatch", sketcherr.ErrIncompatibleSketch)
	}

	depth, width := s.cfg.Depth, s.cfg.Width
	max := s.cfg.Variant.storageMax()

	for i := uint32(0); i < depth; i++ {
		for j := uint32(0); j < width; j++ {
			a := s.rawGet(i, j)
			b := other.rawGet(i, j)

			var merged uint64
			switch s.cfg.Variant {
			case Linear:
				sum := a + b
				if sum > max || sum < a { // sum < a guards uint64 wraparound
					sum = max
					s.saturated = true
					s.saturationCount++
				}
				merged = sum
			default:
				v1, v2 := s.decode(a), s.decode(b)
				v := v1 + v2
				switch {
				case v <= s.cfg.NumReserved:
					merged = v
				case v >= s.cfg.MaxCount:
					merged = max
					s.saturated = true
					s.saturationCount++
				default:
					merged = s.encode(v)
				}
			}

			s.rawSet(i, j, merged)
		}
	}

	s.nAdded += other.nAdded
	s.nRecords += other.nRecords
	return nil
}
