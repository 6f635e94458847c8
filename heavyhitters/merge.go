package heavyhitters

import (
	"bytes"
	"fmt"

	"sketchkit.dev/sketchkit/sketcherr"
)

// Merge folds other into s. Requires identical Config, including phi (per
// spec.md section 9's Open Questions resolution: phi equality is required,
// not just the receiver's value). For each cell position, matching keys
// have their counters summed; otherwise the cell with the larger counter
// is kept and the smaller counter is subtracted from it -- the Topkapi
// merge rule from original_source/sketchnu's `_merge`.
func (s *Sketch) Merge(other *Sketch) error {
	if s.cfg != other.cfg {
		return fmt.Errorf("%w: heavyhitters.Merge: config mismatch", sketcherr.ErrIncompatibleSketch)
	}

	for i := uint32(0); i < s.cfg.Depth; i++ {
		for j := uint32(0); j < s.cfg.Width; j++ {
			a := s.getCell(i, j)
			b := other.getCell(i, j)

			switch {
			case a.counter == 0 && b.counter == 0:
				continue
			case a.counter == 0:
				s.setCellKey(i, j, b.key)
				s.setCellCounter(i, j, b.counter)
			case b.counter == 0:
				// a already in place.
			case int(a.length) == int(b.length) && bytes.Equal(a.key, b.key):
				sum := a.counter + b.counter
				if sum < a.counter { // overflow guard
					sum = ^uint32(0)
				}
				s.setCellCounter(i, j, sum)
			case a.counter >= b.counter:
				s.setCellCounter(i, j, a.counter-b.counter)
			default:
				s.setCellKey(i, j, b.key)
				s.setCellCounter(i, j, b.counter-a.counter)
			}
		}
	}

	s.nAdded += other.nAdded
	s.nRecords += other.nRecords
	return nil
}
