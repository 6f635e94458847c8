package engine

import "fmt"

// tournament reduces a slice of per-worker Sketches to one, merging
// pairwise in ceil(log2 W) rounds with the deterministic pairing
// (i, i+ceil(len/2)) at each round. Each round's merges run concurrently;
// an odd worker out at a given round carries forward unmerged to the next
// round rather than being dropped.
func tournament(workers []*Sketches, opts Options) (*Result, error) {
	cur := workers
	round := 0
	for len(cur) > 1 {
		round++
		half := (len(cur) + 1) / 2
		next := make([]*Sketches, half)

		type mergeErr struct {
			idx int
			err error
		}
		errs := make(chan mergeErr, half)
		done := make(chan struct{}, half)

		for i := 0; i < half; i++ {
			go func(i int) {
				defer func() { done <- struct{}{} }()
				j := i + half
				if j >= len(cur) {
					next[i] = cur[i]
					return
				}
				if err := mergePair(cur[i], cur[j]); err != nil {
					errs <- mergeErr{idx: i, err: err}
					return
				}
				next[i] = cur[i]
			}(i)
		}
		for i := 0; i < half; i++ {
			<-done
		}
		close(errs)
		if me, ok := <-errs; ok {
			return nil, fmt.Errorf("engine: merge round %d, pair %d: %w", round, me.idx, me.err)
		}

		opts.Logger.Debug("engine: merge round complete", "round", round, "remaining", len(next))
		cur = next
	}
	return cur[0], nil
}

func mergePair(a, b *Sketches) error {
	if a.CMS != nil && b.CMS != nil {
		if err := a.CMS.Merge(b.CMS); err != nil {
			return err
		}
	}
	if a.HH != nil && b.HH != nil {
		if err := a.HH.Merge(b.HH); err != nil {
			return err
		}
	}
	if a.HLL != nil && b.HLL != nil {
		if err := a.HLL.Merge(b.HLL); err != nil {
			return err
		}
	}
	return nil
}
