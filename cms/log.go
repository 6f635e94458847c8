package cms

import (
	"fmt"
	"math"

	"sketchkit.dev/sketchkit/sketcherr"
)

// deriveBaseX solves for the real-valued base x > 1 such that encoding
// num_reserved + C_max represents max_count, where C_max is the number of
// raw counter values available beyond the reserved linear region. This is
// spec.md section 4.3's "derivation of base x": bisection on x in (1, 2]
// against f(x) = (x^C_max - 1)/(x - 1) + num_reserved - max_count, which is
// monotonically increasing in x (a larger base reaches max_count with
// fewer raw values), so bisection converges to the unique root.
func deriveBaseX(numReserved, maxCount, storageMax uint64) (float64, error) {
	if storageMax <= numReserved {
		return 0, fmt.Errorf("%w: cms: storage max %d <= num_reserved %d", sketcherr.ErrConfig, storageMax, numReserved)
	}
	cMax := float64(storageMax - numReserved)
	target := float64(maxCount - numReserved)

	f := func(x float64) float64 {
		if x <= 1+1e-12 {
			return cMax - target // limit of (x^cMax-1)/(x-1) as x->1 is cMax
		}
		return (math.Pow(x, cMax)-1)/(x-1) - target
	}

	lo, hi := 1.0+1e-12, 2.0
	if f(hi) < 0 {
		// Even x==2 cannot reach max_count within C_max raw values, so no
		// root lies in (1,2]. The smallest meaningful base is returned; the
		// top raw value then decodes to less than max_count.
		return 1 + 1e-9, nil
	}

	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if f(mid) < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}

// decode maps a raw stored counter to its real-count estimate. For Linear,
// the raw value already is the count. For the log variants, c <= num_reserved
// decodes linearly; beyond that it follows the approximate-counter formula
// from spec.md section 3.3.
func (s *Sketch) decode(raw uint64) uint64 {
	if s.cfg.Variant == Linear || raw <= s.cfg.NumReserved {
		return raw
	}
	x := s.baseX
	v := (math.Pow(x, float64(raw-s.cfg.NumReserved)) - 1) / (x - 1)
	return uint64(math.Round(v)) + s.cfg.NumReserved
}

// encode maps a real count back to the raw counter value whose decoded
// estimate is nearest to it, rounding ties to even. Used by Merge to
// re-encode the sum of two decoded log-counter values.
func (s *Sketch) encode(v uint64) uint64 {
	if v <= s.cfg.NumReserved {
		return v
	}
	x := s.baseX
	arg := float64(v-s.cfg.NumReserved)*(x-1) + 1
	lo := s.cfg.NumReserved + uint64(math.Floor(math.Log(arg)/math.Log(x)))
	dist := func(c uint64) uint64 {
		d := s.decode(c)
		if d > v {
			return d - v
		}
		return v - d
	}
	raw := lo
	if dLo, dHi := dist(lo), dist(lo+1); dHi < dLo || (dHi == dLo && (lo+1)%2 == 0) {
		raw = lo + 1
	}
	if max := s.cfg.Variant.storageMax(); raw > max {
		raw = max
	}
	return raw
}
