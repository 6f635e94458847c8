package hll

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
)

func TestNewRejectsOutOfRangeP(t *testing.T) {
	for _, p := range []uint8{0, 1, 6, 17, 255} {
		if _, err := New(Config{P: p, Seed: 0}); err == nil {
			t.Errorf("New with p=%d: expected ConfigError, got nil", p)
		}
	}
}

func TestAddIdempotent(t *testing.T) {
	h, err := New(Config{P: 10, Seed: 42})
	if err != nil {
		t.Fatal(err)
	}
	h.Add([]byte("repeat-me"))
	first := h.Registers()
	h.Add([]byte("repeat-me"))
	second := h.Registers()

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("register %d changed on repeated add: %d != %d", i, first[i], second[i])
		}
	}
}

func TestRegistersNeverDecrease(t *testing.T) {
	h, err := New(Config{P: 10, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewPCG(1, 2))
	prev := h.Registers()
	for i := 0; i < 5000; i++ {
		key := fmt.Appendf(nil, "key-%d", rng.Int64())
		h.Add(key)
		cur := h.Registers()
		for j := range cur {
			if cur[j] < prev[j] {
				t.Fatalf("register %d decreased: %d -> %d", j, prev[j], cur[j])
			}
		}
		prev = cur
	}
}

func TestMergeCommutative(t *testing.T) {
	a, _ := New(Config{P: 10, Seed: 7})
	b, _ := New(Config{P: 10, Seed: 7})

	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 1000; i++ {
		key := fmt.Appendf(nil, "a-%d", rng.Int64())
		a.Add(key)
	}
	for i := 0; i < 1000; i++ {
		key := fmt.Appendf(nil, "b-%d", rng.Int64())
		b.Add(key)
	}

	ab, _ := New(Config{P: 10, Seed: 7})
	ab.Merge(a)
	ab.Merge(b)

	ba, _ := New(Config{P: 10, Seed: 7})
	ba.Merge(b)
	ba.Merge(a)

	rab, rba := ab.Registers(), ba.Registers()
	for i := range rab {
		if rab[i] != rba[i] {
			t.Fatalf("merge not commutative at register %d: %d != %d", i, rab[i], rba[i])
		}
	}
}

func TestMergeRejectsMismatchedConfig(t *testing.T) {
	a, _ := New(Config{P: 10, Seed: 1})
	b, _ := New(Config{P: 11, Seed: 1})
	if err := a.Merge(b); err == nil {
		t.Fatal("expected IncompatibleSketch error for mismatched p")
	}
}

func TestQueryWithinStandardError(t *testing.T) {
	const p = 14
	const n = 10000

	h, err := New(Config{P: p, Seed: 99})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		h.Add(fmt.Appendf(nil, "distinct-key-%d", i))
	}

	est := h.Query()
	m := float64(uint64(1) << p)
	stdErr := 1.04 / math.Sqrt(m)

	// Allow a generous multiple of the theoretical standard error since
	// this is a single trial, not a repeated-trials confidence bound.
	tolerance := 6 * stdErr * n
	if math.Abs(est-n) > tolerance {
		t.Fatalf("estimate %.0f too far from true cardinality %d (tolerance %.0f)", est, n, tolerance)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	h, _ := New(Config{P: 12, Seed: 55})
	for i := 0; i < 500; i++ {
		h.Add(fmt.Appendf(nil, "rt-%d", i))
	}
	h.AddRecord()
	h.UpdateRecords(9)

	data := h.Serialize()
	loaded, err := Deserialize(data)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.Config() != h.Config() {
		t.Fatalf("config mismatch after round-trip")
	}
	if loaded.NAdded() != h.NAdded() {
		t.Fatalf("nAdded mismatch: %d != %d", loaded.NAdded(), h.NAdded())
	}
	if loaded.NRecords() != h.NRecords() {
		t.Fatalf("nRecords mismatch: %d != %d", loaded.NRecords(), h.NRecords())
	}

	orig, got := h.Registers(), loaded.Registers()
	for i := range orig {
		if orig[i] != got[i] {
			t.Fatalf("register %d mismatch after round-trip: %d != %d", i, orig[i], got[i])
		}
	}
}

func TestDeserializeRejectsBadMagic(t *testing.T) {
	h, _ := New(Config{P: 8, Seed: 1})
	data := h.Serialize()
	data[0] = 'X'
	if _, err := Deserialize(data); err == nil {
		t.Fatal("expected FormatError for corrupted magic")
	}
}

func TestDeserializeRejectsTruncatedData(t *testing.T) {
	h, _ := New(Config{P: 8, Seed: 1})
	data := h.Serialize()
	if _, err := Deserialize(data[:len(data)-10]); err == nil {
		t.Fatal("expected FormatError for truncated data")
	}
}

func BenchmarkAdd(b *testing.B) {
	h, _ := New(Config{P: 14, Seed: 0})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Add(fmt.Appendf(nil, "bench-%d", i))
	}
}

func BenchmarkQuery(b *testing.B) {
	h, _ := New(Config{P: 14, Seed: 0})
	for i := 0; i < 100000; i++ {
		h.Add(fmt.Appendf(nil, "bench-%d", i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.cacheValid = false
		h.Query()
	}
}
