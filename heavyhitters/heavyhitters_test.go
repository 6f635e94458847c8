package heavyhitters

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cases := []Config{
		{Width: 0, Depth: 4, MaxKeyLen: 8, Phi: 0.1},
		{Width: 100, Depth: 0, MaxKeyLen: 8, Phi: 0.1},
		{Width: 100, Depth: 4, MaxKeyLen: 0, Phi: 0.1},
		{Width: 100, Depth: 4, MaxKeyLen: 8, Phi: 0},
		{Width: 100, Depth: 4, MaxKeyLen: 8, Phi: 1.5},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Errorf("case %d: expected ConfigError, got nil", i)
		}
	}
}

func TestEndToEndScenarioOne(t *testing.T) {
	// Stream [b"a"]*3 + [b"b"]; HH query(1) = [(b"a", 3)].
	cfg := DefaultConfig(16, 8)
	cfg.Depth = 4
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	s.Add([]byte("a"))
	s.Add([]byte("a"))
	s.Add([]byte("a"))
	s.Add([]byte("b"))

	got := s.Query(1, 0)
	if len(got) != 1 || string(got[0].Key) != "a" || got[0].Count != 3 {
		t.Fatalf("Query(1,0) = %+v, want [(a,3)]", got)
	}
}

func TestAddRejectsOversizedKey(t *testing.T) {
	cfg := DefaultConfig(16, 4)
	s, _ := New(cfg)
	if err := s.Add([]byte("way-too-long")); err == nil {
		t.Fatal("expected ConfigError for oversized key")
	}
}

func TestZipfTopKWithinTrueTop20(t *testing.T) {
	const vocab = 10000
	const n = 100000
	const w, d = 100, 4
	const phi = 0.01

	cfg := Config{Width: w, Depth: d, MaxKeyLen: 8, Phi: phi, Seed: 11}
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(1))
	zipf := rand.NewZipf(rng, 1.1, 1, vocab-1)

	truth := make(map[uint64]uint64)
	for i := 0; i < n; i++ {
		v := zipf.Uint64()
		key := fmt.Appendf(nil, "%08d", v)
		if err := s.Add(key); err != nil {
			t.Fatal(err)
		}
		truth[v]++
	}

	type kv struct {
		key   uint64
		count uint64
	}
	trueRanked := make([]kv, 0, len(truth))
	for k, c := range truth {
		trueRanked = append(trueRanked, kv{k, c})
	}
	sort.SliceStable(trueRanked, func(i, j int) bool { return trueRanked[i].count > trueRanked[j].count })
	if len(trueRanked) > 20 {
		trueRanked = trueRanked[:20]
	}
	trueTop20 := make(map[string]bool, len(trueRanked))
	for _, e := range trueRanked {
		trueTop20[fmt.Sprintf("%08d", e.key)] = true
	}

	got := s.Query(10, 0)
	for _, kc := range got {
		if !trueTop20[string(kc.Key)] {
			t.Errorf("reported top-10 key %q not in true top-20", kc.Key)
		}
	}
}

func TestMergeDoublesNAdded(t *testing.T) {
	cfg := Config{Width: 200, Depth: 4, MaxKeyLen: 8, Phi: 0.01, Seed: 3}
	a, _ := New(cfg)
	b, _ := New(cfg)

	for i := 0; i < 500; i++ {
		key := fmt.Appendf(nil, "k-%d", i%50)
		a.Add(key)
		b.Add(key)
	}

	before := a.NAdded()
	if err := a.Merge(b); err != nil {
		t.Fatal(err)
	}
	if a.NAdded() != 2*before {
		t.Fatalf("n_added after merge = %d, want %d", a.NAdded(), 2*before)
	}
}

func TestMergeRejectsPhiMismatch(t *testing.T) {
	a, _ := New(Config{Width: 100, Depth: 4, MaxKeyLen: 8, Phi: 0.01, Seed: 1})
	b, _ := New(Config{Width: 100, Depth: 4, MaxKeyLen: 8, Phi: 0.02, Seed: 1})
	if err := a.Merge(b); err == nil {
		t.Fatal("expected IncompatibleSketch for mismatched phi")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	cfg := DefaultConfig(64, 12)
	cfg.Seed = 9
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 40; i++ {
		s.Add(fmt.Appendf(nil, "rt-%d", i))
	}

	data := s.Serialize()
	loaded, err := Deserialize(data)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Config() != s.Config() {
		t.Fatal("config mismatch after round-trip")
	}
	if loaded.NAdded() != s.NAdded() {
		t.Fatal("n_added mismatch after round-trip")
	}

	want := s.Query(40, 0)
	got := loaded.Query(40, 0)
	if len(want) != len(got) {
		t.Fatalf("query length mismatch: %d != %d", len(want), len(got))
	}
	for i := range want {
		if string(want[i].Key) != string(got[i].Key) || want[i].Count != got[i].Count {
			t.Fatalf("query entry %d mismatch: %+v != %+v", i, want[i], got[i])
		}
	}
}

func TestAddNgram(t *testing.T) {
	cfg := DefaultConfig(64, 3)
	s, _ := New(cfg)
	if err := s.AddNgram([]byte("abcd"), 3); err != nil {
		t.Fatal(err)
	}
	// "abcd" with n=3 shingles into "abc" and "bcd".
	got := s.Query(10, 0)
	if len(got) == 0 {
		t.Fatal("expected at least one n-gram counted")
	}
}
