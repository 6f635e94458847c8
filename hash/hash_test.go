package hash

import "testing"

// Most of these tests assert the properties the rest of the module actually
// depends on: determinism, seed-sensitivity, and stable behavior across the
// 8-byte word boundary. FastHash32 additionally has a table of real
// smhasher-derived reference vectors (see TestFastHash32ReferenceVectors)
// since those are directly available and verified, unlike FastHash64's and
// MurmurHash3's bit patterns, for which no verified reference vector is
// available here — see DESIGN.md.

func TestFastHash64Deterministic(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("a"),
		[]byte("one_key"),
		[]byte("exactly8"),
		[]byte("nine bytes"),
		make([]byte, 63),
		make([]byte, 64),
		make([]byte, 65),
	}

	for _, data := range cases {
		a := FastHash64(data, 0)
		b := FastHash64(data, 0)
		if a != b {
			t.Fatalf("FastHash64(%q, 0) not deterministic: %x != %x", data, a, b)
		}
	}
}

func TestFastHash64SeedSensitivity(t *testing.T) {
	data := []byte("one_key")
	h0 := FastHash64(data, 0)
	h1 := FastHash64(data, 1)
	if h0 == h1 {
		t.Fatalf("FastHash64 produced the same value for different seeds")
	}
}

func TestFastHash64EmptyInput(t *testing.T) {
	h0 := FastHash64(nil, 0)
	h1 := FastHash64([]byte{}, 0)
	if h0 != h1 {
		t.Fatalf("FastHash64(nil, 0) != FastHash64([]byte{}, 0)")
	}
}

func TestFastHash64RowSeedsDistinct(t *testing.T) {
	// The CMS/HH row-derivation contract (row i uses seed+i) requires that
	// distinct rows land on distinct hash values for the overwhelming
	// majority of keys, or every row would collide identically.
	data := []byte("distinct-rows")
	seen := make(map[uint64]bool)
	for i := uint64(0); i < 8; i++ {
		h := FastHash64(data, 100+i)
		seen[h] = true
	}
	if len(seen) < 8 {
		t.Fatalf("row-seeded FastHash64 collided across 8 consecutive seeds: got %d distinct values", len(seen))
	}
}

func TestFastHash32Deterministic(t *testing.T) {
	data := []byte("one_key")
	a := FastHash32(data, 1)
	b := FastHash32(data, 1)
	if a != b {
		t.Fatalf("FastHash32 not deterministic")
	}
}

// TestFastHash32ReferenceVectors checks FastHash32 against values computed by
// the smhasher C++ fasthash32() (https://github.com/rurban/smhasher), the
// same reference the Python original's test suite
// (original_source/sketchnu/tests.py's test_fasthash) checks against.
func TestFastHash32ReferenceVectors(t *testing.T) {
	key := []byte("0123456789abcdef")

	cases := []struct {
		data []byte
		seed uint64
		want uint32
	}{
		{key, 0, 128551002},
		{key, 5, 571860520},
		{key[:15], 3, 4264631007},
		{key[:14], 4, 3611610185},
		{key[:13], 5, 2978977373},
		{key[:12], 6, 2071843509},
		{key[:11], 7, 3386775091},
		{key[:10], 8, 2472970926},
		{key[:9], 21, 1787443542},
		{key[:8], 22, 2970440548},
		{key[:7], 23, 3793135117},
		{key[:6], 24, 3662885582},
		{key[:5], 25, 2453668041},
		{key[:4], 26, 635486060},
		{key[:3], 27, 58999216},
		{key[:2], 28, 3486011618},
		{key[:1], 29, 3407281718},
		{[]byte("test"), 0, 2542785854},
		{[]byte("abc"), 1, 558486214},
		{[]byte("123"), 2, 3103508967},
	}

	for _, c := range cases {
		got := FastHash32(c.data, c.seed)
		if got != c.want {
			t.Errorf("FastHash32(%q, %d) = %d, want %d", c.data, c.seed, got, c.want)
		}
	}
}

func TestMurmurHash3x86_32Deterministic(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("abcd"),
		[]byte("one_key"),
		[]byte("sixteen_bytes!!!"),
	}
	for _, data := range cases {
		a := MurmurHash3_x86_32(data, 0)
		b := MurmurHash3_x86_32(data, 0)
		if a != b {
			t.Fatalf("MurmurHash3_x86_32(%q, 0) not deterministic", data)
		}
	}
}

func TestMurmurHash3x86_32SeedSensitivity(t *testing.T) {
	data := []byte("one_key")
	h0 := MurmurHash3_x86_32(data, 0)
	h1 := MurmurHash3_x86_32(data, 1)
	if h0 == h1 {
		t.Fatalf("MurmurHash3_x86_32 produced the same value for different seeds")
	}
}

func TestMurmurHash3x86_32EmptyInput(t *testing.T) {
	h := MurmurHash3_x86_32(nil, 0)
	// The empty string with seed 0 finalizes purely through fmix32(0) after
	// the length XOR (which is also 0), so it must be the fixed point of
	// fmix32 applied to 0 -- fmix32(0) == 0.
	if h != 0 {
		t.Fatalf("MurmurHash3_x86_32(nil, 0) = %x, want 0", h)
	}
}

func BenchmarkFastHash64(b *testing.B) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		FastHash64(data, uint64(i))
	}
}

func BenchmarkMurmurHash3x86_32(b *testing.B) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MurmurHash3_x86_32(data, uint32(i))
	}
}
