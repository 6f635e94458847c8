// Package persist implements the file-level half of the persistence
// contract: writing and reading the byte containers that hll, cms, and
// heavyhitters produce from their own Serialize/Deserialize methods.
//
// Sketch matrices are large, dense, and often mostly zero or low-entropy
// early in a sketch's life (a freshly-built CMS is nearly all zeros; an HLL
// with few distinct keys has few non-zero registers even though it stores
// them densely). That makes them a good match for the same block
// compression the columnar engine in the wider corpus uses for its
// mostly-repetitive pages, so Save optionally runs the container through
// zstd via klauspost/compress before it hits disk.
package persist

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
)

// flag byte values prefixed to every file this package writes, so Load can
// tell a compressed container from a raw one without the caller having to
// remember which options Save used.
const (
	flagRaw      byte = 0
	flagZstd     byte = 1
	flagPrefixSz      = 1
)

type options struct {
	compress bool
}

// Option configures Save.
type Option func(*options)

// WithCompression makes Save run the container through zstd before writing
// it. Load transparently decompresses regardless of whether this option was
// used, by reading the leading flag byte.
func WithCompression() Option {
	return func(o *options) { o.compress = true }
}

// Save writes container (a fully-serialized sketch, including its own
// magic/version/checksum) to path.
func Save(path string, container []byte, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	body := container
	flag := flagRaw
	if o.compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("persist: creating zstd encoder: %w", err)
		}
		body = enc.EncodeAll(container, nil)
		if err := enc.Close(); err != nil {
			return fmt.Errorf("persist: closing zstd encoder: %w", err)
		}
		flag = flagZstd
	}

	out := make([]byte, flagPrefixSz+len(body))
	out[0] = flag
	copy(out[flagPrefixSz:], body)

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("persist: writing %s: %w", path, err)
	}
	return nil
}

// Load reads path back into a container suitable for a sketch package's
// Deserialize function, transparently undoing any compression Save applied.
func Load(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persist: reading %s: %w", path, err)
	}
	if len(raw) < flagPrefixSz {
		return nil, fmt.Errorf("persist: %s is too short to contain a valid container", path)
	}

	flag, body := raw[0], raw[flagPrefixSz:]
	switch flag {
	case flagRaw:
		return body, nil
	case flagZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("persist: creating zstd decoder: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("persist: decompressing %s: %w", path, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("persist: %s has unrecognized container flag %#x", path, flag)
	}
}
