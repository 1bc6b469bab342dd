package hash

import (
	"encoding/hex"
	"fmt"
	"io"

	"lukechampine.com/blake3"
)

// Size is the length in bytes of a Hash digest.
const Size = 32

// Hash is a 256-bit BLAKE3 content digest. The zero value means "no
// hash" and is distinct from Empty, the hash of the empty byte stream.
type Hash [Size]byte

// Empty is the hash of a zero-length byte stream.
var Empty = FromBytes(nil)

// FromBytes hashes b in memory and returns the resulting digest.
func FromBytes(b []byte) Hash {
	var h Hash
	sum := blake3.Sum256(b)
	copy(h[:], sum[:])
	return h
}

// FromReader streams r through BLAKE3 without buffering it whole, which
// matters for archives and store objects that can exceed memory.
func FromReader(r io.Reader) (Hash, error) {
	hasher := blake3.New(Size, nil)
	if _, err := io.Copy(hasher, r); err != nil {
		return Hash{}, fmt.Errorf("hash: read: %w", err)
	}
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h, nil
}

// String renders the hash as 64 lowercase hex characters.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the unset zero value, as distinct from
// Empty (the hash of an empty stream).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Parse decodes a 64-character lowercase hex string into a Hash.
func Parse(s string) (Hash, error) {
	if len(s) != Size*2 {
		return Hash{}, fmt.Errorf("hash: %q has length %d, want %d", s, len(s), Size*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("hash: %q is not valid hex: %w", s, err)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// MarshalText implements encoding.TextMarshaler so a Hash can be used
// directly as a TOML or JSON string field.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ShardPath returns the two-level directory shard pm's store uses to
// avoid a single directory with millions of entries: the first two hex
// characters as the subdirectory, the full hash as the filename.
func (h Hash) ShardPath() (dir, name string) {
	s := h.String()
	return s[:2], s
}
