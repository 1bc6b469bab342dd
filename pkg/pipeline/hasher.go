package pipeline

import (
	"io"

	"lukechampine.com/blake3"

	"github.com/sps2/pm/pkg/hash"
)

// teeHasher mirrors pkg/store's internal hasher: it writes every byte
// through to an underlying writer while accumulating a BLAKE3 digest,
// so Download can persist and hash an archive in a single pass.
type teeHasher struct {
	w io.Writer
	h *blake3.Hasher
}

func newTeeHasher(w io.Writer) (*teeHasher, error) {
	return &teeHasher{w: w, h: blake3.New(hash.Size, nil)}, nil
}

func (t *teeHasher) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 {
		t.h.Write(p[:n])
	}
	return n, err
}

func (t *teeHasher) sum() hash.Hash {
	var h hash.Hash
	copy(h[:], t.h.Sum(nil))
	return h
}
