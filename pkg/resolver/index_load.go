package resolver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// indexDocument is the on-the-wire shape of a repository index (spec.md
// §6): a deterministic JSON mapping of package name to its known
// versions. The core treats it as opaque input and does not verify its
// signature; that is the caller's responsibility.
type indexDocument struct {
	Packages map[string][]VersionEntry `json:"packages"`
}

// LoadIndex decodes a repository index document from r and builds an
// Index, sorting each package's versions ascending.
func LoadIndex(r io.Reader) (*Index, error) {
	var doc indexDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("resolver: decode index: %w", err)
	}
	return NewIndex(doc.Packages), nil
}

// LoadIndexFile reads and decodes the repository index document at path.
func LoadIndexFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("resolver: open index %s: %w", path, err)
	}
	defer f.Close()

	idx, err := LoadIndex(f)
	if err != nil {
		return nil, fmt.Errorf("resolver: load index %s: %w", path, err)
	}
	return idx, nil
}
