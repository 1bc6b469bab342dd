package hash

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// FileHasherConfig controls how FileHasher walks and hashes a tree.
// Defaults mirror the original Rust implementation's bounded-concurrency
// hasher: four workers, symlinks recorded but not followed, directory
// entries included in the result set so a manifest can reproduce the
// full tree shape.
type FileHasherConfig struct {
	MaxConcurrency     int
	FollowSymlinks     bool
	IncludeDirectories bool
}

// DefaultFileHasherConfig returns the hasher's default tuning.
func DefaultFileHasherConfig() FileHasherConfig {
	return FileHasherConfig{
		MaxConcurrency:     4,
		FollowSymlinks:     false,
		IncludeDirectories: true,
	}
}

// FileHashResult is the hash and metadata of one entry within a tree,
// keyed by its path relative to the tree root.
type FileHashResult struct {
	RelativePath string
	Hash         Hash
	Size         int64
	IsDirectory  bool
	IsSymlink    bool
	Mode         fs.FileMode
}

// FileHasher hashes individual files and whole directory trees.
type FileHasher struct {
	cfg FileHasherConfig
}

// NewFileHasher constructs a FileHasher with the given configuration.
func NewFileHasher(cfg FileHasherConfig) *FileHasher {
	return &FileHasher{cfg: cfg}
}

// HashFileWithMetadata hashes a single filesystem entry at path, which
// must exist. A directory hashes to Empty; a symlink hashes the text of
// its target rather than the bytes it points to, so a package's tree
// hash is stable regardless of whether the link target exists on the
// hashing machine.
func (h *FileHasher) HashFileWithMetadata(path string) (FileHashResult, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return FileHashResult{}, fmt.Errorf("hash: stat %s: %w", path, err)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return FileHashResult{}, fmt.Errorf("hash: readlink %s: %w", path, err)
		}
		return FileHashResult{
			Hash:      FromBytes([]byte(target)),
			Size:      int64(len(target)),
			IsSymlink: true,
			Mode:      info.Mode(),
		}, nil

	case info.IsDir():
		return FileHashResult{
			Hash:        Empty,
			IsDirectory: true,
			Mode:        info.Mode(),
		}, nil

	default:
		f, err := os.Open(path)
		if err != nil {
			return FileHashResult{}, fmt.Errorf("hash: open %s: %w", path, err)
		}
		defer f.Close()

		digest, err := FromReader(f)
		if err != nil {
			return FileHashResult{}, fmt.Errorf("hash: %s: %w", path, err)
		}
		return FileHashResult{
			Hash: digest,
			Size: info.Size(),
			Mode: info.Mode(),
		}, nil
	}
}

// HashDirectory walks root and hashes every entry, bounding concurrency
// to cfg.MaxConcurrency so hashing a large package tree does not exhaust
// file descriptors or CPU. Results are returned sorted by RelativePath
// for deterministic manifest generation.
func (h *FileHasher) HashDirectory(ctx context.Context, root string) ([]FileHashResult, error) {
	sem := semaphore.NewWeighted(int64(h.cfg.MaxConcurrency))

	var (
		mu      sync.Mutex
		results []FileHashResult
		wg      sync.WaitGroup
		firstErr error
	)

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() && !h.cfg.IncludeDirectories {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("hash: relativize %s: %w", path, err)
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func(path, rel string) {
			defer wg.Done()
			defer sem.Release(1)

			result, err := h.HashFileWithMetadata(path)
			if err != nil {
				setErr(err)
				return
			}
			result.RelativePath = rel

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(path, rel)

		return nil
	})

	wg.Wait()

	if walkErr != nil {
		return nil, fmt.Errorf("hash: walk %s: %w", root, walkErr)
	}
	if firstErr != nil {
		return nil, firstErr
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].RelativePath < results[j].RelativePath
	})

	return results, nil
}
