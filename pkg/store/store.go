package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sps2/pm/pkg/hash"
	"github.com/sps2/pm/pkg/metrics"
	"github.com/sps2/pm/pkg/pmerrors"
)

// objectMode is the permission mode every store object is sealed with
// after it lands: read-only, since the store is the single source of
// truth for content and must never be mutated in place.
const objectMode = 0o444

// Store is a content-addressed file store rooted at a directory.
type Store struct {
	root string
}

// New returns a Store rooted at root, creating the objects, tmp, and
// quarantine subdirectories if they do not already exist.
func New(root string) (*Store, error) {
	s := &Store{root: root}
	for _, dir := range []string{s.objectsDir(), s.tmpDir(), s.quarantineDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	if err := s.sweepTmp(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) objectsDir() string    { return filepath.Join(s.root, "objects") }
func (s *Store) tmpDir() string        { return filepath.Join(s.root, "tmp") }
func (s *Store) quarantineDir() string { return filepath.Join(s.root, "quarantine") }

// PathOf returns the on-disk path of the object identified by h,
// regardless of whether it currently exists.
func (s *Store) PathOf(h hash.Hash) string {
	dir, name := h.ShardPath()
	return filepath.Join(s.objectsDir(), dir, name)
}

// Contains reports whether an object for h is present in the store.
func (s *Store) Contains(h hash.Hash) bool {
	_, err := os.Stat(s.PathOf(h))
	return err == nil
}

// SizeOf returns the size in bytes of the stored object for h.
func (s *Store) SizeOf(h hash.Hash) (int64, error) {
	info, err := os.Stat(s.PathOf(h))
	if err != nil {
		return 0, fmt.Errorf("store: stat %s: %w", h, err)
	}
	return info.Size(), nil
}

// AddBytes streams r to a temp file under store/tmp, computing the
// BLAKE3 hash as it writes, then renames the temp file into its sharded
// object path. Rename is atomic: if the destination already exists
// (hash collision with an identical existing object), the temp file is
// discarded and the existing path's hash is returned unchanged.
func (s *Store) AddBytes(r io.Reader) (hash.Hash, error) {
	timer := metrics.NewTimer()

	tmpPath := filepath.Join(s.tmpDir(), uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		return hash.Hash{}, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: tmpPath, Cause: err}
	}
	removeTmp := true
	defer func() {
		f.Close()
		if removeTmp {
			os.Remove(tmpPath)
		}
	}()

	hasher := newTeeHasher(f)
	if _, err := io.Copy(hasher, r); err != nil {
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		if isOutOfSpace(err) {
			return hash.Hash{}, &pmerrors.StorageError{Kind: pmerrors.StorageOutOfSpace, Path: tmpPath, Cause: err}
		}
		return hash.Hash{}, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: tmpPath, Cause: err}
	}
	if err := f.Sync(); err != nil {
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		return hash.Hash{}, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: tmpPath, Cause: err}
	}
	digest := hasher.sum()

	if err := os.Chmod(tmpPath, objectMode); err != nil {
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		return hash.Hash{}, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: tmpPath, Cause: err}
	}

	dest := s.PathOf(digest)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		return hash.Hash{}, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: dest, Cause: err}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		if os.IsExist(err) || s.Contains(digest) {
			// another add_bytes (or a previous run) already produced this
			// object; the content is identical by definition of the hash.
			metrics.StoreWritesTotal.WithLabelValues("deduplicated").Inc()
			timer.ObserveDurationVec(metrics.StoreLinkDuration, "dedup")
			return digest, nil
		}
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		return hash.Hash{}, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: dest, Cause: err}
	}
	removeTmp = false

	metrics.StoreWritesTotal.WithLabelValues("written").Inc()
	metrics.StoreObjectsTotal.Inc()
	if size, err := s.SizeOf(digest); err == nil {
		metrics.StoreBytesTotal.Add(float64(size))
	}
	timer.ObserveDurationVec(metrics.StoreLinkDuration, "write")

	return digest, nil
}

// LinkInto materialises the object identified by h at destPath, trying
// reflink, then hardlink, then a byte copy, in that order, and stops as
// soon as one succeeds. perms is applied to the link; when it differs
// from objectMode (e.g. the executable bit is set), reflink and hardlink
// are skipped and the object is byte-copied, so the store object's own
// mode is untouched.
func (s *Store) LinkInto(h hash.Hash, destPath string, perms os.FileMode) error {
	timer := metrics.NewTimer()
	src := s.PathOf(h)

	if !s.Contains(h) {
		return &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: src, Cause: fmt.Errorf("object not found")}
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: destPath, Cause: err}
	}
	os.Remove(destPath)

	needsIndependentMode := perms != objectMode

	if !needsIndependentMode {
		if err := reflink(src, destPath); err == nil {
			timer.ObserveDurationVec(metrics.StoreLinkDuration, "reflink")
			return nil
		}
		if err := os.Link(src, destPath); err == nil {
			timer.ObserveDurationVec(metrics.StoreLinkDuration, "hardlink")
			return nil
		}
	}

	if err := copyFile(src, destPath, perms); err != nil {
		return &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: destPath, Cause: err}
	}
	timer.ObserveDurationVec(metrics.StoreLinkDuration, "copy")
	return nil
}

// Quarantine moves a corrupted object out of the objects tree so Guard
// never serves it again, returning the quarantine path it was moved to.
func (s *Store) Quarantine(h hash.Hash) (string, error) {
	src := s.PathOf(h)
	dest := filepath.Join(s.quarantineDir(), h.String())

	if err := os.Chmod(src, 0o644); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("store: unlock %s for quarantine: %w", src, err)
	}
	if err := os.Rename(src, dest); err != nil {
		return "", fmt.Errorf("store: quarantine %s: %w", src, err)
	}
	metrics.QuarantinedObjectsTotal.Inc()
	metrics.StoreObjectsTotal.Dec()
	return dest, nil
}

// GCStats reports the outcome of a GarbageCollect pass.
type GCStats struct {
	ObjectsScanned int64
	ObjectsDeleted int64
	BytesReclaimed int64
}

// GarbageCollect removes every object under store/objects whose hash is
// not in keepSet. Callers build keepSet from file_objects rows whose
// ref_count is greater than zero, so an object reachable from any
// committed state is never considered for deletion.
func (s *Store) GarbageCollect(keepSet map[hash.Hash]struct{}) (GCStats, error) {
	var stats GCStats

	shardDirs, err := os.ReadDir(s.objectsDir())
	if err != nil {
		return stats, fmt.Errorf("store: gc: read %s: %w", s.objectsDir(), err)
	}

	for _, shard := range shardDirs {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(s.objectsDir(), shard.Name())
		entries, err := os.ReadDir(shardPath)
		if err != nil {
			return stats, fmt.Errorf("store: gc: read %s: %w", shardPath, err)
		}

		for _, entry := range entries {
			atomic.AddInt64(&stats.ObjectsScanned, 1)

			h, err := hash.Parse(entry.Name())
			if err != nil {
				continue // not a well-formed object name, leave it alone
			}
			if _, keep := keepSet[h]; keep {
				continue
			}

			path := filepath.Join(shardPath, entry.Name())
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if err := os.Chmod(path, 0o644); err != nil {
				return stats, fmt.Errorf("store: gc: unlock %s: %w", path, err)
			}
			if err := os.Remove(path); err != nil {
				return stats, fmt.Errorf("store: gc: remove %s: %w", path, err)
			}
			stats.ObjectsDeleted++
			stats.BytesReclaimed += info.Size()
		}
	}

	metrics.StoreGCReclaimedTotal.Add(float64(stats.BytesReclaimed))
	metrics.StoreObjectsTotal.Sub(float64(stats.ObjectsDeleted))
	metrics.StoreBytesTotal.Sub(float64(stats.BytesReclaimed))

	return stats, nil
}

// sweepTmp removes any leftover temp files from a prior run that
// crashed mid-AddBytes, per spec.md §4.1's crash-recovery note.
func (s *Store) sweepTmp() error {
	entries, err := os.ReadDir(s.tmpDir())
	if err != nil {
		return fmt.Errorf("store: sweep tmp: %w", err)
	}
	for _, entry := range entries {
		os.Remove(filepath.Join(s.tmpDir(), entry.Name()))
	}
	return nil
}

func isOutOfSpace(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left") || strings.Contains(msg, "disk quota exceeded")
}
