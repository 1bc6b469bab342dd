package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sps2/pm/pkg/metrics"
	"github.com/sps2/pm/pkg/pmerrors"
	"github.com/sps2/pm/pkg/store"
	"github.com/sps2/pm/pkg/transition"
)

// IngestAndStage writes every extracted file into the content store
// (deduplicating against anything already present) and materialises it
// at its final path inside slotPath, returning the transition.FileEntry
// rows the atomic commit needs (spec.md §4.5 stages 3–4).
//
// Symlinks are recorded in the store by the text of their target (so
// repeated identical links dedupe) but are materialised in the slot as
// real symlinks, never as a copy of a regular file, since LinkInto's
// reflink/hardlink/copy methods only apply to regular file bytes.
//
// Per-file store ingestion is CPU-bound (BLAKE3 over the file's bytes)
// and safe to run concurrently, since Content Store writes are
// lock-free (spec.md §5); hashConcurrency bounds how many files are
// ingested at once, mirroring the num_cpus-sized hashing semaphore
// spec.md §4.5 stage 3 calls for.
func IngestAndStage(ctx context.Context, st *store.Store, extracted []ExtractedFile, extractDir, slotPath string, hashConcurrency int) ([]transition.FileEntry, error) {
	timer := metrics.NewTimer()

	if hashConcurrency < 1 {
		hashConcurrency = 1
	}
	sem := semaphore.NewWeighted(int64(hashConcurrency))
	entries := make([]transition.FileEntry, len(extracted))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i, ef := range extracted {
		if err := sem.Acquire(ctx, 1); err != nil {
			setErr(err)
			break
		}

		wg.Add(1)
		go func(i int, ef ExtractedFile) {
			defer wg.Done()
			defer sem.Release(1)

			entry, err := ingestOne(st, ef, extractDir, slotPath)
			if err != nil {
				setErr(err)
				return
			}
			entries[i] = *entry
		}(i, ef)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	metrics.PipelineStageDuration.WithLabelValues("stage").Observe(timer.Duration().Seconds())
	return entries, nil
}

// ingestOne ingests a single extracted file into the store and
// materialises it at its final slot path.
func ingestOne(st *store.Store, ef ExtractedFile, extractDir, slotPath string) (*transition.FileEntry, error) {
	dest := filepath.Join(slotPath, ef.RelativePath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: dest, Cause: err}
	}

	if ef.IsSymlink {
		// registered in the store by target text so
		// store.Contains(e.file_hash) holds for symlink entries
		// too (the §8 materialisation invariant), even though the
		// slot itself gets a real symlink, not a store link.
		if _, err := st.AddBytes(strings.NewReader(ef.SymlinkTarget)); err != nil {
			return nil, err
		}
		os.Remove(dest)
		if err := os.Symlink(ef.SymlinkTarget, dest); err != nil {
			return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: dest, Cause: err}
		}
	} else {
		src := filepath.Join(extractDir, ef.RelativePath)
		f, err := os.Open(src)
		if err != nil {
			return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: src, Cause: err}
		}
		h, err := st.AddBytes(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		if h != ef.Hash {
			// the store's own re-computed hash disagrees with the
			// one the extractor computed in-flight: treat as a
			// corrupted read rather than trusting either blindly.
			return nil, &pmerrors.ValidationError{
				Kind:    pmerrors.ValidationFormatInvalid,
				Path:    src,
				Message: "hash mismatch between extraction and store ingestion",
			}
		}
		if err := st.LinkInto(h, dest, ef.Mode); err != nil {
			return nil, err
		}
	}

	return &transition.FileEntry{
		RelativePath:  ef.RelativePath,
		Hash:          ef.Hash,
		Size:          ef.Size,
		Permissions:   ef.Mode,
		IsExecutable:  ef.IsExecutable,
		IsSymlink:     ef.IsSymlink,
		SymlinkTarget: ef.SymlinkTarget,
	}, nil
}
