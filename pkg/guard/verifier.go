package guard

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sps2/pm/pkg/config"
	"github.com/sps2/pm/pkg/hash"
	"github.com/sps2/pm/pkg/log"
	"github.com/sps2/pm/pkg/metrics"
	"github.com/sps2/pm/pkg/state"
)

// Verifier checks a materialised prefix against the state database's
// record of what should be there.
type Verifier struct {
	db    *state.Manager
	level config.VerificationLevel

	symlinkPolicy config.SymlinkPolicy
	lenientDirs   []string

	// concurrency bounds how many PackageFileEntry checks (stat, and at
	// Full level a re-hash) run at once, spec.md §5's configurable
	// verification-worker semaphore.
	concurrency int
}

// NewVerifier returns a Verifier configured per cfg.
func NewVerifier(db *state.Manager, cfg config.Config) *Verifier {
	concurrency := cfg.VerificationConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Verifier{
		db:            db,
		level:         cfg.VerificationLevel,
		symlinkPolicy: cfg.SymlinkPolicy,
		lenientDirs:   cfg.SymlinkLenientDirs,
		concurrency:   concurrency,
	}
}

// VerifyState checks every PackageFileEntry of stateID against prefixRoot
// (spec.md §4.7's "state verification"), returning every discrepancy
// found. At VerificationQuick, only existence and type are checked; at
// VerificationStandard and VerificationFull, a symlink's target is
// additionally compared with the recorded target, and at Full only,
// regular files are re-hashed too.
func (v *Verifier) VerifyState(ctx context.Context, stateID, prefixRoot string) ([]Discrepancy, error) {
	timer := metrics.NewTimer()
	logger := log.WithComponent("guard")

	pkgs, err := v.db.ListPackages(ctx, stateID)
	if err != nil {
		return nil, err
	}

	var discrepancies []Discrepancy
	expected := make(map[string]struct{})

	sem := semaphore.NewWeighted(int64(v.concurrency))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for _, pkg := range pkgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entries, err := v.db.ListPackageFileEntries(ctx, pkg.ID)
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			expected[filepath.Clean(entry.RelativePath)] = struct{}{}

			if err := sem.Acquire(workerCtx, 1); err != nil {
				setErr(err)
				break
			}

			wg.Add(1)
			go func(pkgName, pkgVersion string, entry state.PackageFileEntry) {
				defer wg.Done()
				defer sem.Release(1)

				d, ok, err := v.verifyEntry(workerCtx, pkgName, pkgVersion, entry, prefixRoot)
				if err != nil {
					setErr(err)
					return
				}
				if ok {
					mu.Lock()
					discrepancies = append(discrepancies, d)
					mu.Unlock()
				}
			}(pkg.Name, pkg.Version, entry)
		}

		if pkg.VenvPath != nil {
			if _, err := os.Stat(*pkg.VenvPath); err != nil {
				mu.Lock()
				discrepancies = append(discrepancies, Discrepancy{
					Kind:           MissingVenv,
					PackageName:    pkg.Name,
					PackageVersion: pkg.Version,
					RelativePath:   *pkg.VenvPath,
				})
				mu.Unlock()
			}
		}
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	orphans, err := v.findOrphans(prefixRoot, expected)
	if err != nil {
		return nil, err
	}
	discrepancies = append(discrepancies, orphans...)

	for _, d := range discrepancies {
		metrics.DiscrepanciesTotal.WithLabelValues(d.Kind.String()).Inc()
	}
	timer.ObserveDurationVec(metrics.VerificationDuration, "state")
	logger.Info().Int("discrepancies", len(discrepancies)).Str("state_id", stateID).Msg("state verification completed")

	return discrepancies, nil
}

func (v *Verifier) verifyEntry(ctx context.Context, pkgName, pkgVersion string, entry state.PackageFileEntry, prefixRoot string) (Discrepancy, bool, error) {
	base := Discrepancy{PackageName: pkgName, PackageVersion: pkgVersion, RelativePath: entry.RelativePath}
	full := filepath.Join(prefixRoot, entry.RelativePath)

	obj, err := v.db.GetFileObject(ctx, entry.FileHash)
	if err != nil {
		return Discrepancy{}, false, err
	}
	if expectedHash, err := hash.Parse(entry.FileHash); err == nil {
		base.Expected = expectedHash
	}
	base.Permissions = os.FileMode(entry.Permissions)
	base.IsSymlink = obj.IsSymlink
	if obj.SymlinkTarget != nil {
		base.SymlinkTarget = *obj.SymlinkTarget
	}

	info, err := os.Lstat(full)
	if os.IsNotExist(err) {
		base.Kind = MissingFile
		return base, true, nil
	}
	if err != nil {
		base.Kind = MissingFile
		return base, true, nil
	}

	isSymlinkOnDisk := info.Mode()&os.ModeSymlink != 0
	if isSymlinkOnDisk != obj.IsSymlink {
		if v.skipSymlinkCheck(entry.RelativePath, obj.IsSymlink || isSymlinkOnDisk) {
			return Discrepancy{}, false, nil
		}
		base.Kind = TypeMismatch
		return base, true, nil
	}

	if v.level == config.VerificationQuick {
		return Discrepancy{}, false, nil
	}

	if isSymlinkOnDisk {
		if v.skipSymlinkCheck(entry.RelativePath, true) {
			return Discrepancy{}, false, nil
		}
		target, err := os.Readlink(full)
		if err != nil {
			base.Kind = MissingFile
			return base, true, nil
		}
		if obj.SymlinkTarget != nil && target != *obj.SymlinkTarget {
			base.Kind = TypeMismatch
			return base, true, nil
		}
		return Discrepancy{}, false, nil
	}

	if v.level != config.VerificationFull {
		return Discrepancy{}, false, nil
	}

	f, err := os.Open(full)
	if err != nil {
		base.Kind = MissingFile
		return base, true, nil
	}
	actualHash, err := hash.FromReader(f)
	f.Close()
	if err != nil {
		return Discrepancy{}, false, err
	}

	if actualHash != base.Expected {
		base.Kind = CorruptedFile
		base.Actual = actualHash
		return base, true, nil
	}

	return Discrepancy{}, false, nil
}

// skipSymlinkCheck reports whether a path's symlink-related checks
// should be skipped under the configured SymlinkPolicy.
func (v *Verifier) skipSymlinkCheck(relPath string, isSymlink bool) bool {
	if !isSymlink {
		return false
	}
	switch v.symlinkPolicy {
	case config.SymlinkIgnore:
		return true
	case config.SymlinkLenient:
		for _, dir := range v.lenientDirs {
			if strings.HasPrefix(filepath.Clean(relPath), filepath.Clean(dir)+string(filepath.Separator)) {
				return true
			}
		}
		return false
	default: // SymlinkStrict
		return false
	}
}

// findOrphans walks prefixRoot and reports any path not present in
// expected, the "path in the prefix not in any entry" case of spec.md
// §4.7. Directories are never reported as orphans themselves; only leaf
// entries (files and symlinks) are.
func (v *Verifier) findOrphans(prefixRoot string, expected map[string]struct{}) ([]Discrepancy, error) {
	var orphans []Discrepancy

	// prefixRoot is usually the live symlink; WalkDir does not follow a
	// symlinked root, so walk the directory it points at
	walkRoot := prefixRoot
	if resolved, err := filepath.EvalSymlinks(prefixRoot); err == nil {
		walkRoot = resolved
	}

	err := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(walkRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.Clean(rel)
		if _, ok := expected[rel]; ok {
			return nil
		}
		orphans = append(orphans, Discrepancy{Kind: OrphanedFile, RelativePath: rel})
		return nil
	})
	if os.IsNotExist(err) {
		return orphans, nil
	}
	return orphans, err
}
