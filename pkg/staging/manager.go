package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sps2/pm/pkg/log"
	"github.com/sps2/pm/pkg/pmerrors"
)

// orphanAge is how long a staging directory may sit unclaimed before
// Sweep removes it on startup (spec.md §4.4: "older than one hour").
const orphanAge = time.Hour

// Manager creates and tracks per-install staging directories under a
// single root, enforcing the system-wide MaxStagingDirs cap.
type Manager struct {
	root    string
	maxDirs int

	mu     sync.Mutex
	active map[string]struct{}
}

// New returns a Manager rooted at root, creating it if necessary, and
// sweeps any orphaned directories left by a prior crashed run.
func New(root string, maxDirs int) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("staging: create root %s: %w", root, err)
	}
	m := &Manager{root: root, maxDirs: maxDirs, active: make(map[string]struct{})}
	if err := m.Sweep(); err != nil {
		return nil, err
	}
	return m, nil
}

// Dir is one reserved staging directory for a single archive.
type Dir struct {
	Path string
	name string // tracking key, released by Release
}

// ExtractRoot is the subdirectory an archive's contents are unpacked
// into, one level below Path so manifest.toml et al. never collide
// with staging's own bookkeeping.
func (d *Dir) ExtractRoot() string { return filepath.Join(d.Path, "extract") }

// Acquire reserves a new staging directory for (name, version),
// failing with ConcurrencyError if the system-wide cap is already at
// MaxStagingDirs live directories.
func (m *Manager) Acquire(name, version string) (*Dir, error) {
	m.mu.Lock()
	if len(m.active) >= m.maxDirs {
		m.mu.Unlock()
		return nil, &pmerrors.ConcurrencyError{Resource: "staging directories", Limit: m.maxDirs}
	}
	dirName := fmt.Sprintf("%s-%s-%s", name, version, uuid.NewString())
	m.active[dirName] = struct{}{}
	m.mu.Unlock()

	path := filepath.Join(m.root, dirName)
	if err := os.MkdirAll(filepath.Join(path, "extract"), 0o700); err != nil {
		m.mu.Lock()
		delete(m.active, dirName)
		m.mu.Unlock()
		return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: path, Cause: err}
	}
	if err := os.Chmod(path, 0o700); err != nil {
		m.mu.Lock()
		delete(m.active, dirName)
		m.mu.Unlock()
		return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: path, Cause: err}
	}

	return &Dir{Path: path, name: dirName}, nil
}

// Release removes a staging directory's contents and frees its slot in
// the system-wide cap. Callers defer this from the moment Acquire
// succeeds, regardless of whether the install that used it succeeded.
func (m *Manager) Release(d *Dir) error {
	m.mu.Lock()
	delete(m.active, d.name)
	m.mu.Unlock()

	if err := os.RemoveAll(d.Path); err != nil {
		return fmt.Errorf("staging: release %s: %w", d.Path, err)
	}
	return nil
}

// ActiveCount reports how many staging directories are currently held.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Sweep removes any directory under root older than orphanAge that is
// not tracked as active, recovering disk from a prior run that crashed
// mid-install before Release ran.
func (m *Manager) Sweep() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return fmt.Errorf("staging: sweep %s: %w", m.root, err)
	}

	logger := log.WithComponent("staging")
	now := time.Now()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m.mu.Lock()
		_, tracked := m.active[entry.Name()]
		m.mu.Unlock()
		if tracked {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < orphanAge {
			continue
		}

		path := filepath.Join(m.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to sweep orphaned staging directory")
			continue
		}
		logger.Info().Str("path", path).Msg("swept orphaned staging directory")
	}
	return nil
}
