package state

import (
	"context"
	"database/sql"
)

// Package is a single row of the packages table: one installed package
// within one state.
type Package struct {
	ID          int64
	StateID     string
	Name        string
	Version     string
	Hash        string
	Size        int64
	InstalledAt int64
	VenvPath    *string
}

// PackageFileEntry is a single row of the package_file_entries table:
// one file belonging to an installed package.
type PackageFileEntry struct {
	ID           int64
	PackageID    int64
	FileHash     string
	RelativePath string
	Permissions  int64
	UID          int64
	GID          int64
	Mtime        int64
}

// FileObject is a single row of the file_objects table, tracking a
// content-store object's reference count and verification history.
type FileObject struct {
	Hash           string
	Size           int64
	CreatedAt      int64
	RefCount       int64
	IsExecutable   bool
	IsSymlink      bool
	SymlinkTarget  *string
	LastVerified   *int64
	VerifyAttempts int64
	Quarantined    bool
}

// InsertPackage inserts a package row inside tx and returns its id.
func InsertPackage(ctx context.Context, tx *sql.Tx, pkg Package) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO packages (state_id, name, version, hash, size, installed_at, venv_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pkg.StateID, pkg.Name, pkg.Version, pkg.Hash, pkg.Size, pkg.InstalledAt, pkg.VenvPath,
	)
	if err != nil {
		return 0, dbErr("insert package", err)
	}
	id, err := res.LastInsertId()
	return id, dbErr("insert package: last insert id", err)
}

// ListPackages returns every package installed in stateID.
func (m *Manager) ListPackages(ctx context.Context, stateID string) ([]Package, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, state_id, name, version, hash, size, installed_at, venv_path
		 FROM packages WHERE state_id = ? ORDER BY name`, stateID,
	)
	if err != nil {
		return nil, dbErr("list packages", err)
	}
	defer rows.Close()

	var pkgs []Package
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.ID, &p.StateID, &p.Name, &p.Version, &p.Hash, &p.Size, &p.InstalledAt, &p.VenvPath); err != nil {
			return nil, dbErr("scan package", err)
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, dbErr("iterate packages", rows.Err())
}

// AddFileObject inserts a new file_objects row, or increments ref_count
// if the hash already has one, mirroring the dedup behavior the content
// store itself performs on the object bytes (spec.md §4.2 ref-count
// accounting rule).
func AddFileObject(ctx context.Context, tx *sql.Tx, obj FileObject, now int64) (wasDuplicate bool, err error) {
	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT ref_count FROM file_objects WHERE hash = ?`, obj.Hash).Scan(&existing)
	if err == nil {
		_, err = tx.ExecContext(ctx, `UPDATE file_objects SET ref_count = ref_count + 1 WHERE hash = ?`, obj.Hash)
		return true, dbErr("increment file object ref count", err)
	}
	if err != sql.ErrNoRows {
		return false, dbErr("check file object", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO file_objects (hash, size, created_at, ref_count, is_executable, is_symlink, symlink_target, verify_attempts, quarantined)
		 VALUES (?, ?, ?, 1, ?, ?, ?, 0, 0)`,
		obj.Hash, obj.Size, now, obj.IsExecutable, obj.IsSymlink, obj.SymlinkTarget,
	)
	return false, dbErr("insert file object", err)
}

// DecrementFileObjectRef decrements a file_objects row's ref_count,
// called once per distinct file_hash a deleted state held.
func DecrementFileObjectRef(ctx context.Context, tx *sql.Tx, fileHash string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE file_objects SET ref_count = ref_count - 1 WHERE hash = ? AND ref_count > 0`, fileHash,
	)
	return dbErr("decrement file object ref count", err)
}

// AddStoreRef mirrors AddFileObject's dedup/increment behavior for the
// store_refs table, which GC consults independently of file_objects so
// store-level accounting survives even if file_objects is rebuilt.
func AddStoreRef(ctx context.Context, tx *sql.Tx, fileHash string, size int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO store_refs (hash, size, ref_count) VALUES (?, ?, 1)
		 ON CONFLICT(hash) DO UPDATE SET ref_count = ref_count + 1`,
		fileHash, size,
	)
	return dbErr("add store ref", err)
}

// DecrementStoreRef is store_refs' half of DecrementFileObjectRef.
func DecrementStoreRef(ctx context.Context, tx *sql.Tx, fileHash string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE store_refs SET ref_count = ref_count - 1 WHERE hash = ? AND ref_count > 0`, fileHash,
	)
	return dbErr("decrement store ref", err)
}

// AddPackageFileEntry inserts a package_file_entries row inside tx.
func AddPackageFileEntry(ctx context.Context, tx *sql.Tx, entry PackageFileEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO package_file_entries (package_id, file_hash, relative_path, permissions, uid, gid, mtime)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.PackageID, entry.FileHash, entry.RelativePath, entry.Permissions, entry.UID, entry.GID, entry.Mtime,
	)
	return dbErr("add package file entry", err)
}

// ListPackageFileEntries returns every file entry belonging to packageID.
func (m *Manager) ListPackageFileEntries(ctx context.Context, packageID int64) ([]PackageFileEntry, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, package_id, file_hash, relative_path, permissions, uid, gid, mtime
		 FROM package_file_entries WHERE package_id = ?`, packageID,
	)
	if err != nil {
		return nil, dbErr("list package file entries", err)
	}
	defer rows.Close()

	var entries []PackageFileEntry
	for rows.Next() {
		var e PackageFileEntry
		if err := rows.Scan(&e.ID, &e.PackageID, &e.FileHash, &e.RelativePath, &e.Permissions, &e.UID, &e.GID, &e.Mtime); err != nil {
			return nil, dbErr("scan package file entry", err)
		}
		entries = append(entries, e)
	}
	return entries, dbErr("iterate package file entries", rows.Err())
}

// KeepSetHashes returns every file_objects hash whose ref_count is
// greater than zero, the set the content store's GarbageCollect must
// never delete (spec.md §4.1).
func (m *Manager) KeepSetHashes(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT hash FROM file_objects WHERE ref_count > 0`)
	if err != nil {
		return nil, dbErr("list referenced hashes", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, dbErr("scan referenced hash", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, dbErr("iterate referenced hashes", rows.Err())
}
