package state

import (
	"context"
	"database/sql"
)

// VerificationStats summarises the file_objects table's verification
// state, the input to Guard's reporting (spec.md §4.7).
type VerificationStats struct {
	TotalObjects     int64
	VerifiedCount    int64
	PendingCount     int64
	FailedCount      int64
	QuarantinedCount int64
}

// GetVerificationStats tallies file_objects by verification status.
func (m *Manager) GetVerificationStats(ctx context.Context, maxAgeSeconds, now int64) (VerificationStats, error) {
	var stats VerificationStats

	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_objects`).Scan(&stats.TotalObjects)
	if err != nil {
		return stats, dbErr("count file objects", err)
	}

	err = m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_objects WHERE quarantined = 0 AND last_verified IS NOT NULL AND last_verified > ?`,
		now-maxAgeSeconds,
	).Scan(&stats.VerifiedCount)
	if err != nil {
		return stats, dbErr("count verified objects", err)
	}

	err = m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_objects WHERE quarantined = 0 AND (last_verified IS NULL OR last_verified <= ?)`,
		now-maxAgeSeconds,
	).Scan(&stats.PendingCount)
	if err != nil {
		return stats, dbErr("count pending objects", err)
	}

	err = m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_objects WHERE quarantined = 0 AND verify_attempts > 0 AND last_verified IS NULL`,
	).Scan(&stats.FailedCount)
	if err != nil {
		return stats, dbErr("count failed objects", err)
	}

	err = m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_objects WHERE quarantined = 1`).Scan(&stats.QuarantinedCount)
	if err != nil {
		return stats, dbErr("count quarantined objects", err)
	}

	return stats, nil
}

// ObjectsNeedingVerification returns up to limit hashes whose
// last_verified is older than maxAgeSeconds (or unset), oldest first.
func (m *Manager) ObjectsNeedingVerification(ctx context.Context, maxAgeSeconds, now int64, limit int64) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT hash FROM file_objects
		 WHERE quarantined = 0 AND (last_verified IS NULL OR last_verified <= ?)
		 ORDER BY last_verified ASC NULLS FIRST
		 LIMIT ?`,
		now-maxAgeSeconds, limit,
	)
	if err != nil {
		return nil, dbErr("list objects needing verification", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, dbErr("scan object needing verification", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, dbErr("iterate objects needing verification", rows.Err())
}

// VerifyFileWithTracking records the outcome of re-hashing one object:
// on success it stamps last_verified and resets verify_attempts; on
// failure it increments verify_attempts so the caller can decide, after
// maxAttempts, to quarantine.
func VerifyFileWithTracking(ctx context.Context, tx *sql.Tx, fileHash string, passed bool, now int64) error {
	if passed {
		_, err := tx.ExecContext(ctx,
			`UPDATE file_objects SET last_verified = ?, verify_attempts = 0 WHERE hash = ?`, now, fileHash,
		)
		return dbErr("record verification success", err)
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE file_objects SET verify_attempts = verify_attempts + 1 WHERE hash = ?`, fileHash,
	)
	return dbErr("record verification failure", err)
}

// QuarantineFileObject marks a file_objects row quarantined, excluding
// it from future verification batches and from FailedVerificationObjects.
// KeepSetHashes still lists it while its ref_count is above zero.
func QuarantineFileObject(ctx context.Context, tx *sql.Tx, fileHash string) error {
	_, err := tx.ExecContext(ctx, `UPDATE file_objects SET quarantined = 1 WHERE hash = ?`, fileHash)
	return dbErr("quarantine file object", err)
}

// FailedVerificationObjects returns hashes whose verify_attempts has
// reached or exceeded maxAttempts but are not yet quarantined.
func (m *Manager) FailedVerificationObjects(ctx context.Context, maxAttempts int64) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT hash FROM file_objects WHERE quarantined = 0 AND verify_attempts >= ?`, maxAttempts,
	)
	if err != nil {
		return nil, dbErr("list failed verification objects", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, dbErr("scan failed verification object", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, dbErr("iterate failed verification objects", rows.Err())
}

// GetFileObject returns the file_objects row for hash.
func (m *Manager) GetFileObject(ctx context.Context, fileHash string) (*FileObject, error) {
	var o FileObject
	err := m.db.QueryRowContext(ctx,
		`SELECT hash, size, created_at, ref_count, is_executable, is_symlink, symlink_target, last_verified, verify_attempts, quarantined
		 FROM file_objects WHERE hash = ?`, fileHash,
	).Scan(&o.Hash, &o.Size, &o.CreatedAt, &o.RefCount, &o.IsExecutable, &o.IsSymlink, &o.SymlinkTarget, &o.LastVerified, &o.VerifyAttempts, &o.Quarantined)
	if err == sql.ErrNoRows {
		return nil, notFound("file object", fileHash)
	}
	if err != nil {
		return nil, dbErr("get file object", err)
	}
	return &o, nil
}
