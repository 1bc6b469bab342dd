package guard

import (
	"os"

	"github.com/sps2/pm/pkg/hash"
)

// DiscrepancyKind enumerates the ways a materialised file can disagree
// with its PackageFileEntry (spec.md §4.7).
type DiscrepancyKind int

const (
	// MissingFile means the entry's relative path does not exist on disk.
	MissingFile DiscrepancyKind = iota
	// CorruptedFile means the path exists but its re-hashed content
	// disagrees with the entry's file_hash (Full verification level only).
	CorruptedFile
	// TypeMismatch means the path exists but is the wrong kind — a
	// symlink where a regular file was expected, or vice versa.
	TypeMismatch
	// MissingVenv means a package recorded a VenvPath that no longer
	// exists.
	MissingVenv
	// OrphanedFile means a path inside the prefix belongs to no
	// PackageFileEntry of the current state.
	OrphanedFile
)

func (k DiscrepancyKind) String() string {
	switch k {
	case MissingFile:
		return "missing_file"
	case CorruptedFile:
		return "corrupted_file"
	case TypeMismatch:
		return "type_mismatch"
	case MissingVenv:
		return "missing_venv"
	case OrphanedFile:
		return "orphaned_file"
	default:
		return "unknown"
	}
}

// Discrepancy is one disagreement between the database's record of a
// state and what Guard observed on disk. Expected/Permissions/IsSymlink/
// SymlinkTarget are populated whenever the entry's own record supplies
// them, regardless of Kind, so Healer can re-materialise without a
// second database round-trip.
type Discrepancy struct {
	Kind           DiscrepancyKind
	PackageName    string
	PackageVersion string
	RelativePath   string
	Expected       hash.Hash
	Actual         hash.Hash
	Permissions    os.FileMode
	IsSymlink      bool
	SymlinkTarget  string
}
