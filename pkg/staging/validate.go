package staging

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sps2/pm/pkg/pmerrors"
)

// EntryKind enumerates the archive entry types staging accepts; device
// and FIFO nodes are rejected outright (spec.md §4.4 rule 4).
type EntryKind int

const (
	EntryRegular EntryKind = iota
	EntryDirectory
	EntrySymlink
	EntryOther
)

// Entry describes one archive member as the pipeline's extraction loop
// observes it, before any bytes are written to disk.
type Entry struct {
	Path         string
	Kind         EntryKind
	Size         int64
	SymlinkTarget string
	Mode          uint32 // raw tar mode bits, for setuid/setgid/world-writable checks
}

// Limits bounds a single archive's extracted footprint (spec.md §4.4
// rule 2/3 and Config's staging fields).
type Limits struct {
	MaxFileCount     int
	MaxExtractedSize int64
	MaxPathLength    int
}

// PathSafety validates one archive-relative path: it must be relative,
// contain no ".." component, and fit within MaxPathLength. Called for
// both regular entries and symlink targets.
func PathSafety(path string, maxLen int) error {
	if filepath.IsAbs(path) {
		return &pmerrors.ValidationError{Kind: pmerrors.ValidationPathUnsafe, Path: path, Message: "absolute path not permitted in archive"}
	}
	if len(path) > maxLen {
		return &pmerrors.ValidationError{Kind: pmerrors.ValidationPathUnsafe, Path: path, Message: fmt.Sprintf("path exceeds max length %d", maxLen)}
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return &pmerrors.ValidationError{Kind: pmerrors.ValidationPathUnsafe, Path: path, Message: "path traversal component \"..\" not permitted"}
		}
	}
	return nil
}

// symlinkSafety checks that a symlink's target, once resolved relative
// to its own directory, stays within the extraction root and is itself
// a relative path (spec.md §4.4 rule 3).
func symlinkSafety(entryPath, target string, maxLen int) error {
	if filepath.IsAbs(target) {
		return &pmerrors.ValidationError{Kind: pmerrors.ValidationSymlinkUnsafe, Path: entryPath, Message: "symlink target must be relative"}
	}
	if len(target) > maxLen {
		return &pmerrors.ValidationError{Kind: pmerrors.ValidationSymlinkUnsafe, Path: entryPath, Message: "symlink target exceeds max length"}
	}
	joined := filepath.Join(filepath.Dir(entryPath), target)
	clean := filepath.ToSlash(filepath.Clean(joined))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return &pmerrors.ValidationError{Kind: pmerrors.ValidationSymlinkUnsafe, Path: entryPath, Message: "symlink target escapes extraction root"}
	}
	return nil
}

// ValidateEntry checks a single archive member against the path-shape,
// entry-type, and permission-bit rules of spec.md §4.4 rules 3/4,
// independent of the whole-archive count/size rules ValidateEntries
// also enforces. Exported so pkg/pipeline can apply the same per-entry
// checks while streaming a tar reader, without materialising the full
// entry list first.
func ValidateEntry(e Entry, maxPathLen int) error {
	if err := PathSafety(e.Path, maxPathLen); err != nil {
		return err
	}

	switch e.Kind {
	case EntryRegular, EntryDirectory:
		// no further shape checks
	case EntrySymlink:
		if err := symlinkSafety(e.Path, e.SymlinkTarget, maxPathLen); err != nil {
			return err
		}
	default:
		return &pmerrors.ValidationError{
			Kind:    pmerrors.ValidationFormatInvalid,
			Path:    e.Path,
			Message: "entry type is not a regular file, directory, or symlink",
		}
	}

	if e.Mode&0o4000 != 0 || e.Mode&0o2000 != 0 { // setuid/setgid
		return &pmerrors.ValidationError{
			Kind:    pmerrors.ValidationPathUnsafe,
			Path:    e.Path,
			Message: "setuid/setgid bits are not permitted in archive entries",
		}
	}
	if e.Mode&0o002 != 0 { // world-writable
		return &pmerrors.ValidationError{
			Kind:    pmerrors.ValidationPathUnsafe,
			Path:    e.Path,
			Message: "world-writable entries are not permitted",
		}
	}
	return nil
}

// ValidateEntries checks a full archive member list against the four
// staging-manager rules: entry count, cumulative size, path safety for
// every path (including symlink targets), and entry type whitelist.
func ValidateEntries(entries []Entry, limits Limits) error {
	if len(entries) > limits.MaxFileCount {
		return &pmerrors.ValidationError{
			Kind:    pmerrors.ValidationSizeLimit,
			Message: fmt.Sprintf("archive has %d entries, exceeds limit %d", len(entries), limits.MaxFileCount),
		}
	}

	var total int64
	for _, e := range entries {
		if err := ValidateEntry(e, limits.MaxPathLength); err != nil {
			return err
		}
		if e.Kind == EntryRegular {
			total += e.Size
		}
	}

	if total > limits.MaxExtractedSize {
		return &pmerrors.ValidationError{
			Kind:    pmerrors.ValidationSizeLimit,
			Message: fmt.Sprintf("archive extracts to %d bytes, exceeds limit %d", total, limits.MaxExtractedSize),
		}
	}
	return nil
}
