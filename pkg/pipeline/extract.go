package pipeline

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/sps2/pm/pkg/hash"
	"github.com/sps2/pm/pkg/metrics"
	"github.com/sps2/pm/pkg/pmerrors"
	"github.com/sps2/pm/pkg/staging"
)

// ExtractedFile is one archive member, hashed as it lands on disk
// (spec.md §4.5 stage 3's per-file FileHashResult table).
type ExtractedFile struct {
	RelativePath  string
	Hash          hash.Hash
	Size          int64
	Mode          os.FileMode
	IsSymlink     bool
	SymlinkTarget string
	IsExecutable  bool
}

// Extract decompresses and unpacks a zstd-tar archive into extractDir,
// validating every entry against limits as it streams rather than
// buffering the member list up front, and returns the per-file hash
// table the content store will dedupe against.
func Extract(ctx context.Context, archivePath, extractDir string, limits staging.Limits) ([]ExtractedFile, error) {
	timer := metrics.NewTimer()

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: archivePath, Cause: err}
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, &pmerrors.ValidationError{Kind: pmerrors.ValidationFormatInvalid, Path: archivePath, Message: fmt.Sprintf("zstd: %v", err)}
	}
	defer zr.Close()

	tr := tar.NewReader(zr)

	var (
		results   []ExtractedFile
		count     int
		totalSize int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &pmerrors.ValidationError{Kind: pmerrors.ValidationFormatInvalid, Path: archivePath, Message: fmt.Sprintf("tar: %v", err)}
		}

		count++
		if count > limits.MaxFileCount {
			return nil, &pmerrors.ValidationError{
				Kind:    pmerrors.ValidationSizeLimit,
				Path:    archivePath,
				Message: fmt.Sprintf("archive exceeds entry count limit %d", limits.MaxFileCount),
			}
		}

		entry := staging.Entry{
			Path: hdr.Name,
			Size: hdr.Size,
			Mode: uint32(hdr.Mode),
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			entry.Kind = staging.EntryDirectory
		case tar.TypeReg, tar.TypeRegA:
			entry.Kind = staging.EntryRegular
		case tar.TypeSymlink:
			entry.Kind = staging.EntrySymlink
			entry.SymlinkTarget = hdr.Linkname
		default:
			entry.Kind = staging.EntryOther
		}
		if err := staging.ValidateEntry(entry, limits.MaxPathLength); err != nil {
			return nil, err
		}

		dest := filepath.Join(extractDir, hdr.Name)

		switch entry.Kind {
		case staging.EntryDirectory:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: dest, Cause: err}
			}

		case staging.EntrySymlink:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: dest, Cause: err}
			}
			os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: dest, Cause: err}
			}
			results = append(results, ExtractedFile{
				RelativePath:  hdr.Name,
				Hash:          hash.FromBytes([]byte(hdr.Linkname)),
				Size:          int64(len(hdr.Linkname)),
				Mode:          os.FileMode(hdr.Mode),
				IsSymlink:     true,
				SymlinkTarget: hdr.Linkname,
			})

		case staging.EntryRegular:
			totalSize += hdr.Size
			if totalSize > limits.MaxExtractedSize {
				return nil, &pmerrors.ValidationError{
					Kind:    pmerrors.ValidationSizeLimit,
					Path:    archivePath,
					Message: fmt.Sprintf("archive exceeds extracted size limit %d", limits.MaxExtractedSize),
				}
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: dest, Cause: err}
			}

			mode := os.FileMode(hdr.Mode) & 0o7777
			out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: dest, Cause: err}
			}
			hasher, _ := newTeeHasher(out)
			_, copyErr := io.Copy(hasher, tr)
			closeErr := out.Close()
			if copyErr != nil {
				return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: dest, Cause: copyErr}
			}
			if closeErr != nil {
				return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: dest, Cause: closeErr}
			}

			results = append(results, ExtractedFile{
				RelativePath: hdr.Name,
				Hash:         hasher.sum(),
				Size:         hdr.Size,
				Mode:         mode,
				IsExecutable: mode&0o111 != 0,
			})
		}
	}

	metrics.PipelineStageDuration.WithLabelValues("extract").Observe(timer.Duration().Seconds())
	return results, nil
}
