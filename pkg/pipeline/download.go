package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sps2/pm/pkg/hash"
	"github.com/sps2/pm/pkg/metrics"
	"github.com/sps2/pm/pkg/pmerrors"
)

// Fetcher retrieves one archive's bytes. The core makes one attempt per
// call; retry policy belongs to the Fetcher implementation or its
// caller, never to the pipeline (spec.md §1 Non-goals).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPFetcher is the default Fetcher, a thin net/http client making a
// single unretried GET per call.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher with a sane default transport.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{}}
}

// Fetch issues a single GET for url and returns its body stream.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &pmerrors.DownloadError{Kind: pmerrors.DownloadNetwork, URL: url, Cause: err}
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &pmerrors.DownloadError{Kind: pmerrors.DownloadTimeout, URL: url, Cause: err}
		}
		return nil, &pmerrors.DownloadError{Kind: pmerrors.DownloadNetwork, URL: url, Cause: err}
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, &pmerrors.DownloadError{Kind: pmerrors.DownloadNotFound, URL: url}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &pmerrors.DownloadError{Kind: pmerrors.DownloadNetwork, URL: url, Cause: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return resp.Body, nil
}

// DownloadResult is one archive fetched to local disk, with the BLAKE3
// hash of the bytes as received (spec.md §4.5 stage 1).
type DownloadResult struct {
	Path string
	Hash hash.Hash
	Size int64
}

// Download fetches url to a temp file under tmpDir, computing its
// BLAKE3 hash while streaming, and enforces requestTimeout as a
// per-request deadline distinct from the pipeline's overall operation
// deadline (spec.md §5).
func Download(ctx context.Context, fetcher Fetcher, url, tmpDir string, requestTimeout time.Duration) (*DownloadResult, error) {
	timer := metrics.NewTimer()

	reqCtx := ctx
	if requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	body, err := fetcher.Fetch(reqCtx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	destPath := filepath.Join(tmpDir, uuid.NewString()+".archive")
	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: destPath, Cause: err}
	}
	defer f.Close()

	hasher, err := newTeeHasher(f)
	if err != nil {
		os.Remove(destPath)
		return nil, &pmerrors.Internal{Message: "construct download hasher", Cause: err}
	}

	n, err := io.Copy(hasher, body)
	if err != nil {
		os.Remove(destPath)
		if reqCtx.Err() != nil {
			return nil, &pmerrors.DownloadError{Kind: pmerrors.DownloadTimeout, URL: url, Cause: err}
		}
		return nil, &pmerrors.DownloadError{Kind: pmerrors.DownloadNetwork, URL: url, Cause: err}
	}

	metrics.DownloadDuration.Observe(timer.Duration().Seconds())
	metrics.DownloadBytesTotal.Add(float64(n))

	return &DownloadResult{Path: destPath, Hash: hasher.sum(), Size: n}, nil
}

// VerifyChecksum compares a download's observed hash against the
// index's declared hash, failing with ChecksumMismatch on disagreement
// (spec.md §4.5 / §8 scenario 3).
func VerifyChecksum(result *DownloadResult, expected hash.Hash, url string) error {
	if result.Hash != expected {
		return &pmerrors.DownloadError{
			Kind:     pmerrors.DownloadChecksumMismatch,
			URL:      url,
			Expected: expected.String(),
			Actual:   result.Hash.String(),
		}
	}
	return nil
}
