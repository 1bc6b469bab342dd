package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sps2/pm/pkg/buildsys"
	"github.com/sps2/pm/pkg/config"
	"github.com/sps2/pm/pkg/events"
	"github.com/sps2/pm/pkg/hash"
	"github.com/sps2/pm/pkg/log"
	"github.com/sps2/pm/pkg/pmerrors"
	"github.com/sps2/pm/pkg/resolver"
	"github.com/sps2/pm/pkg/staging"
	"github.com/sps2/pm/pkg/store"
	"github.com/sps2/pm/pkg/transition"
)

// Pipeline drives a resolver.ExecutionPlan through download, validate,
// extract, and stage, batch by batch (spec.md §4.5).
type Pipeline struct {
	fetcher     Fetcher
	staging     *staging.Manager
	store       *store.Store
	cfg         config.Config
	broker      *events.Broker
	downloadSem *semaphore.Weighted
	extractSem  *semaphore.Weighted
}

// New returns a Pipeline wired to the given collaborators.
func New(fetcher Fetcher, stagingMgr *staging.Manager, st *store.Store, cfg config.Config, broker *events.Broker) *Pipeline {
	return &Pipeline{
		fetcher:     fetcher,
		staging:     stagingMgr,
		store:       st,
		cfg:         cfg,
		broker:      broker,
		downloadSem: semaphore.NewWeighted(int64(cfg.DownloadConcurrency)),
		extractSem:  semaphore.NewWeighted(int64(cfg.ExtractionConcurrency)),
	}
}

// StagedPackage is one node fully staged into a slot, ready to become a
// transition.PackageInstall once the whole plan has landed.
type StagedPackage struct {
	Node    resolver.ResolvedNode
	Install transition.PackageInstall
}

// RunPlan downloads, validates, extracts, and stages every node in
// plan into slotPath, processing batches strictly in order and nodes
// within a batch concurrently, so a package never observes a
// half-installed dependency (spec.md §4.5). Cancellation through ctx
// aborts in-flight work at its next suspension point and leaves no
// staged slot or partial download behind beyond what is reclaimable by
// the next GC pass.
func (p *Pipeline) RunPlan(ctx context.Context, plan resolver.ExecutionPlan, nodes map[resolver.PackageId]resolver.ResolvedNode, slotPath string) ([]StagedPackage, error) {
	var all []StagedPackage

	for batchIdx, batch := range plan.Batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		staged, err := p.runBatch(ctx, batch, nodes, slotPath)
		if err != nil {
			return nil, fmt.Errorf("pipeline: batch %d: %w", batchIdx, err)
		}
		all = append(all, staged...)
	}

	return all, nil
}

func (p *Pipeline) runBatch(ctx context.Context, batch []resolver.PackageId, nodes map[resolver.PackageId]resolver.ResolvedNode, slotPath string) ([]StagedPackage, error) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		results  = make([]StagedPackage, 0, len(batch))
		firstErr error
	)

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for _, id := range batch {
		node, ok := nodes[id]
		if !ok {
			return nil, &pmerrors.Internal{Message: fmt.Sprintf("execution plan referenced unknown node %s", id)}
		}

		wg.Add(1)
		go func(node resolver.ResolvedNode) {
			defer wg.Done()

			install, err := p.stageOne(batchCtx, node, slotPath)
			if err != nil {
				setErr(err)
				return
			}

			mu.Lock()
			results = append(results, StagedPackage{Node: node, Install: *install})
			mu.Unlock()
		}(node)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// stageOne runs one node through download/local-read, validate,
// extract, and stage, returning its PackageInstall row.
func (p *Pipeline) stageOne(ctx context.Context, node resolver.ResolvedNode, slotPath string) (*transition.PackageInstall, error) {
	logger := log.WithComponent("pipeline").With().Str("package", node.Name).Str("version", node.Version).Logger()

	dir, err := p.staging.Acquire(node.Name, node.Version)
	if err != nil {
		return nil, err
	}
	defer p.staging.Release(dir)

	var archivePath string
	var archiveHash hash.Hash
	var archiveSize int64

	switch node.Action {
	case resolver.ActionDownload:
		if err := p.downloadSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		publish(p.broker, events.EventDownloadStarted, events.StageDownload, "", node.Name+"@"+node.Version)
		result, err := Download(ctx, p.fetcher, node.URL, dir.Path, p.cfg.RequestTimeout)
		p.downloadSem.Release(1)
		if err != nil {
			return nil, err
		}
		if node.ArchiveHash != "" {
			expected, err := hash.Parse(node.ArchiveHash)
			if err != nil {
				return nil, &pmerrors.Internal{Message: "index declared a malformed archive hash", Cause: err}
			}
			if err := VerifyChecksum(result, expected, node.URL); err != nil {
				return nil, err
			}
		}
		publish(p.broker, events.EventDownloadCompleted, events.StageDownload, "", node.Name+"@"+node.Version)
		archivePath, archiveHash, archiveSize = result.Path, result.Hash, result.Size

	case resolver.ActionLocal:
		h, size, err := hashLocalFile(node.Path)
		if err != nil {
			return nil, err
		}
		archivePath, archiveHash, archiveSize = node.Path, h, size

	default:
		return nil, &pmerrors.Internal{Message: "unknown resolver action"}
	}

	publish(p.broker, events.EventValidateStarted, events.StageValidate, "", node.Name+"@"+node.Version)
	if err := SniffFormat(archivePath); err != nil {
		return nil, err
	}
	publish(p.broker, events.EventValidateCompleted, events.StageValidate, "", node.Name+"@"+node.Version)

	if err := p.extractSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.extractSem.Release(1)

	publish(p.broker, events.EventExtractStarted, events.StageExtract, "", node.Name+"@"+node.Version)
	limits := staging.Limits{
		MaxFileCount:     p.cfg.MaxFileCount,
		MaxExtractedSize: p.cfg.MaxExtractedSize,
		MaxPathLength:    p.cfg.MaxPathLength,
	}
	extracted, err := Extract(ctx, archivePath, dir.ExtractRoot(), limits)
	if err != nil {
		return nil, err
	}

	manifest, err := staging.ParseManifest(dir.ExtractRoot())
	if err != nil {
		return nil, err
	}
	if err := staging.ValidateIdentity(manifest, node.Name, node.Version); err != nil {
		return nil, err
	}
	publish(p.broker, events.EventExtractCompleted, events.StageExtract, "", node.Name+"@"+node.Version)

	// manifest.toml is archive metadata, not part of the package's files
	payload := make([]ExtractedFile, 0, len(extracted))
	for _, ef := range extracted {
		if ef.RelativePath != "manifest.toml" {
			payload = append(payload, ef)
		}
	}

	publish(p.broker, events.EventStageStarted, events.StageStage, "", node.Name+"@"+node.Version)
	files, err := IngestAndStage(ctx, p.store, payload, dir.ExtractRoot(), slotPath, p.cfg.HashConcurrency)
	if err != nil {
		return nil, err
	}
	publish(p.broker, events.EventStageCompleted, events.StageStage, "", node.Name+"@"+node.Version)

	logger.Info().Int("files", len(files)).Msg("package staged")

	var venvPath *string
	if system := buildsys.Parse(manifest.Package.BuildSystem); system.UsesVenv() && manifest.Package.VenvPath != "" {
		path := manifest.Package.VenvPath
		venvPath = &path
	}

	return &transition.PackageInstall{
		Name:        node.Name,
		Version:     node.Version,
		ArchiveHash: archiveHash,
		Size:        archiveSize,
		VenvPath:    venvPath,
		Files:       files,
	}, nil
}

func hashLocalFile(path string) (hash.Hash, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return hash.Hash{}, 0, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: path, Cause: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return hash.Hash{}, 0, &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: path, Cause: err}
	}

	h, err := hash.FromReader(f)
	if err != nil {
		return hash.Hash{}, 0, err
	}
	return h, info.Size(), nil
}

// publish emits a progress event for one pipeline stage transition,
// tolerating a nil broker so tests and one-shot callers need not wire
// one up.
func publish(b *events.Broker, typ events.EventType, stage events.Stage, stateID, pkg string) {
	if b == nil {
		return
	}
	b.Publish(&events.Event{
		Type:    typ,
		Message: string(stage),
		Package: pkg,
		Metadata: map[string]string{
			"state_id": stateID,
		},
	})
}
