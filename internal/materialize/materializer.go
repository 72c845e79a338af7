// Package materialize downloads gated assets to local device storage and
// tracks their per-asset download state.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/edupress/content_gateway/internal/access"
	"github.com/edupress/content_gateway/internal/device"
	"github.com/edupress/content_gateway/internal/logctx"
	"github.com/edupress/content_gateway/internal/materialize/progress"
	"github.com/edupress/content_gateway/internal/storage"
	"github.com/edupress/content_gateway/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// progressLogInterval is how many bytes pass between progress log lines.
const progressLogInterval = int64(4 * 1024 * 1024)

// AssetFetcher is the backend slice the materializer consumes.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, desc access.AssetDescriptor, token string) (io.ReadCloser, int64, error)
}

// Materializer downloads assets into targetDir. Each asset is either Idle
// or InProgress; success and failure both return it to Idle, so a retry
// after a failure starts clean. A second concurrent download of the same
// asset is rejected with access.ErrDownloadInFlight rather than relying
// on the caller's UI to disable the trigger. Distinct assets download in
// parallel freely.
type Materializer struct {
	targetDir   string
	maxParallel int
	fetcher     AssetFetcher
	perms       device.PermissionChecker
	sharer      device.Sharer
	sessions    access.SessionInvalidator
	repo        storage.AssetWriteRepository
	telemetry   *telemetry.Telemetry

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewMaterializer(
	targetDir string,
	maxParallel int,
	fetcher AssetFetcher,
	perms device.PermissionChecker,
	sharer device.Sharer,
	sessions access.SessionInvalidator,
	repo storage.AssetWriteRepository,
	tel *telemetry.Telemetry,
) *Materializer {
	// A non-positive limit would make DownloadAll block on an unbuffered
	// semaphore forever.
	if maxParallel < 1 {
		maxParallel = 1
	}

	return &Materializer{
		targetDir:   targetDir,
		maxParallel: maxParallel,
		fetcher:     fetcher,
		perms:       perms,
		sharer:      sharer,
		sessions:    sessions,
		repo:        repo,
		telemetry:   tel,
		inFlight:    make(map[string]struct{}),
	}
}

// InFlight reports whether a download for the asset is currently running,
// for callers that surface an in-flight flag.
func (m *Materializer) InFlight(assetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.inFlight[assetID]

	return ok
}

// Download materializes one asset. The storage-permission check runs
// before any network request; share/export failures after a successful
// download are logged, never surfaced.
func (m *Materializer) Download(ctx context.Context, ref access.ContentRef, desc access.AssetDescriptor, sess access.Session) (*access.MaterializedAsset, error) {
	if !m.begin(desc.AssetID) {
		return nil, access.ErrDownloadInFlight
	}
	// Back to Idle whichever branch ran.
	defer m.finish(desc.AssetID)

	var mat *access.MaterializedAsset

	err := m.telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		var err error
		mat, err = m.materialize(ctx, ref, desc, sess)

		return err
	})
	if err != nil {
		return nil, err
	}

	return mat, nil
}

// DownloadAll materializes every PDF asset of a catalog with bounded
// parallelism and returns how many finished.
func (m *Materializer) DownloadAll(ctx context.Context, ref access.ContentRef, descs []access.AssetDescriptor, sess access.Session) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	var downloaded int32

	wg, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, m.maxParallel)

	for i := range descs {
		desc := descs[i]
		if desc.Kind != access.AssetPdf {
			continue
		}

		sem <- struct{}{}

		wg.Go(func() error {
			defer func() { <-sem }()

			if _, err := m.Download(ctx, ref, desc, sess); err != nil {
				logger.Error("failed to download asset", "asset_id", desc.AssetID, "err", err)

				return err
			}

			atomic.AddInt32(&downloaded, 1)

			return nil
		})
	}

	if err := wg.Wait(); err != nil {
		return int(downloaded), fmt.Errorf("failed to download assets: %w", err)
	}

	return int(downloaded), nil
}

func (m *Materializer) materialize(ctx context.Context, ref access.ContentRef, desc access.AssetDescriptor, sess access.Session) (*access.MaterializedAsset, error) {
	logger := logctx.LoggerFromContext(ctx).With("asset_id", desc.AssetID)

	if desc.Kind != access.AssetPdf {
		return nil, &access.DownloadError{AssetID: desc.AssetID, Message: "video links are streamed, not downloaded"}
	}

	if err := m.perms.EnsureWritable(ctx, m.targetDir); err != nil {
		return nil, &access.PermissionError{Path: m.targetDir, Err: err}
	}

	body, size, err := m.fetcher.FetchAsset(ctx, desc, sess.Token)
	if err != nil {
		var authErr *access.AuthError
		if errors.As(err, &authErr) && m.sessions != nil {
			if cerr := m.sessions.Clear(ctx); cerr != nil {
				logger.Error("failed to clear session after download auth rejection", "err", cerr)
			}
		}

		return nil, err
	}
	defer body.Close()

	targetPath := filepath.Join(m.targetDir, localFilename(desc))

	out, err := os.Create(targetPath)
	if err != nil {
		return nil, &access.DownloadError{AssetID: desc.AssetID, Message: "failed to create local file", Err: err}
	}
	defer out.Close()

	if err := m.writeFile(ctx, out, body, desc, targetPath, size); err != nil {
		return nil, &access.DownloadError{AssetID: desc.AssetID, Message: "failed to write local file", Err: err}
	}

	mat := &access.MaterializedAsset{
		AssetID:      desc.AssetID,
		LocalPath:    targetPath,
		DownloadedAt: time.Now(),
	}

	if m.repo != nil {
		if err := m.repo.TrackAsset(storage.AssetRecord{
			AssetID:      desc.AssetID,
			ContentID:    ref.ContentID,
			ContentKind:  string(ref.Kind),
			LocalPath:    targetPath,
			DownloadedAt: mat.DownloadedAt,
		}); err != nil {
			// Tracking is bookkeeping; the asset is already on disk.
			logger.Error("failed to track materialized asset", "err", err)
		}
	}

	if m.sharer != nil {
		if err := m.sharer.Share(ctx, targetPath); err != nil {
			logger.Warn("share failed after successful download", "target", targetPath, "err", err)
		}
	}

	logger.Info("downloaded and saved asset", "target", targetPath)

	return mat, nil
}

func (m *Materializer) writeFile(ctx context.Context, out *os.File, reader io.Reader, desc access.AssetDescriptor, targetPath string, totalBytes int64) error {
	logger := logctx.LoggerFromContext(ctx)

	logger.Info("downloading asset", "file_path", targetPath, "file_size", humanize.Bytes(uint64(max(totalBytes, 0))))

	progressCb := func(written int64, total int64) {
		if total > 0 {
			logger.Debug("download progress",
				"asset_id", desc.AssetID,
				"downloaded", humanize.Bytes(uint64(written)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(written)*100/float64(total), 2))
		} else {
			logger.Debug("download progress", "asset_id", desc.AssetID, "downloaded", humanize.Bytes(uint64(written)))
		}
	}
	pr := progress.NewReader(reader, totalBytes, progressLogInterval, progressCb)

	if _, err := io.Copy(out, pr); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	return nil
}

func (m *Materializer) begin(assetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inFlight[assetID]; ok {
		return false
	}

	m.inFlight[assetID] = struct{}{}

	return true
}

func (m *Materializer) finish(assetID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.inFlight, assetID)
}

// localFilename derives a deterministic filename from the asset's display
// name; repeat downloads collide on purpose and overwrite.
func localFilename(desc access.AssetDescriptor) string {
	name := filepath.Base(strings.TrimSpace(desc.OriginalName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = desc.AssetID + ".pdf"
	}

	return name
}
