package cleanup

import (
	"context"
	"os"
	"time"

	"github.com/edupress/content_gateway/internal/logctx"
	"github.com/edupress/content_gateway/internal/storage"
)

// DeleteExpiredAssets removes materialized files older than keepDuration
// and drops their tracking rows. A re-download simply materializes the
// asset again.
func DeleteExpiredAssets(ctx context.Context, repo storage.AssetRepository, keepDuration time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	records, err := repo.GetAssets()
	if err != nil {
		return err
	}

	for _, rec := range records {
		info, err := os.Stat(rec.LocalPath)
		if err != nil {
			if os.IsNotExist(err) {
				// File gone already; drop the stale row.
				if err := repo.DeleteAsset(rec.AssetID); err != nil {
					logger.Error("failed to drop stale asset record", "asset_id", rec.AssetID, "err", err)
				}

				continue
			}

			logger.Error("failed to stat file", "file", rec.LocalPath, "err", err)

			return err
		}

		downloadedAt := rec.DownloadedAt
		if downloadedAt.IsZero() {
			logger.Warn("missing download time, using file mod time", "file", rec.LocalPath)

			downloadedAt = info.ModTime()
		}

		if now.Sub(downloadedAt) > keepDuration {
			if err := os.Remove(rec.LocalPath); err != nil && !os.IsNotExist(err) {
				logger.Error("failed to delete expired file", "file", rec.LocalPath, "err", err)

				return err
			}

			if err := repo.DeleteAsset(rec.AssetID); err != nil {
				logger.Error("failed to drop expired asset record", "asset_id", rec.AssetID, "err", err)
			}

			logger.Info("deleted expired file", "file", rec.LocalPath)
		}
	}

	return nil
}
