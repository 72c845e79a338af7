package sqlite

import (
	"database/sql"
	"time"

	"github.com/edupress/content_gateway/internal/storage"
)

type AssetRepository struct {
	db *sql.DB
}

func NewAssetRepository(dbConn *sql.DB) *AssetRepository {
	return &AssetRepository{db: dbConn}
}

func (r *AssetRepository) GetAssets() ([]storage.AssetRecord, error) {
	rows, err := r.db.Query(`SELECT asset_id, content_id, content_kind, local_path, downloaded_at FROM materialized_assets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.AssetRecord

	for rows.Next() {
		var record storage.AssetRecord

		var downloadedAt string

		if err := rows.Scan(&record.AssetID, &record.ContentID, &record.ContentKind, &record.LocalPath, &downloadedAt); err != nil {
			return nil, err
		}

		if ts, err := time.Parse(time.RFC3339, downloadedAt); err == nil {
			record.DownloadedAt = ts
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

// TrackAsset upserts the tracking row for an asset. Repeat downloads of
// the same asset replace the previous row.
func (r *AssetRepository) TrackAsset(rec storage.AssetRecord) error {
	_, err := r.db.Exec(`
		INSERT INTO materialized_assets (asset_id, content_id, content_kind, local_path, downloaded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
			content_id = excluded.content_id,
			content_kind = excluded.content_kind,
			local_path = excluded.local_path,
			downloaded_at = excluded.downloaded_at
	`, rec.AssetID, rec.ContentID, rec.ContentKind, rec.LocalPath, rec.DownloadedAt.Format(time.RFC3339))

	return err
}

func (r *AssetRepository) DeleteAsset(assetID string) error {
	_, err := r.db.Exec(`DELETE FROM materialized_assets WHERE asset_id = ?`, assetID)

	return err
}
