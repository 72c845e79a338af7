package storage

import "time"

// AssetRecord is the local tracking row for one materialized asset.
// Records are upserted: repeat downloads overwrite both the file and the
// row, since no dedup is promised.
type AssetRecord struct {
	AssetID      string
	ContentID    string
	ContentKind  string
	LocalPath    string
	DownloadedAt time.Time
}

type AssetReadRepository interface {
	GetAssets() ([]AssetRecord, error)
}

type AssetWriteRepository interface {
	TrackAsset(rec AssetRecord) error
	DeleteAsset(assetID string) error
}

// AssetRepository combines read and write access to the tracking store.
type AssetRepository interface {
	AssetReadRepository
	AssetWriteRepository
}
