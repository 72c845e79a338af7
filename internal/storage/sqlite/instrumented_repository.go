package sqlite

import (
	"context"
	"database/sql"

	"github.com/edupress/content_gateway/internal/storage"
	"github.com/edupress/content_gateway/internal/telemetry"
)

// InstrumentedAssetRepository wraps AssetRepository with telemetry.
type InstrumentedAssetRepository struct {
	repo      *AssetRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedAssetRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedAssetRepository {
	return &InstrumentedAssetRepository{
		repo:      NewAssetRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedAssetRepository) GetAssets() ([]storage.AssetRecord, error) {
	var result []storage.AssetRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "get_assets", func(ctx context.Context) error {
		result, err = r.repo.GetAssets()

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedAssetRepository) TrackAsset(rec storage.AssetRecord) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "track_asset", func(ctx context.Context) error {
		return r.repo.TrackAsset(rec)
	})
}

func (r *InstrumentedAssetRepository) DeleteAsset(assetID string) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "delete_asset", func(ctx context.Context) error {
		return r.repo.DeleteAsset(assetID)
	})
}

var _ storage.AssetRepository = (*InstrumentedAssetRepository)(nil)
