package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"waste-station-backend/internal/errs"
	"waste-station-backend/internal/model"
)

// Store defines the persistence operations for stations.
type Store interface {
	CreateStation(ctx context.Context, station *model.Station) error
	GetStation(ctx context.Context, id int64) (model.Station, error)
	ListStations(ctx context.Context) ([]model.Station, error)
	SaveStation(ctx context.Context, station *model.Station) error
	CountStations(ctx context.Context) (int64, error)

	// WithTx returns a Store whose operations run inside tx.
	WithTx(tx *gorm.DB) Store
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

func (s *gormStore) WithTx(tx *gorm.DB) Store {
	return &gormStore{db: tx}
}

// CreateStation inserts station and fills in its id.
func (s *gormStore) CreateStation(ctx context.Context, station *model.Station) error {
	if err := s.db.WithContext(ctx).Create(station).Error; err != nil {
		return errs.Storage("store.createStation", err)
	}
	return nil
}

// GetStation loads a station by id.
func (s *gormStore) GetStation(ctx context.Context, id int64) (model.Station, error) {
	var station model.Station
	err := s.db.WithContext(ctx).First(&station, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Station{}, errs.NotFound("store.getStation", "station %d not found", id)
	}
	if err != nil {
		return model.Station{}, errs.Storage("store.getStation", err)
	}
	return station, nil
}

// ListStations returns all stations in creation order.
func (s *gormStore) ListStations(ctx context.Context) ([]model.Station, error) {
	stations := make([]model.Station, 0)
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&stations).Error; err != nil {
		return nil, errs.Storage("store.listStations", err)
	}
	return stations, nil
}

// SaveStation writes the mutable fields of station. Name and creation time are immutable.
func (s *gormStore) SaveStation(ctx context.Context, station *model.Station) error {
	res := s.db.WithContext(ctx).
		Model(&model.Station{}).
		Where("id = ?", station.ID).
		Updates(map[string]any{
			"volume_percentage":    station.VolumePercentage,
			"collection_requested": station.CollectionRequested,
			"updated_at":           station.UpdatedAt,
		})
	if res.Error != nil {
		return errs.Storage("store.saveStation", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("store.saveStation", "station %d not found", station.ID)
	}
	return nil
}

// CountStations returns the number of stations.
func (s *gormStore) CountStations(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Station{}).Count(&n).Error; err != nil {
		return 0, errs.Storage("store.countStations", err)
	}
	return n, nil
}
