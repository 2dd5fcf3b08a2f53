// Package seed creates the initial stations on an empty database.
package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"waste-station-backend/internal/errs"
	"waste-station-backend/internal/model"
	"waste-station-backend/internal/parse"
	"waste-station-backend/internal/station"
)

// Registry is the subset of the station registry seeding needs.
type Registry interface {
	ListStations(ctx context.Context) ([]model.Station, error)
	CreateStation(ctx context.Context, name string) (station.Result, error)
}

// Run creates one station per name, but only when no station exists yet. It
// returns the number of stations created. Every name is checked before the
// first station is created, so a bad name leaves the database empty.
func Run(ctx context.Context, reg Registry, names []string, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("seed")

	existing, err := reg.ListStations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stations: %w", err)
	}
	if len(existing) > 0 {
		log.Info("stations already present, skipping seed", zap.Int("count", len(existing)))
		return 0, nil
	}

	for _, name := range names {
		if _, err := parse.StationName(name); err != nil {
			return 0, errs.Validation("seed", "station name %q: %s", name, err.Error())
		}
	}

	created := 0
	for _, name := range names {
		res, err := reg.CreateStation(ctx, name)
		if err != nil {
			return created, fmt.Errorf("create station %q: %w", name, err)
		}
		created++
		log.Info("seeded station", zap.Int64("station_id", res.Station.ID), zap.String("name", res.Station.Name))
	}
	return created, nil
}
