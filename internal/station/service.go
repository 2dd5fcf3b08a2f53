// Package station is the station registry: it owns station state and enforces the
// collection lifecycle
//
//	NORMAL --volume >= threshold--> PENDING_COLLECTION --confirm--> NORMAL (volume 0)
//
// Every successful mutation appends exactly one history record in the same
// database transaction as the station write.
package station

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"waste-station-backend/internal/errs"
	"waste-station-backend/internal/ledger"
	"waste-station-backend/internal/metrics"
	"waste-station-backend/internal/model"
	"waste-station-backend/internal/parse"
	"waste-station-backend/internal/store"
)

// Operation names used in logs and metrics.
const (
	opCreate  = "createStation"
	opSetVol  = "setVolume"
	opConfirm = "confirmCollection"
)

// Policy configures when a collection is requested.
type Policy struct {
	// ThresholdPercentage is the fill level, in (0, 100], that raises a request.
	ThresholdPercentage float64
}

func (p Policy) validate() error {
	t := p.ThresholdPercentage
	if math.IsNaN(t) || t <= 0 || t > 100 {
		return fmt.Errorf("collection threshold must be in (0, 100], got %v", t)
	}
	return nil
}

// Result is the outcome of a committed mutation: the station as stored and the
// history record appended for it.
type Result struct {
	Station model.Station
	Record  model.HistoryRecord
}

// Service implements the station registry.
type Service struct {
	db      *gorm.DB
	store   store.Store
	ledger  *ledger.Ledger
	policy  Policy
	locks   *keyedMutex
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the registry on top of st and lg, which must share a database.
func NewService(st store.Store, lg *ledger.Ledger, policy Policy, opts ...Option) (*Service, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	s := &Service{
		db:     st.DB(),
		store:  st,
		ledger: lg,
		policy: policy,
		locks:  newKeyedMutex(),
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("station")
	return s, nil
}

// Policy returns the active collection policy.
func (s *Service) Policy() Policy { return s.policy }

// CreateStation registers a new, empty station.
func (s *Service) CreateStation(ctx context.Context, name string) (res Result, err error) {
	defer s.observe(opCreate, time.Now(), &err)

	normalized, perr := parse.StationName(name)
	if perr != nil {
		return Result{}, errs.Validation(opCreate, "%s", perr.Error())
	}

	now := s.now().UTC()
	station := model.Station{
		Name:      normalized,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.inTx(ctx, opCreate, func(st store.Store, lg *ledger.Ledger) error {
		if err := st.CreateStation(ctx, &station); err != nil {
			return err
		}
		rec, err := lg.Append(ctx, newRecord(station, model.OperationCreate, "Station created"))
		if err != nil {
			return err
		}
		res = Result{Station: station, Record: rec}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.log.Info("station created",
		zap.Int64("station_id", res.Station.ID),
		zap.String("name", res.Station.Name),
	)
	return res, nil
}

// SetVolume records a new fill reading. A reading at or above the threshold on a
// station without a pending request raises one; readings taken while a request is
// pending are stored but leave the flag set.
func (s *Service) SetVolume(ctx context.Context, stationID int64, percentage float64) (res Result, err error) {
	defer s.observe(opSetVol, time.Now(), &err)

	unlock := s.locks.Lock(stationID)
	defer unlock()

	err = s.inTx(ctx, opSetVol, func(st store.Store, lg *ledger.Ledger) error {
		station, err := st.GetStation(ctx, stationID)
		if err != nil {
			return err
		}
		if err := validatePercentage(percentage); err != nil {
			return err
		}

		station.VolumePercentage = percentage
		station.UpdatedAt = s.now().UTC()

		op := model.OperationUpdate
		note := fmt.Sprintf("Volume updated to %.1f%%", percentage)
		if !station.CollectionRequested && percentage >= s.policy.ThresholdPercentage {
			station.CollectionRequested = true
			op = model.OperationCollectionRequest
			note = fmt.Sprintf("Collection requested at %.1f%% (threshold %.1f%%)", percentage, s.policy.ThresholdPercentage)
		}

		if err := st.SaveStation(ctx, &station); err != nil {
			return err
		}
		rec, err := lg.Append(ctx, newRecord(station, op, note))
		if err != nil {
			return err
		}
		res = Result{Station: station, Record: rec}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if res.Record.OperationType == model.OperationCollectionRequest {
		s.metrics.IncCollectionRequests()
		s.log.Info("collection requested",
			zap.Int64("station_id", stationID),
			zap.Float64("volume_percentage", percentage),
			zap.Float64("threshold", s.policy.ThresholdPercentage),
		)
	} else {
		s.log.Debug("volume updated",
			zap.Int64("station_id", stationID),
			zap.Float64("volume_percentage", percentage),
		)
	}
	return res, nil
}

// ConfirmCollection marks a pending collection as done and empties the station.
func (s *Service) ConfirmCollection(ctx context.Context, stationID int64) (res Result, err error) {
	defer s.observe(opConfirm, time.Now(), &err)

	unlock := s.locks.Lock(stationID)
	defer unlock()

	err = s.inTx(ctx, opConfirm, func(st store.Store, lg *ledger.Ledger) error {
		station, err := st.GetStation(ctx, stationID)
		if err != nil {
			return err
		}
		if !station.CollectionRequested {
			return errs.InvalidState(opConfirm, "no collection has been requested for station %d", stationID)
		}

		previous := station.VolumePercentage
		station.VolumePercentage = 0
		station.CollectionRequested = false
		station.UpdatedAt = s.now().UTC()

		if err := st.SaveStation(ctx, &station); err != nil {
			return err
		}
		note := fmt.Sprintf("Collection confirmed, volume reset from %.1f%%", previous)
		rec, err := lg.Append(ctx, newRecord(station, model.OperationCollectionComplete, note))
		if err != nil {
			return err
		}
		res = Result{Station: station, Record: rec}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.log.Info("collection confirmed", zap.Int64("station_id", stationID))
	return res, nil
}

// GetStation returns the latest committed state of a station.
func (s *Service) GetStation(ctx context.Context, stationID int64) (model.Station, error) {
	return s.store.GetStation(ctx, stationID)
}

// ListStations returns every station in creation order.
func (s *Service) ListStations(ctx context.Context) ([]model.Station, error) {
	return s.store.ListStations(ctx)
}

// Ping checks that the database answers.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errs.Storage("ping", err)
	}
	return errs.Storage("ping", sqlDB.PingContext(ctx))
}

// inTx runs fn with a store and ledger bound to one transaction.
func (s *Service) inTx(ctx context.Context, op string, fn func(store.Store, *ledger.Ledger) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.store.WithTx(tx), s.ledger.WithTx(tx))
	})
	if err != nil {
		return errs.Storage(op, err)
	}
	return nil
}

func (s *Service) observe(op string, start time.Time, err *error) {
	result := metrics.ResultSuccess
	if *err != nil {
		result = string(errs.KindOf(*err))
		if errs.KindOf(*err) == errs.KindStorage {
			s.log.Error("mutation failed", zap.String("operation", op), zap.Error(*err))
		}
	}
	s.metrics.ObserveMutation(op, result, time.Since(start))
}

func validatePercentage(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return errs.Validation(opSetVol, "volume percentage must be between 0 and 100, got %v", p)
	}
	return nil
}

func newRecord(station model.Station, op model.OperationType, note string) model.HistoryRecord {
	return model.HistoryRecord{
		StationID:        station.ID,
		OperationType:    op,
		VolumePercentage: station.VolumePercentage,
		Notes:            &note,
	}
}
