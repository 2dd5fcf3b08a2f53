// Package ledger is the append-only history of committed station mutations.
//
// Records are only ever inserted; there is no update or delete path. Ordering is
// timestamp ascending with insertion order (the auto-increment id) breaking ties.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"waste-station-backend/internal/errs"
	"waste-station-backend/internal/model"
)

// Ledger appends and reads history records.
type Ledger struct {
	db   *gorm.DB
	now  func() time.Time
	inTx bool
}

// New creates a GORM-backed ledger. A nil clock means time.Now.
func New(db *gorm.DB, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{db: db, now: now}
}

// WithTx returns a ledger bound to an open transaction, so an append commits or
// rolls back together with the caller's other writes.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx, now: l.now, inTx: true}
}

// Filter narrows and pages a history query. Zero values mean "no constraint".
type Filter struct {
	StationID int64
	Newest    bool // newest first instead of oldest first
	Limit     int
	Offset    int // only applied together with Limit
}

// Page is one page of a query together with the total number of matches.
type Page struct {
	Count   int64
	Results []model.HistoryRecord
}

// Append stores rec and returns it with its id and timestamp filled in.
// An assigned timestamp never precedes the latest record in the ledger, so List
// order matches append order even when the clock steps backwards.
//
// Storage faults are the only runtime failure. An operation type outside the
// four known ones is a caller bug and is reported as a validation error without
// touching storage.
func (l *Ledger) Append(ctx context.Context, rec model.HistoryRecord) (model.HistoryRecord, error) {
	if !rec.OperationType.Valid() {
		return model.HistoryRecord{}, errs.Validation("ledger.append", "unknown operation type %q", rec.OperationType)
	}

	if l.inTx {
		if err := l.insert(l.db.WithContext(ctx), &rec); err != nil {
			return model.HistoryRecord{}, errs.Storage("ledger.append", err)
		}
		return rec, nil
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.insert(tx, &rec)
	})
	if err != nil {
		return model.HistoryRecord{}, errs.Storage("ledger.append", err)
	}
	return rec, nil
}

func (l *Ledger) insert(tx *gorm.DB, rec *model.HistoryRecord) error {
	if rec.Timestamp.IsZero() {
		ts := l.now().UTC()

		var last []model.HistoryRecord
		if err := orderByTime(tx, true).Limit(1).Find(&last).Error; err != nil {
			return fmt.Errorf("failed to read latest record: %w", err)
		}
		if len(last) == 1 && ts.Before(last[0].Timestamp) {
			ts = last[0].Timestamp.UTC()
		}
		rec.Timestamp = ts
	}

	if err := tx.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert %s record for station %d: %w", rec.OperationType, rec.StationID, err)
	}
	return nil
}

// List returns every record, oldest first.
func (l *Ledger) List(ctx context.Context) ([]model.HistoryRecord, error) {
	page, err := l.Query(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

// ListByStation returns the records of one station, oldest first.
func (l *Ledger) ListByStation(ctx context.Context, stationID int64) ([]model.HistoryRecord, error) {
	page, err := l.Query(ctx, Filter{StationID: stationID})
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

// Query returns the records matching f.
func (l *Ledger) Query(ctx context.Context, f Filter) (Page, error) {
	scoped := func() *gorm.DB {
		q := l.db.WithContext(ctx).Model(&model.HistoryRecord{})
		if f.StationID != 0 {
			q = q.Where("station_id = ?", f.StationID)
		}
		return q
	}

	var page Page
	if err := scoped().Count(&page.Count).Error; err != nil {
		return Page{}, errs.Storage("ledger.query", err)
	}

	q := scoped()
	q = orderByTime(q, f.Newest)
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}

	page.Results = make([]model.HistoryRecord, 0)
	if err := q.Find(&page.Results).Error; err != nil {
		return Page{}, errs.Storage("ledger.query", err)
	}
	return page, nil
}

func orderByTime(q *gorm.DB, newest bool) *gorm.DB {
	return q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "timestamp"}, Desc: newest},
		{Column: clause.Column{Name: "id"}, Desc: newest},
	}})
}

// Get returns a single record by id.
func (l *Ledger) Get(ctx context.Context, id int64) (model.HistoryRecord, error) {
	var rec model.HistoryRecord
	err := l.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.HistoryRecord{}, errs.NotFound("ledger.get", "history record %d not found", id)
	}
	if err != nil {
		return model.HistoryRecord{}, errs.Storage("ledger.get", err)
	}
	return rec, nil
}
