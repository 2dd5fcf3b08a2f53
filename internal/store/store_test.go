package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"waste-station-backend/internal/errs"
	"waste-station-backend/internal/model"
	"waste-station-backend/internal/testutil"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGormStore_GetStation(t *testing.T) {
	now := time.Now().UTC()

	testCases := []struct {
		name             string
		id               int64
		mockExpectations func(mock sqlmock.Sqlmock)
		expectedName     string
		expectedErr      error
	}{
		{
			name: "Station exists",
			id:   1,
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "stations" WHERE "stations"."id" = $1`)).
					WithArgs(1, 1).
					WillReturnRows(sqlmock.NewRows([]string{"id", "name", "volume_percentage", "collection_requested", "created_at", "updated_at"}).
						AddRow(1, "Dock A", 42.5, false, now, now))
			},
			expectedName: "Dock A",
		},
		{
			name: "Station missing maps to not found",
			id:   2,
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "stations" WHERE "stations"."id" = $1`)).
					WithArgs(2, 1).
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
			},
			expectedErr: errs.ErrNotFound,
		},
		{
			name: "Driver failure maps to storage error",
			id:   3,
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "stations"`)).
					WillReturnError(errors.New("connection refused"))
			},
			expectedErr: errs.ErrStorage,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newTestDB(t)
			store := NewGormStore(gormDB)

			tc.mockExpectations(mock)

			station, err := store.GetStation(context.Background(), tc.id)

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedName, station.Name)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_SaveStation(t *testing.T) {
	now := time.Now().UTC()

	t.Run("Writes zero values", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		store := NewGormStore(gormDB)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "stations" SET`)).
			WithArgs(false, Any{}, 0.0, 9).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.SaveStation(context.Background(), &model.Station{ID: 9, UpdatedAt: now})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown station", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		store := NewGormStore(gormDB)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "stations" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := store.SaveStation(context.Background(), &model.Station{ID: 10, UpdatedAt: now})
		assert.ErrorIs(t, err, errs.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStore_ListStationsInCreationOrder(t *testing.T) {
	store := NewGormStore(testutil.NewSQLite(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for _, name := range []string{"Zulu", "Alpha", "Mike"} {
		require.NoError(t, store.CreateStation(ctx, &model.Station{Name: name, CreatedAt: now, UpdatedAt: now}))
	}

	stations, err := store.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 3)
	assert.Equal(t, "Zulu", stations[0].Name)
	assert.Equal(t, "Alpha", stations[1].Name)
	assert.Equal(t, "Mike", stations[2].Name)

	n, err := store.CountStations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestGormStore_WithTxRollsBack(t *testing.T) {
	gormDB := testutil.NewSQLite(t)
	store := NewGormStore(gormDB)
	ctx := context.Background()
	now := time.Now().UTC()

	err := gormDB.Transaction(func(tx *gorm.DB) error {
		if err := store.WithTx(tx).CreateStation(ctx, &model.Station{Name: "Ghost", CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	n, err := store.CountStations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}
