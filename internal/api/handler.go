package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"waste-station-backend/internal/errs"
	"waste-station-backend/internal/ledger"
	"waste-station-backend/internal/model"
	"waste-station-backend/internal/station"
)

// StationRegistry is the station lifecycle surface the handlers call into.
type StationRegistry interface {
	CreateStation(ctx context.Context, name string) (station.Result, error)
	SetVolume(ctx context.Context, stationID int64, percentage float64) (station.Result, error)
	ConfirmCollection(ctx context.Context, stationID int64) (station.Result, error)
	GetStation(ctx context.Context, stationID int64) (model.Station, error)
	ListStations(ctx context.Context) ([]model.Station, error)
	Ping(ctx context.Context) error
}

// HistoryReader is the read side of the history ledger.
type HistoryReader interface {
	Query(ctx context.Context, f ledger.Filter) (ledger.Page, error)
	Get(ctx context.Context, id int64) (model.HistoryRecord, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	stations StationRegistry
	history  HistoryReader
	log      *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(stations StationRegistry, history HistoryReader, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		stations: stations,
		history:  history,
		log:      log.Named("api"),
	}
}

// Health reports whether the database answers.
func (h *Handler) Health(c *gin.Context) {
	if err := h.stations.Ping(c.Request.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps an error kind to an HTTP status. Storage details stay in the log.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindInvalidState:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	}

	msg := errs.Message(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal storage error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
