package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"waste-station-backend/internal/errs"
	"waste-station-backend/internal/ledger"
	"waste-station-backend/internal/model"
	"waste-station-backend/internal/parse"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// historyResponse is a history record with the station name resolved.
type historyResponse struct {
	ID               int64               `json:"id"`
	Station          int64               `json:"station"`
	StationName      string              `json:"station_name"`
	OperationType    model.OperationType `json:"operation_type"`
	VolumePercentage float64             `json:"volume_percentage"`
	Timestamp        time.Time           `json:"timestamp"`
	Notes            *string             `json:"notes"`
}

type historyPageResponse struct {
	Count   int64             `json:"count"`
	Results []historyResponse `json:"results"`
}

// ListHistory handles GET /api/history.
//
// Query parameters: station_id, order (asc|desc, default asc), limit, offset.
func (h *Handler) ListHistory(c *gin.Context) {
	filter, err := historyFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	page, err := h.history.Query(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	names, err := h.stationNames(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := historyPageResponse{Count: page.Count, Results: make([]historyResponse, 0, len(page.Results))}
	for _, rec := range page.Results {
		resp.Results = append(resp.Results, toHistoryResponse(rec, names[rec.StationID]))
	}
	c.JSON(http.StatusOK, resp)
}

// GetHistory handles GET /api/history/:id.
func (h *Handler) GetHistory(c *gin.Context) {
	id, err := parse.ID(c.Param("id"))
	if err != nil {
		h.writeError(c, errs.Validation("history", "invalid history id"))
		return
	}

	rec, err := h.history.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var name string
	if st, err := h.stations.GetStation(c.Request.Context(), rec.StationID); err == nil {
		name = st.Name
	} else if errs.KindOf(err) != errs.KindNotFound {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toHistoryResponse(rec, name))
}

func historyFilter(c *gin.Context) (ledger.Filter, error) {
	f := ledger.Filter{Limit: defaultHistoryLimit}

	if raw := c.Query("station_id"); raw != "" {
		id, err := parse.ID(raw)
		if err != nil {
			return f, errs.Validation("history", "invalid station_id")
		}
		f.StationID = id
	}

	switch c.DefaultQuery("order", "asc") {
	case "asc":
	case "desc":
		f.Newest = true
	default:
		return f, errs.Validation("history", "order must be asc or desc")
	}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			return f, errs.Validation("history", "limit must be between 1 and %d", maxHistoryLimit)
		}
		f.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, errs.Validation("history", "offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

func (h *Handler) stationNames(c *gin.Context) (map[int64]string, error) {
	stations, err := h.stations.ListStations(c.Request.Context())
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(stations))
	for _, st := range stations {
		names[st.ID] = st.Name
	}
	return names, nil
}

func toHistoryResponse(rec model.HistoryRecord, stationName string) historyResponse {
	return historyResponse{
		ID:               rec.ID,
		Station:          rec.StationID,
		StationName:      stationName,
		OperationType:    rec.OperationType,
		VolumePercentage: rec.VolumePercentage,
		Timestamp:        rec.Timestamp,
		Notes:            rec.Notes,
	}
}
