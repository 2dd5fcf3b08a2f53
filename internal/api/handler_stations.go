package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"waste-station-backend/internal/errs"
	"waste-station-backend/internal/parse"
)

type createStationRequest struct {
	Name string `json:"name"`
}

type updateStationRequest struct {
	Name             *string  `json:"name"`
	VolumePercentage *float64 `json:"volume_percentage"`
}

// ListStations handles GET /api/stations.
func (h *Handler) ListStations(c *gin.Context) {
	stations, err := h.stations.ListStations(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stations)
}

// CreateStation handles POST /api/stations.
func (h *Handler) CreateStation(c *gin.Context) {
	var req createStationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, errs.Validation("createStation", "invalid request body"))
		return
	}

	res, err := h.stations.CreateStation(c.Request.Context(), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res.Station)
}

// GetStation handles GET /api/stations/:id.
func (h *Handler) GetStation(c *gin.Context) {
	id, ok := h.stationID(c)
	if !ok {
		return
	}

	station, err := h.stations.GetStation(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, station)
}

// UpdateStation handles PATCH /api/stations/:id. Only the volume is mutable; a
// name is accepted when it matches the stored one.
func (h *Handler) UpdateStation(c *gin.Context) {
	id, ok := h.stationID(c)
	if !ok {
		return
	}

	var req updateStationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, errs.Validation("setVolume", "invalid request body"))
		return
	}
	if req.VolumePercentage == nil {
		h.writeError(c, errs.Validation("setVolume", "volume_percentage is required"))
		return
	}

	if req.Name != nil {
		current, err := h.stations.GetStation(c.Request.Context(), id)
		if err != nil {
			h.writeError(c, err)
			return
		}
		if name, err := parse.StationName(*req.Name); err != nil || name != current.Name {
			h.writeError(c, errs.Validation("setVolume", "station name cannot be changed"))
			return
		}
	}

	res, err := h.stations.SetVolume(c.Request.Context(), id, *req.VolumePercentage)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res.Station)
}

// ConfirmCollection handles POST /api/stations/:id/confirm_collection.
func (h *Handler) ConfirmCollection(c *gin.Context) {
	id, ok := h.stationID(c)
	if !ok {
		return
	}

	res, err := h.stations.ConfirmCollection(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res.Station)
}

func (h *Handler) stationID(c *gin.Context) (int64, bool) {
	id, err := parse.ID(c.Param("id"))
	if err != nil {
		h.writeError(c, errs.Validation("station", "invalid station id"))
		return 0, false
	}
	return id, true
}
