package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fieldops/livetrack/internal/api/metrics"
	"github.com/fieldops/livetrack/internal/core/ports"
)

// LocationHandler handles HTTP requests for location ingest.
type LocationHandler struct {
	service ports.LocationService
}

func NewLocationHandler(service ports.LocationService) *LocationHandler {
	return &LocationHandler{service: service}
}

// --- Request / Response types ---

type ingestRequest struct {
	Lat        *float64  `json:"lat"         validate:"required"`
	Lng        *float64  `json:"lng"         validate:"required"`
	AccuracyM  *float64  `json:"accuracy_m"  validate:"omitempty,gte=0"`
	Source     string    `json:"source"      validate:"required,oneof=device manual"`
	CapturedAt time.Time `json:"captured_at"`
	// Identity targets another technician's sample. Only honoured for
	// admin callers; everyone else writes their own row.
	Identity *int64 `json:"identity"`
}

type ackResponse struct {
	Message string `json:"message"`
}

// Put handles PUT /v1/location. It upserts the caller's latest position.
//
// @Summary      Ingest the caller's latest location fix
// @Tags         location
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      ingestRequest  true  "Location fix"
// @Success      200   {object}  ackResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /v1/location [put]
func (h *LocationHandler) Put(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		metrics.IngestErrorsTotal.WithLabelValues("invalid_payload").Inc()
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	identity, role, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	target := identity
	if req.Identity != nil {
		target = *req.Identity
	}

	err = h.service.Ingest(c.Request().Context(), ports.IngestInput{
		Identity:       target,
		Lat:            *req.Lat,
		Lng:            *req.Lng,
		AccuracyM:      req.AccuracyM,
		Source:         req.Source,
		CapturedAt:     req.CapturedAt,
		CallerIdentity: identity,
		CallerRole:     role,
	})
	if err != nil {
		metrics.IngestErrorsTotal.WithLabelValues(ingestErrorReason(err)).Inc()
		return err
	}

	metrics.IngestTotal.WithLabelValues(req.Source).Inc()
	return c.JSON(http.StatusOK, ackResponse{Message: "location accepted"})
}
