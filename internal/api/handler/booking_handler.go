package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fieldops/livetrack/internal/api/metrics"
	"github.com/fieldops/livetrack/internal/core/domain"
	"github.com/fieldops/livetrack/internal/core/ports"
)

// BookingHandler handles the status mutation endpoint.
type BookingHandler struct {
	service ports.StatusService
}

func NewBookingHandler(service ports.StatusService) *BookingHandler {
	return &BookingHandler{service: service}
}

type statusUpdateRequest struct {
	NewStatusID    int   `json:"new_status_id"   validate:"required"`
	TargetIdentity int64 `json:"target_identity" validate:"required"`
}

type statusUpdateResponse struct {
	Success bool `json:"success"`
}

// UpdateStatus handles POST /v1/bookings/:id/status.
//
// Success reflects the committed mutation only; whether the follow-up
// notification reached any live connection is invisible to the caller.
//
// @Summary      Update a booking's status
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                  true  "Booking id"
// @Param        body  body      statusUpdateRequest  true  "New status"
// @Success      200   {object}  statusUpdateResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /v1/bookings/{id}/status [post]
func (h *BookingHandler) UpdateStatus(c echo.Context) error {
	bookingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid booking id")
	}

	var req statusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	err = h.service.UpdateStatus(c.Request().Context(), ports.StatusUpdateInput{
		BookingID:      bookingID,
		NewStatusID:    req.NewStatusID,
		TargetIdentity: req.TargetIdentity,
	})
	if err != nil {
		return err
	}

	metrics.StatusUpdatesTotal.WithLabelValues(domain.BookingStatus(req.NewStatusID).Label()).Inc()
	return c.JSON(http.StatusOK, statusUpdateResponse{Success: true})
}
