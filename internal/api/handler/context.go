package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fieldops/livetrack/internal/core/domain"
)

// ctxIdentity extracts the auth claims injected by the Auth middleware and
// performs a fast-fail check before any service call:
//   - role must be non-empty (presence proves the middleware ran).
//   - a technician must carry a resolved identity; without it the token is
//     structurally valid but operationally unusable; reject with 401.
func ctxIdentity(c echo.Context) (identity int64, role string, err error) {
	role, _ = c.Get("role").(string)
	if role == "" {
		return 0, "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}

	identity, _ = c.Get("identity").(int64)
	if role == domain.RoleTechnician && identity == 0 {
		return 0, "", echo.NewHTTPError(http.StatusUnauthorized, "token missing technician identity")
	}

	return identity, role, nil
}

// ingestErrorReason maps an ingest failure to its metrics label.
func ingestErrorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCoordinates):
		return "invalid_coordinates"
	case errors.Is(err, domain.ErrIdentityMismatch):
		return "identity_mismatch"
	default:
		return "store_error"
	}
}
