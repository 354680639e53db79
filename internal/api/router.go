package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fieldops/livetrack/internal/api/handler"
	"github.com/fieldops/livetrack/internal/api/middleware"
	"github.com/fieldops/livetrack/internal/core/domain"
	"github.com/fieldops/livetrack/internal/core/ports"
	"github.com/fieldops/livetrack/internal/realtime/stream"
)

// Deps carries everything the router wires together. The services arrive
// already constructed so the transport layer stays free of storage details.
type Deps struct {
	Mongo     *mongo.Database
	Redis     *redis.Client
	Locations ports.LocationService
	Statuses  ports.StatusService
	Stream    *stream.Server
	JWTSecret string
	Logger    zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echoprometheus.NewMiddleware("livetrack"))

	authMiddleware := middleware.Auth(d.JWTSecret)

	// --- Realtime core ---
	locationHandler := handler.NewLocationHandler(d.Locations)
	bookingHandler := handler.NewBookingHandler(d.Statuses)

	v1 := e.Group("/v1", authMiddleware)
	v1.PUT("/location", locationHandler.Put,
		middleware.RBAC(domain.RoleAdmin, domain.RoleTechnician))
	v1.POST("/bookings/:id/status", bookingHandler.UpdateStatus,
		middleware.RBAC(domain.RoleAdmin, domain.RoleTechnician))
	v1.GET("/stream", d.Stream.Handle)

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(d.Mongo, d.Redis)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthDepsHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())

	return e
}
