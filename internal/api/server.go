// Package api serves the registration webhook, the operator debug view, the
// analytics badges and the operational endpoints.
package api

import (
	"context"
	"errors"
	"time"

	"rating-notifier/internal/common/auth"
	apperrors "rating-notifier/internal/common/errors"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HandleStore is the registry surface the HTTP layer reads and writes.
type HandleStore interface {
	Create(ctx context.Context, email, handle string) (*models.HandleRecord, error)
	ResetToUnknown(ctx context.Context, id, handle string) error
	GetByEmail(ctx context.Context, email string) (*models.HandleRecord, error)
	GetByHandle(ctx context.Context, handle string) ([]models.HandleRecord, error)
	GetByState(ctx context.Context, state models.HandleState, limit int) ([]models.HandleRecord, error)
	CountValid(ctx context.Context) (int, error)
}

// NotificationStore is the read-only outbox surface the HTTP layer uses.
type NotificationStore interface {
	GetByHandle(ctx context.Context, handle string) ([]models.Notification, error)
	GetByStateAndType(ctx context.Context, state models.NotificationState, typ models.NotificationType, limit int) ([]models.Notification, error)
	CountSent(ctx context.Context, typ models.NotificationType) (int, error)
}

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Handles       HandleStore
	Notifications NotificationStore
	Verifier      *auth.Verifier
	Checks        map[string]Pinger
	Logger        logger.Logger
	// DebugLimit bounds each debug queue when no limit is requested.
	DebugLimit int
}

type Server struct {
	app  *fiber.App
	deps Dependencies
	log  logger.Logger
}

func New(deps Dependencies) *Server {
	if deps.DebugLimit <= 0 {
		deps.DebugLimit = 50
	}
	s := &Server{
		deps: deps,
		log:  deps.Logger.WithFields(map[string]interface{}{"component": "api"}),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          s.errorHandler,
	})
	s.app.Use(recover.New())
	s.RegisterRoutes(s.app)
	return s
}

// RegisterRoutes mounts every endpoint on app.
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Post("/register", s.register)

	app.Get("/debug", debugCORS, s.debug)
	app.Options("/debug", debugCORS, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/analytics", s.analytics)

	app.Get("/health", s.health)
	app.Get("/ready", s.ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.log.Info("HTTP server listening", map[string]interface{}{"address": addr})
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		fields := map[string]interface{}{
			"path":   c.Path(),
			"method": c.Method(),
			"error":  err.Error(),
		}
		if stdErr, ok := apperrors.AsStandardError(err); ok {
			fields["errorCode"] = string(stdErr.Code)
			fields["details"] = stdErr.Details
		}
		s.log.Error("Request failed", fields)
	}
	return c.SendStatus(code)
}
