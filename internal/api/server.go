package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/imaginify/internal/cache"
	"github.com/illegalcall/imaginify/internal/checkout"
	"github.com/illegalcall/imaginify/internal/config"
	"github.com/illegalcall/imaginify/internal/images"
	"github.com/illegalcall/imaginify/internal/models"
	"github.com/illegalcall/imaginify/internal/users"
)

// Publisher hands payment confirmations to the worker.
type Publisher interface {
	Publish(key string, v interface{}) error
}

// Deps are the services the HTTP layer routes to.
type Deps struct {
	Users     *users.Service
	Images    *images.Service
	Checkout  *checkout.Service
	Views     *cache.Views
	Redis     *redis.Client
	Publisher Publisher
}

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	users     *users.Service
	images    *images.Service
	checkout  *checkout.Service
	views     *cache.Views
	redis     *redis.Client
	publisher Publisher
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewServer(cfg *config.Config, deps Deps, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:      "imaginify",
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status}\n",
	}))
	if cfg.Server.MaxRequests > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.Server.MaxRequests,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				// provider retries must not be throttled
				return c.Path() == "/api/webhooks/stripe"
			},
		}))
	}

	server := &Server{
		app:       app,
		cfg:       cfg,
		users:     deps.Users,
		images:    deps.Images,
		checkout:  deps.Checkout,
		views:     deps.Views,
		redis:     deps.Redis,
		publisher: deps.Publisher,
		validate:  validator.New(),
		logger:    log,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	// Monitoring
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api")

	// Public routes
	api.Post("/webhooks/stripe", s.handleStripeWebhook)

	// Protected routes
	protected := api.Group("", s.identityMiddleware(), s.resolveUser)

	protected.Get("/me", s.handleGetMe)
	protected.Patch("/me", s.handleUpdateMe)
	protected.Delete("/me", s.handleDeleteMe)
	protected.Get("/me/images", s.handleListMyImages)
	protected.Get("/me/transactions", s.handleListMyTransactions)

	protected.Post("/images/transform", s.handleChargeTransformation)
	protected.Post("/images", s.handleCreateImage)
	protected.Get("/images", s.handleListImages)
	protected.Get("/images/:id", s.handleGetImage)
	protected.Put("/images/:id", s.handleUpdateImage)
	protected.Delete("/images/:id", s.handleDeleteImage)

	protected.Post("/checkout", s.handleCheckout)
	protected.Get("/checkout/:sessionId/status", s.handleCheckoutStatus)
}

// App exposes the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Port)
}

func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(s.cfg.Server.ShutdownTimeout)
}

// writeError is the single reporting path for failed requests.
func (s *Server) writeError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	} else {
		s.logger.Warn("Request rejected", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	}

	message := err.Error()
	if status >= fiber.StatusInternalServerError && s.cfg.Server.Environment == "production" {
		message = "Internal server error"
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrInsufficientCredits):
		return fiber.StatusPaymentRequired
	case errors.Is(err, models.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrAlreadyFinalized):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrExternalService):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// bindAndValidate parses the body into out and validates its tags.
func (s *Server) bindAndValidate(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: invalid request body", models.ErrInvalidInput)
	}
	if err := s.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}
	return nil
}
