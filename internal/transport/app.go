package transport

import (
	"strings"
	"time"

	"github.com/edunotify/edunotify/internal/observability"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultBodyLimit   = 10 * 1024 * 1024
	defaultReadTimeout = 15 * time.Second
)

type AppOptions struct {
	Name string
	// AllowOrigins is a comma separated origin list; empty allows any origin.
	AllowOrigins string
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// NewApp builds a fiber app with the shared middleware stack: request ids, correlation
// context, CORS, and (when metrics are given) request metrics plus GET /metrics.
func NewApp(opts AppOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               opts.Name,
		ErrorHandler:          ErrorHandler(opts.Logger),
		BodyLimit:             defaultBodyLimit,
		ReadTimeout:           defaultReadTimeout,
		DisableStartupMessage: true,
	})

	app.Use(requestid.New(requestid.Config{
		Generator:  uuid.NewString,
		ContextKey: observability.RequestIDLocalsKey,
	}))
	app.Use(observability.CorrelationMiddleware())

	origins := strings.TrimSpace(opts.AllowOrigins)
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",
	}))

	if opts.Metrics != nil {
		app.Use(opts.Metrics.HTTPMiddleware())
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}
	return app
}

// RateLimit is a fixed-window request budget per client IP.
type RateLimit struct {
	Max     int
	Window  time.Duration
	Message string
}

func NewRateLimiter(limit RateLimit) fiber.Handler {
	message := limit.Message
	if message == "" {
		message = "Too many requests, please try again later."
	}
	return limiter.New(limiter.Config{
		Max:        limit.Max,
		Expiration: limit.Window,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   message,
			})
		},
	})
}
