package handler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// Check is one named dependency probe. A nil error means healthy.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

func DatabaseCheck(sqlDB *sql.DB) Check {
	return Check{Name: "database", Probe: func(ctx context.Context) error {
		if sqlDB == nil {
			return fmt.Errorf("database not configured")
		}
		return sqlDB.PingContext(ctx)
	}}
}

func RedisCheck(rdb *redis.Client) Check {
	return Check{Name: "redis", Probe: func(ctx context.Context) error {
		if rdb == nil {
			return fmt.Errorf("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}}
}

// StaticCheck reports a condition known at startup, such as a configured credential.
func StaticCheck(name string, ok bool) Check {
	return Check{Name: name, Probe: func(context.Context) error {
		if !ok {
			return fmt.Errorf("%s not configured", name)
		}
		return nil
	}}
}

func RegisterHealthRoutes(app fiber.Router, checks ...Check) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(checks...))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(checks ...Check) fiber.Handler {
	return func(c *fiber.Ctx) error {
		results, healthy := runChecks(c.UserContext(), checks)

		statuses := make(fiber.Map, len(results))
		for name, ok := range results {
			statuses[name] = "ok"
			if !ok {
				statuses[name] = "down"
			}
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !healthy {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": statuses,
		})
	}
}

func runChecks(ctx context.Context, checks []Check) (map[string]bool, bool) {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	results := make(map[string]bool, len(checks))
	healthy := true
	for _, check := range checks {
		ok := check.Probe(ctx) == nil
		results[check.Name] = ok
		healthy = healthy && ok
	}
	return results, healthy
}
