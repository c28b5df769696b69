package httputil

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v3"
)

// Checker reports whether the component it guards is currently healthy.
type Checker func(ctx context.Context) error

// Healthz returns a liveness handler: the process is up and can reach its database. Intended for an orchestrator's
// liveness probe, where failure should trigger a restart.
func Healthz(db Checker) fiber.Handler {
	return func(c fiber.Ctx) error {
		if err := db(c.Context()); err != nil {
			return Fail(c, http.StatusServiceUnavailable, CodeInternalError, "database unreachable")
		}
		return Success(c, fiber.Map{"status": "ok"})
	}
}

// Readyz returns a readiness handler: the process is up, can reach its database, and its event bus listener
// connection is live. Intended for an orchestrator's readiness probe, where failure should pull the instance out of
// rotation without restarting it (a dropped listener connection recovers on its own via reconnect-with-backoff).
func Readyz(db, listener Checker) fiber.Handler {
	return func(c fiber.Ctx) error {
		if err := db(c.Context()); err != nil {
			return Fail(c, http.StatusServiceUnavailable, CodeInternalError, "database unreachable")
		}
		if err := listener(c.Context()); err != nil {
			return Fail(c, http.StatusServiceUnavailable, CodeInternalError, "event bus listener not connected")
		}
		return Success(c, fiber.Map{"status": "ok"})
	}
}
