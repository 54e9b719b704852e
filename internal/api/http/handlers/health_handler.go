package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readinessTimeout = 2 * time.Second

// Dependency is a backing service checked by the readiness probe.
type Dependency interface {
	Enabled() bool
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	service string
	version string
	deps    map[string]Dependency
}

func NewHealthHandler(service, version string, deps map[string]Dependency) *HealthHandler {
	return &HealthHandler{service: service, version: version, deps: deps}
}

func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.service,
		"version": h.version,
	})
}

// Ready pings every enabled dependency. A dependency that is switched off
// is listed as "disabled" and never fails the probe.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	results, ready := h.probe(ctx)
	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": results,
			},
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "dependencies": results})
}

func (h *HealthHandler) probe(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(h.deps))
	ready := true
	for name, dep := range h.deps {
		if dep == nil || !dep.Enabled() {
			results[name] = "disabled"
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			results[name] = err.Error()
			ready = false
			continue
		}
		results[name] = "ok"
	}
	return results, ready
}
