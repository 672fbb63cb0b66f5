package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckFunc adapts a plain function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Ping(ctx context.Context) error { return f(ctx) }

// MetricsSource reports runtime counters for GET /metrics.
type MetricsSource func() fiber.Map

type HealthHandler struct {
	checks  map[string]HealthChecker
	order   []string
	metrics MetricsSource
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checks: make(map[string]HealthChecker)}
}

// NewHealthHandlerWithDeps checks the stores every deployment has.
func NewHealthHandlerWithDeps(db *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	h := NewHealthHandler()
	if db != nil {
		h.With("postgres", db)
	}
	if rdb != nil {
		h.With("redis", HealthCheckFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	return h
}

// With adds a named readiness check. Nil checkers are ignored.
func (h *HealthHandler) With(name string, checker HealthChecker) *HealthHandler {
	if checker == nil {
		return h
	}
	if _, ok := h.checks[name]; !ok {
		h.order = append(h.order, name)
	}
	h.checks[name] = checker
	return h
}

// WithMongo adds a readiness check for the processing log sink.
func (h *HealthHandler) WithMongo(client *mongo.Client) *HealthHandler {
	if client == nil {
		return h
	}
	return h.With("mongodb", HealthCheckFunc(func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}))
}

// WithNeo4j adds a readiness check for the embedding store.
func (h *HealthHandler) WithNeo4j(driver neo4j.DriverWithContext) *HealthHandler {
	if driver == nil {
		return h
	}
	return h.With("neo4j", HealthCheckFunc(driver.VerifyConnectivity))
}

// WithMetrics serves src on GET /metrics.
func (h *HealthHandler) WithMetrics(src MetricsSource) *HealthHandler {
	h.metrics = src
	return h
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	if h.metrics != nil {
		app.Get("/metrics", h.Metrics)
	}
}

func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	m := h.metrics()
	m["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return c.JSON(m)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.order))
	allHealthy := true

	for _, name := range h.order {
		if err := h.checks[name].Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks[name] = "healthy"
		}
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
