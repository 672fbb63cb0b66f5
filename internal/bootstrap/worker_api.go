package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"mailsync_worker/adapter/in/http"
	"mailsync_worker/config"
	"mailsync_worker/infra/database"
	"mailsync_worker/infra/middleware"
	"mailsync_worker/pkg/logger"
)

// bodyLimit bounds a trigger payload; job metadata is a handful of fields.
const bodyLimit = 1 * 1024 * 1024

// NewAPI builds the HTTP app. w is nil when this process does not run the worker.
func NewAPI(cfg *config.Config, deps *Dependencies, w *Worker) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "mailsync-worker",
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		StrictRouting:         false,
		CaseSensitive:         false,

		// go-json for request and response bodies
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:          bodyLimit,
		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())

	healthHandler := http.NewHealthHandlerWithDeps(deps.DB, deps.Redis).
		WithMongo(deps.MongoDB).
		WithNeo4j(deps.Neo4j).
		WithMetrics(func() fiber.Map {
			m := fiber.Map{
				"db_pool":       database.GetPoolStats(deps.DB),
				"gmail_breaker": deps.Mailboxes.Breaker().State(),
			}
			if w != nil {
				m["worker"] = w.GetMetrics()
				m["job_latency"] = w.LatencyStats()
			}
			return m
		})
	healthHandler.Register(app)

	api := app.Group("/api")
	api.Use(middleware.ServiceAuth(cfg.WorkerAPISecret, cfg.IsProduction()))

	// The queued trigger needs the job stream; without Redis only the inline trigger is served.
	var queue http.JobQueue
	if deps.Producer != nil {
		queue = deps.Producer
	} else {
		logger.Warn("Redis not available, /api/jobs/enqueue disabled")
	}

	jobHandler := http.NewJobHandler(deps.Orchestrator, deps.Jobs, queue, logger.WithComponent("http"))
	jobHandler.Register(api)

	return app
}
