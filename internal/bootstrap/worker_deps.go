package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"mailsync_worker/adapter/out/graph"
	"mailsync_worker/adapter/out/messaging"
	"mailsync_worker/adapter/out/mongodb"
	"mailsync_worker/adapter/out/persistence"
	"mailsync_worker/adapter/out/provider/gmail"
	"mailsync_worker/config"
	"mailsync_worker/core/agent/llm"
	"mailsync_worker/core/port/out"
	"mailsync_worker/core/service/pipeline"
	"mailsync_worker/core/service/sync"
	"mailsync_worker/infra/database"
	"mailsync_worker/pkg/crypto"
	"mailsync_worker/pkg/logger"
)

const setupTimeout = 30 * time.Second

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client
	Neo4j   neo4j.DriverWithContext

	// Repositories
	Credentials *persistence.CredentialAdapter
	Settings    *persistence.SettingsAdapter
	Messages    *persistence.MessageAdapter
	Threads     *persistence.ThreadAdapter
	Jobs        *persistence.JobAdapter
	Logs        out.ProcessingLogRepository
	Embeddings  out.EmbeddingStore

	// Services
	Encryptor    *crypto.Encryptor
	Mailboxes    *gmail.Factory
	Orchestrator *sync.Orchestrator
	Sweeper      *sync.StaleJobSweeper

	// Messaging
	Producer *messaging.Producer
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionMasterKey)
	if err != nil {
		return nil, nil, fmt.Errorf("encryptor: %w", err)
	}
	deps.Encryptor = encryptor

	// Database (pgxpool for readiness, sqlx for the repositories)
	pgCfg := database.DefaultPostgresConfig()
	if cfg.DBMaxConns > 0 {
		pgCfg.MaxConns = int32(cfg.DBMaxConns)
	}

	db, err := database.NewPostgresWithConfig(cfg.DatabaseURL, pgCfg)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, db.Close)

	sqlDB, err := database.NewSQLX(cfg.DatabaseURL, pgCfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })
	logger.Info("Postgres connected (pool max=%d)", pgCfg.MaxConns)

	// Redis
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis connection failed: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
			deps.Producer = messaging.NewProducer(redisClient, cfg.JobStream)
		}
	}

	// Repositories
	deps.Credentials = persistence.NewCredentialAdapter(sqlDB)
	deps.Settings = persistence.NewSettingsAdapter(sqlDB)
	deps.Messages = persistence.NewMessageAdapter(sqlDB)
	deps.Threads = persistence.NewThreadAdapter(sqlDB)
	deps.Jobs = persistence.NewJobAdapter(sqlDB)

	logs, err := deps.initLogStore(ctx, &cleanups)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Logs = logs

	embeddings, err := deps.initEmbeddingStore(ctx, &cleanups)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Embeddings = embeddings

	// Services
	deps.Mailboxes = gmail.NewFactory(gmail.FactoryConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
	}, encryptor, logger.WithComponent("gmail"))

	models := llm.NewModelFactory(llm.FactoryConfig{
		GeminiBaseURL: cfg.GeminiBaseURL,
		OllamaBaseURL: cfg.OllamaBaseURL,
		DefaultModel:  cfg.DefaultLLMModel,
		Timeout:       cfg.ModelTimeout,
	}, encryptor)

	pipelineLog := logger.WithComponent("pipeline")
	messagePipeline := pipeline.NewMessagePipeline(deps.Messages, logs, encryptor, pipelineLog)
	threadPipeline := pipeline.NewThreadPipeline(deps.Messages, deps.Threads, embeddings, logs, encryptor, pipelineLog).
		WithEmbeddingDimensions(cfg.EmbeddingDimensions)

	deps.Orchestrator = sync.NewOrchestrator(sync.Deps{
		Credentials: deps.Credentials,
		Settings:    deps.Settings,
		Jobs:        deps.Jobs,
		Logs:        logs,
		Mailboxes:   deps.Mailboxes,
		Models:      models,
		Messages:    messagePipeline,
		Threads:     threadPipeline,
	}, syncOptions(cfg), logger.WithComponent("sync"))

	deps.Sweeper = sync.NewStaleJobSweeper(deps.Jobs, cfg.StaleJobThreshold, logger.WithComponent("sweeper"))

	return deps, cleanup, nil
}

// initLogStore picks the ProcessingLog sink from LOG_STORE.
func (d *Dependencies) initLogStore(ctx context.Context, cleanups *[]func()) (out.ProcessingLogRepository, error) {
	cfg := d.Config
	postgresLogs := persistence.NewProcessingLogAdapter(d.SQLDB)
	if !cfg.UsesMongoLogs() {
		return postgresLogs, nil
	}

	client, db, err := mongodb.Connect(ctx, mongodb.DefaultClientConfig(cfg.MongoDBURL, cfg.MongoDBName))
	if err != nil {
		return nil, fmt.Errorf("mongodb: %w", err)
	}
	d.MongoDB = client
	*cleanups = append(*cleanups, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Disconnect(ctx)
	})

	mongoLogs := mongodb.NewProcessingLogAdapter(db)
	if err := mongoLogs.EnsureIndexes(ctx); err != nil {
		logger.Warn("Failed to ensure MongoDB processing log indexes: %v", err)
	}

	if cfg.UsesPostgresLogs() {
		logger.Info("Processing logs: postgres + mongodb")
		return persistence.NewLogFanout(postgresLogs, mongoLogs), nil
	}
	logger.Info("Processing logs: mongodb")
	return mongoLogs, nil
}

// initEmbeddingStore picks the thread embedding store from EMBEDDING_STORE.
func (d *Dependencies) initEmbeddingStore(ctx context.Context, cleanups *[]func()) (out.EmbeddingStore, error) {
	cfg := d.Config
	if cfg.EmbeddingStore != config.StoreNeo4j {
		return d.Threads, nil
	}

	neo4jCfg := graph.DefaultDriverConfig(cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	driver, err := graph.Connect(ctx, neo4jCfg)
	if err != nil {
		return nil, fmt.Errorf("neo4j: %w", err)
	}
	d.Neo4j = driver
	*cleanups = append(*cleanups, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		driver.Close(ctx)
	})

	store := graph.NewThreadEmbeddingAdapter(driver, neo4jCfg.Database, cfg.EmbeddingDimensions)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warn("Failed to ensure Neo4j indexes: %v", err)
	}
	logger.Info("Thread embeddings: neo4j")
	return store, nil
}

func syncOptions(cfg *config.Config) sync.Options {
	opts := sync.DefaultOptions()
	if cfg.BackfillMaxMessages > 0 {
		opts.BackfillMaxMessages = cfg.BackfillMaxMessages
	}
	if cfg.BackfillCheckpoint > 0 {
		opts.BackfillCheckpoint = cfg.BackfillCheckpoint
	}
	if cfg.IncrementalCheckpoint > 0 {
		opts.IncrementalCheckpoint = cfg.IncrementalCheckpoint
	}
	return opts
}
