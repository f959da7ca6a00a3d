package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"filedepot/internal/config"
	"filedepot/internal/database"
	"filedepot/internal/database/migration"
	handlers "filedepot/internal/http/handler"
	"filedepot/internal/http/middleware"
	"filedepot/internal/otel"
	"filedepot/internal/quota"
	"filedepot/internal/repository"
	"filedepot/internal/repository/blobjson"
	"filedepot/internal/repository/postgres"
	"filedepot/internal/service"
	"filedepot/internal/storage"
	"filedepot/internal/tenant"
	"filedepot/internal/usage"
)

// authFailDelay is the fixed cost of a failed API key lookup per remote
// address.
const authFailDelay = 500 * time.Millisecond

// maxChunkSize bounds the configurable chunk size. Keeping it well inside
// int32 range means the derived fiber body limit is safe on 32-bit platforms.
const maxChunkSize = 1 << 30

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Storage.ChunkSizeBytes <= 0 || cfg.Storage.ChunkSizeBytes > maxChunkSize {
		logger.Fatal("chunk size out of range",
			zap.Int64("chunk_size_bytes", cfg.Storage.ChunkSizeBytes),
			zap.Int64("max", maxChunkSize))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := otel.Init(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	// Tenant directory: the persisted tree plus hot reload on file change.
	dir, err := tenant.Load(cfg.Tenants.FilePath, cfg.Tenants.MaxDepth, logger)
	if err != nil {
		logger.Fatal("failed to load tenant configuration", zap.Error(err))
	}
	if cfg.Tenants.WatchFile {
		if err := dir.Watch(ctx); err != nil {
			logger.Fatal("failed to watch tenant configuration", zap.Error(err))
		}
	}

	ledger := usage.NewLedger()
	accountant := quota.NewAccountant(dir, ledger)

	// Blob backend: local directory tree or S3-compatible object storage.
	var store storage.Storage
	switch cfg.Storage.Backend {
	case "minio":
		store, err = storage.NewMinIO(cfg.MinIO)
	default:
		store, err = storage.NewFilesystem(cfg.Storage.DataDir)
	}
	if err != nil {
		logger.Fatal("failed to initialize blob storage", zap.Error(err))
	}

	// Metadata backend: JSON records beside the chunks, or PostgreSQL.
	var db *sql.DB
	var metaRepo repository.MetadataRepository
	switch cfg.Metadata.Backend {
	case "postgres":
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := migration.EnsureMigrated(ctx, db, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		metaRepo = postgres.NewMetadataPostgres(db, logger)
	default:
		metaRepo = blobjson.NewMetadataBlobJSON(store, logger)
	}

	storageSvc := service.NewStorageService(store, metaRepo, dir, accountant, ledger, cfg.Storage.ChunkSizeBytes, logger)
	tenantSvc := service.NewTenantService(dir, accountant, ledger, storageSvc, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		// Chunk uploads can be as large as the chunk size; stream them instead
		// of buffering.
		StreamRequestBody: true,
		BodyLimit:         int(cfg.Storage.ChunkSizeBytes) + 1<<20,
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}
	app.Use(promMiddleware.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	auth := middleware.NewAuthenticator(dir, authFailDelay)
	handlers.RegisterRoutes(app, db, storageSvc, tenantSvc, auth)

	addr := ":" + cfg.Port
	logger.Info("starting server",
		zap.String("addr", addr),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("metadata_backend", cfg.Metadata.Backend),
		zap.Int64("chunk_size_bytes", cfg.Storage.ChunkSizeBytes))

	if err := app.Listen(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
