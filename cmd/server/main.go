package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"fhirstore/internal/audit"
	"fhirstore/internal/auth"
	"fhirstore/internal/catalog"
	"fhirstore/internal/config"
	"fhirstore/internal/middleware"
	"fhirstore/internal/notify"
	"fhirstore/internal/operation"
	"fhirstore/internal/repository/postgres"
	"fhirstore/internal/search"
	fhirfiber "fhirstore/internal/transport/fiber"
	"fhirstore/internal/transport/metamirror"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	cat, err := catalog.Load()
	if err != nil {
		log.Fatalf("failed to load parameter catalog: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL, cfg.MaxConns, cfg.MinConns)
	if err != nil {
		log.Fatalf("failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected", "max_conns", cfg.MaxConns, "min_conns", cfg.MinConns)

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	resourceRepo := postgres.NewResourceRepository(repoConfig)
	compiler := search.NewCompiler(pool, tables, cat)

	auditSink := audit.NewSink(logger)
	changePublisher := notify.NewPublisher(logger)

	engine := &operation.Engine{
		Store:    resourceRepo,
		Search:   compiler,
		Catalog:  cat,
		Log:      logger,
		MaxChain: cfg.MaxIncludeDepth,
		Audit:    auditSink,
		Notify:   changePublisher,
	}

	// Drain both fan-out channels so a write never blocks waiting for a
	// subscriber; external subscription machinery would instead read
	// directly from auditSink.Events()/changePublisher.Changes().
	go func() {
		for ev := range auditSink.Events() {
			logger.Debug("audit event", "action", ev.Action, "resource", ev.ResourceType+"/"+ev.ResourceID, "outcome", ev.Outcome)
		}
	}()
	go func() {
		for ch := range changePublisher.Changes() {
			logger.Debug("resource changed", "kind", ch.Kind, "resource", ch.ResourceType+"/"+ch.ResourceID, "version", ch.VersionID)
		}
	}()

	var verifier auth.Verifier
	if cfg.JWKSURL != "" {
		verifier, err = auth.NewJWTVerifier(cfg.JWKSURL, logger)
		if err != nil {
			log.Fatalf("failed to initialize JWT verifier: %v", err)
		}
		defer verifier.Close()
	}

	logger.Info("engine initialized")

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		BodyLimit:    config.MaxResourceBodyBytes,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, If-Match, If-None-Match, If-None-Exist, Prefer",
		AllowCredentials: true,
	}))

	if verifier != nil {
		app.Use(middleware.AuthMiddleware(verifier))
	} else {
		logger.Warn("JWKS_URL not configured; running with no authentication")
	}

	handler := fhirfiber.NewHandler(engine, compiler, cat, logger)
	handler.RegisterRoutes(app)

	if cfg.MetadataMirrorPort != "" {
		mirror := metamirror.NewServer(":"+cfg.MetadataMirrorPort, cat, strings.Split(cfg.CORSOrigins, ","), logger)
		go func() {
			if err := mirror.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metadata mirror stopped", "error", err)
			}
		}()
	}

	logger.Info("server listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
