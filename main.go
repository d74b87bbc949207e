package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/config"
	"github.com/ekaya-inc/dqengine/pkg/database"
	"github.com/ekaya-inc/dqengine/pkg/handlers"
	"github.com/ekaya-inc/dqengine/pkg/logging"
	"github.com/ekaya-inc/dqengine/pkg/middleware"
	"github.com/ekaya-inc/dqengine/pkg/repositories"
	"github.com/ekaya-inc/dqengine/pkg/rules"
	"github.com/ekaya-inc/dqengine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	connStr := cfg.Database.ConnectionString()
	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.String("database", logging.SanitizeConnectionString(connStr)),
		zap.String("dictionary", cfg.DictionaryPath))

	ctx := context.Background()

	// Migrations run over database/sql; the pool below is pgx-native.
	migrateDB, err := sql.Open("pgx", connStr)
	if err != nil {
		logger.Fatal("Failed to open migration connection",
			zap.String("error", logging.SanitizeError(err)))
	}
	if err := database.RunMigrations(migrateDB, cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := migrateDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, connStr, cfg.Database.MaxConnections)
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	registry := rules.NewRegistry(logger, rules.Builtins(logger, cfg.DictionaryPath)...)

	projectRepo := repositories.NewProjectRepository(db)
	structureRepo := repositories.NewStructureRepository()
	groupRepo := repositories.NewRuleGroupRepository()
	dataRepo := repositories.NewDataRepository()
	resultRepo := repositories.NewResultRepository()

	projectCtx := database.NewProjectContextFunc(db)
	tracker := services.NewStatusTracker()

	validationService := services.NewValidationService(
		projectCtx, projectRepo, structureRepo, groupRepo, dataRepo, resultRepo,
		registry, tracker, cfg.Validation, logger)
	importService := services.NewImportService(
		projectCtx, projectRepo, structureRepo, dataRepo, cfg.Import, logger)
	projectService := services.NewProjectService(
		db, projectCtx, projectRepo, structureRepo, groupRepo, dataRepo,
		registry, tracker, validationService, cfg.Import.ArchiveDir, logger)
	groupService := services.NewRuleGroupService(projectCtx, groupRepo, registry, logger)
	dictionaryService := services.NewDictionaryService(cfg.DictionaryPath, registry, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewProjectsHandler(projectService, importService, cfg, logger).RegisterRoutes(mux)
	handlers.NewValidationHandler(validationService, logger).RegisterRoutes(mux)
	handlers.NewRulesHandler(registry, logger).RegisterRoutes(mux)
	handlers.NewRuleGroupsHandler(groupService, logger).RegisterRoutes(mux)
	handlers.NewDictionaryHandler(dictionaryService, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting dqengine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// buildLogger creates the root zap logger: human-readable in local
// development, JSON elsewhere, level from config.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	var zapCfg zap.Config
	if cfg.Env == "local" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = level
	return zapCfg.Build()
}
