package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/layereddb/poiforge/pkg/config"
	"github.com/layereddb/poiforge/pkg/database"
	"github.com/layereddb/poiforge/pkg/pipeline"
	"github.com/layereddb/poiforge/pkg/repositories"
	"github.com/layereddb/poiforge/pkg/schema"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Starting poiforge",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("database", cfg.Database.Database),
		zap.String("source_schema", cfg.Pipeline.SourceSchema),
		zap.String("target_table", cfg.Pipeline.TargetTable))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	introspector := schema.NewPgIntrospector(db.Pool, cfg.Pipeline.SourceSchema,
		cfg.Pipeline.ReferenceTables, cfg.Pipeline.Tables, logger)
	sources := repositories.NewSourceRepository(db.Pool)
	target := repositories.NewTargetRepository(db.Pool, cfg.Pipeline, logger)

	runner := pipeline.NewRunner(cfg.Pipeline, introspector, sources, target, logger)

	summary, err := runner.Run(ctx)
	if err != nil {
		logger.Fatal("Reconciliation run failed, all changes rolled back", zap.Error(err))
	}

	logger.Info("Done",
		zap.Int("tables_processed", len(summary.Ledger.Processed)),
		zap.Int("tables_excluded", len(summary.Ledger.Excluded)),
		zap.Int64("rows_written", summary.RowsWritten),
		zap.Int("rows_enriched", summary.RowsEnriched))
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
