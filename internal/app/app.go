// Package app wires the pipeline together so the daemon and the CLI share
// one assembly path.
package app

import (
	"fmt"
	"os"

	"github.com/stockline/invoice-ingest/internal/config"
	"github.com/stockline/invoice-ingest/internal/export"
	"github.com/stockline/invoice-ingest/internal/extract"
	"github.com/stockline/invoice-ingest/internal/match"
	"github.com/stockline/invoice-ingest/internal/normalize"
	"github.com/stockline/invoice-ingest/internal/pdfcontent"
	"github.com/stockline/invoice-ingest/internal/pipeline"
	"github.com/stockline/invoice-ingest/internal/repository"
	"github.com/stockline/invoice-ingest/internal/stock"
	"github.com/stockline/invoice-ingest/pkg/database"
	"github.com/stockline/invoice-ingest/pkg/utils"
	"go.uber.org/zap"
)

// App holds the assembled pipeline and its shared infrastructure
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *database.DB
	Processor *pipeline.Processor
	Reporter  *export.ReportWriter

	Invoices *repository.InvoiceRepository
	Items    *repository.LineItemRepository
	Logs     *repository.ProcessingLogRepository
	Products *repository.ProductRepository
	Receipts *repository.ReceiptRepository
}

// New loads configuration, opens the database, runs migrations and builds
// the full pipeline.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := os.MkdirAll(cfg.Export.OutputDir, 0755); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	invoices := repository.NewInvoiceRepository(db.DB, logger)
	items := repository.NewLineItemRepository(db.DB, logger)
	logs := repository.NewProcessingLogRepository(db.DB, logger)
	products := repository.NewProductRepository(db.DB, logger)
	receipts := repository.NewReceiptRepository(db.DB, logger)

	matcher := match.NewEngine(products, match.Config{
		MinScore:    cfg.Matching.MinScore,
		ScoreGap:    cfg.Matching.ScoreGap,
		MaxKeywords: cfg.Matching.MaxKeywords,
	}, logger)

	processor := pipeline.NewProcessor(pipeline.Deps{
		Tx:         db,
		Invoices:   invoices,
		Items:      items,
		Logs:       logs,
		Reader:     pdfcontent.NewReader(logger),
		Extractors: extract.NewRegistry(logger),
		Normalizer: normalize.New(cfg.Normalize.TotalTolerance, logger),
		Matcher:    matcher,
		Committer:  stock.NewCommitter(receipts, logger),
		Logger:     logger,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Processor: processor,
		Reporter:  export.NewReportWriter(cfg.Export.OutputDir, logger),
		Invoices:  invoices,
		Items:     items,
		Logs:      logs,
		Products:  products,
		Receipts:  receipts,
	}, nil
}

// Close releases the app's resources
func (a *App) Close() {
	a.DB.Close()
	a.Logger.Sync()
}
