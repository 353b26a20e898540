package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/ever-scraper/internal/models"
)

var priceColumns = []string{"id", "run_id", "product_category", "product_name", "price", "created_time"}

// Copier is the bulk-load subset of a pgx pool or connection.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PriceRepository mirrors exported category records into product_prices.
type PriceRepository struct {
	db     Copier
	runID  uuid.UUID
	logger *slog.Logger
}

func NewPriceRepository(db Copier, runID uuid.UUID, logger *slog.Logger) *PriceRepository {
	return &PriceRepository{
		db:     db,
		runID:  runID,
		logger: logger.With("component", "price_repository"),
	}
}

func (r *PriceRepository) Name() string {
	return "postgres"
}

// Save bulk-inserts one category's records.
func (r *PriceRepository) Save(ctx context.Context, category string, records []models.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := r.copyRows(records)
	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"product_prices"}, priceColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy prices for %q: %w", category, err)
	}

	r.logger.Debug("stored category prices", "category", category, "rows", n)
	return nil
}

func (r *PriceRepository) copyRows(records []models.ProductRecord) [][]any {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{
			uuid.New(),
			r.runID,
			rec.Category,
			rec.Name,
			rec.Price,
			rec.CapturedAt,
		})
	}
	return rows
}
