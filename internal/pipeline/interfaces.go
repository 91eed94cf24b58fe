package pipeline

import (
	"context"

	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/export"
)

// Source provides the materialized inputs of one run. Implementations return
// an error wrapping domain.ErrSourceMissing when an input does not exist.
type Source interface {
	ListRawRecords(ctx context.Context) ([]domain.RawTransactionRecord, error)
	ListInteractions(ctx context.Context) ([]domain.Interaction, error)
	ListBrandMappings(ctx context.Context) ([]domain.BrandCategoryMapping, error)
	ListStores(ctx context.Context) ([]domain.Store, error)
}

// Exporter renders and records an export. *export.Generator implements it.
// scope is empty for unfiltered runs.
type Exporter interface {
	ExportScoped(ctx context.Context, mode domain.ExportMode, version, scope string, rows []domain.EnrichedExportRow) (export.Result, error)
	Plan(ctx context.Context, mode domain.ExportMode, version, scope string, rows []domain.EnrichedExportRow) (export.Result, error)
}

// RowPublisher optionally receives the rows of every successful export, for
// example to load them into a reporting table.
type RowPublisher interface {
	PublishRows(ctx context.Context, snapshot domain.ExportSnapshot, rows []domain.EnrichedExportRow) error
}
