package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/basket-export/internal/domain"
)

// Repository reads pipeline inputs from BigQuery tables and publishes export
// rows back. It holds a shared BigQuery client to avoid creating a new
// connection for each operation. It implements pipeline.Source and
// pipeline.RowPublisher.
type Repository struct {
	client  *bigquery.Client
	dataset string
}

// NewRepository creates a Repository with its own client for projectID.
func NewRepository(ctx context.Context, projectID, dataset string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, dataset), nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, dataset string) *Repository {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return &Repository{client: client, dataset: dataset}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ListRawRecords delegates to ListRawRecordsWithClient with the shared client.
func (r *Repository) ListRawRecords(ctx context.Context) ([]domain.RawTransactionRecord, error) {
	return ListRawRecordsWithClient(ctx, r.client, r.dataset)
}

// ListInteractions delegates to ListInteractionsWithClient with the shared client.
func (r *Repository) ListInteractions(ctx context.Context) ([]domain.Interaction, error) {
	return ListInteractionsWithClient(ctx, r.client, r.dataset)
}

// ListBrandMappings delegates to ListBrandMappingsWithClient with the shared client.
func (r *Repository) ListBrandMappings(ctx context.Context) ([]domain.BrandCategoryMapping, error) {
	return ListBrandMappingsWithClient(ctx, r.client, r.dataset)
}

// ListStores delegates to ListStoresWithClient with the shared client.
func (r *Repository) ListStores(ctx context.Context) ([]domain.Store, error) {
	return ListStoresWithClient(ctx, r.client, r.dataset)
}

// PublishRows delegates to InsertExportRowsWithClient with the shared client.
func (r *Repository) PublishRows(ctx context.Context, snapshot domain.ExportSnapshot, rows []domain.EnrichedExportRow) error {
	return InsertExportRowsWithClient(ctx, r.client, r.dataset, snapshot, rows)
}
