package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/basket-export/internal/domain"
)

// ListBrandMappingsWithClient returns the curated brand to category mapping.
func ListBrandMappingsWithClient(ctx context.Context, client *bigquery.Client, dataset string) ([]domain.BrandCategoryMapping, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			brand_name,
			brand_name_normalized,
			category_code,
			category_name,
			category_group,
			department_code,
			department_name,
			confidence_score,
			is_mandatory
		FROM %s
		ORDER BY brand_name
	`, qualified(dataset, brandMappingTable)))

	return readRows(ctx, q, "ListBrandMappings", (*BrandMappingRow).toDomain)
}

// ListStoresWithClient returns the store directory.
func ListStoresWithClient(ctx context.Context, client *bigquery.Client, dataset string) ([]domain.Store, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			store_id,
			location,
			region
		FROM %s
		ORDER BY store_id
	`, qualified(dataset, storesTable)))

	return readRows(ctx, q, "ListStores", (*StoreRow).toDomain)
}
