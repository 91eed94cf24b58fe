package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/basket-export/internal/domain"
)

// ListRawRecordsWithClient returns every raw ingestion event. Duplicates are
// kept; collapsing them is the canonicalizer's job.
func ListRawRecordsWithClient(ctx context.Context, client *bigquery.Client, dataset string) ([]domain.RawTransactionRecord, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			session_id,
			device_id,
			store_id,
			CAST(amount AS STRING) AS amount,
			raw_payload,
			ingested_at
		FROM %s
	`, qualified(dataset, rawTransactionsTable)))

	return readRows(ctx, q, "ListRawRecords", (*RawTransactionRow).toDomain)
}

// ListInteractionsWithClient returns the trusted interaction log.
func ListInteractionsWithClient(ctx context.Context, client *bigquery.Client, dataset string) ([]domain.Interaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			timestamp,
			gender,
			age_bracket
		FROM %s
		WHERE transaction_id IS NOT NULL
	`, qualified(dataset, interactionsTable)))

	return readRows(ctx, q, "ListInteractions", (*InteractionRow).toDomain)
}
