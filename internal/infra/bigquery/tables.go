package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/basket-export/internal/domain"
)

const (
	// DefaultDataset is used when no dataset is configured.
	DefaultDataset = "basket"

	rawTransactionsTable = "raw_transactions"
	interactionsTable    = "interactions"
	brandMappingTable    = "brand_category_mapping"
	storesTable          = "stores"
	exportRowsTable      = "export_rows"
)

func qualified(dataset, table string) string {
	return fmt.Sprintf("`%s.%s`", dataset, table)
}

// isNotFound reports whether err is BigQuery's 404 for a missing table or
// dataset.
func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// readRows runs q and converts every row with conv. A missing table is
// reported as domain.ErrSourceMissing.
func readRows[R any, T any](ctx context.Context, q *bigquery.Query, fn string, conv func(*R) T) ([]T, error) {
	it, err := q.Read(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("%s: %w", fn, domain.ErrSourceMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: query read: %w", fn, err)
	}

	var out []T
	for {
		var r R
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iter next: %w", fn, err)
		}
		out = append(out, conv(&r))
	}
	return out, nil
}
