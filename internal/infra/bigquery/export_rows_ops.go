package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/logger"
)

const insertBatchSize = 500

// InsertExportRowsWithClient streams the rows of a committed snapshot into
// the export_rows table. Each row carries an insert id of snapshot and
// transaction so a retried publish does not duplicate rows.
func InsertExportRowsWithClient(ctx context.Context, client *bigquery.Client, dataset string, snapshot domain.ExportSnapshot, rows []domain.EnrichedExportRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.Dataset(dataset).Table(exportRowsTable).Inserter()
	savers := exportSavers(snapshot, rows)

	for start := 0; start < len(savers); start += insertBatchSize {
		end := min(start+insertBatchSize, len(savers))
		if err := inserter.Put(ctx, savers[start:end]); err != nil {
			return fmt.Errorf("InsertExportRows: inserting rows %d-%d: %w", start, end, err)
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int64("snapshot_id", snapshot.SnapshotID).
		Int("rows", len(rows)).
		Str("table", dataset+"."+exportRowsTable).
		Msg("Published export rows")
	return nil
}

func exportSavers(snapshot domain.ExportSnapshot, rows []domain.EnrichedExportRow) []*bigquery.StructSaver {
	savers := make([]*bigquery.StructSaver, 0, len(rows))
	for _, row := range rows {
		savers = append(savers, &bigquery.StructSaver{
			Struct:   newExportRow(snapshot, row),
			InsertID: fmt.Sprintf("%d:%s", snapshot.SnapshotID, row.TransactionID),
		})
	}
	return savers
}
