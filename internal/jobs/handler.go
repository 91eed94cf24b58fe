package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/basket-export/internal/canonical"
	"github.com/dvloznov/basket-export/internal/config"
	"github.com/dvloznov/basket-export/internal/contract"
	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/enrich"
	"github.com/dvloznov/basket-export/internal/pipeline"
	"github.com/dvloznov/basket-export/internal/taxonomy"
)

// ExportRunner is satisfied by *pipeline.Runner.
type ExportRunner interface {
	Run(ctx context.Context, mode domain.ExportMode, filter *pipeline.Filter) (*pipeline.State, error)
}

// permanentErrors fail a job without retrying.
var permanentErrors = []error{
	pipeline.ErrNoTimestampSource,
	pipeline.ErrFilteredDelta,
	taxonomy.ErrEmptyTable,
	taxonomy.ErrDuplicateBrand,
	taxonomy.ErrInvalidConfidence,
	canonical.ErrInvalidOrder,
	contract.ErrUnknownVersion,
	contract.ErrDuplicateTransactionID,
	contract.ErrColumnContract,
	enrich.ErrCardinality,
	config.ErrInvalidConfig,
}

// NewExportHandler returns a handler that executes an export run per job and
// records the committed snapshot on it.
func NewExportHandler(runner ExportRunner) JobHandler {
	return func(ctx context.Context, job *ExportJob) error {
		if !job.Mode.Valid() {
			return Permanent(fmt.Errorf("ExportHandler: unknown mode %q", job.Mode))
		}

		filter := &pipeline.Filter{
			From:     job.From,
			To:       job.To,
			Region:   job.Region,
			StoreIDs: job.StoreIDs,
		}
		if job.Mode == domain.ExportModeDelta && !filter.IsZero() {
			return Permanent(fmt.Errorf("ExportHandler: %w: %s", pipeline.ErrFilteredDelta, filter.Scope()))
		}
		state, err := runner.Run(ctx, job.Mode, filter)
		if err != nil {
			for _, target := range permanentErrors {
				if errors.Is(err, target) {
					return Permanent(fmt.Errorf("ExportHandler: %w", err))
				}
			}
			return fmt.Errorf("ExportHandler: %w", err)
		}

		job.RunID = state.RunID
		stats := state.Stats
		job.Stats = &stats
		if state.Export != nil {
			snap := state.Export.Snapshot
			job.Snapshot = &snap
		}
		return nil
	}
}
