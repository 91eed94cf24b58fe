package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/basket-export/internal/canonical"
	"github.com/dvloznov/basket-export/internal/contract"
	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/enrich"
	"github.com/dvloznov/basket-export/internal/export"
	"github.com/dvloznov/basket-export/internal/logger"
	"github.com/dvloznov/basket-export/internal/taxonomy"
	"github.com/dvloznov/basket-export/internal/temporal"
)

// LoadInputsStep reads reference data first so configuration errors stop the
// run before any raw record is touched.
type LoadInputsStep struct {
	Source Source
}

func (s *LoadInputsStep) Name() string { return "load_inputs" }

func (s *LoadInputsStep) Execute(ctx context.Context, state *State) error {
	table, err := taxonomy.Load(ctx, s.Source)
	if err != nil {
		return err
	}
	state.Taxonomy = table

	interactions, err := s.Source.ListInteractions(ctx)
	if errors.Is(err, domain.ErrSourceMissing) {
		return fmt.Errorf("%w: %v", ErrNoTimestampSource, err)
	}
	if err != nil {
		return fmt.Errorf("LoadInputsStep: interactions: %w", err)
	}
	state.Interactions = domain.NewInteractionLog(interactions)

	stores, err := s.Source.ListStores(ctx)
	if err != nil && !errors.Is(err, domain.ErrSourceMissing) {
		return fmt.Errorf("LoadInputsStep: stores: %w", err)
	}
	state.Stores = stores

	raw, err := s.Source.ListRawRecords(ctx)
	if err != nil {
		return fmt.Errorf("LoadInputsStep: raw records: %w", err)
	}
	state.Raw = raw

	log := logger.FromContext(ctx)
	log.Info().
		Str("stage", s.Name()).
		Int("raw_records", len(raw)).
		Int("interactions", state.Interactions.Len()).
		Int("stores", len(stores)).
		Int("taxonomy_brands", table.Len()).
		Msg("Inputs loaded")
	return nil
}

// CanonicalizeStep collapses raw records into canonical transactions.
type CanonicalizeStep struct {
	Order []canonical.Criterion
}

func (s *CanonicalizeStep) Name() string { return "canonicalize" }

func (s *CanonicalizeStep) Execute(ctx context.Context, state *State) error {
	c, err := canonical.New(s.Order, state.Interactions)
	if err != nil {
		return err
	}

	res := c.Canonicalize(state.Raw)
	state.Canonical = res
	state.Transactions = res.Transactions

	state.Stats.Input = res.Input
	state.Stats.Rejected = res.Rejected
	state.Stats.Duplicates = res.Duplicates
	state.Stats.Canonical = len(res.Transactions)
	state.Stats.InvalidAmounts = res.InvalidAmounts

	log := logger.FromContext(ctx)
	if res.Rejected > 0 {
		log.Warn().Str("stage", s.Name()).Int("rejected", res.Rejected).Msg("Raw records without a transaction id were excluded")
	}
	log.Info().
		Str("stage", s.Name()).
		Int("input", res.Input).
		Int("canonical", len(res.Transactions)).
		Int("duplicates", res.Duplicates).
		Int("missing_timestamps", res.MissingTimestamps).
		Msg("Canonicalized")
	return nil
}

// FilterStep applies the run filters to the canonical set.
type FilterStep struct {
	Filter   Filter
	Location *time.Location
}

func (s *FilterStep) Name() string { return "filter" }

func (s *FilterStep) Execute(ctx context.Context, state *State) error {
	if s.Filter.IsZero() {
		return nil
	}

	keep := s.Filter.compile(state.Stores, s.Location)
	kept := make([]domain.CanonicalTransaction, 0, len(state.Transactions))
	for _, tx := range state.Transactions {
		if keep(tx) {
			kept = append(kept, tx)
		}
	}
	state.Stats.FilteredOut = len(state.Transactions) - len(kept)
	state.Transactions = kept

	log := logger.FromContext(ctx)
	log.Info().
		Str("stage", s.Name()).
		Int("kept", len(kept)).
		Int("filtered_out", state.Stats.FilteredOut).
		Msg("Filters applied")
	return nil
}

// ResolveStep runs the temporal and taxonomy resolvers concurrently over the
// same batch. Both are pure; each goroutine writes a disjoint index range.
type ResolveStep struct {
	Workers  int
	Location *time.Location
}

func (s *ResolveStep) Name() string { return "resolve" }

func (s *ResolveStep) Execute(ctx context.Context, state *State) error {
	txs := state.Transactions
	times := make([]temporal.Attributes, len(txs))
	baskets := make([]taxonomy.Basket, len(txs))

	tr := temporal.NewResolver(s.Location)
	xr := taxonomy.NewResolver(state.Taxonomy)

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	chunk := (len(txs) + workers - 1) / workers
	if chunk == 0 {
		chunk = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2 * workers)
	for lo := 0; lo < len(txs); lo += chunk {
		lo, hi := lo, min(lo+chunk, len(txs))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				times[i] = tr.Resolve(txs[i].AuthoritativeTimestamp)
			}
			return nil
		})
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				baskets[i] = xr.ResolveBasket(txs[i].Items)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("ResolveStep: %w", err)
	}

	state.Temporal = times
	state.Baskets = baskets

	log := logger.FromContext(ctx)
	log.Info().
		Str("stage", s.Name()).
		Int("transactions", len(txs)).
		Int("workers", workers).
		Msg("Temporal and taxonomy attributes resolved")
	return nil
}

// EnrichStep joins everything into export rows.
type EnrichStep struct {
	Delimiter string
	Location  *time.Location
}

func (s *EnrichStep) Name() string { return "enrich" }

func (s *EnrichStep) Execute(ctx context.Context, state *State) error {
	joiner := enrich.NewJoiner(s.Delimiter, state.Interactions, state.Stores).InLocation(s.Location)
	rows, stats, err := joiner.Join(state.Transactions, state.Temporal, state.Baskets)
	if err != nil {
		return err
	}
	state.Rows = rows

	st := &state.Stats
	st.Rows = stats.Rows
	st.UnspecifiedRows = stats.UnspecifiedCategory
	if stats.Rows > 0 {
		st.UnspecifiedRate = float64(stats.UnspecifiedCategory) / float64(stats.Rows)
	}
	st.MissingTimestamps = stats.MissingTimestamps
	st.MissingDemographics = stats.MissingDemographics
	st.MissingLocation = stats.MissingLocation
	st.Substitutions = stats.Substitutions
	st.SecondaryBrands = stats.SecondaryBrands

	log := logger.FromContext(ctx)
	log.Info().
		Str("stage", s.Name()).
		Int("rows", stats.Rows).
		Float64("unspecified_rate", st.UnspecifiedRate).
		Int("missing_demographics", stats.MissingDemographics).
		Int("substitutions", stats.Substitutions).
		Msg("Rows enriched")
	return nil
}

// ValidateStep checks shape integrity before the export stage takes the
// ledger lock.
type ValidateStep struct{}

func (s *ValidateStep) Name() string { return "validate" }

func (s *ValidateStep) Execute(ctx context.Context, state *State) error {
	if len(state.Rows) != len(state.Transactions) {
		return fmt.Errorf("ValidateStep: %w: %d transactions, %d rows",
			enrich.ErrCardinality, len(state.Transactions), len(state.Rows))
	}
	if _, _, err := contract.Table(state.ContractVersion, state.Rows); err != nil {
		return err
	}
	return nil
}

// ExportStep renders the export and appends the ledger snapshot.
type ExportStep struct {
	Exporter  Exporter
	Publisher RowPublisher
}

func (s *ExportStep) Name() string { return "export" }

func (s *ExportStep) Execute(ctx context.Context, state *State) error {
	res, err := s.Exporter.ExportScoped(ctx, state.Mode, state.ContractVersion, state.Scope, state.Rows)
	if err != nil {
		return err
	}
	state.Export = &res
	state.Stats.Selected = len(res.Rows)
	state.Stats.Exported = res.Snapshot.RowCount
	state.Stats.DeltaUntimed = res.Untimed

	if s.Publisher != nil {
		// The snapshot is already committed; a failed publish is reported
		// but does not undo the export.
		if err := s.Publisher.PublishRows(ctx, res.Snapshot, res.Rows); err != nil {
			log := logger.FromContext(ctx)
			log.Error().Err(err).
				Int64("snapshot_id", res.Snapshot.SnapshotID).
				Msg("Publishing export rows failed")
		}
	}
	return nil
}

// PlanStep selects the rows an export would contain without writing or
// committing. Full plans need no ledger, so a nil Exporter is allowed for them.
type PlanStep struct {
	Exporter Exporter
}

func (s *PlanStep) Name() string { return "plan" }

func (s *PlanStep) Execute(ctx context.Context, state *State) error {
	var (
		res export.Result
		err error
	)
	switch {
	case s.Exporter != nil:
		res, err = s.Exporter.Plan(ctx, state.Mode, state.ContractVersion, state.Scope, state.Rows)
		if err != nil {
			return err
		}
	case state.Mode == domain.ExportModeFull:
		res.Rows, _ = export.SelectRows(state.Mode, state.Rows, time.Time{})
		res.Snapshot = domain.ExportSnapshot{
			ContractVersion: state.ContractVersion,
			Mode:            state.Mode,
			RowCount:        len(res.Rows),
			Scope:           state.Scope,
		}
	default:
		return fmt.Errorf("PlanStep: no exporter to read the delta watermark")
	}

	state.Plan = &res
	state.Stats.Selected = len(res.Rows)
	state.Stats.DeltaUntimed = res.Untimed

	log := logger.FromContext(ctx)
	log.Info().
		Str("stage", s.Name()).
		Int("selected", len(res.Rows)).
		Time("watermark", res.Watermark).
		Msg("Export planned")
	return nil
}
