package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/basket-export/internal/canonical"
	"github.com/dvloznov/basket-export/internal/contract"
	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/logger"
)

// Options configures a Runner.
type Options struct {
	ContractVersion string
	TieBreak        []string
	Delimiter       string
	Location        *time.Location
	Workers         int
	Filter          Filter
	Publisher       RowPublisher
}

// Runner executes complete export runs. One Runner may serve many runs,
// including concurrent ones.
type Runner struct {
	source   Source
	exporter Exporter
	opts     Options
	order    []canonical.Criterion
}

// NewRunner validates opts. Configuration errors surface here, before any run.
func NewRunner(source Source, exporter Exporter, opts Options) (*Runner, error) {
	if source == nil {
		return nil, fmt.Errorf("NewRunner: source is required")
	}
	if opts.ContractVersion == "" {
		opts.ContractVersion = contract.V1
	}
	if _, err := contract.Columns(opts.ContractVersion); err != nil {
		return nil, fmt.Errorf("NewRunner: %w", err)
	}
	order, err := canonical.ParseOrder(opts.TieBreak)
	if err != nil {
		return nil, fmt.Errorf("NewRunner: %w", err)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{source: source, exporter: exporter, opts: opts, order: order}, nil
}

// Run executes every stage including the export. filter, when non-nil,
// replaces the runner's default filter for this run. A filtered full run is
// recorded as a scoped snapshot; a filtered delta is rejected with
// ErrFilteredDelta.
func (r *Runner) Run(ctx context.Context, mode domain.ExportMode, filter *Filter) (*State, error) {
	if r.exporter == nil {
		return nil, fmt.Errorf("Run: no exporter configured")
	}
	f, err := r.runFilter(mode, filter)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	return r.execute(ctx, mode, f, true)
}

// Preview executes every stage up to validation and reports the rows that an
// export of mode would contain now, without writing anything.
func (r *Runner) Preview(ctx context.Context, mode domain.ExportMode, filter *Filter) (*State, error) {
	f, err := r.runFilter(mode, filter)
	if err != nil {
		return nil, fmt.Errorf("Preview: %w", err)
	}
	return r.execute(ctx, mode, f, false)
}

func (r *Runner) runFilter(mode domain.ExportMode, filter *Filter) (Filter, error) {
	if !mode.Valid() {
		return Filter{}, fmt.Errorf("unknown mode %q", mode)
	}
	f := r.opts.Filter
	if filter != nil {
		f = *filter
	}
	if mode == domain.ExportModeDelta && !f.IsZero() {
		return Filter{}, fmt.Errorf("%w: %s", ErrFilteredDelta, f.Scope())
	}
	return f, nil
}

func (r *Runner) execute(ctx context.Context, mode domain.ExportMode, f Filter, withExport bool) (*State, error) {
	state := &State{
		RunID:           uuid.NewString(),
		Mode:            mode,
		ContractVersion: r.opts.ContractVersion,
		Scope:           f.Scope(),
	}
	ctx = logger.WithRun(ctx, state.RunID, string(mode))
	log := logger.FromContext(ctx)

	steps := []PipelineStep{
		&LoadInputsStep{Source: r.source},
		&CanonicalizeStep{Order: r.order},
		&FilterStep{Filter: f, Location: r.opts.Location},
		&ResolveStep{Workers: r.opts.Workers, Location: r.opts.Location},
		&EnrichStep{Delimiter: r.opts.Delimiter, Location: r.opts.Location},
		&ValidateStep{},
	}
	if withExport {
		steps = append(steps, &ExportStep{Exporter: r.exporter, Publisher: r.opts.Publisher})
	} else {
		steps = append(steps, &PlanStep{Exporter: r.exporter})
	}

	start := time.Now()
	log.Info().
		Str("contract_version", state.ContractVersion).
		Str("scope", state.Scope).
		Bool("export", withExport).
		Msg("Run started")

	if err := NewPipeline(steps...).Execute(ctx, state); err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Run failed")
		return state, err
	}

	st := state.Stats
	log.Info().
		Int("input", st.Input).
		Int("rejected", st.Rejected).
		Int("duplicates", st.Duplicates).
		Int("canonical", st.Canonical).
		Int("filtered_out", st.FilteredOut).
		Int("rows", st.Rows).
		Int("selected", st.Selected).
		Int("exported", st.Exported).
		Float64("unspecified_rate", st.UnspecifiedRate).
		Int("missing_timestamps", st.MissingTimestamps).
		Int("missing_demographics", st.MissingDemographics).
		Dur("elapsed", time.Since(start)).
		Msg("Run finished")
	return state, nil
}
