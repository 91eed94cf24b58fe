// Package export renders validated full and delta exports and records each
// successful one in the snapshot ledger.
package export

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dvloznov/basket-export/internal/contract"
	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/ledger"
	"github.com/dvloznov/basket-export/internal/logger"
)

// ErrScopedDelta is returned for a delta export restricted by a run filter.
// Deltas are defined against complete snapshots only; a filtered delta would
// advance past rows it never exported.
var ErrScopedDelta = errors.New("delta exports cannot be scoped by a filter")

// Result describes one successful export.
type Result struct {
	Snapshot  domain.ExportSnapshot
	Watermark time.Time // zero for full exports and first deltas
	Untimed   int       // rows left out of a delta for lack of a timestamp
	Rows      []domain.EnrichedExportRow
}

// Generator produces export artifacts. It is safe for concurrent use; the
// ledger serializes runs against the same store.
type Generator struct {
	ledger ledger.Store
	sink   Sink
	format Format
	now    func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithFormat sets the artifact format.
func WithFormat(f Format) Option {
	return func(g *Generator) { g.format = f }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a generator writing to sink and recording in store.
func NewGenerator(store ledger.Store, sink Sink, opts ...Option) *Generator {
	g := &Generator{ledger: store, sink: sink, format: FormatCSV, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Export runs ExportScoped for a complete, unfiltered export.
func (g *Generator) Export(ctx context.Context, mode domain.ExportMode, version string, rows []domain.EnrichedExportRow) (Result, error) {
	return g.ExportScoped(ctx, mode, version, "", rows)
}

// ExportScoped selects rows for mode, validates and renders them, writes the
// artifact and appends a snapshot. Nothing is appended when any step fails.
// A non-empty scope marks the snapshot as partial: it is audited but never
// becomes a delta watermark.
func (g *Generator) ExportScoped(ctx context.Context, mode domain.ExportMode, version, scope string, rows []domain.EnrichedExportRow) (Result, error) {
	log := logger.FromContext(ctx)

	if err := checkRequest(mode, version, scope); err != nil {
		return Result{}, fmt.Errorf("Export: %w", err)
	}

	var res Result
	snap, err := g.ledger.Commit(ctx, version, func(ctx context.Context, prev *domain.ExportSnapshot) (domain.ExportSnapshot, error) {
		now := g.now().UTC()

		if prev != nil && mode == domain.ExportModeDelta {
			res.Watermark = prev.CreatedAt
		}
		selected, untimed := SelectRows(mode, rows, res.Watermark)
		res.Untimed = untimed

		for i := range selected {
			selected[i].ExportTimestamp = now
		}
		sort.Slice(selected, func(i, j int) bool {
			return selected[i].TransactionID < selected[j].TransactionID
		})

		header, records, err := contract.Table(version, selected)
		if err != nil {
			return domain.ExportSnapshot{}, fmt.Errorf("Export: validate: %w", err)
		}

		data, err := Render(g.format, header, records)
		if err != nil {
			return domain.ExportSnapshot{}, fmt.Errorf("Export: render: %w", err)
		}

		name := ArtifactName(version, mode, now, g.format)
		location, err := g.sink.Write(ctx, name, data)
		if err != nil {
			return domain.ExportSnapshot{}, fmt.Errorf("Export: write artifact: %w", err)
		}

		res.Rows = selected
		return domain.ExportSnapshot{
			CreatedAt:       now,
			Mode:            mode,
			RowCount:        len(records),
			ContentChecksum: Checksum(version, header, records),
			Location:        location,
			Scope:           scope,
		}, nil
	})
	if err != nil {
		log.Error().Err(err).Str("mode", string(mode)).Str("contract_version", version).Msg("Export failed")
		return Result{}, err
	}

	res.Snapshot = snap
	log.Info().
		Int64("snapshot_id", snap.SnapshotID).
		Str("mode", string(mode)).
		Str("contract_version", version).
		Int("rows", snap.RowCount).
		Int("untimed_skipped", res.Untimed).
		Time("watermark", res.Watermark).
		Str("checksum", snap.ContentChecksum).
		Str("location", snap.Location).
		Str("scope", snap.Scope).
		Msg("Export committed")

	return res, nil
}

// Plan returns the rows an export of mode would contain right now, without
// rendering, writing or committing anything. The returned snapshot is not
// recorded and carries no id.
func (g *Generator) Plan(ctx context.Context, mode domain.ExportMode, version, scope string, rows []domain.EnrichedExportRow) (Result, error) {
	if err := checkRequest(mode, version, scope); err != nil {
		return Result{}, fmt.Errorf("Plan: %w", err)
	}

	var res Result
	if mode == domain.ExportModeDelta {
		wm, err := g.ledger.Watermark(ctx, version)
		switch {
		case err == nil:
			res.Watermark = wm.CreatedAt
		case errors.Is(err, ledger.ErrNoSnapshot):
		default:
			return Result{}, fmt.Errorf("Plan: read watermark: %w", err)
		}
	}

	selected, untimed := SelectRows(mode, rows, res.Watermark)
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].TransactionID < selected[j].TransactionID
	})
	res.Rows = selected
	res.Untimed = untimed
	res.Snapshot = domain.ExportSnapshot{
		ContractVersion: version,
		Mode:            mode,
		RowCount:        len(selected),
		Scope:           scope,
	}
	return res, nil
}

func checkRequest(mode domain.ExportMode, version, scope string) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", mode)
	}
	if mode == domain.ExportModeDelta && scope != "" {
		return fmt.Errorf("%w: %s", ErrScopedDelta, scope)
	}
	if _, err := contract.Columns(version); err != nil {
		return err
	}
	return nil
}

// SelectRows returns copies of the rows that belong in an export. A delta
// keeps rows strictly after watermark; rows with no timestamp are counted and
// left out.
func SelectRows(mode domain.ExportMode, rows []domain.EnrichedExportRow, watermark time.Time) ([]domain.EnrichedExportRow, int) {
	if mode == domain.ExportModeFull {
		return append([]domain.EnrichedExportRow(nil), rows...), 0
	}

	var (
		out     []domain.EnrichedExportRow
		untimed int
	)
	for _, row := range rows {
		if row.TransactionTime == nil {
			untimed++
			continue
		}
		if row.TransactionTime.After(watermark) {
			out = append(out, row)
		}
	}
	return out, untimed
}

// ArtifactName is the sink-relative object name of an export.
func ArtifactName(version string, mode domain.ExportMode, at time.Time, format Format) string {
	if format == "" {
		format = FormatCSV
	}
	return fmt.Sprintf("%s/%s_%s.%s", version, mode, at.UTC().Format("20060102T150405.000000Z"), format)
}
