package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/basket-export/internal/canonical"
	"github.com/dvloznov/basket-export/internal/contract"
	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/export"
	"github.com/dvloznov/basket-export/internal/ledger"
	"github.com/dvloznov/basket-export/internal/taxonomy"
	"github.com/dvloznov/basket-export/internal/temporal"
)

// mockSource is a mock implementation of Source for testing.
type mockSource struct {
	Raw             []domain.RawTransactionRecord
	Interactions    []domain.Interaction
	Mappings        []domain.BrandCategoryMapping
	Stores          []domain.Store
	InteractionsErr error
	RawErr          error
}

func (m *mockSource) ListRawRecords(ctx context.Context) ([]domain.RawTransactionRecord, error) {
	return m.Raw, m.RawErr
}

func (m *mockSource) ListInteractions(ctx context.Context) ([]domain.Interaction, error) {
	return m.Interactions, m.InteractionsErr
}

func (m *mockSource) ListBrandMappings(ctx context.Context) ([]domain.BrandCategoryMapping, error) {
	return m.Mappings, nil
}

func (m *mockSource) ListStores(ctx context.Context) ([]domain.Store, error) {
	return m.Stores, nil
}

// mockSink keeps artifacts in memory
type mockSink struct {
	mu     sync.Mutex
	writes int
}

func (m *mockSink) Write(ctx context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	return "mem://" + name, nil
}

// mockPublisher records published exports
type mockPublisher struct {
	snapshots []domain.ExportSnapshot
	rows      int
	err       error
}

func (m *mockPublisher) PublishRows(ctx context.Context, snap domain.ExportSnapshot, rows []domain.EnrichedExportRow) error {
	m.snapshots = append(m.snapshots, snap)
	m.rows += len(rows)
	return m.err
}

func ts(day, hour, minute int) *time.Time {
	t := time.Date(2025, 9, day, hour, minute, 0, 0, time.UTC)
	return &t
}

func raw(session, store, payload string, ingested time.Time) domain.RawTransactionRecord {
	return domain.RawTransactionRecord{
		SessionID:  session,
		DeviceID:   "dev-" + store,
		StoreID:    store,
		Amount:     "42.10",
		RawPayload: payload,
		IngestedAt: ingested,
	}
}

func payload(key string, brands ...string) string {
	items := ""
	for i, b := range brands {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"brand":%q}`, b)
	}
	return fmt.Sprintf(`{"transaction_id":%q,"items":[%s]}`, key, items)
}

func fixture() *mockSource {
	ten := *ts(6, 10, 0)
	return &mockSource{
		Raw: []domain.RawTransactionRecord{
			raw("s1", "S1", `{"transaction_id":"T1","items":[{"brand":"Alaska"`, ten.Add(10*time.Minute)),
			raw("s2", "S1", payload("T1", "Alaska"), ten),
			raw("s3", "S1", payload("T1", "Alaska", "Coca-Cola", "Lucky Me"), ten.Add(5*time.Minute)),
			raw("s4", "S2", payload("T2", "Pepsi"), ten),
			raw("s5", "S3", payload("T3", "Lucky Me", "Lucky Me"), ten),
			raw("s6", "S1", `complete garbage`, ten),
		},
		Interactions: []domain.Interaction{
			{TransactionKey: "T1", Timestamp: ts(6, 14, 30), Gender: "Female", AgeBracket: "25-34"},
			{TransactionKey: "T2", Timestamp: ts(8, 9, 15)},
		},
		Mappings: []domain.BrandCategoryMapping{
			{BrandName: "Coca-Cola", CategoryName: "Soft Drinks", DepartmentName: "Beverages", ConfidenceScore: 0.95},
			{BrandName: "Lucky Me", CategoryName: "Instant Noodles", DepartmentName: "Food", ConfidenceScore: 0.9},
			{BrandName: "Alaska", CategoryName: "Milk", DepartmentName: "Dairy", ConfidenceScore: 0.6},
		},
		Stores: []domain.Store{
			{StoreID: "S1", Location: "Quezon City", Region: "NCR"},
			{StoreID: "S2", Location: "Cebu City", Region: "VII"},
		},
	}
}

func newRunner(t *testing.T, src Source, opts Options) (*Runner, ledger.Store, *mockSink) {
	t.Helper()
	store := ledger.NewMemoryStore()
	sink := &mockSink{}
	r, err := NewRunner(src, export.NewGenerator(store, sink), opts)
	require.NoError(t, err)
	return r, store, sink
}

func rowsByKey(state *State) map[string]domain.EnrichedExportRow {
	out := make(map[string]domain.EnrichedExportRow)
	for _, row := range state.Rows {
		for _, tx := range state.Transactions {
			if tx.CanonicalTxID == row.TransactionID {
				out[tx.TransactionKey] = row
			}
		}
	}
	return out
}

func TestRunner_FullExport(t *testing.T) {
	ctx := context.Background()
	r, store, sink := newRunner(t, fixture(), Options{Workers: 3})

	state, err := r.Run(ctx, domain.ExportModeFull, nil)
	require.NoError(t, err)

	st := state.Stats
	assert.Equal(t, 6, st.Input)
	assert.Equal(t, 1, st.Rejected)
	assert.Equal(t, 2, st.Duplicates)
	assert.Equal(t, 3, st.Canonical)
	assert.Equal(t, 3, st.Rows)
	assert.Equal(t, 3, st.Exported)
	assert.Equal(t, 1, st.UnspecifiedRows)
	assert.InDelta(t, 1.0/3.0, st.UnspecifiedRate, 1e-9)
	assert.Equal(t, 1, st.MissingTimestamps)
	assert.Equal(t, 2, st.MissingDemographics)
	assert.Equal(t, 1, st.MissingLocation)
	assert.Equal(t, 1, st.SecondaryBrands)

	rows := rowsByKey(state)
	t1 := rows["T1"]
	assert.Equal(t, canonical.CanonicalID("T1"), t1.TransactionID)
	assert.Equal(t, 3, t1.BasketSize)
	assert.Equal(t, "Soft Drinks", t1.Category)
	assert.Equal(t, "Coca-Cola", t1.Brand)
	assert.Equal(t, "Lucky Me", t1.SecondaryBrand)
	assert.Equal(t, temporal.Afternoon, t1.Daypart)
	assert.Equal(t, temporal.Weekend, t1.WeekType)
	assert.Equal(t, "Female, 25-34", t1.Demographics)
	assert.Equal(t, "Quezon City", t1.Location)
	assert.Equal(t, "Instant Noodles;Milk", t1.OtherProducts)

	t2 := rows["T2"]
	assert.Equal(t, domain.Unspecified, t2.Category)
	assert.Equal(t, "Pepsi", t2.Brand)
	assert.Equal(t, temporal.Morning, t2.Daypart)
	assert.Equal(t, temporal.Weekday, t2.WeekType)

	t3 := rows["T3"]
	assert.Equal(t, domain.Unknown, t3.Daypart)
	assert.Equal(t, domain.Unknown, t3.Location)
	assert.Empty(t, t3.OtherProducts)

	require.NotNil(t, state.Export)
	latest, err := store.Latest(ctx, contract.V1)
	require.NoError(t, err)
	assert.Equal(t, state.Export.Snapshot, latest)
	assert.Equal(t, 1, sink.writes)
}

func TestRunner_Idempotent(t *testing.T) {
	ctx := context.Background()
	src := fixture()
	r, _, _ := newRunner(t, src, Options{Workers: 2})

	first, err := r.Preview(ctx, domain.ExportModeFull, nil)
	require.NoError(t, err)

	// reversed input order
	reversed := make([]domain.RawTransactionRecord, len(src.Raw))
	for i, rec := range src.Raw {
		reversed[len(src.Raw)-1-i] = rec
	}
	src.Raw = reversed

	second, err := r.Preview(ctx, domain.ExportModeFull, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Rows, second.Rows)
	assert.Equal(t, first.Stats, second.Stats)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunner_PreviewWritesNothing(t *testing.T) {
	ctx := context.Background()
	r, store, sink := newRunner(t, fixture(), Options{})

	state, err := r.Preview(ctx, domain.ExportModeFull, nil)
	require.NoError(t, err)
	assert.Len(t, state.Rows, 3)
	assert.Nil(t, state.Export)

	list, err := store.List(ctx, contract.V1)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, sink.writes)
}

func TestRunner_ConfigurationErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing interaction log", func(t *testing.T) {
		src := fixture()
		src.InteractionsErr = fmt.Errorf("open interactions.jsonl: %w", domain.ErrSourceMissing)
		r, store, sink := newRunner(t, src, Options{})

		_, err := r.Run(ctx, domain.ExportModeFull, nil)
		assert.ErrorIs(t, err, ErrNoTimestampSource)

		list, _ := store.List(ctx, contract.V1)
		assert.Empty(t, list)
		assert.Equal(t, 0, sink.writes)
	})

	t.Run("empty interaction log is not fatal", func(t *testing.T) {
		src := fixture()
		src.Interactions = []domain.Interaction{}
		r, _, _ := newRunner(t, src, Options{})

		state, err := r.Run(ctx, domain.ExportModeFull, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, state.Stats.MissingTimestamps)
	})

	t.Run("empty taxonomy", func(t *testing.T) {
		src := fixture()
		src.Mappings = nil
		r, _, _ := newRunner(t, src, Options{})

		_, err := r.Run(ctx, domain.ExportModeFull, nil)
		assert.ErrorIs(t, err, taxonomy.ErrEmptyTable)
	})

	t.Run("duplicate taxonomy brand", func(t *testing.T) {
		src := fixture()
		src.Mappings = append(src.Mappings, domain.BrandCategoryMapping{BrandName: "ALASKA"})
		r, _, _ := newRunner(t, src, Options{})

		_, err := r.Run(ctx, domain.ExportModeFull, nil)
		assert.ErrorIs(t, err, taxonomy.ErrDuplicateBrand)
	})

	t.Run("invalid tie-break order", func(t *testing.T) {
		_, err := NewRunner(fixture(), nil, Options{TieBreak: []string{"line_items", "coin_flip"}})
		assert.ErrorIs(t, err, canonical.ErrInvalidOrder)
	})

	t.Run("unknown contract version", func(t *testing.T) {
		_, err := NewRunner(fixture(), nil, Options{ContractVersion: "v7"})
		assert.ErrorIs(t, err, contract.ErrUnknownVersion)
	})

	t.Run("raw source failure", func(t *testing.T) {
		src := fixture()
		src.RawErr = errors.New("connection reset")
		r, _, _ := newRunner(t, src, Options{})

		_, err := r.Run(ctx, domain.ExportModeFull, nil)
		assert.ErrorIs(t, err, src.RawErr)
	})

	t.Run("unknown mode", func(t *testing.T) {
		r, _, _ := newRunner(t, fixture(), Options{})
		_, err := r.Run(ctx, "hourly", nil)
		assert.Error(t, err)
	})
}

func TestRunner_Filters(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRunner(t, fixture(), Options{})

	sat := civil.Date{Year: 2025, Month: 9, Day: 6}
	mon := civil.Date{Year: 2025, Month: 9, Day: 8}

	tests := []struct {
		name     string
		filter   Filter
		keys     []string
		filtered int
	}{
		{name: "none", filter: Filter{}, keys: []string{"T1", "T2", "T3"}},
		{name: "region", filter: Filter{Region: "NCR"}, keys: []string{"T1"}, filtered: 2},
		{name: "stores", filter: Filter{StoreIDs: []string{"S2", "S3"}}, keys: []string{"T2", "T3"}, filtered: 1},
		{name: "single day", filter: Filter{From: &sat, To: &sat}, keys: []string{"T1"}, filtered: 2},
		{name: "from only", filter: Filter{From: &mon}, keys: []string{"T2"}, filtered: 2},
		{name: "to only", filter: Filter{To: &mon}, keys: []string{"T1", "T2"}, filtered: 1},
		{name: "region and day", filter: Filter{Region: "VII", To: &sat}, keys: nil, filtered: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.filter
			state, err := r.Preview(ctx, domain.ExportModeFull, &f)
			require.NoError(t, err)

			var keys []string
			for _, tx := range state.Transactions {
				keys = append(keys, tx.TransactionKey)
			}
			assert.ElementsMatch(t, tt.keys, keys)
			assert.Equal(t, tt.filtered, state.Stats.FilteredOut)
			assert.Len(t, state.Rows, len(tt.keys))
		})
	}
}

func TestRunner_DeltaAfterFull(t *testing.T) {
	ctx := context.Background()
	src := fixture()
	store := ledger.NewMemoryStore()
	now := time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC)
	gen := export.NewGenerator(store, &mockSink{}, export.WithClock(func() time.Time { return now }))
	r, err := NewRunner(src, gen, Options{})
	require.NoError(t, err)

	full, err := r.Run(ctx, domain.ExportModeFull, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, full.Stats.Exported)

	// watermark is Sep 7 00:00: only T2 (Sep 8) is newer
	now = now.Add(48 * time.Hour)
	delta, err := r.Run(ctx, domain.ExportModeDelta, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, delta.Stats.Exported)
	assert.Equal(t, 1, delta.Stats.DeltaUntimed)
	require.Len(t, delta.Export.Rows, 1)
	assert.Equal(t, canonical.CanonicalID("T2"), delta.Export.Rows[0].TransactionID)
}

func TestRunner_FilteredRunsKeepDeltasComplete(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	now := time.Date(2025, 9, 9, 0, 0, 0, 0, time.UTC)
	gen := export.NewGenerator(store, &mockSink{}, export.WithClock(func() time.Time { return now }))
	r, err := NewRunner(fixture(), gen, Options{})
	require.NoError(t, err)

	_, err = r.Run(ctx, domain.ExportModeDelta, &Filter{Region: "NCR"})
	assert.ErrorIs(t, err, ErrFilteredDelta)
	_, err = r.Preview(ctx, domain.ExportModeDelta, &Filter{StoreIDs: []string{"S1"}})
	assert.ErrorIs(t, err, ErrFilteredDelta)

	partial, err := r.Run(ctx, domain.ExportModeFull, &Filter{Region: "NCR"})
	require.NoError(t, err)
	assert.Equal(t, 1, partial.Stats.Exported)
	assert.Equal(t, "region=NCR", partial.Export.Snapshot.Scope)

	// The partial export must not hide T2 (Sep 8, region VII) from deltas.
	now = now.Add(24 * time.Hour)
	delta, err := r.Run(ctx, domain.ExportModeDelta, nil)
	require.NoError(t, err)
	assert.True(t, delta.Export.Watermark.IsZero())
	assert.Equal(t, 2, delta.Stats.Exported)

	var ids []string
	for _, row := range delta.Export.Rows {
		ids = append(ids, row.TransactionID)
	}
	assert.Contains(t, ids, canonical.CanonicalID("T2"))

	list, err := store.List(ctx, contract.V1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].Complete())
	assert.True(t, list[1].Complete())
}

func TestRunner_PreviewDelta(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	sink := &mockSink{}
	now := time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC)
	gen := export.NewGenerator(store, sink, export.WithClock(func() time.Time { return now }))
	r, err := NewRunner(fixture(), gen, Options{})
	require.NoError(t, err)

	_, err = r.Run(ctx, domain.ExportModeFull, nil)
	require.NoError(t, err)

	full, err := r.Preview(ctx, domain.ExportModeFull, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, full.Stats.Selected)

	delta, err := r.Preview(ctx, domain.ExportModeDelta, nil)
	require.NoError(t, err)
	require.NotNil(t, delta.Plan)
	assert.Nil(t, delta.Export)
	assert.Equal(t, 1, delta.Stats.Selected)
	assert.Equal(t, 1, delta.Stats.DeltaUntimed)
	assert.Equal(t, canonical.CanonicalID("T2"), delta.Plan.Rows[0].TransactionID)

	list, err := store.List(ctx, contract.V1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, sink.writes)
}

func TestFilter_Scope(t *testing.T) {
	from := civil.Date{Year: 2025, Month: 9, Day: 1}
	assert.Empty(t, Filter{}.Scope())
	assert.Equal(t, "region=NCR", Filter{Region: "NCR"}.Scope())
	assert.Equal(t, "from=2025-09-01;stores=S1,S2", Filter{From: &from, StoreIDs: []string{"S2", "S1"}}.Scope())
}

func TestRunner_Publisher(t *testing.T) {
	ctx := context.Background()
	pub := &mockPublisher{err: errors.New("bigquery unavailable")}
	r, store, _ := newRunner(t, fixture(), Options{Publisher: pub})

	_, err := r.Run(ctx, domain.ExportModeFull, nil)
	require.NoError(t, err, "publish failures do not fail a committed export")

	require.Len(t, pub.snapshots, 1)
	assert.Equal(t, 3, pub.rows)
	list, _ := store.List(ctx, contract.V1)
	assert.Len(t, list, 1)
}

func TestResolveStep_WorkerCountDoesNotMatter(t *testing.T) {
	ctx := context.Background()
	src := fixture()
	for i := 0; i < 200; i++ {
		src.Raw = append(src.Raw, raw(fmt.Sprintf("bulk-%d", i), "S1", payload(fmt.Sprintf("B%03d", i), "Alaska", "Lucky Me"), time.Now()))
	}

	var results [][]domain.EnrichedExportRow
	for _, workers := range []int{1, 3, 16, 500} {
		r, _, _ := newRunner(t, src, Options{Workers: workers})
		state, err := r.Preview(ctx, domain.ExportModeFull, nil)
		require.NoError(t, err)
		require.Len(t, state.Rows, 203)
		results = append(results, state.Rows)
	}
	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0], results[i])
	}
}

// failingStep always fails
type failingStep struct{ err error }

func (s *failingStep) Name() string { return "failing" }
func (s *failingStep) Execute(ctx context.Context, state *State) error {
	return s.err
}

// countingStep counts executions
type countingStep struct{ n int }

func (s *countingStep) Name() string { return "counting" }
func (s *countingStep) Execute(ctx context.Context, state *State) error {
	s.n++
	return nil
}

func TestPipeline_StopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	before, after := &countingStep{}, &countingStep{}

	err := NewPipeline(before, &failingStep{err: boom}, after).Execute(context.Background(), &State{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step 2 (failing)")
	assert.Equal(t, 1, before.n)
	assert.Equal(t, 0, after.n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewPipeline(before).Execute(ctx, &State{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, before.n)
}
