package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/export"
	"github.com/dvloznov/basket-export/internal/pipeline"
	"github.com/dvloznov/basket-export/internal/taxonomy"
)

type mockRunner struct {
	gotMode   domain.ExportMode
	gotFilter *pipeline.Filter
	state     *pipeline.State
	err       error
}

func (m *mockRunner) Run(ctx context.Context, mode domain.ExportMode, filter *pipeline.Filter) (*pipeline.State, error) {
	m.gotMode = mode
	m.gotFilter = filter
	return m.state, m.err
}

func TestExportHandler_RecordsSnapshot(t *testing.T) {
	from := civil.Date{Year: 2025, Month: 9, Day: 1}
	runner := &mockRunner{state: &pipeline.State{
		RunID:  "run-1",
		Export: &export.Result{Snapshot: domain.ExportSnapshot{SnapshotID: 4, RowCount: 10}},
	}}
	job := &ExportJob{JobID: "j1", Mode: domain.ExportModeFull, From: &from, Region: "NCR"}

	require.NoError(t, NewExportHandler(runner)(context.Background(), job))

	assert.Equal(t, domain.ExportModeFull, runner.gotMode)
	require.NotNil(t, runner.gotFilter)
	assert.Equal(t, &from, runner.gotFilter.From)
	assert.Equal(t, "NCR", runner.gotFilter.Region)
	assert.Equal(t, "run-1", job.RunID)
	require.NotNil(t, job.Snapshot)
	assert.Equal(t, int64(4), job.Snapshot.SnapshotID)
	assert.NotNil(t, job.Stats)
}

func TestExportHandler_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{name: "transient", err: errors.New("connection reset"), permanent: false},
		{name: "missing interaction log", err: fmt.Errorf("step: %w", pipeline.ErrNoTimestampSource), permanent: true},
		{name: "empty taxonomy", err: fmt.Errorf("load: %w", taxonomy.ErrEmptyTable), permanent: true},
		{name: "filtered delta", err: fmt.Errorf("Run: %w", pipeline.ErrFilteredDelta), permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewExportHandler(&mockRunner{err: tt.err})(context.Background(), &ExportJob{Mode: domain.ExportModeFull})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.permanent, IsPermanent(err))
		})
	}
}

func TestExportHandler_InvalidMode(t *testing.T) {
	runner := &mockRunner{}
	err := NewExportHandler(runner)(context.Background(), &ExportJob{Mode: "weekly"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Empty(t, runner.gotMode)
}

func TestExportHandler_FilteredDelta(t *testing.T) {
	runner := &mockRunner{}
	job := &ExportJob{Mode: domain.ExportModeDelta, Region: "NCR"}

	err := NewExportHandler(runner)(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrFilteredDelta)
	assert.True(t, IsPermanent(err))
	assert.Empty(t, runner.gotMode)
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	base := errors.New("x")
	assert.ErrorIs(t, Permanent(base), base)
	assert.False(t, IsPermanent(base))
}
