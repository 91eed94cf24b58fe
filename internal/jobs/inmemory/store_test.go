package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/jobs"
)

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	job := &jobs.ExportJob{JobID: "j1", Mode: domain.ExportModeFull, Status: jobs.JobStatusPending, StoreIDs: []string{"S1"}}
	require.NoError(t, store.SaveJob(ctx, job))

	job.Status = jobs.JobStatusRunning
	job.StoreIDs[0] = "S9"

	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, got.Status)
	assert.Equal(t, []string{"S1"}, got.StoreIDs)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	assert.Error(t, store.SaveJob(ctx, &jobs.ExportJob{}))

	_, err := store.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	err = store.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, "x")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC)

	for i, j := range []*jobs.ExportJob{
		{JobID: "a", Mode: domain.ExportModeFull, Status: jobs.JobStatusCompleted},
		{JobID: "b", Mode: domain.ExportModeDelta, Status: jobs.JobStatusFailed},
		{JobID: "c", Mode: domain.ExportModeDelta, Status: jobs.JobStatusCompleted},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SaveJob(ctx, j))
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all newest first", filter: jobs.JobFilter{}, want: []string{"c", "b", "a"}},
		{name: "by mode", filter: jobs.JobFilter{Mode: domain.ExportModeDelta}, want: []string{"c", "b"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusCompleted}, want: []string{"c", "a"}},
		{name: "limit", filter: jobs.JobFilter{Limit: 1}, want: []string{"c"}},
		{name: "offset", filter: jobs.JobFilter{Offset: 1, Limit: 1}, want: []string{"b"}},
		{name: "offset past end", filter: jobs.JobFilter{Offset: 5}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListJobs(ctx, tt.filter)
			require.NoError(t, err)
			ids := []string{}
			for _, j := range got {
				ids = append(ids, j.JobID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_UpdateJobStatus(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.SaveJob(ctx, &jobs.ExportJob{JobID: "j1", Status: jobs.JobStatusRunning}))

	require.NoError(t, store.UpdateJobStatus(ctx, "j1", jobs.JobStatusFailed, "boom"))

	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}
