// Package ledgertest holds behaviour tests shared by every ledger.Store.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/ledger"
)

// Run exercises newStore against the ledger contract.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("empty", func(t *testing.T) { testEmpty(t, newStore(t)) })
	t.Run("append and read", func(t *testing.T) { testAppend(t, newStore(t)) })
	t.Run("failed commit appends nothing", func(t *testing.T) { testFailedCommit(t, newStore(t)) })
	t.Run("created_at strictly increasing", func(t *testing.T) { testMonotonic(t, newStore(t)) })
	t.Run("versions are independent", func(t *testing.T) { testVersions(t, newStore(t)) })
	t.Run("scoped snapshots are not watermarks", func(t *testing.T) { testScoped(t, newStore(t)) })
	t.Run("concurrent commits serialize", func(t *testing.T) { testConcurrent(t, newStore(t)) })
}

func snapshot(at time.Time, rows int) ledger.CommitFunc {
	return func(ctx context.Context, prev *domain.ExportSnapshot) (domain.ExportSnapshot, error) {
		return domain.ExportSnapshot{
			CreatedAt:       at,
			Mode:            domain.ExportModeFull,
			RowCount:        rows,
			ContentChecksum: fmt.Sprintf("sum-%d", rows),
		}, nil
	}
}

var base = time.Date(2025, 9, 6, 12, 0, 0, 0, time.UTC)

func testEmpty(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	_, err := s.Latest(ctx, "v1")
	assert.ErrorIs(t, err, ledger.ErrNoSnapshot)

	list, err := s.List(ctx, "v1")
	require.NoError(t, err)
	assert.Empty(t, list)

	var seen *domain.ExportSnapshot
	called := false
	_, err = s.Commit(ctx, "v1", func(ctx context.Context, prev *domain.ExportSnapshot) (domain.ExportSnapshot, error) {
		called = true
		seen = prev
		return domain.ExportSnapshot{CreatedAt: base, Mode: domain.ExportModeDelta}, nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Nil(t, seen)
}

func testAppend(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	first, err := s.Commit(ctx, "v1", snapshot(base, 10))
	require.NoError(t, err)
	second, err := s.Commit(ctx, "v1", snapshot(base.Add(time.Hour), 4))
	require.NoError(t, err)

	assert.Greater(t, second.SnapshotID, first.SnapshotID)
	assert.Equal(t, "v1", second.ContractVersion)

	var prevSeen *domain.ExportSnapshot
	_, err = s.Commit(ctx, "v1", func(ctx context.Context, prev *domain.ExportSnapshot) (domain.ExportSnapshot, error) {
		prevSeen = prev
		return domain.ExportSnapshot{CreatedAt: base.Add(2 * time.Hour), Mode: domain.ExportModeDelta}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, prevSeen)
	assert.Equal(t, second.SnapshotID, prevSeen.SnapshotID)
	assert.True(t, prevSeen.CreatedAt.Equal(base.Add(time.Hour)))

	latest, err := s.Latest(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExportModeDelta, latest.Mode)

	list, err := s.List(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 10, list[0].RowCount)
	assert.Equal(t, "sum-10", list[0].ContentChecksum)
	assert.Equal(t, 4, list[1].RowCount)
	for i := 1; i < len(list); i++ {
		assert.True(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
}

func testFailedCommit(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	boom := errors.New("render failed")

	_, err := s.Commit(ctx, "v1", func(ctx context.Context, prev *domain.ExportSnapshot) (domain.ExportSnapshot, error) {
		return domain.ExportSnapshot{}, boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := s.List(ctx, "v1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testMonotonic(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	// Same and earlier proposals are pushed forward.
	a, err := s.Commit(ctx, "v1", snapshot(base, 1))
	require.NoError(t, err)
	b, err := s.Commit(ctx, "v1", snapshot(base, 2))
	require.NoError(t, err)
	c, err := s.Commit(ctx, "v1", snapshot(base.Add(-time.Hour), 3))
	require.NoError(t, err)

	assert.True(t, b.CreatedAt.After(a.CreatedAt))
	assert.True(t, c.CreatedAt.After(b.CreatedAt))
}

func testVersions(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	_, err := s.Commit(ctx, "v1", snapshot(base, 1))
	require.NoError(t, err)
	_, err = s.Commit(ctx, "v2", snapshot(base.Add(time.Minute), 2))
	require.NoError(t, err)

	latest, err := s.Latest(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.RowCount)

	list, err := s.List(ctx, "v2")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].RowCount)

	_, err = s.Latest(ctx, "v3")
	assert.ErrorIs(t, err, ledger.ErrNoSnapshot)
}

func testConcurrent(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	const writers = 8

	var (
		mu       sync.Mutex
		inCommit int
		overlap  bool
		wg       sync.WaitGroup
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Commit(ctx, "v1", func(ctx context.Context, prev *domain.ExportSnapshot) (domain.ExportSnapshot, error) {
				mu.Lock()
				inCommit++
				if inCommit > 1 {
					overlap = true
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inCommit--
				mu.Unlock()
				return domain.ExportSnapshot{CreatedAt: base, Mode: domain.ExportModeFull, RowCount: i}, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.False(t, overlap, "commit callbacks ran concurrently")

	list, err := s.List(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, list, writers)

	ids := make(map[int64]bool)
	for i, snap := range list {
		ids[snap.SnapshotID] = true
		if i > 0 {
			assert.True(t, snap.CreatedAt.After(list[i-1].CreatedAt))
			assert.Greater(t, snap.SnapshotID, list[i-1].SnapshotID)
		}
	}
	assert.Len(t, ids, writers)
}

func testScoped(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	_, err := s.Watermark(ctx, "v1")
	assert.ErrorIs(t, err, ledger.ErrNoSnapshot)

	_, err = s.Commit(ctx, "v1", func(ctx context.Context, prev *domain.ExportSnapshot) (domain.ExportSnapshot, error) {
		return domain.ExportSnapshot{CreatedAt: base, Mode: domain.ExportModeFull, Scope: "region=NCR"}, nil
	})
	require.NoError(t, err)

	_, err = s.Watermark(ctx, "v1")
	assert.ErrorIs(t, err, ledger.ErrNoSnapshot)

	complete, err := s.Commit(ctx, "v1", func(ctx context.Context, prev *domain.ExportSnapshot) (domain.ExportSnapshot, error) {
		assert.Nil(t, prev, "a scoped snapshot is never the watermark")
		return domain.ExportSnapshot{CreatedAt: base.Add(time.Hour), Mode: domain.ExportModeFull}, nil
	})
	require.NoError(t, err)

	scoped, err := s.Commit(ctx, "v1", func(ctx context.Context, prev *domain.ExportSnapshot) (domain.ExportSnapshot, error) {
		require.NotNil(t, prev)
		assert.Equal(t, complete.SnapshotID, prev.SnapshotID)
		return domain.ExportSnapshot{CreatedAt: base.Add(2 * time.Hour), Mode: domain.ExportModeFull, Scope: "stores=S1"}, nil
	})
	require.NoError(t, err)

	var prevSeen *domain.ExportSnapshot
	_, err = s.Commit(ctx, "v1", func(ctx context.Context, prev *domain.ExportSnapshot) (domain.ExportSnapshot, error) {
		prevSeen = prev
		return domain.ExportSnapshot{CreatedAt: base.Add(3 * time.Hour), Mode: domain.ExportModeDelta}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, prevSeen)
	assert.Equal(t, complete.SnapshotID, prevSeen.SnapshotID)

	wm, err := s.Watermark(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExportModeDelta, wm.Mode)

	list, err := s.List(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "stores=S1", list[2].Scope)
	assert.Equal(t, scoped.SnapshotID, list[2].SnapshotID)
}
