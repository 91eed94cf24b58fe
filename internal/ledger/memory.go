package ledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dvloznov/basket-export/internal/domain"
)

// MemoryStore keeps the ledger in process. Commits are serialized by a mutex;
// readers load an immutable slice and never block.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots atomic.Pointer[[]domain.ExportSnapshot]
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	empty := []domain.ExportSnapshot{}
	s.snapshots.Store(&empty)
	return s
}

func (s *MemoryStore) Commit(ctx context.Context, version string, fn CommitFunc) (domain.ExportSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.ExportSnapshot{}, err
	}

	current := *s.snapshots.Load()
	prev := latestOf(current, version, true)

	snap, err := fn(ctx, prev)
	if err != nil {
		return domain.ExportSnapshot{}, err
	}

	var lastID int64
	var lastAt time.Time
	if n := len(current); n > 0 {
		lastID = current[n-1].SnapshotID
		lastAt = current[n-1].CreatedAt
	}
	snap.CreatedAt = NextCreatedAt(snap.CreatedAt, lastAt)
	snap.SnapshotID = lastID + 1
	snap.ContractVersion = version

	next := make([]domain.ExportSnapshot, len(current), len(current)+1)
	copy(next, current)
	next = append(next, snap)
	s.snapshots.Store(&next)

	return snap, nil
}

func (s *MemoryStore) Latest(ctx context.Context, version string) (domain.ExportSnapshot, error) {
	if snap := latestOf(*s.snapshots.Load(), version, false); snap != nil {
		return *snap, nil
	}
	return domain.ExportSnapshot{}, fmt.Errorf("Latest %s: %w", version, ErrNoSnapshot)
}

func (s *MemoryStore) Watermark(ctx context.Context, version string) (domain.ExportSnapshot, error) {
	if snap := latestOf(*s.snapshots.Load(), version, true); snap != nil {
		return *snap, nil
	}
	return domain.ExportSnapshot{}, fmt.Errorf("Watermark %s: %w", version, ErrNoSnapshot)
}

func (s *MemoryStore) List(ctx context.Context, version string) ([]domain.ExportSnapshot, error) {
	var out []domain.ExportSnapshot
	for _, snap := range *s.snapshots.Load() {
		if snap.ContractVersion == version {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// latestOf scans from the end; snapshots are stored in CreatedAt order.
func latestOf(snapshots []domain.ExportSnapshot, version string, completeOnly bool) *domain.ExportSnapshot {
	for i := len(snapshots) - 1; i >= 0; i-- {
		if snapshots[i].ContractVersion == version && (!completeOnly || snapshots[i].Complete()) {
			snap := snapshots[i]
			return &snap
		}
	}
	return nil
}
