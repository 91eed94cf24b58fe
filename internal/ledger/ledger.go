// Package ledger is the append-only audit log of successful exports. The last
// snapshot of a contract version is the watermark for delta exports.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/basket-export/internal/domain"
)

// ErrNoSnapshot is returned by Latest when a version has never been exported.
var ErrNoSnapshot = errors.New("no snapshot recorded")

// CommitFunc produces the snapshot to append given the current watermark: the
// latest complete snapshot of the same contract version, nil when there is
// none. Scoped snapshots are recorded but never passed as prev. Returning an
// error appends nothing.
type CommitFunc func(ctx context.Context, prev *domain.ExportSnapshot) (domain.ExportSnapshot, error)

// Store is implemented by every ledger backend. Commit is the only mutation
// and runs fn while holding the single-writer lock, so the watermark read and
// the append happen atomically with respect to other commits.
type Store interface {
	Commit(ctx context.Context, version string, fn CommitFunc) (domain.ExportSnapshot, error)
	Latest(ctx context.Context, version string) (domain.ExportSnapshot, error)
	// Watermark returns the latest complete snapshot of version, or
	// ErrNoSnapshot.
	Watermark(ctx context.Context, version string) (domain.ExportSnapshot, error)
	List(ctx context.Context, version string) ([]domain.ExportSnapshot, error)
	Close() error
}

// NextCreatedAt returns proposed, or the smallest instant after last when
// proposed does not move forward. Snapshot timestamps are strictly
// increasing per store.
func NextCreatedAt(proposed, last time.Time) time.Time {
	proposed = proposed.UTC().Truncate(time.Microsecond)
	if last.IsZero() || proposed.After(last) {
		return proposed
	}
	return last.Add(time.Microsecond)
}
