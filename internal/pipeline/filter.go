package pipeline

import (
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/basket-export/internal/domain"
)

// Filter narrows a run. Zero fields do not filter.
type Filter struct {
	From     *civil.Date // inclusive, by authoritative timestamp
	To       *civil.Date // inclusive
	Region   string
	StoreIDs []string
}

// IsZero reports whether f keeps every transaction.
func (f Filter) IsZero() bool {
	return f.From == nil && f.To == nil && f.Region == "" && len(f.StoreIDs) == 0
}

// Scope describes f for the snapshot ledger, or returns "" when f keeps
// every transaction. Equal filters describe the same scope.
func (f Filter) Scope() string {
	if f.IsZero() {
		return ""
	}
	var parts []string
	if f.From != nil {
		parts = append(parts, "from="+f.From.String())
	}
	if f.To != nil {
		parts = append(parts, "to="+f.To.String())
	}
	if f.Region != "" {
		parts = append(parts, "region="+f.Region)
	}
	if len(f.StoreIDs) > 0 {
		ids := append([]string(nil), f.StoreIDs...)
		sort.Strings(ids)
		parts = append(parts, "stores="+strings.Join(ids, ","))
	}
	return strings.Join(parts, ";")
}

type filterFunc func(tx domain.CanonicalTransaction) bool

// compile resolves f against the store directory. Transactions without a
// timestamp never match a date range; transactions at unknown stores never
// match a region.
func (f Filter) compile(stores []domain.Store, loc *time.Location) filterFunc {
	if loc == nil {
		loc = time.UTC
	}

	var storeSet map[string]bool
	if len(f.StoreIDs) > 0 {
		storeSet = make(map[string]bool, len(f.StoreIDs))
		for _, id := range f.StoreIDs {
			storeSet[id] = true
		}
	}

	regionOf := make(map[string]string, len(stores))
	for _, s := range stores {
		regionOf[s.StoreID] = s.Region
	}

	return func(tx domain.CanonicalTransaction) bool {
		if storeSet != nil && !storeSet[tx.StoreID] {
			return false
		}
		if f.Region != "" && regionOf[tx.StoreID] != f.Region {
			return false
		}
		if f.From == nil && f.To == nil {
			return true
		}
		if tx.AuthoritativeTimestamp == nil {
			return false
		}
		d := civil.DateOf(tx.AuthoritativeTimestamp.In(loc))
		if f.From != nil && d.Before(*f.From) {
			return false
		}
		if f.To != nil && d.After(*f.To) {
			return false
		}
		return true
	}
}
