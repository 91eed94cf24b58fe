// Package enrich assembles export rows from canonical transactions and the
// per-transaction temporal, taxonomy, demographic and store attributes.
package enrich

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/taxonomy"
	"github.com/dvloznov/basket-export/internal/temporal"
)

// ErrCardinality means the join produced a different number of rows than it
// was given. It is a structural failure and aborts the run.
var ErrCardinality = errors.New("enrichment cardinality mismatch")

// DefaultDelimiter separates co-purchased categories.
const DefaultDelimiter = ";"

// Stats counts the defaults the join had to apply.
type Stats struct {
	Rows                int
	UnspecifiedCategory int
	MissingDemographics int
	MissingTimestamps   int
	MissingLocation     int
	Substitutions       int
	SecondaryBrands     int
}

// Joiner performs left-preserving lookups keyed by transaction and store.
type Joiner struct {
	delimiter    string
	interactions *domain.InteractionLog
	stores       map[string]domain.Store
	loc          *time.Location
}

// NewJoiner creates a joiner. interactions and stores may be empty.
func NewJoiner(delimiter string, interactions *domain.InteractionLog, stores []domain.Store) *Joiner {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	byID := make(map[string]domain.Store, len(stores))
	for _, s := range stores {
		byID[s.StoreID] = s
	}
	return &Joiner{delimiter: delimiter, interactions: interactions, stores: byID}
}

// InLocation makes Time_of_Transaction read in loc, the location the
// temporal attributes were derived in. The instant is unchanged.
func (j *Joiner) InLocation(loc *time.Location) *Joiner {
	j.loc = loc
	return j
}

// Join emits exactly one row per transaction. times and baskets must be
// aligned with txs by index.
func (j *Joiner) Join(txs []domain.CanonicalTransaction, times []temporal.Attributes, baskets []taxonomy.Basket) ([]domain.EnrichedExportRow, Stats, error) {
	var stats Stats
	if len(times) != len(txs) || len(baskets) != len(txs) {
		return nil, stats, fmt.Errorf("Join: %w: %d transactions, %d temporal, %d taxonomy",
			ErrCardinality, len(txs), len(times), len(baskets))
	}

	rows := make([]domain.EnrichedExportRow, 0, len(txs))
	for i, tx := range txs {
		basket := baskets[i]
		primary := basket.Ranking.Primary

		row := domain.EnrichedExportRow{
			TransactionID:      tx.CanonicalTxID,
			TransactionValue:   tx.Amount,
			BasketSize:         tx.BasketSize,
			Category:           primary.Category,
			Brand:              primary.Brand,
			Daypart:            times[i].Daypart,
			WeekType:           times[i].WeekType,
			TransactionTime:    j.localTime(tx.AuthoritativeTimestamp),
			Demographics:       j.demographics(tx.TransactionKey),
			Location:           j.location(tx.StoreID),
			OtherProducts:      j.otherProducts(primary.Category, basket.Categories),
			WasSubstitution:    substituted(tx.Items),
			CategoryConfidence: primary.Confidence,
		}
		if basket.Ranking.Secondary != nil {
			row.SecondaryBrand = basket.Ranking.Secondary.Brand
			stats.SecondaryBrands++
		}

		if row.Category == domain.Unspecified {
			stats.UnspecifiedCategory++
		}
		if row.Demographics == domain.Unknown {
			stats.MissingDemographics++
		}
		if row.TransactionTime == nil {
			stats.MissingTimestamps++
		}
		if row.Location == domain.Unknown {
			stats.MissingLocation++
		}
		if row.WasSubstitution {
			stats.Substitutions++
		}
		rows = append(rows, row)
	}

	if len(rows) != len(txs) {
		return nil, stats, fmt.Errorf("Join: %w: %d in, %d out", ErrCardinality, len(txs), len(rows))
	}
	stats.Rows = len(rows)
	return rows, stats, nil
}

func (j *Joiner) localTime(ts *time.Time) *time.Time {
	if ts == nil || j.loc == nil {
		return ts
	}
	t := ts.In(j.loc)
	return &t
}

func (j *Joiner) demographics(key string) string {
	in, ok := j.interactions.Lookup(key)
	if !ok || (in.Gender == "" && in.AgeBracket == "") {
		return domain.Unknown
	}
	return orUnknown(in.Gender) + ", " + orUnknown(in.AgeBracket)
}

func (j *Joiner) location(storeID string) string {
	s, ok := j.stores[storeID]
	if !ok || s.Location == "" {
		return domain.Unknown
	}
	return s.Location
}

// otherProducts renders the basket's categories other than primary. The
// categories are already distinct and sorted.
func (j *Joiner) otherProducts(primary string, categories []string) string {
	others := make([]string, 0, len(categories))
	for _, c := range categories {
		if c == primary || c == domain.Unspecified {
			continue
		}
		others = append(others, c)
	}
	return strings.Join(others, j.delimiter)
}

func substituted(items []domain.LineItem) bool {
	for _, item := range items {
		if item.Substituted(taxonomy.Normalize) {
			return true
		}
	}
	return false
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return domain.Unknown
	}
	return strings.TrimSpace(s)
}
