// Package canonical collapses raw ingestion records into exactly one
// canonical transaction per grouping key.
package canonical

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/basket-export/internal/domain"
)

// idNamespace scopes the name-based canonical ids.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("basket-export/canonical-transaction"))

// CanonicalID returns the stable id of a grouping key.
func CanonicalID(key string) string {
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// TimestampSource supplies authoritative timestamps by grouping key.
type TimestampSource interface {
	Timestamp(key string) *time.Time
}

// Result is the output of one Canonicalize call.
type Result struct {
	Transactions      []domain.CanonicalTransaction // sorted by CanonicalTxID
	Input             int
	Rejected          int // records with no derivable key
	Duplicates        int // records that lost a tie-break
	MissingTimestamps int
	InvalidAmounts    int // winners whose amount did not parse, exported as zero
}

// Canonicalizer chooses one representative per grouping key. It holds no
// mutable state and may be shared.
type Canonicalizer struct {
	order      []Criterion
	timestamps TimestampSource
}

// New builds a Canonicalizer. A nil order uses DefaultOrder; timestamps may be
// nil, in which case every transaction has no authoritative timestamp.
func New(order []Criterion, timestamps TimestampSource) (*Canonicalizer, error) {
	names := make([]string, len(order))
	for i, c := range order {
		names[i] = string(c)
	}
	parsed, err := ParseOrder(names)
	if err != nil {
		return nil, err
	}
	return &Canonicalizer{order: parsed, timestamps: timestamps}, nil
}

// Order returns the effective tie-break order.
func (c *Canonicalizer) Order() []Criterion {
	return append([]Criterion(nil), c.order...)
}

type candidate struct {
	rec    domain.RawTransactionRecord
	parsed ParsedPayload
}

// Canonicalize groups records by key and keeps one winner per group. The
// result does not depend on the order of records.
func (c *Canonicalizer) Canonicalize(records []domain.RawTransactionRecord) Result {
	res := Result{Input: len(records)}

	winners := make(map[string]candidate)
	for _, rec := range records {
		parsed, ok := ParsePayload(rec.RawPayload)
		if !ok {
			res.Rejected++
			continue
		}
		cand := candidate{rec: rec, parsed: parsed}
		cur, exists := winners[parsed.Key]
		if !exists {
			winners[parsed.Key] = cand
			continue
		}
		res.Duplicates++
		if c.better(cand, cur) {
			winners[parsed.Key] = cand
		}
	}

	res.Transactions = make([]domain.CanonicalTransaction, 0, len(winners))
	for key, w := range winners {
		amount, err := domain.NewDecimal(w.rec.Amount)
		if err != nil {
			res.InvalidAmounts++
			amount = domain.Decimal{}
		}

		var ts *time.Time
		if c.timestamps != nil {
			ts = c.timestamps.Timestamp(key)
		}
		if ts == nil {
			res.MissingTimestamps++
		}

		res.Transactions = append(res.Transactions, domain.CanonicalTransaction{
			CanonicalTxID:          CanonicalID(key),
			TransactionKey:         key,
			Amount:                 amount,
			BasketSize:             len(w.parsed.Items),
			AuthoritativeTimestamp: ts,
			StoreID:                w.rec.StoreID,
			Items:                  append([]domain.LineItem(nil), w.parsed.Items...),
			SourceSessionID:        w.rec.SessionID,
		})
	}

	sort.Slice(res.Transactions, func(i, j int) bool {
		return res.Transactions[i].CanonicalTxID < res.Transactions[j].CanonicalTxID
	})
	return res
}

// better reports whether a should replace b as the group winner.
func (c *Canonicalizer) better(a, b candidate) bool {
	for _, crit := range c.order {
		if d := compare(crit, a, b); d != 0 {
			return d > 0
		}
	}
	// Stable fallback so the order is total.
	if d := strings.Compare(a.rec.SessionID, b.rec.SessionID); d != 0 {
		return d < 0
	}
	if d := strings.Compare(a.rec.DeviceID, b.rec.DeviceID); d != 0 {
		return d < 0
	}
	if d := strings.Compare(a.rec.RawPayload, b.rec.RawPayload); d != 0 {
		return d < 0
	}
	if d := strings.Compare(a.rec.StoreID, b.rec.StoreID); d != 0 {
		return d < 0
	}
	if d := strings.Compare(a.rec.Amount, b.rec.Amount); d != 0 {
		return d < 0
	}
	return a.rec.IngestedAt.Before(b.rec.IngestedAt)
}

// compare returns >0 when a is preferred over b under crit.
func compare(crit Criterion, a, b candidate) int {
	switch crit {
	case WellFormed:
		return boolCmp(a.parsed.WellFormed, b.parsed.WellFormed)
	case LineItems:
		return len(a.parsed.Items) - len(b.parsed.Items)
	case PayloadSize:
		return len(a.rec.RawPayload) - len(b.rec.RawPayload)
	case IngestedAt:
		return a.rec.IngestedAt.Compare(b.rec.IngestedAt)
	}
	return 0
}

func boolCmp(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}
