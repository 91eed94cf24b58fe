package canonical

import (
	"errors"
	"fmt"
	"strings"
)

// Criterion is one tie-break rule used to choose between raw records that
// share a grouping key.
type Criterion string

const (
	// WellFormed prefers payloads that parse and match the payload schema.
	WellFormed Criterion = "well_formed"
	// LineItems prefers more line items.
	LineItems Criterion = "line_items"
	// PayloadSize prefers the larger raw payload.
	PayloadSize Criterion = "payload_size"
	// IngestedAt prefers the most recently ingested record.
	IngestedAt Criterion = "ingested_at"
)

// ErrInvalidOrder is returned for unknown, repeated or missing criteria.
var ErrInvalidOrder = errors.New("invalid tie-break order")

// DefaultOrder is applied when no order is configured. Remaining ties are
// always broken by session id, device id and raw payload bytes.
var DefaultOrder = []Criterion{WellFormed, LineItems, PayloadSize, IngestedAt}

var knownCriteria = map[Criterion]bool{
	WellFormed:  true,
	LineItems:   true,
	PayloadSize: true,
	IngestedAt:  true,
}

// ParseOrder validates a configured order. An empty list yields DefaultOrder.
func ParseOrder(names []string) ([]Criterion, error) {
	if len(names) == 0 {
		return append([]Criterion(nil), DefaultOrder...), nil
	}

	order := make([]Criterion, 0, len(names))
	seen := make(map[Criterion]bool, len(names))
	for _, name := range names {
		c := Criterion(strings.ToLower(strings.TrimSpace(name)))
		if !knownCriteria[c] {
			return nil, fmt.Errorf("%w: unknown criterion %q", ErrInvalidOrder, name)
		}
		if seen[c] {
			return nil, fmt.Errorf("%w: %q listed twice", ErrInvalidOrder, name)
		}
		seen[c] = true
		order = append(order, c)
	}
	return order, nil
}
