// Package temporal derives day-part and weekday/weekend attributes from the
// authoritative transaction timestamp.
package temporal

import (
	"time"

	"github.com/dvloznov/basket-export/internal/domain"
)

// Daypart values.
const (
	Morning   = "Morning"
	Afternoon = "Afternoon"
	Evening   = "Evening"
	Night     = "Night"
)

// Week type values.
const (
	Weekday = "Weekday"
	Weekend = "Weekend"
)

// Attributes is the resolver output for one timestamp.
type Attributes struct {
	Daypart  string
	WeekType string
}

// Resolver buckets timestamps in a fixed location.
type Resolver struct {
	loc *time.Location
}

// NewResolver creates a resolver that reads wall-clock time in loc. A nil
// loc keeps each timestamp's own location.
func NewResolver(loc *time.Location) *Resolver {
	return &Resolver{loc: loc}
}

// Resolve returns Unknown for both attributes when ts is nil.
func (r *Resolver) Resolve(ts *time.Time) Attributes {
	if ts == nil {
		return Attributes{Daypart: domain.Unknown, WeekType: domain.Unknown}
	}
	t := *ts
	if r != nil && r.loc != nil {
		t = t.In(r.loc)
	}
	return Attributes{Daypart: DaypartOf(t.Hour()), WeekType: WeekTypeOf(t.Weekday())}
}

// DaypartOf buckets an hour of day: Morning [5,12), Afternoon [12,18),
// Evening [18,23), Night otherwise.
func DaypartOf(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 18:
		return Afternoon
	case hour >= 18 && hour < 23:
		return Evening
	default:
		return Night
	}
}

func WeekTypeOf(d time.Weekday) string {
	if d == time.Saturday || d == time.Sunday {
		return Weekend
	}
	return Weekday
}
