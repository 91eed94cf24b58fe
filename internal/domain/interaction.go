package domain

import (
	"sort"
	"time"
)

// InteractionLog indexes the authoritative interaction log by transaction key.
type InteractionLog struct {
	byKey map[string]Interaction
}

// NewInteractionLog builds the index. When a key repeats, the entries are
// ranked by interactionBefore: the first one wins and later ones only fill
// demographics it lacks. The result does not depend on input order.
func NewInteractionLog(entries []Interaction) *InteractionLog {
	grouped := make(map[string][]Interaction, len(entries))
	for _, e := range entries {
		if e.TransactionKey == "" {
			continue
		}
		grouped[e.TransactionKey] = append(grouped[e.TransactionKey], e)
	}

	l := &InteractionLog{byKey: make(map[string]Interaction, len(grouped))}
	for key, group := range grouped {
		sort.Slice(group, func(i, j int) bool { return interactionBefore(group[i], group[j]) })
		winner := group[0]
		for _, e := range group[1:] {
			if winner.Gender == "" {
				winner.Gender = e.Gender
			}
			if winner.AgeBracket == "" {
				winner.AgeBracket = e.AgeBracket
			}
		}
		l.byKey[key] = winner
	}
	return l
}

// interactionBefore is a total order over entries of one key: timed before
// untimed, earliest first, more demographics first, then by field values.
func interactionBefore(a, b Interaction) bool {
	switch {
	case a.Timestamp != nil && b.Timestamp == nil:
		return true
	case a.Timestamp == nil && b.Timestamp != nil:
		return false
	case a.Timestamp != nil && !a.Timestamp.Equal(*b.Timestamp):
		return a.Timestamp.Before(*b.Timestamp)
	}
	if na, nb := demographicFields(a), demographicFields(b); na != nb {
		return na > nb
	}
	if a.Gender != b.Gender {
		return a.Gender < b.Gender
	}
	return a.AgeBracket < b.AgeBracket
}

func demographicFields(e Interaction) int {
	n := 0
	if e.Gender != "" {
		n++
	}
	if e.AgeBracket != "" {
		n++
	}
	return n
}

// Lookup returns the interaction for key.
func (l *InteractionLog) Lookup(key string) (Interaction, bool) {
	if l == nil {
		return Interaction{}, false
	}
	e, ok := l.byKey[key]
	return e, ok
}

// Timestamp returns the authoritative timestamp for key, or nil.
func (l *InteractionLog) Timestamp(key string) *time.Time {
	e, ok := l.Lookup(key)
	if !ok || e.Timestamp == nil {
		return nil
	}
	ts := *e.Timestamp
	return &ts
}

// Len returns the number of distinct keys.
func (l *InteractionLog) Len() int {
	if l == nil {
		return 0
	}
	return len(l.byKey)
}
