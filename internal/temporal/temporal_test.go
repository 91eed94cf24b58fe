package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/basket-export/internal/domain"
)

func TestResolve_SaturdayAfternoon(t *testing.T) {
	ts := time.Date(2025, 9, 6, 14, 30, 0, 0, time.UTC)
	got := NewResolver(time.UTC).Resolve(&ts)

	assert.Equal(t, Attributes{Daypart: Afternoon, WeekType: Weekend}, got)
}

func TestResolve_Missing(t *testing.T) {
	got := NewResolver(time.UTC).Resolve(nil)
	assert.Equal(t, domain.Unknown, got.Daypart)
	assert.Equal(t, domain.Unknown, got.WeekType)
}

func TestDaypartOf(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{0, Night},
		{4, Night},
		{5, Morning},
		{11, Morning},
		{12, Afternoon},
		{17, Afternoon},
		{18, Evening},
		{22, Evening},
		{23, Night},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DaypartOf(tt.hour), "hour %d", tt.hour)
	}
}

func TestWeekTypeOf(t *testing.T) {
	// 2025-09-01 is a Monday
	for day := 1; day <= 7; day++ {
		d := time.Date(2025, 9, day, 12, 0, 0, 0, time.UTC).Weekday()
		want := Weekday
		if day >= 6 {
			want = Weekend
		}
		assert.Equal(t, want, WeekTypeOf(d), "2025-09-%02d", day)
	}
}

func TestResolve_Location(t *testing.T) {
	manila := time.FixedZone("PHT", 8*60*60)
	// Friday 22:30 UTC is Saturday 06:30 in Manila.
	ts := time.Date(2025, 9, 5, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, Attributes{Daypart: Evening, WeekType: Weekday}, NewResolver(time.UTC).Resolve(&ts))
	assert.Equal(t, Attributes{Daypart: Morning, WeekType: Weekend}, NewResolver(manila).Resolve(&ts))

	local := ts.In(manila)
	got := NewResolver(nil).Resolve(&local)
	require.Equal(t, Morning, got.Daypart)
}
