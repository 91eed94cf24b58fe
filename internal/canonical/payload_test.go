package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		key        string
		ok         bool
		wellFormed bool
		items      int
	}{
		{name: "well formed", raw: `{"transaction_id":"T1","items":[{"brand":"A"},{"brand":"B"}]}`, key: "T1", ok: true, wellFormed: true, items: 2},
		{name: "empty items", raw: `{"transaction_id":"T1","items":[]}`, key: "T1", ok: true, wellFormed: true},
		{name: "missing items", raw: `{"transaction_id":"T1"}`, key: "T1", ok: true},
		{name: "item without brand", raw: `{"transaction_id":"T1","items":[{"sku":"1"},{"brand":"B"}]}`, key: "T1", ok: true, items: 1},
		{name: "negative quantity", raw: `{"transaction_id":"T1","items":[{"brand":"A","quantity":-1}]}`, key: "T1", ok: true, items: 1},
		{name: "numeric id", raw: `{"transaction_id":42,"items":[]}`, ok: false},
		{name: "truncated", raw: `{"transaction_id" : "T7", "items": [`, key: "T7", ok: true},
		{name: "no id", raw: `{"items":[{"brand":"A"}]}`, ok: false},
		{name: "empty", raw: ``, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := ParsePayload(tt.raw)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.key, p.Key)
			assert.Equal(t, tt.wellFormed, p.WellFormed)
			assert.Len(t, p.Items, tt.items)
		})
	}
}

func TestParsePayload_Substitution(t *testing.T) {
	p, ok := ParsePayload(`{"transaction_id":"T1","items":[{"brand":"Alaska","requested_brand":"Bear Brand","sku":"A1","quantity":2}]}`)
	require.True(t, ok)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "Bear Brand", p.Items[0].RequestedBrand)
	assert.Equal(t, 2, p.Items[0].Quantity)
}

func TestParseOrder(t *testing.T) {
	order, err := ParseOrder(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOrder, order)

	order, err = ParseOrder([]string{" Line_Items ", "well_formed"})
	require.NoError(t, err)
	assert.Equal(t, []Criterion{LineItems, WellFormed}, order)

	_, err = ParseOrder([]string{"line_items", "line_items"})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = ParseOrder([]string{"newest"})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = New([]Criterion{"bogus"}, nil)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}
