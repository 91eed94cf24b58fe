// Package taxonomy holds the curated brand → category hierarchy and resolves
// observed brand strings against it.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/dvloznov/basket-export/internal/domain"
)

var (
	// ErrEmptyTable is returned when the taxonomy has no rows. It is a
	// configuration error and must stop the run before it starts.
	ErrEmptyTable = errors.New("taxonomy table is empty")

	// ErrDuplicateBrand is returned when two rows normalize to the same brand.
	ErrDuplicateBrand = errors.New("duplicate normalized brand")

	// ErrInvalidConfidence is returned for confidence scores outside [0, 1].
	ErrInvalidConfidence = errors.New("confidence score out of range")
)

// Repository loads the raw mapping rows.
type Repository interface {
	ListBrandMappings(ctx context.Context) ([]domain.BrandCategoryMapping, error)
}

// Table is an immutable lookup of mappings keyed by normalized brand name.
// Build it once per run and share it freely between goroutines.
type Table struct {
	byBrand map[string]domain.BrandCategoryMapping
}

// Load reads every mapping from repo and builds a Table.
func Load(ctx context.Context, repo Repository) (*Table, error) {
	rows, err := repo.ListBrandMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("taxonomy.Load: list mappings: %w", err)
	}
	return NewTable(rows)
}

// NewTable validates rows and indexes them. The normalized key is always
// recomputed so that lookups and the stored keys agree.
func NewTable(rows []domain.BrandCategoryMapping) (*Table, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}

	t := &Table{byBrand: make(map[string]domain.BrandCategoryMapping, len(rows))}
	for i, row := range rows {
		key := Normalize(row.BrandNameNormalized)
		if key == "" {
			key = Normalize(row.BrandName)
		}
		if key == "" {
			return nil, fmt.Errorf("taxonomy row %d: brand name is empty", i)
		}
		if row.ConfidenceScore < 0 || row.ConfidenceScore > 1 {
			return nil, fmt.Errorf("taxonomy row %d (%s): %w: %v", i, key, ErrInvalidConfidence, row.ConfidenceScore)
		}
		if _, exists := t.byBrand[key]; exists {
			return nil, fmt.Errorf("taxonomy row %d: %w: %q", i, ErrDuplicateBrand, key)
		}
		row.BrandNameNormalized = key
		if row.BrandName == "" {
			row.BrandName = key
		}
		t.byBrand[key] = row
	}
	return t, nil
}

// Len returns the number of mappings.
func (t *Table) Len() int {
	return len(t.byBrand)
}

// Lookup returns the mapping for an already normalized brand.
func (t *Table) Lookup(normalized string) (domain.BrandCategoryMapping, bool) {
	m, ok := t.byBrand[normalized]
	return m, ok
}

// Normalize case-folds s and drops everything that is not a letter or digit,
// so "Coca-Cola ", "coca cola" and "COCACOLA" share one key.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
