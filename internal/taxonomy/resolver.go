package taxonomy

import (
	"sort"
	"strings"

	"github.com/dvloznov/basket-export/internal/domain"
)

// Resolution is the outcome of resolving one observed brand string.
type Resolution struct {
	Brand          string // curated display name, or the observed text when unmapped
	Normalized     string
	Category       string
	CategoryCode   string
	Department     string
	DepartmentCode string
	Confidence     float64
	Mandatory      bool
	Mapped         bool
}

// BrandRanking orders the distinct brands mentioned in one transaction.
type BrandRanking struct {
	Primary   Resolution
	Secondary *Resolution // next-highest distinct brand, nil when there is none
	All       []Resolution
}

// Resolver maps observed brands onto a Table. It is stateless apart from the
// immutable table and safe for concurrent use.
type Resolver struct {
	table *Table
}

// NewResolver creates a resolver over t.
func NewResolver(t *Table) *Resolver {
	return &Resolver{table: t}
}

// Resolve never fails: an unmapped brand yields (Unspecified, Unspecified, 0).
func (r *Resolver) Resolve(brand string) Resolution {
	key := Normalize(brand)
	if m, ok := r.table.Lookup(key); ok && key != "" {
		return Resolution{
			Brand:          m.BrandName,
			Normalized:     key,
			Category:       nonEmpty(m.CategoryName, m.CategoryCode),
			CategoryCode:   m.CategoryCode,
			Department:     nonEmpty(m.DepartmentName, m.DepartmentCode),
			DepartmentCode: m.DepartmentCode,
			Confidence:     m.ConfidenceScore,
			Mandatory:      m.IsMandatory,
			Mapped:         true,
		}
	}
	return Unmapped(brand)
}

// Unmapped is the fallback resolution for brand.
func Unmapped(brand string) Resolution {
	display := strings.TrimSpace(brand)
	if display == "" {
		display = domain.Unspecified
	}
	return Resolution{
		Brand:      display,
		Normalized: Normalize(brand),
		Category:   domain.Unspecified,
		Department: domain.Unspecified,
	}
}

// RankBrands resolves every mention, collapses repeats of the same brand and
// orders the rest by confidence. Equal confidence prefers mandatory mappings,
// then the normalized name, so the ranking is deterministic.
func (r *Resolver) RankBrands(mentions []string) BrandRanking {
	seen := make(map[string]bool, len(mentions))
	var all []Resolution
	for _, m := range mentions {
		res := r.Resolve(m)
		if res.Normalized == "" || seen[res.Normalized] {
			continue
		}
		seen[res.Normalized] = true
		all = append(all, res)
	}

	if len(all) == 0 {
		return BrandRanking{Primary: Unmapped("")}
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Mandatory != b.Mandatory {
			return a.Mandatory
		}
		return a.Normalized < b.Normalized
	})

	ranking := BrandRanking{Primary: all[0], All: all}
	if len(all) > 1 {
		second := all[1]
		ranking.Secondary = &second
	}
	return ranking
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return domain.Unspecified
}

// Basket is the taxonomy view of one transaction.
type Basket struct {
	Ranking    BrandRanking
	Categories []string // distinct resolved categories, sorted, may include Unspecified
}

// ResolveBasket ranks the brands of items and collects their categories.
func (r *Resolver) ResolveBasket(items []domain.LineItem) Basket {
	mentions := make([]string, 0, len(items))
	seen := make(map[string]bool)
	var categories []string
	for _, item := range items {
		mentions = append(mentions, item.Brand)
		cat := r.Resolve(item.Brand).Category
		if !seen[cat] {
			seen[cat] = true
			categories = append(categories, cat)
		}
	}
	sort.Strings(categories)
	return Basket{Ranking: r.RankBrands(mentions), Categories: categories}
}
