package taxonomy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/basket-export/internal/domain"
)

// mockRepository is a mock mapping repository for testing
type mockRepository struct {
	rows []domain.BrandCategoryMapping
	err  error
}

func (m *mockRepository) ListBrandMappings(ctx context.Context) ([]domain.BrandCategoryMapping, error) {
	return m.rows, m.err
}

func testMappings() []domain.BrandCategoryMapping {
	return []domain.BrandCategoryMapping{
		{BrandName: "Coca-Cola", CategoryCode: "BEV-SOFT", CategoryName: "Soft Drinks", DepartmentCode: "BEV", DepartmentName: "Beverages", ConfidenceScore: 0.95, IsMandatory: true},
		{BrandName: "Lucky Me!", CategoryCode: "FOOD-NOODLE", CategoryName: "Instant Noodles", DepartmentCode: "FOOD", DepartmentName: "Food", ConfidenceScore: 0.9},
		{BrandName: "Safeguard", CategoryCode: "PC-SOAP", CategoryName: "Soap", DepartmentCode: "PC", DepartmentName: "Personal Care", ConfidenceScore: 0.9, IsMandatory: true},
		{BrandName: "Alaska", CategoryCode: "DAIRY-MILK", CategoryName: "Milk", DepartmentCode: "DAIRY", DepartmentName: "Dairy", ConfidenceScore: 0.6},
	}
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	table, err := NewTable(testMappings())
	require.NoError(t, err)
	return NewResolver(table)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Coca-Cola", "cocacola"},
		{"  coca cola ", "cocacola"},
		{"COCA.COLA!", "cocacola"},
		{"Lucky Me!", "luckyme"},
		{"Nescafé 3in1", "nescafé3in1"},
		{"", ""},
		{"--", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNewTable_Errors(t *testing.T) {
	_, err := NewTable(nil)
	assert.ErrorIs(t, err, ErrEmptyTable)

	dup := append(testMappings(), domain.BrandCategoryMapping{BrandName: "coca cola", CategoryCode: "X"})
	_, err = NewTable(dup)
	assert.ErrorIs(t, err, ErrDuplicateBrand)

	bad := []domain.BrandCategoryMapping{{BrandName: "Brand", ConfidenceScore: 1.5}}
	_, err = NewTable(bad)
	assert.ErrorIs(t, err, ErrInvalidConfidence)

	_, err = NewTable([]domain.BrandCategoryMapping{{BrandName: "  "}})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	table, err := Load(context.Background(), &mockRepository{rows: testMappings()})
	require.NoError(t, err)
	assert.Equal(t, 4, table.Len())

	m, ok := table.Lookup("luckyme")
	require.True(t, ok)
	assert.Equal(t, "FOOD-NOODLE", m.CategoryCode)

	_, err = Load(context.Background(), &mockRepository{})
	assert.ErrorIs(t, err, ErrEmptyTable)

	boom := errors.New("boom")
	_, err = Load(context.Background(), &mockRepository{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestResolver_Resolve(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name       string
		brand      string
		category   string
		department string
		confidence float64
		mapped     bool
	}{
		{name: "exact", brand: "Coca-Cola", category: "Soft Drinks", department: "Beverages", confidence: 0.95, mapped: true},
		{name: "case and punctuation", brand: "coca cola", category: "Soft Drinks", department: "Beverages", confidence: 0.95, mapped: true},
		{name: "unmapped", brand: "Pepsi", category: domain.Unspecified, department: domain.Unspecified, confidence: 0},
		{name: "empty", brand: "", category: domain.Unspecified, department: domain.Unspecified, confidence: 0},
		{name: "only punctuation", brand: "!!!", category: domain.Unspecified, department: domain.Unspecified, confidence: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res Resolution
			require.NotPanics(t, func() { res = r.Resolve(tt.brand) })
			assert.Equal(t, tt.category, res.Category)
			assert.Equal(t, tt.department, res.Department)
			assert.Equal(t, tt.confidence, res.Confidence)
			assert.Equal(t, tt.mapped, res.Mapped)
		})
	}
}

func TestResolver_ResolveKeepsObservedBrand(t *testing.T) {
	r := newTestResolver(t)

	assert.Equal(t, "Pepsi Max", r.Resolve(" Pepsi Max ").Brand)
	assert.Equal(t, "Coca-Cola", r.Resolve("COCA COLA").Brand)
	assert.Equal(t, domain.Unspecified, r.Resolve("").Brand)
}

func TestResolver_RankBrands(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name      string
		mentions  []string
		primary   string
		secondary string
	}{
		{name: "no mentions", mentions: nil, primary: domain.Unspecified},
		{name: "single", mentions: []string{"Alaska"}, primary: "Alaska"},
		{name: "highest confidence first", mentions: []string{"Alaska", "Coca-Cola"}, primary: "Coca-Cola", secondary: "Alaska"},
		{name: "repeats collapse", mentions: []string{"Alaska", "alaska", "ALASKA"}, primary: "Alaska"},
		{name: "mandatory breaks tie", mentions: []string{"Lucky Me!", "Safeguard"}, primary: "Safeguard", secondary: "Lucky Me!"},
		{name: "unmapped ranks last", mentions: []string{"Pepsi", "Alaska"}, primary: "Alaska", secondary: "Pepsi"},
		{name: "two unmapped by name", mentions: []string{"Zesto", "Argentina"}, primary: "Argentina", secondary: "Zesto"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranking := r.RankBrands(tt.mentions)
			assert.Equal(t, tt.primary, ranking.Primary.Brand)
			if tt.secondary == "" {
				assert.Nil(t, ranking.Secondary)
				return
			}
			require.NotNil(t, ranking.Secondary)
			assert.Equal(t, tt.secondary, ranking.Secondary.Brand)
		})
	}
}

func TestResolver_RankBrandsOrderIndependent(t *testing.T) {
	r := newTestResolver(t)

	a := r.RankBrands([]string{"Pepsi", "Lucky Me!", "Safeguard", "Alaska"})
	b := r.RankBrands([]string{"Alaska", "Safeguard", "Pepsi", "Lucky Me!"})
	assert.Equal(t, a, b)
}

func TestResolver_ResolveBasket(t *testing.T) {
	r := newTestResolver(t)

	b := r.ResolveBasket([]domain.LineItem{
		{Brand: "Alaska"},
		{Brand: "Coca-Cola"},
		{Brand: "coca cola"},
		{Brand: "Pepsi"},
	})

	assert.Equal(t, "Coca-Cola", b.Ranking.Primary.Brand)
	require.NotNil(t, b.Ranking.Secondary)
	assert.Equal(t, "Alaska", b.Ranking.Secondary.Brand)
	assert.Equal(t, []string{"Milk", "Soft Drinks", domain.Unspecified}, b.Categories)

	empty := r.ResolveBasket(nil)
	assert.Equal(t, domain.Unspecified, empty.Ranking.Primary.Category)
	assert.Empty(t, empty.Categories)
}
