package domain

// Unspecified is the category/department reported for brands that have no
// taxonomy mapping.
const Unspecified = "Unspecified"

// Unknown is the default for attributes that could not be derived.
const Unknown = "Unknown"

// BrandCategoryMapping is one curated row of the Department → Category Group →
// Category → Brand hierarchy. BrandNameNormalized is unique per table.
type BrandCategoryMapping struct {
	BrandNameNormalized string  `json:"brand_name_normalized"`
	BrandName           string  `json:"brand_name"`
	CategoryCode        string  `json:"category_code"`
	CategoryName        string  `json:"category_name"`
	CategoryGroup       string  `json:"category_group"`
	DepartmentCode      string  `json:"department_code"`
	DepartmentName      string  `json:"department_name"`
	ConfidenceScore     float64 `json:"confidence_score"` // 0.0 – 1.0
	IsMandatory         bool    `json:"is_mandatory"`
}
