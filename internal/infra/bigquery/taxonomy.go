package bigquery

import (
	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/basket-export/internal/domain"
)

type BrandMappingRow struct {
	BrandName           string               `bigquery:"brand_name"`            // REQUIRED
	BrandNameNormalized bigquery.NullString  `bigquery:"brand_name_normalized"` // NULLABLE, derived when absent
	CategoryCode        bigquery.NullString  `bigquery:"category_code"`
	CategoryName        string               `bigquery:"category_name"`         // REQUIRED
	CategoryGroup       bigquery.NullString  `bigquery:"category_group"`
	DepartmentCode      bigquery.NullString  `bigquery:"department_code"`
	DepartmentName      bigquery.NullString  `bigquery:"department_name"`
	ConfidenceScore     bigquery.NullFloat64 `bigquery:"confidence_score"`
	IsMandatory         bigquery.NullBool    `bigquery:"is_mandatory"`
}

func (r *BrandMappingRow) toDomain() domain.BrandCategoryMapping {
	return domain.BrandCategoryMapping{
		BrandName:           r.BrandName,
		BrandNameNormalized: r.BrandNameNormalized.StringVal,
		CategoryCode:        r.CategoryCode.StringVal,
		CategoryName:        r.CategoryName,
		CategoryGroup:       r.CategoryGroup.StringVal,
		DepartmentCode:      r.DepartmentCode.StringVal,
		DepartmentName:      r.DepartmentName.StringVal,
		ConfidenceScore:     r.ConfidenceScore.Float64,
		IsMandatory:         r.IsMandatory.Bool,
	}
}

type StoreRow struct {
	StoreID  string              `bigquery:"store_id"` // REQUIRED
	Location bigquery.NullString `bigquery:"location"`
	Region   bigquery.NullString `bigquery:"region"`
}

func (r *StoreRow) toDomain() domain.Store {
	return domain.Store{
		StoreID:  r.StoreID,
		Location: r.Location.StringVal,
		Region:   r.Region.StringVal,
	}
}
