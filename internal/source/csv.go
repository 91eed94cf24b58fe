package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dvloznov/basket-export/internal/domain"
)

func (s *FileSource) ListBrandMappings(ctx context.Context) ([]domain.BrandCategoryMapping, error) {
	rows, err := s.readCSV(ctx, TaxonomyFile, []string{"brand_name", "category_name"})
	if err != nil {
		return nil, fmt.Errorf("ListBrandMappings: %w", err)
	}

	out := make([]domain.BrandCategoryMapping, 0, len(rows))
	for i, r := range rows {
		m := domain.BrandCategoryMapping{
			BrandName:           r["brand_name"],
			BrandNameNormalized: r["brand_name_normalized"],
			CategoryCode:        r["category_code"],
			CategoryName:        r["category_name"],
			CategoryGroup:       r["category_group"],
			DepartmentCode:      r["department_code"],
			DepartmentName:      r["department_name"],
		}
		if v := r["confidence_score"]; v != "" {
			m.ConfidenceScore, err = strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("ListBrandMappings: %s row %d: confidence_score %q: %w", TaxonomyFile, i+2, v, ErrMalformedInput)
			}
		}
		if v := r["is_mandatory"]; v != "" {
			m.IsMandatory, err = strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("ListBrandMappings: %s row %d: is_mandatory %q: %w", TaxonomyFile, i+2, v, ErrMalformedInput)
			}
		}
		out = append(out, m)
	}
	s.logLoaded(ctx, TaxonomyFile, len(out))
	return out, nil
}

func (s *FileSource) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.readCSV(ctx, StoresFile, []string{"store_id"})
	if err != nil {
		return nil, fmt.Errorf("ListStores: %w", err)
	}

	out := make([]domain.Store, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Store{
			StoreID:  r["store_id"],
			Location: r["location"],
			Region:   r["region"],
		})
	}
	s.logLoaded(ctx, StoresFile, len(out))
	return out, nil
}

// readCSV returns the records of a headed CSV file keyed by lowercased
// column name. Every column in required must be present in the header.
func (s *FileSource) readCSV(ctx context.Context, name string, required []string) ([]map[string]string, error) {
	data, err := s.reader.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s header: %v: %w", name, err, ErrMalformedInput)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%s: missing column %q: %w", name, col, ErrMalformedInput)
		}
	}

	var rows []map[string]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %v: %w", name, err, ErrMalformedInput)
		}
		row := make(map[string]string, len(index))
		for col, i := range index {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
