// Package contract owns the versioned export column layout and the shape
// integrity checks every export must pass.
package contract

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dvloznov/basket-export/internal/domain"
)

// V1 is the current contract version.
const V1 = "v1"

// Column names of contract v1, in order.
const (
	ColTransactionID    = "Transaction_ID"
	ColTransactionValue = "Transaction_Value"
	ColBasketSize       = "Basket_Size"
	ColCategory         = "Category"
	ColBrand            = "Brand"
	ColDaypart          = "Daypart"
	ColDemographics     = "Demographics"
	ColWeekType         = "Weekday_vs_Weekend"
	ColTransactionTime  = "Time_of_Transaction"
	ColLocation         = "Location"
	ColOtherProducts    = "Other_Products"
	ColWasSubstitution  = "Was_Substitution"
	ColExportTimestamp  = "Export_Timestamp"
)

var versions = map[string][]string{
	V1: {
		ColTransactionID,
		ColTransactionValue,
		ColBasketSize,
		ColCategory,
		ColBrand,
		ColDaypart,
		ColDemographics,
		ColWeekType,
		ColTransactionTime,
		ColLocation,
		ColOtherProducts,
		ColWasSubstitution,
		ColExportTimestamp,
	},
}

var (
	ErrUnknownVersion = errors.New("unknown contract version")

	// ErrDuplicateTransactionID means a Transaction_ID occurs more than once.
	ErrDuplicateTransactionID = errors.New("duplicate transaction id")

	// ErrColumnContract means the header or a record does not match the
	// versioned column layout.
	ErrColumnContract = errors.New("column contract violation")
)

// ShapeError describes a failed integrity check. It unwraps to one of the
// sentinel errors above.
type ShapeError struct {
	Err    error
	Row    int // zero-based record index, -1 for the header
	Detail string
}

func (e *ShapeError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("%v: header: %s", e.Err, e.Detail)
	}
	return fmt.Sprintf("%v: row %d: %s", e.Err, e.Row, e.Detail)
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}

// Columns returns a copy of the column names for version.
func Columns(version string) ([]string, error) {
	cols, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}
	return append([]string(nil), cols...), nil
}

// Render formats row as one record of version.
func Render(version string, row domain.EnrichedExportRow) ([]string, error) {
	if _, ok := versions[version]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}

	txTime := ""
	if row.TransactionTime != nil {
		txTime = row.TransactionTime.Format(time.RFC3339)
	}
	return []string{
		row.TransactionID,
		row.TransactionValue.Fixed(2),
		strconv.Itoa(row.BasketSize),
		row.Category,
		row.Brand,
		row.Daypart,
		row.Demographics,
		row.WeekType,
		txTime,
		row.Location,
		row.OtherProducts,
		strconv.FormatBool(row.WasSubstitution),
		row.ExportTimestamp.UTC().Format(time.RFC3339),
	}, nil
}

// Table renders rows under version and validates the result.
func Table(version string, rows []domain.EnrichedExportRow) ([]string, [][]string, error) {
	header, err := Columns(version)
	if err != nil {
		return nil, nil, err
	}
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		rec, err := Render(version, row)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, rec)
	}
	if err := Validate(version, header, records); err != nil {
		return nil, nil, err
	}
	return header, records, nil
}

// Validate checks a rendered table: the header must equal the contract
// exactly, every record must have the contract's width and Transaction_ID
// must be unique.
func Validate(version string, header []string, records [][]string) error {
	want, err := Columns(version)
	if err != nil {
		return err
	}

	if len(header) != len(want) {
		return &ShapeError{Err: ErrColumnContract, Row: -1,
			Detail: fmt.Sprintf("expected %d columns, got %d", len(want), len(header))}
	}
	for i := range want {
		if header[i] != want[i] {
			return &ShapeError{Err: ErrColumnContract, Row: -1,
				Detail: fmt.Sprintf("column %d: expected %q, got %q", i, want[i], header[i])}
		}
	}

	seen := make(map[string]int, len(records))
	for i, rec := range records {
		if len(rec) != len(want) {
			return &ShapeError{Err: ErrColumnContract, Row: i,
				Detail: fmt.Sprintf("expected %d fields, got %d", len(want), len(rec))}
		}
		id := rec[0]
		if first, dup := seen[id]; dup {
			return &ShapeError{Err: ErrDuplicateTransactionID, Row: i,
				Detail: fmt.Sprintf("%q already at row %d", id, first)}
		}
		seen[id] = i
	}
	return nil
}

// Index returns the position of column in version, or -1.
func Index(version, column string) int {
	for i, c := range versions[version] {
		if c == column {
			return i
		}
	}
	return -1
}
