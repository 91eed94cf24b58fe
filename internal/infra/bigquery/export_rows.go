package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/basket-export/internal/domain"
)

// ExportRow is one published row of a committed snapshot. The table is
// partitioned by export_date.
type ExportRow struct {
	SnapshotID      int64      `bigquery:"snapshot_id"`      // REQUIRED
	ContractVersion string     `bigquery:"contract_version"` // REQUIRED
	ExportMode      string     `bigquery:"export_mode"`      // REQUIRED
	ExportDate      civil.Date `bigquery:"export_date"`      // REQUIRED DATE

	TransactionID    string   `bigquery:"transaction_id"`    // REQUIRED
	TransactionValue *big.Rat `bigquery:"transaction_value"` // REQUIRED NUMERIC
	BasketSize       int64    `bigquery:"basket_size"`

	Category        string              `bigquery:"category"`
	Brand           string              `bigquery:"brand"`
	SecondaryBrand  bigquery.NullString `bigquery:"secondary_brand"`
	Daypart         string              `bigquery:"daypart"`
	Demographics    string              `bigquery:"demographics"`
	WeekType        string              `bigquery:"weekday_vs_weekend"`
	Location        string              `bigquery:"location"`
	OtherProducts   string              `bigquery:"other_products"`
	WasSubstitution bool                `bigquery:"was_substitution"`

	TransactionTime bigquery.NullTimestamp `bigquery:"time_of_transaction"` // NULLABLE
	ExportTimestamp time.Time              `bigquery:"export_timestamp"`    // REQUIRED
}

func newExportRow(snapshot domain.ExportSnapshot, row domain.EnrichedExportRow) *ExportRow {
	value, ok := new(big.Rat).SetString(row.TransactionValue.String())
	if !ok {
		value = new(big.Rat)
	}
	out := &ExportRow{
		SnapshotID:       snapshot.SnapshotID,
		ContractVersion:  snapshot.ContractVersion,
		ExportMode:       string(snapshot.Mode),
		ExportDate:       civil.DateOf(snapshot.CreatedAt.UTC()),
		TransactionID:    row.TransactionID,
		TransactionValue: value,
		BasketSize:       int64(row.BasketSize),
		Category:         row.Category,
		Brand:            row.Brand,
		Daypart:          row.Daypart,
		Demographics:     row.Demographics,
		WeekType:         row.WeekType,
		Location:         row.Location,
		OtherProducts:    row.OtherProducts,
		WasSubstitution:  row.WasSubstitution,
		ExportTimestamp:  row.ExportTimestamp.UTC(),
	}
	if row.SecondaryBrand != "" {
		out.SecondaryBrand = bigquery.NullString{StringVal: row.SecondaryBrand, Valid: true}
	}
	if row.TransactionTime != nil {
		out.TransactionTime = bigquery.NullTimestamp{Timestamp: row.TransactionTime.UTC(), Valid: true}
	}
	return out
}
