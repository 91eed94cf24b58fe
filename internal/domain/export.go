package domain

import "time"

// ExportMode selects between a full snapshot and a delta export.
type ExportMode string

const (
	// ExportModeFull renders every current row.
	ExportModeFull ExportMode = "full"
	// ExportModeDelta renders rows newer than the last snapshot watermark.
	ExportModeDelta ExportMode = "delta"
)

// Valid reports whether m is a known export mode.
func (m ExportMode) Valid() bool {
	return m == ExportModeFull || m == ExportModeDelta
}

// EnrichedExportRow is the flat, fixed-shape output record. Column order is
// owned by the contract package; this struct only carries the values.
type EnrichedExportRow struct {
	TransactionID      string
	TransactionValue   Decimal
	BasketSize         int
	Category           string
	Brand              string
	Daypart            string
	Demographics       string
	WeekType           string
	TransactionTime    *time.Time
	Location           string
	OtherProducts      string
	WasSubstitution    bool
	ExportTimestamp    time.Time
	SecondaryBrand     string // informational, not part of the contract
	CategoryConfidence float64
}

// ExportSnapshot is one append-only ledger entry describing a successful export.
type ExportSnapshot struct {
	SnapshotID      int64      `json:"snapshot_id"`
	CreatedAt       time.Time  `json:"created_at"`
	ContractVersion string     `json:"source_contract_version"`
	Mode            ExportMode `json:"mode"`
	RowCount        int        `json:"row_count"`
	ContentChecksum string     `json:"content_checksum"`
	Location        string     `json:"location,omitempty"` // where the artifact was written
	// Scope describes the run filter of a partial export. Empty means the
	// snapshot covers every row; only those serve as delta watermarks.
	Scope string `json:"scope,omitempty"`
}

// Complete reports whether the snapshot covers every row of its run.
func (s ExportSnapshot) Complete() bool {
	return s.Scope == ""
}
