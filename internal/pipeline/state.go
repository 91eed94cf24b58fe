package pipeline

import (
	"github.com/dvloznov/basket-export/internal/canonical"
	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/export"
	"github.com/dvloznov/basket-export/internal/taxonomy"
	"github.com/dvloznov/basket-export/internal/temporal"
)

// State holds the materialized output of every stage of one run. Each stage
// reads what earlier stages produced and never recomputes it.
type State struct {
	RunID           string
	Mode            domain.ExportMode
	ContractVersion string
	Scope           string // Filter.Scope of the run

	// inputs
	Raw          []domain.RawTransactionRecord
	Interactions *domain.InteractionLog
	Stores       []domain.Store
	Taxonomy     *taxonomy.Table

	Canonical    canonical.Result
	Transactions []domain.CanonicalTransaction // after run filters

	// aligned with Transactions by index
	Temporal []temporal.Attributes
	Baskets  []taxonomy.Basket

	Rows   []domain.EnrichedExportRow
	Export *export.Result // committed export, nil for previews
	Plan   *export.Result // rows a preview would export

	Stats RunStats
}

// RunStats are the recoverable-issue counters of a run.
type RunStats struct {
	Input               int     `json:"input_records"`
	Rejected            int     `json:"rejected_records"`
	Duplicates          int     `json:"duplicates_collapsed"`
	Canonical           int     `json:"canonical_transactions"`
	InvalidAmounts      int     `json:"invalid_amounts"`
	FilteredOut         int     `json:"filtered_out"`
	Rows                int     `json:"rows"`
	UnspecifiedRows     int     `json:"unspecified_rows"`
	UnspecifiedRate     float64 `json:"unspecified_rate"`
	MissingTimestamps   int     `json:"missing_timestamps"`
	MissingDemographics int     `json:"missing_demographics"`
	MissingLocation     int     `json:"missing_location"`
	Substitutions       int     `json:"substitutions"`
	SecondaryBrands     int     `json:"secondary_brand_rows"`
	Selected            int     `json:"selected_rows"`
	Exported            int     `json:"exported_rows"`
	DeltaUntimed        int     `json:"delta_untimed_skipped"`
}
