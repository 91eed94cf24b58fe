package domain

import (
	"time"
)

// RawTransactionRecord is one ingestion event as written by the device
// ingestion layer. Records are immutable; several of them may describe the
// same business transaction (retries, partial uploads, device resends).
type RawTransactionRecord struct {
	SessionID  string    `json:"session_id"` // unique per physical capture
	DeviceID   string    `json:"device_id"`
	StoreID    string    `json:"store_id"`
	Amount     string    `json:"amount"`      // decimal string, e.g. "12.50"
	RawPayload string    `json:"raw_payload"` // semi-structured, may be malformed
	IngestedAt time.Time `json:"ingested_at"`
}

// LineItem is one product line inside a transaction payload.
type LineItem struct {
	Brand          string `json:"brand"`
	SKU            string `json:"sku,omitempty"`
	Quantity       int    `json:"quantity,omitempty"`
	RequestedBrand string `json:"requested_brand,omitempty"`
	RequestedSKU   string `json:"requested_sku,omitempty"`
}

// Substituted reports whether the shopper asked for a different brand or SKU
// than the one recorded on the line.
func (li LineItem) Substituted(normalize func(string) string) bool {
	if li.RequestedBrand != "" && normalize(li.RequestedBrand) != normalize(li.Brand) {
		return true
	}
	if li.RequestedSKU != "" && li.RequestedSKU != li.SKU {
		return true
	}
	return false
}

// CanonicalTransaction is the single deduplicated representation of one
// real-world purchase. It is recomputed on every run and never mutated.
type CanonicalTransaction struct {
	CanonicalTxID          string     // name-based UUID of TransactionKey
	TransactionKey         string     // grouping key taken from the payload
	Amount                 Decimal
	BasketSize             int
	AuthoritativeTimestamp *time.Time // from the interaction log, nil when absent
	StoreID                string
	Items                  []LineItem
	SourceSessionID        string // session of the winning raw record
}

// Interaction is one entry of the trusted interaction log. It is the only
// time source the pipeline accepts and also carries shopper demographics.
type Interaction struct {
	TransactionKey string     `json:"transaction_id"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	Gender         string     `json:"gender,omitempty"`
	AgeBracket     string     `json:"age_bracket,omitempty"`
}

// Store describes a physical store location.
type Store struct {
	StoreID  string `json:"store_id"`
	Location string `json:"location"`
	Region   string `json:"region"`
}
