package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/basket-export/internal/domain"
)

type RawTransactionRow struct {
	SessionID  string              `bigquery:"session_id"`  // REQUIRED
	DeviceID   bigquery.NullString `bigquery:"device_id"`   // NULLABLE
	StoreID    bigquery.NullString `bigquery:"store_id"`    // NULLABLE
	Amount     bigquery.NullString `bigquery:"amount"`      // NULLABLE STRING, validated downstream
	RawPayload bigquery.NullString `bigquery:"raw_payload"` // NULLABLE, may be malformed JSON
	IngestedAt time.Time           `bigquery:"ingested_at"` // REQUIRED TIMESTAMP
}

func (r *RawTransactionRow) toDomain() domain.RawTransactionRecord {
	return domain.RawTransactionRecord{
		SessionID:  r.SessionID,
		DeviceID:   r.DeviceID.StringVal,
		StoreID:    r.StoreID.StringVal,
		Amount:     r.Amount.StringVal,
		RawPayload: r.RawPayload.StringVal,
		IngestedAt: r.IngestedAt.UTC(),
	}
}

type InteractionRow struct {
	TransactionID string                 `bigquery:"transaction_id"` // REQUIRED
	Timestamp     bigquery.NullTimestamp `bigquery:"timestamp"`      // NULLABLE
	Gender        bigquery.NullString    `bigquery:"gender"`         // NULLABLE
	AgeBracket    bigquery.NullString    `bigquery:"age_bracket"`    // NULLABLE
}

func (r *InteractionRow) toDomain() domain.Interaction {
	in := domain.Interaction{
		TransactionKey: r.TransactionID,
		Gender:         r.Gender.StringVal,
		AgeBracket:     r.AgeBracket.StringVal,
	}
	if r.Timestamp.Valid {
		ts := r.Timestamp.Timestamp.UTC()
		in.Timestamp = &ts
	}
	return in
}
