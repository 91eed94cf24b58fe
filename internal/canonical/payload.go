package canonical

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dvloznov/basket-export/internal/domain"
)

// payloadSchemaJSON describes a well-formed device payload.
const payloadSchemaJSON = `{
  "type": "object",
  "required": ["transaction_id", "items"],
  "properties": {
    "transaction_id": {"type": "string", "minLength": 1},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["brand"],
        "properties": {
          "brand": {"type": "string"},
          "sku": {"type": "string"},
          "quantity": {"type": "integer", "minimum": 0},
          "requested_brand": {"type": "string"},
          "requested_sku": {"type": "string"}
        }
      }
    }
  }
}`

var payloadSchema = jsonschema.MustCompileString("payload.schema.json", payloadSchemaJSON)

// keyPattern recovers the transaction id from payloads that are not valid JSON,
// e.g. truncated uploads.
var keyPattern = regexp.MustCompile(`"transaction_id"\s*:\s*"([^"]+)"`)

type payload struct {
	TransactionID string            `json:"transaction_id"`
	Items         []domain.LineItem `json:"items"`
}

// ParsedPayload is what the canonicalizer knows about one raw payload.
type ParsedPayload struct {
	Key        string
	WellFormed bool
	Items      []domain.LineItem
}

// ParsePayload extracts the grouping key and line items from raw. ok is false
// when no key can be derived at all.
func ParsePayload(raw string) (ParsedPayload, bool) {
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return recoverKey(raw)
	}

	var p ParsedPayload
	if err := payloadSchema.Validate(doc); err == nil {
		var body payload
		if err := json.Unmarshal([]byte(raw), &body); err == nil {
			p.WellFormed = true
			p.Items = body.Items
		}
	}

	obj, isObject := doc.(map[string]interface{})
	if !isObject {
		return recoverKey(raw)
	}
	id, _ := obj["transaction_id"].(string)
	p.Key = strings.TrimSpace(id)
	if p.Key == "" {
		return ParsedPayload{}, false
	}
	if !p.WellFormed {
		p.Items = lenientItems(obj["items"])
	}
	return p, true
}

// DeriveKey returns the grouping key for raw, if any.
func DeriveKey(raw string) (string, bool) {
	p, ok := ParsePayload(raw)
	return p.Key, ok
}

func recoverKey(raw string) (ParsedPayload, bool) {
	m := keyPattern.FindStringSubmatch(raw)
	if m == nil {
		return ParsedPayload{}, false
	}
	key := strings.TrimSpace(m[1])
	if key == "" {
		return ParsedPayload{}, false
	}
	return ParsedPayload{Key: key}, true
}

// lenientItems keeps whatever item objects carry a string brand.
func lenientItems(v interface{}) []domain.LineItem {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var items []domain.LineItem
	for _, raw := range list {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		brand, ok := obj["brand"].(string)
		if !ok {
			continue
		}
		item := domain.LineItem{Brand: brand}
		item.SKU, _ = obj["sku"].(string)
		item.RequestedBrand, _ = obj["requested_brand"].(string)
		item.RequestedSKU, _ = obj["requested_sku"].(string)
		if q, ok := obj["quantity"].(float64); ok && q >= 0 {
			item.Quantity = int(q)
		}
		items = append(items, item)
	}
	return items
}
