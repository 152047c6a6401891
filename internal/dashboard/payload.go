package dashboard

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/concierge/internal/downstream"
)

// timestampLayout matches ISO-8601 with millisecond precision, always UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload is one aggregated dashboard.
//
// Fields holds one entry per Source of the role; a nil value means the source failed
// and is rendered as JSON null. Health holds one entry per queried service.
type Payload struct {
	Role        Role
	HealthKey   string
	Fields      map[string]json.RawMessage
	Health      map[string]downstream.Status
	LastUpdated string
}

// MarshalJSON renders the payload flat: every field, the health map under its
// role-specific key, and lastUpdated.
func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Fields)+2)
	for field, data := range p.Fields {
		if data == nil {
			out[field] = nil
			continue
		}
		out[field] = data
	}
	healthKey := p.HealthKey
	if healthKey == "" {
		healthKey = "serviceHealth"
	}
	out[healthKey] = p.Health
	out["lastUpdated"] = p.LastUpdated
	return json.Marshal(out)
}

// entry is the cached form of a Payload.
type entry struct {
	Role        Role                         `json:"role"`
	HealthKey   string                       `json:"healthKey"`
	Fields      map[string]json.RawMessage   `json:"fields"`
	Health      map[string]downstream.Status `json:"health"`
	LastUpdated string                       `json:"lastUpdated"`
}

func encodeEntry(p Payload) ([]byte, error) {
	return json.Marshal(entry(p))
}

func decodeEntry(raw []byte) (Payload, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Payload{}, fmt.Errorf("failed to decode cached dashboard: %w", err)
	}
	p := Payload(e)
	// "null" decodes to a non-nil RawMessage; keep failed fields nil.
	for field, data := range p.Fields {
		if string(data) == "null" {
			p.Fields[field] = nil
		}
	}
	return p, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
