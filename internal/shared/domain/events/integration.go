package events

import (
	"encoding/json"
	"time"
)

// IntegrationEvent es el sobre que sale hacia otros sistemas (Kafka).
// Es un contrato de integración, no un evento de dominio.
type IntegrationEvent struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"` // contenido específico del evento
}

// ToIntegration convierte un evento de dominio en su sobre de integración.
func ToIntegration(evt DomainEvent) (IntegrationEvent, error) {
	raw, err := evt.MarshalJSON()
	if err != nil {
		return IntegrationEvent{}, err
	}
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return IntegrationEvent{}, err
	}
	return IntegrationEvent{Type: evt.Name(), Timestamp: evt.OccurredOn(), Data: w.Payload}, nil
}
