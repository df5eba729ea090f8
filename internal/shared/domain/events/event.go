package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// DomainEvent es el registro inmutable de un hecho de negocio: nombre, instante y payload.
// Los campos son privados para que nadie lo modifique después de construirlo.
type DomainEvent struct {
	name       string
	occurredOn time.Time
	payload    any
}

// New crea un evento con OccurredOn = ahora (UTC).
func New(name string, payload any) DomainEvent {
	return NewAt(name, time.Now().UTC(), payload)
}

// NewAt crea un evento con un instante explícito.
func NewAt(name string, occurredOn time.Time, payload any) DomainEvent {
	return DomainEvent{name: name, occurredOn: occurredOn, payload: payload}
}

func (e DomainEvent) Name() string          { return e.name }
func (e DomainEvent) OccurredOn() time.Time { return e.occurredOn }

// Payload devuelve el valor tipado en proceso, o json.RawMessage si el evento
// llegó deserializado desde la cola.
func (e DomainEvent) Payload() any { return e.payload }

// wireEvent es la forma JSON del evento dentro de un job de la cola.
type wireEvent struct {
	Name       string          `json:"name"`
	OccurredOn time.Time       `json:"occurredOn"`
	Payload    json.RawMessage `json:"payload"`
}

func (e DomainEvent) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage
	switch p := e.payload.(type) {
	case nil:
		raw = json.RawMessage("null")
	case json.RawMessage:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload of %q: %w", e.name, err)
		}
		raw = b
	}
	return json.Marshal(wireEvent{Name: e.name, OccurredOn: e.occurredOn, Payload: raw})
}

func (e *DomainEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Name == "" {
		return ErrMissingEventName
	}
	e.name = w.Name
	e.occurredOn = w.OccurredOn
	e.payload = w.Payload
	return nil
}

// Decode deserializa un evento desde los datos de un job.
func Decode(data []byte) (DomainEvent, error) {
	var evt DomainEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return DomainEvent{}, fmt.Errorf("decode domain event: %w", err)
	}
	return evt, nil
}

// DecodePayload obtiene el payload como T, tanto si el evento lleva el valor tipado
// como si lleva el JSON crudo de la cola.
func DecodePayload[T any](evt DomainEvent) (T, error) {
	var out T
	switch p := evt.payload.(type) {
	case T:
		return p, nil
	case *T:
		if p != nil {
			return *p, nil
		}
		return out, fmt.Errorf("event %q: nil payload", evt.name)
	case json.RawMessage:
		if err := json.Unmarshal(p, &out); err != nil {
			return out, fmt.Errorf("event %q: decode payload: %w", evt.name, err)
		}
		return out, nil
	case []byte:
		if err := json.Unmarshal(p, &out); err != nil {
			return out, fmt.Errorf("event %q: decode payload: %w", evt.name, err)
		}
		return out, nil
	default:
		// Último recurso: ida y vuelta por JSON (p.ej. map[string]any).
		b, err := json.Marshal(p)
		if err != nil {
			return out, fmt.Errorf("event %q: re-encode payload: %w", evt.name, err)
		}
		if err := json.Unmarshal(b, &out); err != nil {
			return out, fmt.Errorf("event %q: decode payload: %w", evt.name, err)
		}
		return out, nil
	}
}
