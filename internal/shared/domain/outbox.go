package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
)

// OutboxEvent representa un evento pendiente de publicar en la cola.
// Se escribe en la misma transacción que el cambio de negocio.
type OutboxEvent struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregate_type"` // ej. "class", "report"
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"` // ej. "class.created"
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Processed     bool            `json:"processed"` // si ya se encoló
}

// NewOutboxEvent serializa el payload y prepara la fila del outbox.
func NewOutboxEvent(aggregateType, aggregateID, eventType string, payload any) (OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxEvent{}, err
	}
	return OutboxEvent{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// DomainEvent reconstruye el evento de dominio que representa la fila.
func (o OutboxEvent) DomainEvent() events.DomainEvent {
	return events.NewAt(o.EventType, o.CreatedAt, o.Payload)
}

// OutboxWriter escribe filas del outbox dentro de la transacción activa.
type OutboxWriter interface {
	Save(ctx context.Context, evt OutboxEvent) error
}

// OutboxRepository es la única dependencia del relayer.
type OutboxRepository interface {
	FetchPendingOutbox(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error
}
