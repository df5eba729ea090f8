package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/davicafu/feedbacklab/internal/shared/domain"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/uow"
)

const outboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	processed BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (processed, created_at);
`

// InitOutboxSchema crea la tabla outbox si no existe.
func InitOutboxSchema(ctx context.Context, q uow.Querier) error {
	if _, err := q.ExecContext(ctx, outboxSchema); err != nil {
		return fmt.Errorf("create outbox table: %w", err)
	}
	return nil
}

// OutboxRepoPostgres implementa domain.OutboxWriter y domain.OutboxRepository.
type OutboxRepoPostgres struct {
	q uow.Querier
}

func NewOutboxRepoPostgres(q uow.Querier) *OutboxRepoPostgres {
	return &OutboxRepoPostgres{q: q}
}

func (r *OutboxRepoPostgres) Save(ctx context.Context, evt domain.OutboxEvent) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at, processed)
		 VALUES ($1, $2, $3, $4, $5, $6, false)`,
		evt.ID, evt.AggregateType, evt.AggregateID, evt.EventType, []byte(evt.Payload), evt.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox event %s: %w", evt.EventType, err)
	}
	return nil
}

// FetchPendingOutbox bloquea las filas leídas (SKIP LOCKED). El bloqueo solo dura
// lo que la transacción: el relayer lo llama sobre un *uow.Tx
// (relayer.WithTransactionalBatches) para mantenerlo hasta marcar el lote.
func (r *OutboxRepoPostgres) FetchPendingOutbox(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		 FROM outbox WHERE processed=false ORDER BY created_at LIMIT $1
		 FOR UPDATE SKIP LOCKED`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []domain.OutboxEvent
	for rows.Next() {
		var evt domain.OutboxEvent
		var payloadBytes []byte // JSONB

		if err := rows.Scan(&evt.ID, &evt.AggregateType, &evt.AggregateID, &evt.EventType, &payloadBytes, &evt.CreatedAt); err != nil {
			return nil, err
		}
		evt.Payload = payloadBytes
		evt.CreatedAt = evt.CreatedAt.UTC()

		pending = append(pending, evt)
	}

	return pending, rows.Err()
}

func (r *OutboxRepoPostgres) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `UPDATE outbox SET processed=true WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}

// Verificación en tiempo de compilación.
var (
	_ domain.OutboxRepository = (*OutboxRepoPostgres)(nil)
	_ domain.OutboxWriter     = (*OutboxRepoPostgres)(nil)
)
