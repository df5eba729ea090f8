package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davicafu/feedbacklab/internal/shared/domain"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/uow"
)

const outboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
	id TEXT PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0
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

// OutboxRepoSQLite implementa domain.OutboxWriter y domain.OutboxRepository.
// Con un *uow.Tx escribe dentro de la transacción; con *sql.DB lo usa el relayer.
type OutboxRepoSQLite struct {
	q uow.Querier
}

func NewOutboxRepoSQLite(q uow.Querier) *OutboxRepoSQLite {
	return &OutboxRepoSQLite{q: q}
}

func (r *OutboxRepoSQLite) Save(ctx context.Context, evt domain.OutboxEvent) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at, processed)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		evt.ID.String(), evt.AggregateType, evt.AggregateID, evt.EventType, string(evt.Payload), evt.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox event %s: %w", evt.EventType, err)
	}
	return nil
}

// FetchPendingOutbox devuelve los eventos no procesados, los más antiguos primero.
func (r *OutboxRepoSQLite) FetchPendingOutbox(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
         FROM outbox
         WHERE processed = 0
         ORDER BY created_at, rowid
         LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []domain.OutboxEvent
	for rows.Next() {
		var evt domain.OutboxEvent
		var id, payloadStr string // en SQLite el id y el payload son TEXT
		var createdAt time.Time

		if err := rows.Scan(&id, &evt.AggregateType, &evt.AggregateID, &evt.EventType, &payloadStr, &createdAt); err != nil {
			return nil, err
		}

		evt.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in outbox row: %w", err)
		}
		evt.Payload = []byte(payloadStr)
		evt.CreatedAt = createdAt.UTC()

		pending = append(pending, evt)
	}

	return pending, rows.Err()
}

func (r *OutboxRepoSQLite) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `UPDATE outbox SET processed = 1 WHERE id = ?`, id.String())
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
	_ domain.OutboxRepository = (*OutboxRepoSQLite)(nil)
	_ domain.OutboxWriter     = (*OutboxRepoSQLite)(nil)
)
