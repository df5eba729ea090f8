package uow

import (
	"context"
	"database/sql"
	"sync"

	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
)

// Tx es el contexto de una transacción concreta. Deja de servir en cuanto la
// transacción termina: todas sus operaciones devuelven ErrTransactionClosed.
type Tx struct {
	tx *sql.Tx

	mu      sync.Mutex
	active  bool
	pending []events.DomainEvent
}

// Active indica si la transacción sigue abierta.
func (t *Tx) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Tx) finish() []events.DomainEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
	pending := t.pending
	t.pending = nil
	return pending
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if !t.Active() {
		return nil, ErrTransactionClosed
	}
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if !t.Active() {
		return nil, ErrTransactionClosed
	}
	return t.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext no puede devolver ErrTransactionClosed: con la transacción
// cerrada el Scan de la fila devuelve sql.ErrTxDone.
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// PublishAfterCommit guarda el evento para publicarlo sólo si hay commit.
func (t *Tx) PublishAfterCommit(evt events.DomainEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return ErrTransactionClosed
	}
	t.pending = append(t.pending, evt)
	return nil
}
