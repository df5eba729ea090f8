// Package uow implementa la Unidad de Trabajo sobre database/sql.
//
// Cada llamada a WithTransaction abre una conexión dedicada y una transacción, y
// entrega al callback un *Tx nuevo. Los repositorios se construyen sobre ese *Tx
// (GetRepository), así que todas sus escrituras comparten commit o rollback.
package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/bus"
)

var (
	ErrNestedTransaction   = errors.New("unit of work: nested transaction")
	ErrNoActiveTransaction = errors.New("unit of work: no active transaction")
	ErrTransactionClosed   = errors.New("unit of work: transaction closed")
)

// Querier es lo que necesita un repositorio. Lo cumplen *sql.DB, *sql.Tx y *Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*Tx)(nil)
)

type txKey struct{ u *UnitOfWork }

// UnitOfWork no guarda estado de transacción: vive en el *Tx de cada llamada.
type UnitOfWork struct {
	db        *sql.DB
	publisher bus.Publisher
	log       *zap.Logger
	txOptions *sql.TxOptions
}

type Option func(*UnitOfWork)

// WithTxOptions fija el nivel de aislamiento / read-only de las transacciones.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(u *UnitOfWork) { u.txOptions = opts }
}

// New crea una UoW. publisher puede ser nil si nadie usa PublishAfterCommit.
func New(db *sql.DB, publisher bus.Publisher, log *zap.Logger, opts ...Option) *UnitOfWork {
	if log == nil {
		log = zap.NewNop()
	}
	u := &UnitOfWork{db: db, publisher: publisher, log: log}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// WithTransaction ejecuta fn dentro de una transacción. nil → commit; error →
// rollback y se devuelve el mismo error; panic → rollback y se relanza.
func (u *UnitOfWork) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	_, err := WithResult(ctx, u, func(ctx context.Context, tx *Tx) (struct{}, error) {
		return struct{}{}, fn(ctx, tx)
	})
	return err
}

// WithResult es WithTransaction para callbacks que devuelven un valor.
func WithResult[T any](ctx context.Context, u *UnitOfWork, fn func(ctx context.Context, tx *Tx) (T, error)) (result T, err error) {
	var zero T
	if _, nested := ctx.Value(txKey{u}).(*Tx); nested {
		return zero, ErrNestedTransaction
	}

	conn, err := u.db.Conn(ctx)
	if err != nil {
		return zero, fmt.Errorf("unit of work: acquire connection: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			u.log.Warn("Could not release connection", zap.Error(cerr))
		}
	}()

	sqlTx, err := conn.BeginTx(ctx, u.txOptions)
	if err != nil {
		return zero, fmt.Errorf("unit of work: begin: %w", err)
	}
	tx := &Tx{tx: sqlTx, active: true}

	defer func() {
		if p := recover(); p != nil {
			tx.finish()
			u.rollback(sqlTx)
			panic(p)
		}
	}()

	result, err = fn(context.WithValue(ctx, txKey{u}, tx), tx)
	if err != nil {
		tx.finish()
		u.rollback(sqlTx)
		return zero, err
	}

	pending := tx.finish()
	if err := sqlTx.Commit(); err != nil {
		return zero, fmt.Errorf("unit of work: commit: %w", err)
	}

	u.publish(ctx, pending)
	return result, nil
}

func (u *UnitOfWork) rollback(sqlTx *sql.Tx) {
	if err := sqlTx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		u.log.Error("Rollback failed", zap.Error(err))
	}
}

func (u *UnitOfWork) publish(ctx context.Context, pending []events.DomainEvent) {
	if len(pending) == 0 {
		return
	}
	if u.publisher == nil {
		u.log.Warn("Events buffered after commit but no publisher configured", zap.Int("count", len(pending)))
		return
	}
	for _, evt := range pending {
		u.publisher.Publish(ctx, evt)
	}
}

// GetRepository construye un repositorio ligado a la transacción activa.
func GetRepository[R any](tx *Tx, ctor func(Querier) R) (R, error) {
	var zero R
	if tx == nil || !tx.Active() {
		return zero, ErrNoActiveTransaction
	}
	return ctor(tx), nil
}

// Factory crea una UoW por petición, todas con la misma configuración.
type Factory struct {
	db        *sql.DB
	publisher bus.Publisher
	log       *zap.Logger
	opts      []Option
}

func NewFactory(db *sql.DB, publisher bus.Publisher, log *zap.Logger, opts ...Option) *Factory {
	return &Factory{db: db, publisher: publisher, log: log, opts: opts}
}

func (f *Factory) New() *UnitOfWork {
	return New(f.db, f.publisher, f.log, f.opts...)
}
