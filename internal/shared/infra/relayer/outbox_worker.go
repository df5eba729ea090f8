package relayer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/feedbacklab/internal/shared/domain"
	sharedBus "github.com/davicafu/feedbacklab/internal/shared/infra/platform/bus"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/uow"
)

// Worker lleva los eventos pendientes del outbox a la cola de eventos.
type Worker struct {
	repo      sharedDomain.OutboxRepository
	enqueuer  sharedBus.Enqueuer
	interval  time.Duration
	batchSize int
	log       *zap.Logger

	// Solo con WithTransactionalBatches.
	unit   *uow.UnitOfWork
	txRepo func(uow.Querier) sharedDomain.OutboxRepository
}

type Option func(*Worker)

// WithTransactionalBatches procesa cada lote dentro de una transacción: las filas
// leídas quedan bloqueadas (FOR UPDATE SKIP LOCKED en Postgres) hasta que se
// marcan y se hace commit, así dos relayers no encolan el mismo lote.
// newRepo construye el repositorio sobre la transacción.
func WithTransactionalBatches(unit *uow.UnitOfWork, newRepo func(uow.Querier) sharedDomain.OutboxRepository) Option {
	return func(w *Worker) {
		w.unit = unit
		w.txRepo = newRepo
	}
}

func NewOutboxWorker(
	repo sharedDomain.OutboxRepository,
	enqueuer sharedBus.Enqueuer,
	interval time.Duration,
	batchSize int,
	log *zap.Logger,
	opts ...Option,
) *Worker {
	w := &Worker{
		repo:      repo,
		enqueuer:  enqueuer,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start inicia el bucle de polling del worker.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("🚀 Outbox worker iniciado", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 Outbox worker detenido.")
			return
		case <-ticker.C:
			w.log.Debug("🔄 Ejecutando polling de outbox")
			w.ProcessBatch(ctx)
		}
	}
}

func (w *Worker) ProcessBatch(ctx context.Context) {
	if w.unit == nil {
		_ = w.processWith(ctx, w.repo, false)
		return
	}

	err := w.unit.WithTransaction(ctx, func(ctx context.Context, tx *uow.Tx) error {
		repo, err := uow.GetRepository(tx, w.txRepo)
		if err != nil {
			return err
		}
		return w.processWith(ctx, repo, true)
	})
	if err != nil {
		w.log.Warn("⚠️ Lote de outbox revertido, se reintentará", zap.Error(err))
	}
}

// processWith encola y marca un lote. En modo transaccional un fallo al marcar
// aborta el lote: la transacción ya no es usable y el rollback libera las filas.
func (w *Worker) processWith(ctx context.Context, repo sharedDomain.OutboxRepository, inTx bool) error {
	pending, err := repo.FetchPendingOutbox(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("⚠️ Error al obtener eventos pendientes", zap.Error(err))
		return err
	}
	if len(pending) > 0 {
		w.log.Info(fmt.Sprintf("📬 %d eventos encontrados para procesar", len(pending)))
	}

	for _, evt := range pending {
		if err := w.enqueueAndMark(ctx, repo, evt); err != nil && inTx {
			return err
		}
	}
	return nil
}

// enqueueAndMark solo devuelve error si el evento se encoló pero no se pudo marcar.
func (w *Worker) enqueueAndMark(ctx context.Context, repo sharedDomain.OutboxRepository, evt sharedDomain.OutboxEvent) error {
	// 1. Encolar el evento de dominio reconstruido desde la fila
	if err := w.enqueuer.Enqueue(ctx, evt.DomainEvent()); err != nil {
		w.log.Warn("⚠️ No se pudo encolar evento",
			zap.String("event_id", evt.ID.String()),
			zap.String("event_type", evt.EventType),
			zap.Error(err),
		)
		return nil // No lo marcamos como procesado para que se reintente
	}

	// 2. Marcar como procesado en la DB. Si falla, el evento se volverá a encolar:
	// los handlers toleran duplicados.
	if err := repo.MarkOutboxProcessed(ctx, evt.ID); err != nil {
		w.log.Warn("⚠️ No se pudo marcar evento como procesado",
			zap.String("event_id", evt.ID.String()),
			zap.Error(err),
		)
		return err
	}
	w.log.Info("✅ Evento encolado y marcado", zap.String("event_id", evt.ID.String()))
	return nil
}
