package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/queue"
)

// EventStore es la fachada publish/subscribe sobre la cola durable.
//
// Publish guarda el evento en un registro local y lo encola; Subscribe rellena la
// tabla de rutas y arranca (una sola vez) el worker que consume la cola y enruta
// cada job por su nombre.
type EventStore struct {
	queue   queue.Queue
	log     *zap.Logger
	jobOpts queue.JobOptions
	tracer  trace.Tracer
	metrics Metrics

	mu        sync.RWMutex
	published []events.DomainEvent
	maxRecord int
	routes    map[string]HandlerFunc
	cancel    context.CancelFunc
	done      chan struct{}

	startOnce sync.Once
}

var (
	_ Publisher  = (*EventStore)(nil)
	_ Enqueuer   = (*EventStore)(nil)
	_ Subscriber = (*EventStore)(nil)
)

func NewEventStore(q queue.Queue, log *zap.Logger, opts ...Option) *EventStore {
	o := buildOptions(opts)
	if log == nil {
		log = zap.NewNop()
	}
	return &EventStore{
		queue:     q,
		log:       log,
		jobOpts:   o.jobOptions,
		tracer:    o.tracer,
		metrics:   o.metrics,
		maxRecord: o.publishedLimit,
		routes:    make(map[string]HandlerFunc),
	}
}

// Publish registra el evento y lo encola. Un fallo de encolado sólo se loguea:
// quien publica no se entera. Para entrega garantizada usar el outbox.
func (s *EventStore) Publish(ctx context.Context, evt events.DomainEvent) {
	if err := s.Enqueue(ctx, evt); err != nil {
		s.log.Error("Error enqueuing event",
			zap.String("event", evt.Name()),
			zap.String("queue", s.queue.Name()),
			zap.Error(err),
		)
	}
}

// Enqueue es Publish devolviendo el error de encolado.
func (s *EventStore) Enqueue(ctx context.Context, evt events.DomainEvent) error {
	ctx, span := s.tracer.Start(ctx, "eventstore.publish", trace.WithAttributes(
		attribute.String("event.name", evt.Name()),
		attribute.String("queue.name", s.queue.Name()),
	))
	defer span.End()

	s.mu.Lock()
	s.published = append(s.published, evt)
	if len(s.published) >= 2*s.maxRecord {
		// compacta a los maxRecord más recientes; copiar suelta el array viejo
		s.published = append(s.published[:0:0], s.published[len(s.published)-s.maxRecord:]...)
	}
	s.mu.Unlock()

	data, err := json.Marshal(evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "serialize event")
		s.incEnqueueError(evt.Name())
		return fmt.Errorf("serialize event %s: %w", evt.Name(), err)
	}

	job, err := s.queue.Add(ctx, evt.Name(), data, s.jobOpts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue event")
		s.incEnqueueError(evt.Name())
		return err
	}

	span.SetAttributes(attribute.String("job.id", job.ID))
	if s.metrics != nil {
		s.metrics.IncPublished(evt.Name())
	}
	s.log.Debug("Event enqueued",
		zap.String("event", evt.Name()),
		zap.String("job_id", job.ID),
	)
	return nil
}

func (s *EventStore) incEnqueueError(name string) {
	if s.metrics != nil {
		s.metrics.IncEnqueueError(name)
	}
}

// Published devuelve una copia de los últimos eventos emitidos por este proceso
// (como mucho WithPublishedLimit, por defecto DefaultPublishedLimit). Es un
// registro de diagnóstico y tests: la entrega depende sólo de la cola.
func (s *EventStore) Published() []events.DomainEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recent := s.published
	if len(recent) > s.maxRecord {
		recent = recent[len(recent)-s.maxRecord:]
	}
	out := make([]events.DomainEvent, len(recent))
	copy(out, recent)
	return out
}

// Subscribe asigna fn como único consumidor de eventName. La primera llamada
// arranca el worker de la cola; las siguientes sólo añaden rutas.
func (s *EventStore) Subscribe(eventName string, fn HandlerFunc) error {
	if fn == nil {
		return ErrNilHandler
	}

	s.mu.Lock()
	if _, exists := s.routes[eventName]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, eventName)
	}
	s.routes[eventName] = fn
	s.mu.Unlock()

	s.startOnce.Do(s.startWorker)
	return nil
}

func (s *EventStore) startWorker() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.log.Info("Queue worker started", zap.String("queue", s.queue.Name()))
	go func() {
		defer close(done)
		if err := s.queue.Process(ctx, s.process); err != nil && !errors.Is(err, queue.ErrQueueClosed) {
			s.log.Error("Queue worker stopped with error", zap.String("queue", s.queue.Name()), zap.Error(err))
			return
		}
		s.log.Info("Queue worker stopped", zap.String("queue", s.queue.Name()))
	}()
}

// process es el Processor del worker. Cualquier error aquí es un fallo de entrega
// y activa la política de reintentos de la cola.
func (s *EventStore) process(ctx context.Context, job *queue.Job) error {
	evt, err := events.Decode(job.Data)
	if err != nil {
		return err
	}

	fn := s.route(job.Name)
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrNoRoute, job.Name)
	}
	return fn(ctx, evt)
}

func (s *EventStore) route(name string) HandlerFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if fn, ok := s.routes[name]; ok {
		return fn
	}
	return s.routes[Wildcard]
}

// Close detiene el worker (si arrancó) y espera a que termine.
func (s *EventStore) Close() {
	s.mu.RLock()
	cancel, done := s.cancel, s.done
	s.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
