package bus

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/queue"
)

// DefaultTopic es la cola lógica por la que viajan todos los eventos de dominio.
const DefaultTopic = "event"

// Wildcard recibe los eventos sin ruta específica.
const Wildcard = "*"

// DefaultPublishedLimit acota el registro en memoria de eventos publicados.
const DefaultPublishedLimit = 1000

var (
	ErrAlreadySubscribed = errors.New("event name already has a consumer")
	ErrNoRoute           = errors.New("no consumer for job")
	ErrNilHandler        = errors.New("handler cannot be nil")
)

// HandlerFunc recibe un evento ya deserializado por el worker.
type HandlerFunc func(ctx context.Context, evt events.DomainEvent) error

// Publisher: la cara que ven los casos de uso. Fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, evt events.DomainEvent)
}

// Enqueuer es el Publisher que sí devuelve el error de encolado (relayer del outbox).
type Enqueuer interface {
	Enqueue(ctx context.Context, evt events.DomainEvent) error
}

// Subscriber registra el único consumidor de un nombre de evento.
type Subscriber interface {
	Subscribe(eventName string, fn HandlerFunc) error
}

// Metrics es opcional; nil desactiva la instrumentación.
type Metrics interface {
	IncPublished(event string)
	IncEnqueueError(event string)
	IncUnhandled(event string)
	ObserveHandler(event, handler string, err error)
}

type options struct {
	jobOptions     queue.JobOptions
	tracer         trace.Tracer
	metrics        Metrics
	publishedLimit int
}

// Option configura EventStore y Registry.
type Option func(*options)

func WithJobOptions(o queue.JobOptions) Option { return func(opts *options) { opts.jobOptions = o } }
func WithTracer(t trace.Tracer) Option         { return func(opts *options) { opts.tracer = t } }
func WithMetrics(m Metrics) Option             { return func(opts *options) { opts.metrics = m } }

// WithPublishedLimit fija cuántos eventos recientes guarda Published(); n <= 0 usa el valor por defecto.
func WithPublishedLimit(n int) Option { return func(opts *options) { opts.publishedLimit = n } }

func buildOptions(opts []Option) options {
	o := options{jobOptions: queue.DefaultJobOptions()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.publishedLimit <= 0 {
		o.publishedLimit = DefaultPublishedLimit
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("github.com/davicafu/feedbacklab/bus")
	}
	return o
}
