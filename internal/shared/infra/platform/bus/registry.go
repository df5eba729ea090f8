package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
)

// DispatchReport resume una entrega a los handlers de un evento.
type DispatchReport struct {
	Event    string
	Handled  int
	Skipped  int
	Failures []*events.HandlerError
}

// Err junta los fallos de handler; nil si todos terminaron bien.
func (r DispatchReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Registry asocia nombres de evento con handlers y hace el fan-out.
//
// Se suscribe al Subscriber una sola vez por nombre de evento; el callback
// nunca devuelve error, así que un handler que falla no reencola el evento ni
// afecta al resto.
type Registry struct {
	store   Subscriber
	log     *zap.Logger
	tracer  trace.Tracer
	metrics Metrics

	mu        sync.RWMutex
	handlers  map[string][]events.EventHandler
	listening bool
}

func NewRegistry(store Subscriber, log *zap.Logger, opts ...Option) *Registry {
	o := buildOptions(opts)
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		store:    store,
		log:      log,
		tracer:   o.tracer,
		metrics:  o.metrics,
		handlers: make(map[string][]events.EventHandler),
	}
}

// RegisterHandler añade h a la lista de eventName. La primera vez que aparece un
// nombre se suscribe el dispatch en el store. Registrar dos veces el mismo
// handler hace que se invoque dos veces.
//
// Los handlers bajo "*" reciben todos los eventos, además de los handlers del
// nombre concreto; registrarlos equivale a llamar a Listen.
func (r *Registry) RegisterHandler(eventName string, h events.EventHandler) error {
	if h == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	_, known := r.handlers[eventName]
	r.handlers[eventName] = append(r.handlers[eventName], h)
	r.mu.Unlock()

	r.log.Info("Handler registered",
		zap.String("event", eventName),
		zap.String("handler", handlerName(h)),
	)

	if eventName == Wildcard {
		return r.Listen()
	}
	if known {
		return nil
	}
	return r.store.Subscribe(eventName, r.dispatch)
}

// Listen suscribe el dispatch bajo "*": los eventos sin ruta propia también
// pasan por el registro (y acaban en el aviso de "no handlers").
func (r *Registry) Listen() error {
	r.mu.Lock()
	if r.listening {
		r.mu.Unlock()
		return nil
	}
	r.listening = true
	r.mu.Unlock()

	if err := r.store.Subscribe(Wildcard, r.dispatch); err != nil {
		r.mu.Lock()
		r.listening = false
		r.mu.Unlock()
		return err
	}
	return nil
}

// Handlers devuelve una copia de los handlers registrados para eventName.
func (r *Registry) Handlers(eventName string) []events.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := r.handlers[eventName]
	out := make([]events.EventHandler, len(hs))
	copy(out, hs)
	return out
}

// handlersFor: los del nombre exacto seguidos de los de "*".
func (r *Registry) handlersFor(eventName string) []events.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	named := r.handlers[eventName]
	var wildcard []events.EventHandler
	if eventName != Wildcard {
		wildcard = r.handlers[Wildcard]
	}
	out := make([]events.EventHandler, 0, len(named)+len(wildcard))
	out = append(out, named...)
	return append(out, wildcard...)
}

func (r *Registry) dispatch(ctx context.Context, evt events.DomainEvent) error {
	r.HandleEvent(ctx, evt)
	return nil
}

// HandleEvent ejecuta en paralelo todos los handlers del evento que acepten su
// nombre y espera a que terminen. Los errores y panics quedan aislados en el informe.
func (r *Registry) HandleEvent(ctx context.Context, evt events.DomainEvent) DispatchReport {
	report := DispatchReport{Event: evt.Name()}
	handlers := r.handlersFor(evt.Name())

	if len(handlers) == 0 {
		r.log.Warn("no handlers found for event", zap.String("event", evt.Name()))
		if r.metrics != nil {
			r.metrics.IncUnhandled(evt.Name())
		}
		return report
	}

	ctx, span := r.tracer.Start(ctx, "registry.dispatch", trace.WithAttributes(
		attribute.String("event.name", evt.Name()),
		attribute.Int("handlers", len(handlers)),
	))
	defer span.End()

	type outcome struct {
		skipped bool
		err     *events.HandlerError
	}
	results := make([]outcome, len(handlers))

	var g errgroup.Group
	for i, h := range handlers {
		g.Go(func() error {
			if !h.CanHandle(evt.Name()) {
				results[i].skipped = true
				return nil
			}
			results[i].err = r.invoke(ctx, h, evt)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		switch {
		case res.skipped:
			report.Skipped++
		case res.err != nil:
			report.Failures = append(report.Failures, res.err)
		default:
			report.Handled++
		}
	}

	if len(report.Failures) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d handler(s) failed", len(report.Failures)))
	}
	return report
}

func (r *Registry) invoke(ctx context.Context, h events.EventHandler, evt events.DomainEvent) (herr *events.HandlerError) {
	name := handlerName(h)

	defer func() {
		if rec := recover(); rec != nil {
			herr = &events.HandlerError{Handler: name, Event: evt.Name(), Err: fmt.Errorf("panic: %v", rec)}
		}
		if herr != nil {
			r.log.Error("Handler failed",
				zap.String("handler", name),
				zap.String("event", evt.Name()),
				zap.Error(herr.Err),
			)
			if r.metrics != nil {
				r.metrics.ObserveHandler(evt.Name(), name, herr)
			}
			return
		}
		if r.metrics != nil {
			r.metrics.ObserveHandler(evt.Name(), name, nil)
		}
	}()

	if err := h.Handle(ctx, evt); err != nil {
		return &events.HandlerError{Handler: name, Event: evt.Name(), Err: err}
	}
	return nil
}

func handlerName(h events.EventHandler) string {
	if n, ok := h.(interface{ Name() string }); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}
