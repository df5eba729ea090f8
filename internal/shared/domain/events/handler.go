package events

import (
	"context"

	"go.uber.org/zap"
)

// EventHandler es el contrato de todo consumidor de eventos de dominio.
// Las implementaciones deben tolerar entregas duplicadas: no hay capa de deduplicación.
type EventHandler interface {
	CanHandle(eventName string) bool
	Handle(ctx context.Context, evt DomainEvent) error
}

// BaseHandler da a los handlers concretos el predicado CanHandle y el logging común.
// Se embebe por valor:
//
//	type EnrollmentEmailHandler struct {
//	    events.BaseHandler
//	    ...
//	}
type BaseHandler struct {
	EventName   string
	HandlerName string
	Log         *zap.Logger
}

func NewBaseHandler(eventName, handlerName string, log *zap.Logger) BaseHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return BaseHandler{EventName: eventName, HandlerName: handlerName, Log: log}
}

// CanHandle compara por igualdad con el nombre de evento configurado.
func (h BaseHandler) CanHandle(eventName string) bool {
	return eventName == h.EventName
}

// Name identifica al handler en logs, métricas y HandlerError.
func (h BaseHandler) Name() string {
	return h.HandlerName
}

func (h BaseHandler) fields(evt DomainEvent) []zap.Field {
	return []zap.Field{
		zap.String("handler", h.HandlerName),
		zap.String("event", evt.Name()),
		zap.Time("occurred_on", evt.OccurredOn()),
	}
}

func (h BaseHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h BaseHandler) LogStarted(evt DomainEvent) {
	h.logger().Info("Started handling event", h.fields(evt)...)
}

func (h BaseHandler) LogSucceeded(evt DomainEvent) {
	h.logger().Info("Event handled", h.fields(evt)...)
}

func (h BaseHandler) LogFailed(evt DomainEvent, err error) {
	h.logger().Error("Handling event failed", append(h.fields(evt), zap.Error(err))...)
}
