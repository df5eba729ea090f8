package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
)

// MessageWriter es la parte de *kafka.Writer que usamos.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaForwarder reenvía a Kafka, como IntegrationEvent, los eventos de dominio
// para los que se registra. La clave del mensaje es el nombre del evento.
type KafkaForwarder struct {
	writer MessageWriter
	names  map[string]struct{}
	log    *zap.Logger
}

func NewKafkaForwarder(writer MessageWriter, log *zap.Logger, eventNames ...string) *KafkaForwarder {
	names := make(map[string]struct{}, len(eventNames))
	for _, n := range eventNames {
		names[n] = struct{}{}
	}
	return &KafkaForwarder{writer: writer, names: names, log: log}
}

func (f *KafkaForwarder) Name() string { return "kafka-forwarder" }

// CanHandle acepta cualquier evento si no se configuró ninguna lista.
func (f *KafkaForwarder) CanHandle(eventName string) bool {
	if len(f.names) == 0 {
		return true
	}
	_, ok := f.names[eventName]
	return ok
}

func (f *KafkaForwarder) Handle(ctx context.Context, evt events.DomainEvent) error {
	ie, err := events.ToIntegration(evt)
	if err != nil {
		return err
	}
	data, err := json.Marshal(ie)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(evt.Name()),
		Value: data,
		Time:  evt.OccurredOn(),
	}

	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.log.Error("Error publishing to Kafka", zap.String("event", evt.Name()), zap.Error(err))
		return err
	}

	f.log.Debug("Event forwarded to Kafka", zap.String("event", evt.Name()))
	return nil
}

// Verificación estática
var _ events.EventHandler = (*KafkaForwarder)(nil)
