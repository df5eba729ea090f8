package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/bus"
)

// MessageReader es la parte de *kafka.Reader que usamos.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

var ErrEmptyIntegrationType = errors.New("integration event without type")

// KafkaBridge escucha IntegrationEvents externos en Kafka y los mete en el bus
// como eventos de dominio. Si el encolado falla el mensaje se pierde: el offset
// ya está confirmado por ReadMessage.
type KafkaBridge struct {
	reader   MessageReader
	enqueuer bus.Enqueuer
	log      *zap.Logger
}

func NewKafkaBridge(reader MessageReader, enqueuer bus.Enqueuer, log *zap.Logger) *KafkaBridge {
	return &KafkaBridge{reader: reader, enqueuer: enqueuer, log: log}
}

// Start inicia el bucle de consumo de mensajes en una goroutine.
func (b *KafkaBridge) Start(ctx context.Context) {
	b.log.Info("🎧 Iniciando consumidor de Kafka...")

	go func() {
		for {
			// ReadMessage es una llamada bloqueante.
			msg, err := b.reader.ReadMessage(ctx)
			if err != nil {
				// Si el contexto se cancela, el error es normal y salimos limpiamente.
				if ctx.Err() != nil {
					b.log.Info("Consumidor de Kafka detenido.")
					return
				}
				b.log.Error("Error al leer mensaje de Kafka", zap.Error(err))
				continue
			}

			if err := b.HandleMessage(ctx, msg.Value); err != nil {
				b.log.Error("Mensaje de Kafka descartado",
					zap.String("key", string(msg.Key)), zap.Error(err))
			}
		}
	}()
}

// HandleMessage convierte un IntegrationEvent en DomainEvent y lo encola.
func (b *KafkaBridge) HandleMessage(ctx context.Context, payload []byte) error {
	var ie events.IntegrationEvent
	if err := json.Unmarshal(payload, &ie); err != nil {
		return err
	}
	if ie.Type == "" {
		return ErrEmptyIntegrationType
	}

	evt := events.NewAt(ie.Type, ie.Timestamp, ie.Data)
	return b.enqueuer.Enqueue(ctx, evt)
}
