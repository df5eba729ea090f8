// Package queue define la cola de trabajo durable sobre la que viaja el bus de eventos.
// Semántica "at-least-once": un job puede entregarse más de una vez, nunca se pierde
// en silencio una vez encolado.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueClosed      = errors.New("queue closed")
	ErrNilJob           = errors.New("nil job")
	ErrConsumerAttached = errors.New("queue already has a consumer in this process")
)

const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

const (
	DefaultAttempts     = 3
	DefaultBackoffDelay = 2000 * time.Millisecond
	DefaultKeepFailed   = 50
)

// Backoff es la política de espera entre reintentos. Delay viaja en milisegundos.
type Backoff struct {
	Type  string        `json:"type"`
	Delay time.Duration `json:"-"`
}

type wireBackoff struct {
	Type  string `json:"type"`
	Delay int64  `json:"delay"`
}

// Duration calcula la espera antes del reintento tras attemptsMade fallos.
// Exponencial: delay * 2^(attemptsMade-1) -> 2s, 4s, 8s con la política por defecto.
func (b Backoff) Duration(attemptsMade int) time.Duration {
	if attemptsMade < 1 || b.Delay <= 0 {
		return 0
	}
	if b.Type != BackoffExponential {
		return b.Delay
	}
	shift := attemptsMade - 1
	if shift > 30 {
		shift = 30
	}
	return b.Delay * time.Duration(1<<uint(shift))
}

// JobOptions replica el contrato de la cola: intentos, backoff y retención.
type JobOptions struct {
	Attempts         int
	Backoff          Backoff
	RemoveOnComplete bool
	// RemoveOnFail es el número de jobs fallidos que se conservan (los más recientes).
	RemoveOnFail int
}

type wireOptions struct {
	Attempts         int         `json:"attempts"`
	Backoff          wireBackoff `json:"backoff"`
	RemoveOnComplete bool        `json:"removeOnComplete"`
	RemoveOnFail     int         `json:"removeOnFail"`
}

// DefaultJobOptions: {attempts:3, backoff:{type:"exponential", delay:2000},
// removeOnComplete:true, removeOnFail:50}.
func DefaultJobOptions() JobOptions {
	return JobOptions{
		Attempts:         DefaultAttempts,
		Backoff:          Backoff{Type: BackoffExponential, Delay: DefaultBackoffDelay},
		RemoveOnComplete: true,
		RemoveOnFail:     DefaultKeepFailed,
	}
}

func (o JobOptions) normalized() JobOptions {
	if o.Attempts < 1 {
		o.Attempts = 1
	}
	if o.RemoveOnFail < 0 {
		o.RemoveOnFail = 0
	}
	return o
}

// Job es la unidad durable que guarda la cola. Name es el nombre del evento y
// Data el evento serializado en JSON.
type Job struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Data         []byte     `json:"data"`
	AttemptsMade int        `json:"attemptsMade"`
	Opts         JobOptions `json:"opts"`
	Timestamp    time.Time  `json:"timestamp"`
	FailedReason string     `json:"failedReason,omitempty"`
	ProcessedOn  time.Time  `json:"processedOn,omitempty"`
	FinishedOn   time.Time  `json:"finishedOn,omitempty"`
}

// NewJob crea un job listo para encolar.
func NewJob(name string, data []byte, opts JobOptions) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Data:      data,
		Opts:      opts.normalized(),
		Timestamp: time.Now().UTC(),
	}
}

// Fail registra un intento fallido y devuelve si el job debe reintentarse.
func (j *Job) Fail(err error) (retry bool) {
	j.AttemptsMade++
	if err != nil {
		j.FailedReason = err.Error()
	}
	return j.AttemptsMade < j.Opts.Attempts
}

// RetryDelay es la espera antes de la siguiente entrega.
func (j *Job) RetryDelay() time.Duration {
	return j.Opts.Backoff.Duration(j.AttemptsMade)
}

// Processor procesa un job. Un error (o un panic) cuenta como fallo de entrega.
type Processor func(ctx context.Context, job *Job) error

// Queue es el puerto de la cola durable. Process bloquea hasta que ctx termina.
type Queue interface {
	Name() string
	Add(ctx context.Context, name string, data []byte, opts JobOptions) (*Job, error)
	Process(ctx context.Context, fn Processor) error
	Failed(ctx context.Context, limit int) ([]*Job, error)
	Close() error
}

// Observer recibe el ciclo de vida de los jobs (métricas). Puede ser nil.
type Observer interface {
	JobCompleted(queue string, job *Job)
	JobRetried(queue string, job *Job, delay time.Duration)
	JobFailed(queue string, job *Job)
}

// SafeProcess ejecuta el processor convirtiendo un panic en error.
func SafeProcess(ctx context.Context, fn Processor, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return fn(ctx, job)
}
