// Package memory implementa la cola en proceso (sin durabilidad entre reinicios).
// Misma semántica de reintentos que la de Redis; se usa en tests y como fallback local.
package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/queue"
)

// Queue guarda los jobs en slices protegidos por un mutex.
type Queue struct {
	name     string
	log      *zap.Logger
	observer queue.Observer

	mu        sync.Mutex
	wait      []*queue.Job
	delayed   map[string]*time.Timer
	failed    []*queue.Job
	completed []*queue.Job
	consuming bool
	closed    bool

	notify chan struct{}
	done   chan struct{}
}

// Verificación en tiempo de compilación.
var _ queue.Queue = (*Queue)(nil)

func NewQueue(name string, log *zap.Logger, observer queue.Observer) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		name:     name,
		log:      log,
		observer: observer,
		delayed:  make(map[string]*time.Timer),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) Add(ctx context.Context, name string, data []byte, opts queue.JobOptions) (*queue.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	job := queue.NewJob(name, data, opts)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, queue.ErrQueueClosed
	}
	q.wait = append(q.wait, job)
	q.mu.Unlock()

	q.signal()
	return job, nil
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Process consume jobs en orden FIFO hasta que ctx termina o la cola se cierra.
func (q *Queue) Process(ctx context.Context, fn queue.Processor) error {
	q.mu.Lock()
	if q.consuming {
		q.mu.Unlock()
		return queue.ErrConsumerAttached
	}
	q.consuming = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.consuming = false
		q.mu.Unlock()
	}()

	for {
		job, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-q.done:
				return queue.ErrQueueClosed
			case <-q.notify:
				continue
			}
		}
		q.handle(ctx, fn, job)
	}
}

func (q *Queue) next() (*queue.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.wait) == 0 {
		return nil, false
	}
	job := q.wait[0]
	q.wait = q.wait[1:]
	return job, true
}

func (q *Queue) handle(ctx context.Context, fn queue.Processor, job *queue.Job) {
	job.ProcessedOn = time.Now().UTC()
	err := queue.SafeProcess(ctx, fn, job)
	if err == nil {
		job.FinishedOn = time.Now().UTC()
		if !job.Opts.RemoveOnComplete {
			q.mu.Lock()
			q.completed = append(q.completed, job)
			q.mu.Unlock()
		}
		if q.observer != nil {
			q.observer.JobCompleted(q.name, job)
		}
		return
	}

	if job.Fail(err) {
		delay := job.RetryDelay()
		q.log.Warn("Job failed, retry scheduled",
			zap.String("queue", q.name),
			zap.String("job_id", job.ID),
			zap.String("job_name", job.Name),
			zap.Int("attempts_made", job.AttemptsMade),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		q.schedule(job, delay)
		if q.observer != nil {
			q.observer.JobRetried(q.name, job, delay)
		}
		return
	}

	job.FinishedOn = time.Now().UTC()
	q.log.Error("Job failed permanently",
		zap.String("queue", q.name),
		zap.String("job_id", job.ID),
		zap.String("job_name", job.Name),
		zap.Int("attempts_made", job.AttemptsMade),
		zap.Error(err),
	)
	q.mu.Lock()
	q.failed = append(q.failed, job)
	if keep := job.Opts.RemoveOnFail; keep > 0 && len(q.failed) > keep {
		q.failed = q.failed[len(q.failed)-keep:]
	}
	q.mu.Unlock()
	if q.observer != nil {
		q.observer.JobFailed(q.name, job)
	}
}

func (q *Queue) schedule(job *queue.Job, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.delayed[job.ID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.delayed, job.ID)
		if q.closed {
			q.mu.Unlock()
			return
		}
		q.wait = append(q.wait, job)
		q.mu.Unlock()
		q.signal()
	})
}

// Failed devuelve los jobs fallidos más recientes primero.
func (q *Queue) Failed(ctx context.Context, limit int) ([]*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.failed)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*queue.Job, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, q.failed[i])
	}
	return out, nil
}

// Counts: esperando, con retraso y fallidos. Lo usan los tests para esperar a que la cola se vacíe.
func (q *Queue) Counts() (waiting, delayed, failed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.wait), len(q.delayed), len(q.failed)
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for id, t := range q.delayed {
		t.Stop()
		delete(q.delayed, id)
	}
	close(q.done)
	return nil
}
