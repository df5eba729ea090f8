// Package redis implementa la cola durable sobre Redis (listas + sorted set).
//
// Claves por cola:
//
//	<prefix>:<name>:wait             LIST  jobs listos (LPUSH / BRPOPLPUSH)
//	<prefix>:<name>:active:<worker>  LIST  jobs en curso de este consumidor
//	<prefix>:<name>:delayed          ZSET  jobs en espera de reintento (score = due unix ms)
//	<prefix>:<name>:failed           LIST  fallos terminales, recortada a removeOnFail
//	<prefix>:<name>:completed        LIST  sólo si removeOnComplete=false
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/queue"
)

const (
	defaultPollTimeout = time.Second
	promoteBatch       = 100
	keepCompleted      = 1000
)

// promoteScript mueve atómicamente los jobs vencidos de delayed a wait.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, member in ipairs(due) do
  redis.call('ZREM', KEYS[1], member)
  redis.call('LPUSH', KEYS[2], member)
end
return #due
`)

type Config struct {
	Prefix      string
	Name        string
	WorkerID    string
	PollTimeout time.Duration
}

type Queue struct {
	client   redis.UniversalClient
	cfg      Config
	log      *zap.Logger
	observer queue.Observer

	mu        sync.Mutex
	consuming bool
}

// Verificación en tiempo de compilación.
var _ queue.Queue = (*Queue)(nil)

func NewQueue(client redis.UniversalClient, cfg Config, log *zap.Logger, observer queue.Observer) *Queue {
	if cfg.Prefix == "" {
		cfg.Prefix = "feedbacklab"
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "default"
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{client: client, cfg: cfg, log: log, observer: observer}
}

func (q *Queue) Name() string { return q.cfg.Name }

func (q *Queue) key(suffix string) string {
	return fmt.Sprintf("%s:%s:%s", q.cfg.Prefix, q.cfg.Name, suffix)
}

func (q *Queue) activeKey() string { return q.key("active:" + q.cfg.WorkerID) }

func (q *Queue) Add(ctx context.Context, name string, data []byte, opts queue.JobOptions) (*queue.Job, error) {
	job := queue.NewJob(name, data, opts)
	raw, err := queue.EncodeJob(job)
	if err != nil {
		return nil, err
	}
	if err := q.client.LPush(ctx, q.key("wait"), raw).Err(); err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", name, err)
	}
	return job, nil
}

// Process consume la cola hasta que ctx termina. Al arrancar devuelve a wait lo que
// este consumidor dejó en active (caída entre dequeue y ack).
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

	if n, err := q.recoverActive(ctx); err != nil {
		q.log.Warn("Could not recover stalled jobs", zap.String("queue", q.cfg.Name), zap.Error(err))
	} else if n > 0 {
		q.log.Info("Stalled jobs re-queued", zap.String("queue", q.cfg.Name), zap.Int("count", n))
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := q.promoteDelayed(ctx); err != nil && ctx.Err() == nil {
			q.log.Warn("Could not promote delayed jobs", zap.String("queue", q.cfg.Name), zap.Error(err))
		}

		raw, err := q.client.BRPopLPush(ctx, q.key("wait"), q.activeKey(), q.cfg.PollTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			q.log.Error("Error reading from queue", zap.String("queue", q.cfg.Name), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(q.cfg.PollTimeout):
			}
			continue
		}
		q.handle(ctx, fn, raw)
	}
}

func (q *Queue) recoverActive(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.RPopLPush(ctx, q.activeKey(), q.key("wait")).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (q *Queue) promoteDelayed(ctx context.Context) (int64, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return promoteScript.Run(ctx, q.client, []string{q.key("delayed"), q.key("wait")}, now, promoteBatch).Int64()
}

// handle usa context.Background() para el ack: un job procesado debe confirmarse
// aunque el contexto del consumidor se haya cancelado mientras tanto.
func (q *Queue) handle(ctx context.Context, fn queue.Processor, raw string) {
	ackCtx := context.Background()

	job, err := queue.DecodeJob([]byte(raw))
	if err != nil {
		q.log.Error("Undecodable job moved to failed", zap.String("queue", q.cfg.Name), zap.Error(err))
		_, _ = q.client.TxPipelined(ackCtx, func(p redis.Pipeliner) error {
			p.LRem(ackCtx, q.activeKey(), 1, raw)
			p.LPush(ackCtx, q.key("failed"), raw)
			p.LTrim(ackCtx, q.key("failed"), 0, queue.DefaultKeepFailed-1)
			return nil
		})
		return
	}

	job.ProcessedOn = time.Now().UTC()
	perr := queue.SafeProcess(ctx, fn, job)
	if perr == nil {
		job.FinishedOn = time.Now().UTC()
		_, err := q.client.TxPipelined(ackCtx, func(p redis.Pipeliner) error {
			p.LRem(ackCtx, q.activeKey(), 1, raw)
			if !job.Opts.RemoveOnComplete {
				if done, err := queue.EncodeJob(job); err == nil {
					p.LPush(ackCtx, q.key("completed"), done)
					p.LTrim(ackCtx, q.key("completed"), 0, keepCompleted-1)
				}
			}
			return nil
		})
		if err != nil {
			q.log.Error("Could not ack job", zap.String("job_id", job.ID), zap.Error(err))
		}
		if q.observer != nil {
			q.observer.JobCompleted(q.cfg.Name, job)
		}
		return
	}

	retry := job.Fail(perr)
	updated, err := queue.EncodeJob(job)
	if err != nil {
		q.log.Error("Could not encode failed job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	if retry {
		delay := job.RetryDelay()
		due := float64(time.Now().Add(delay).UnixMilli())
		_, err = q.client.TxPipelined(ackCtx, func(p redis.Pipeliner) error {
			p.LRem(ackCtx, q.activeKey(), 1, raw)
			p.ZAdd(ackCtx, q.key("delayed"), &redis.Z{Score: due, Member: updated})
			return nil
		})
		q.log.Warn("Job failed, retry scheduled",
			zap.String("queue", q.cfg.Name),
			zap.String("job_id", job.ID),
			zap.String("job_name", job.Name),
			zap.Int("attempts_made", job.AttemptsMade),
			zap.Duration("delay", delay),
			zap.Error(perr),
		)
		if err != nil {
			q.log.Error("Could not schedule retry", zap.String("job_id", job.ID), zap.Error(err))
		}
		if q.observer != nil {
			q.observer.JobRetried(q.cfg.Name, job, delay)
		}
		return
	}

	keep := int64(job.Opts.RemoveOnFail)
	_, err = q.client.TxPipelined(ackCtx, func(p redis.Pipeliner) error {
		p.LRem(ackCtx, q.activeKey(), 1, raw)
		p.LPush(ackCtx, q.key("failed"), updated)
		if keep > 0 {
			p.LTrim(ackCtx, q.key("failed"), 0, keep-1)
		}
		return nil
	})
	q.log.Error("Job failed permanently",
		zap.String("queue", q.cfg.Name),
		zap.String("job_id", job.ID),
		zap.String("job_name", job.Name),
		zap.Int("attempts_made", job.AttemptsMade),
		zap.Error(perr),
	)
	if err != nil {
		q.log.Error("Could not move job to failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	if q.observer != nil {
		q.observer.JobFailed(q.cfg.Name, job)
	}
}

// Failed devuelve los fallos terminales, el más reciente primero.
func (q *Queue) Failed(ctx context.Context, limit int) ([]*queue.Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raws, err := q.client.LRange(ctx, q.key("failed"), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*queue.Job, 0, len(raws))
	for _, raw := range raws {
		job, err := queue.DecodeJob([]byte(raw))
		if err != nil {
			q.log.Warn("Skipping undecodable failed job", zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Close no cierra el cliente: lo gestiona quien lo creó.
func (q *Queue) Close() error { return nil }
