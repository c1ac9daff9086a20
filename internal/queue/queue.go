// Package queue is the Redis-backed transport between poll-time job
// discovery and job execution: the poller pushes JSON-encoded jobs onto a
// capped list, and a pool of workers pops them off with BRPOP. Jobs are
// independent; nothing orders one file's execution against another's.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dwdopendata/brightsky/internal/log"
	"github.com/dwdopendata/brightsky/internal/poller"
)

const (
	defaultKey    = "brightsky:jobs"
	defaultMaxLen = 10000
)

// envelope wraps a job with an ID for log correlation across the enqueue
// and execution sides.
type envelope struct {
	ID         string     `json:"id"`
	Job        poller.Job `json:"job"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

// Queue is a handle to the shared Redis job list.
type Queue struct {
	rdb    *redis.Client
	key    string
	maxLen int64
}

// Open connects to Redis at redisURL (redis://host:port/db form).
func Open(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parsing Redis URL: %w", err)
	}
	return &Queue{
		rdb:    redis.NewClient(opts),
		key:    defaultKey,
		maxLen: defaultMaxLen,
	}, nil
}

// Close releases the Redis connection pool.
func (q *Queue) Close() error { return q.rdb.Close() }

// Enqueue pushes one job, blocking while the list is at capacity so a
// slow worker pool applies backpressure to the poller.
func (q *Queue) Enqueue(ctx context.Context, job poller.Job) error {
	for {
		n, err := q.rdb.LLen(ctx, q.key).Result()
		if err != nil {
			return fmt.Errorf("queue: checking queue length: %w", err)
		}
		if n < q.maxLen {
			break
		}
		log.Debugf("queue: %d jobs in flight, waiting for capacity", n)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}

	env := envelope{ID: uuid.NewString(), Job: job, EnqueuedAt: time.Now().UTC()}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("queue: encoding job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("queue: pushing job: %w", err)
	}
	return nil
}

// Dequeue pops one job, waiting up to a few seconds before reporting that
// the queue is empty. ok is false when no job was available.
func (q *Queue) Dequeue(ctx context.Context) (poller.Job, string, bool, error) {
	res, err := q.rdb.BRPop(ctx, 5*time.Second, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return poller.Job{}, "", false, nil
	}
	if err != nil {
		return poller.Job{}, "", false, fmt.Errorf("queue: popping job: %w", err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return poller.Job{}, "", false, fmt.Errorf("queue: decoding job: %w", err)
	}
	return env.Job, env.ID, true, nil
}

// Len reports the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Handler executes one dequeued job.
type Handler func(ctx context.Context, job poller.Job) error

// Pool consumes the queue with a fixed set of worker goroutines.
type Pool struct {
	Queue   *Queue
	Workers int
	Handle  Handler
}

// Run starts the workers and blocks until ctx is canceled. A failed job is
// logged and dropped; the next poll re-discovers it because its ledger
// entry was never written.
func (p *Pool) Run(ctx context.Context) error {
	workers := p.Workers
	if workers <= 0 {
		workers = 2*runtime.NumCPU() + 1
	}
	log.Infof("queue: starting %d workers", workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				job, id, ok, err := p.Queue.Dequeue(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					log.Warnf("queue: worker %d dequeue failed: %v", worker, err)
					time.Sleep(time.Second)
					continue
				}
				if !ok {
					continue
				}
				if err := p.Handle(ctx, job); err != nil {
					log.Errorf("queue: job %s (%s) failed: %v", id, job.URL, err)
				}
			}
		})
	}
	return g.Wait()
}
