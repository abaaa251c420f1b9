package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/yourorg/storecrm/internal/infrastructure/redis"
	"github.com/yourorg/storecrm/internal/observability/metrics"
)

// Handler processes one job. Returning ErrSkip completes the job as a
// business no-op; any other error goes through the queue's retry policy.
type Handler func(ctx context.Context, job *Job) error

// Gate throttles dequeue. A denied job is pushed back with a short delay
// without consuming an attempt. The outbound messaging pool uses this to
// enforce its hard send budget.
type Gate func() bool

const (
	popTimeout   = 2 * time.Second
	promoteEvery = time.Second
	gateBackoff  = 2 * time.Second
	maxBackoff   = 5 * time.Minute
)

// Pool runs a bounded number of concurrent job executions against one queue
type Pool struct {
	broker      *Broker
	queue       string
	concurrency int
	handlers    map[string]Handler
	gate        Gate
	logger      *slog.Logger
}

// NewPool creates a worker pool for a queue
func NewPool(broker *Broker, queue string, concurrency int, logger *slog.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{
		broker:      broker,
		queue:       queue,
		concurrency: concurrency,
		handlers:    map[string]Handler{},
		logger:      logger.With(slog.String("queue", queue)),
	}
}

// Handle registers the handler for a job type
func (p *Pool) Handle(jobType string, h Handler) {
	p.handlers[jobType] = h
}

// SetGate installs a dequeue throttle
func (p *Pool) SetGate(g Gate) {
	p.gate = g
}

// Start runs the pool until the context is cancelled. Call in a goroutine.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("worker pool started", slog.Int("concurrency", p.concurrency))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.promoteLoop(ctx)
	}()

	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workLoop(ctx)
		}()
	}

	wg.Wait()
	p.logger.Info("worker pool stopped")
}

// workLoop pops and executes jobs until cancellation
func (p *Pool) workLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.broker.redis.BRPop(ctx, popTimeout, readyKey(p.queue))
		if err != nil {
			if redis.IsNil(err) || ctx.Err() != nil {
				continue
			}
			p.logger.Error("failed to pop job", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			p.logger.Error("discarding undecodable job", slog.String("error", err.Error()))
			continue
		}

		if p.gate != nil && !p.gate() {
			// Over the send budget: push back without consuming an attempt
			if err := p.broker.push(ctx, &job, gateBackoff); err != nil {
				p.logger.Error("failed to requeue throttled job",
					slog.String("job_id", job.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		p.execute(ctx, &job)
	}
}

// execute runs one job and applies the retry/terminal bookkeeping
func (p *Pool) execute(ctx context.Context, job *Job) {
	handler, ok := p.handlers[job.Type]
	if !ok {
		p.logger.Warn("no handler for job type, dropping",
			slog.String("type", job.Type),
			slog.String("job_id", job.ID),
		)
		return
	}

	start := time.Now()
	err := handler(ctx, job)
	duration := time.Since(start)

	switch {
	case err == nil:
		metrics.ObserveJob(p.queue, "success", duration)
		p.logger.Debug("job completed",
			slog.String("type", job.Type),
			slog.String("job_id", job.ID),
			slog.Duration("duration", duration),
		)

	case errors.Is(err, ErrSkip):
		metrics.ObserveJob(p.queue, "skipped", duration)
		p.logger.Info("job skipped",
			slog.String("type", job.Type),
			slog.String("job_id", job.ID),
			slog.String("reason", err.Error()),
		)

	case job.Attempt < job.MaxAttempts:
		backoff := retryBackoff(job)
		job.Attempt++
		metrics.ObserveJob(p.queue, "retried", duration)
		metrics.ObserveRetry(p.queue)
		p.logger.Warn("job failed, retrying",
			slog.String("type", job.Type),
			slog.String("job_id", job.ID),
			slog.Int("attempt", job.Attempt-1),
			slog.Int("max_attempts", job.MaxAttempts),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)
		if pushErr := p.broker.push(ctx, job, backoff); pushErr != nil {
			p.logger.Error("failed to schedule retry",
				slog.String("job_id", job.ID),
				slog.String("error", pushErr.Error()),
			)
		}

	default:
		metrics.ObserveJob(p.queue, "dead", duration)
		if dlErr := p.broker.deadLetter(ctx, job, err); dlErr != nil {
			p.logger.Error("failed to dead-letter job",
				slog.String("job_id", job.ID),
				slog.String("error", dlErr.Error()),
			)
		}
	}
}

// promoteLoop moves due delayed jobs onto the ready list
func (p *Pool) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(promoteEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.promoteDue(ctx)
			if depth, err := p.broker.Depth(ctx, p.queue); err == nil {
				metrics.SetQueueDepth(p.queue, depth)
			}
		}
	}
}

// promoteDue promotes every delayed job whose ready-time has passed. ZRem
// before LPush so only one promoter wins when several processes run the same
// queue.
func (p *Pool) promoteDue(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	raws, err := p.broker.redis.ZRangeByScore(ctx, delayedKey(p.queue), "-inf", now, 100)
	if err != nil {
		p.logger.Error("failed to read delayed jobs", slog.String("error", err.Error()))
		return
	}

	for _, raw := range raws {
		removed, err := p.broker.redis.ZRem(ctx, delayedKey(p.queue), raw)
		if err != nil || removed == 0 {
			continue
		}
		if err := p.broker.redis.LPush(ctx, readyKey(p.queue), raw); err != nil {
			p.logger.Error("failed to promote delayed job", slog.String("error", err.Error()))
		}
	}
}

// retryBackoff returns the exponential backoff for a job's next attempt
func retryBackoff(job *Job) time.Duration {
	base := time.Duration(job.BackoffBaseMS) * time.Millisecond
	if base <= 0 {
		base = 2 * time.Second
	}
	backoff := time.Duration(float64(base) * math.Pow(2, float64(job.Attempt-1)))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}
