package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/storecrm/internal/infrastructure/redis"
)

// Queue names. Each queue gets its own worker pool with its own concurrency
// and retry policy.
const (
	QueueWebhooks  = "webhooks"
	QueueWhatsapp  = "whatsapp"
	QueueRecovery  = "recovery"
	QueueSync      = "sync"
	QueueAnalytics = "analytics"
)

// ErrSkip marks a business-rule no-op (cart already recovered, no phone
// number, ...). Handlers returning it complete successfully and are never
// retried or alerted.
var ErrSkip = errors.New("job skipped")

// Job is the serialized envelope moved through Redis
type Job struct {
	ID            string          `json:"id"`
	Queue         string          `json:"queue"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Attempt       int             `json:"attempt"`
	MaxAttempts   int             `json:"maxAttempts"`
	BackoffBaseMS int64           `json:"backoffBaseMs"`
	EnqueuedAt    time.Time       `json:"enqueuedAt"`
}

// Options tunes a single enqueue
type Options struct {
	Delay       time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

// Enqueuer is the "add job" entry point handed to services and handlers.
// It returns immediately with the job ID; completion is observable only via
// the entity state the job mutates.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue, jobType string, payload interface{}, opts *Options) (string, error)
}

// Broker is the Redis-backed durable multi-queue job broker. Each queue is a
// list (ready jobs), a sorted set scored by ready-time (delayed/retrying
// jobs) and a dead-letter list (terminal failures, operator visible).
type Broker struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewBroker creates a broker over the given Redis client
func NewBroker(redisClient *redis.Client, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{redis: redisClient, logger: logger}
}

// Enqueue adds a job to a queue, optionally delayed
func (b *Broker) Enqueue(ctx context.Context, queue, jobType string, payload interface{}, opts *Options) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	if opts == nil {
		opts = &Options{}
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoffBase := opts.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}

	job := &Job{
		ID:            uuid.NewString(),
		Queue:         queue,
		Type:          jobType,
		Payload:       data,
		Attempt:       1,
		MaxAttempts:   maxAttempts,
		BackoffBaseMS: backoffBase.Milliseconds(),
		EnqueuedAt:    time.Now().UTC(),
	}

	if err := b.push(ctx, job, opts.Delay); err != nil {
		return "", err
	}

	b.logger.Debug("job enqueued",
		slog.String("queue", queue),
		slog.String("type", jobType),
		slog.String("job_id", job.ID),
	)
	return job.ID, nil
}

// push places a job on the ready list or, when delayed, the delayed zset
func (b *Broker) push(ctx context.Context, job *Job, delay time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job envelope: %w", err)
	}

	if delay > 0 {
		readyAt := float64(time.Now().Add(delay).UnixMilli())
		if err := b.redis.ZAdd(ctx, delayedKey(job.Queue), readyAt, string(raw)); err != nil {
			return fmt.Errorf("failed to schedule delayed job: %w", err)
		}
		return nil
	}

	if err := b.redis.LPush(ctx, readyKey(job.Queue), string(raw)); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// deadLetter moves a job to the queue's dead-letter list after its retry
// budget is exhausted
func (b *Broker) deadLetter(ctx context.Context, job *Job, cause error) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}
	if err := b.redis.LPush(ctx, deadKey(job.Queue), string(raw)); err != nil {
		return fmt.Errorf("failed to dead-letter job: %w", err)
	}
	b.logger.Error("job moved to dead letter queue",
		slog.String("queue", job.Queue),
		slog.String("type", job.Type),
		slog.String("job_id", job.ID),
		slog.Int("attempts", job.Attempt),
		slog.String("error", cause.Error()),
	)
	return nil
}

// DeadLetters returns up to limit terminal-failed jobs for operator inspection
func (b *Broker) DeadLetters(ctx context.Context, queue string, limit int64) ([]*Job, error) {
	raws, err := b.redis.LRange(ctx, deadKey(queue), 0, limit-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letter queue: %w", err)
	}
	jobs := make([]*Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Depth returns the number of ready jobs waiting on a queue
func (b *Broker) Depth(ctx context.Context, queue string) (int64, error) {
	return b.redis.LLen(ctx, readyKey(queue))
}

func readyKey(queue string) string   { return "queue:" + queue }
func delayedKey(queue string) string { return "queue:" + queue + ":delayed" }
func deadKey(queue string) string    { return "queue:" + queue + ":dead" }
