// Package worker runs background jobs from redis lists. Failed jobs are
// retried with exponential delay through a retry queue and dead-lettered
// after MaxTries attempts.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"kaaj/internal/logging"

	"github.com/charmbracelet/log"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	JobTypeVerificationEmail JobType = "verification_email"
	JobTypePasswordChanged   JobType = "password_changed"
)

const (
	QueueMail  = "mail"
	QueueRetry = "retry_queue"
	QueueDead  = "dead_queue"

	DefaultMaxTries = 3
)

type Job struct {
	ID        string         `json:"id"`
	Type      JobType        `json:"type"`
	Payload   map[string]any `json:"payload"`
	Attempts  int            `json:"attempts"`
	MaxTries  int            `json:"max_tries"`
	CreatedAt time.Time      `json:"created_at"`
	ProcessAt time.Time      `json:"process_at"`
}

// String returns the payload value for key, or "".
func (j *Job) String(key string) string {
	s, _ := j.Payload[key].(string)
	return s
}

type JobHandler func(ctx context.Context, job *Job) error

type Worker struct {
	client       *redis.Client
	handlers     map[JobType]JobHandler
	queues       []string
	concurrency  int
	pollInterval time.Duration
	logger       *log.Logger
	now          func() time.Time

	mu     sync.RWMutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	Concurrency  int
	PollInterval time.Duration
	Queues       []string
	Logger       *log.Logger
	Now          func() time.Time
}

func NewWorker(config WorkerConfig) *Worker {
	w := &Worker{
		client:       config.RedisClient,
		handlers:     make(map[JobType]JobHandler),
		queues:       config.Queues,
		concurrency:  config.Concurrency,
		pollInterval: config.PollInterval,
		logger:       config.Logger,
		now:          config.Now,
	}
	if len(w.queues) == 0 {
		w.queues = []string{QueueMail, QueueRetry}
	}
	if w.concurrency < 1 {
		w.concurrency = 1
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.logger == nil {
		w.logger = logging.Discard()
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Start runs the worker goroutines until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.logger.Info("starting worker", "goroutines", w.concurrency, "queues", w.queues)
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx)
	}
}

func (w *Worker) Stop() {
	w.mu.RLock()
	cancel := w.cancel
	w.mu.RUnlock()
	if cancel == nil {
		return
	}
	w.logger.Info("stopping worker")
	cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) workerLoop(ctx context.Context) {
	defer w.wg.Done()

	for ctx.Err() == nil {
		wait, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error("processing job", "err", err)
			wait = time.Second
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
		}
	}
}

// ProcessNext pops and runs at most one job. A job that is not due yet goes
// back on its queue and the returned duration says how long to back off.
func (w *Worker) ProcessNext(ctx context.Context) (time.Duration, error) {
	result, err := w.client.BLPop(ctx, w.pollInterval, w.queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return 0, fmt.Errorf("invalid job result")
	}

	queue := result[0]
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return 0, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if until := job.ProcessAt.Sub(w.now()); until > 0 {
		if err := w.enqueueJob(ctx, queue, &job); err != nil {
			return 0, err
		}
		return min(until, w.pollInterval), nil
	}

	return 0, w.executeJob(ctx, &job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		return w.moveToDeadQueue(ctx, job, fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	w.logger.Debug("processing job", "id", job.ID, "type", job.Type)

	jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := handler(jobCtx, job); err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			w.logger.Warn("job failed, retrying", "id", job.ID, "attempt", job.Attempts, "max", job.MaxTries, "err", err)
			return w.retryJob(ctx, job)
		}

		w.logger.Error("job failed permanently", "id", job.ID, "attempts", job.Attempts, "err", err)
		return w.moveToDeadQueue(ctx, job, err)
	}

	w.logger.Debug("job completed", "id", job.ID)
	return nil
}

func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	delay := time.Duration(1<<job.Attempts) * time.Minute
	job.ProcessAt = w.now().Add(delay)

	return w.enqueueJob(ctx, QueueRetry, job)
}

func (w *Worker) enqueueJob(ctx context.Context, queue string, job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return w.client.RPush(ctx, queue, jobData).Err()
}

type DeadJob struct {
	Job      *Job      `json:"original_job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job, jobErr error) error {
	deadJobData, err := json.Marshal(DeadJob{Job: job, Error: jobErr.Error(), FailedAt: w.now()})
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(ctx, QueueDead, deadJobData).Err()
}

type JobQueue struct {
	client *redis.Client
	now    func() time.Time
}

func NewJobQueue(client *redis.Client) *JobQueue {
	return &JobQueue{client: client, now: time.Now}
}

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload map[string]any) (*Job, error) {
	return q.EnqueueAt(ctx, queue, jobType, payload, q.now())
}

func (q *JobQueue) EnqueueAt(ctx context.Context, queue string, jobType JobType, payload map[string]any, processAt time.Time) (*Job, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate job id: %w", err)
	}
	job := &Job{
		ID:        id.String(),
		Type:      jobType,
		Payload:   payload,
		Attempts:  0,
		MaxTries:  DefaultMaxTries,
		CreatedAt: q.now(),
		ProcessAt: processAt,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := q.client.RPush(ctx, queue, jobData).Err(); err != nil {
		return nil, err
	}
	return job, nil
}

func (q *JobQueue) GetQueueSize(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, queue).Result()
}

// Sizes reports the length of the mail, retry and dead queues.
func (q *JobQueue) Sizes(ctx context.Context) map[string]any {
	out := make(map[string]any, 3)
	for _, name := range []string{QueueMail, QueueRetry, QueueDead} {
		n, err := q.GetQueueSize(ctx, name)
		if err != nil {
			out[name] = err.Error()
			continue
		}
		out[name] = n
	}
	return out
}
