package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"card-stock-tracker/domain"
)

// TaskFunc executes one job. Args are positional, encoded at enqueue time
// and decoded by the task itself.
type TaskFunc func(ctx context.Context, args []json.RawMessage) error

// TaskRegistry maps symbolic task ids to callables. It is constructed and
// injected into each process role at startup rather than living as
// package-level state, so roles stay independently testable.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]TaskFunc
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]TaskFunc)}
}

func (r *TaskRegistry) Register(taskID string, fn TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[taskID]; exists {
		log.Printf("task id %q is being re-registered; this may be unintentional", taskID)
	}
	r.tasks[taskID] = fn
}

func (r *TaskRegistry) Resolve(taskID string) (TaskFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tasks[taskID]
	return fn, ok
}

// JobQueue is the distributed queue jobs are forwarded to.
type JobQueue interface {
	SendMessage(ctx context.Context, queueURL string, body []byte) error
}

// Dispatcher resolves task ids against the registry and forwards jobs to
// the queue. Queuing failures never propagate to the caller.
type Dispatcher struct {
	registry *TaskRegistry
	queue    JobQueue
	queueURL string
}

func NewDispatcher(registry *TaskRegistry, queue JobQueue, queueURL string) *Dispatcher {
	return &Dispatcher{registry: registry, queue: queue, queueURL: queueURL}
}

// Enqueue queues a task by id. An unknown task id logs an error and
// returns without enqueueing anything.
func (d *Dispatcher) Enqueue(ctx context.Context, taskID string, args ...interface{}) {
	if _, ok := d.registry.Resolve(taskID); !ok {
		log.Printf("attempted to queue unknown task with id %q", taskID)
		return
	}

	encoded := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			log.Printf("failed to encode argument for task %q: %v", taskID, err)
			return
		}
		encoded = append(encoded, raw)
	}

	job := domain.JobDescriptor{
		ID:     uuid.NewString(),
		TaskID: taskID,
		Args:   encoded,
	}
	body, err := json.Marshal(job)
	if err != nil {
		log.Printf("failed to encode job for task %q: %v", taskID, err)
		return
	}

	if err := d.queue.SendMessage(ctx, d.queueURL, body); err != nil {
		log.Printf("failed to queue task %q: %v", taskID, err)
		return
	}
	log.Printf("queued task %q (job %s)", taskID, job.ID)
}

// ScheduleGuard claims recurring job ids so a restart cannot register the
// same schedule twice. MarkScheduled reports whether the claim is new.
type ScheduleGuard interface {
	SAdd(ctx context.Context, key string, member string) (int64, error)
	SRem(ctx context.Context, key string, member string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RecurringScheduler layers interval jobs on top of the dispatcher. Job
// ids are claimed in a shared Redis set; a claim that already exists makes
// ScheduleEvery a no-op. The claim key expires so a crashed scheduler's
// claims lapse instead of orphaning the schedule forever.
type RecurringScheduler struct {
	dispatcher *Dispatcher
	guard      ScheduleGuard
	claimTTL   time.Duration

	mu      sync.Mutex
	claimed []string
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	runCtx  context.Context
}

func NewRecurringScheduler(dispatcher *Dispatcher, guard ScheduleGuard, claimTTL time.Duration) *RecurringScheduler {
	if claimTTL <= 0 {
		claimTTL = 25 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RecurringScheduler{
		dispatcher: dispatcher,
		guard:      guard,
		claimTTL:   claimTTL,
		runCtx:     ctx,
		cancel:     cancel,
	}
}

// ScheduleEvery registers a recurring job. Re-registering an id that is
// already claimed — by this process or another — schedules nothing. The
// first enqueue happens immediately, then once per interval.
func (s *RecurringScheduler) ScheduleEvery(ctx context.Context, jobID, taskID string, interval time.Duration, args ...interface{}) {
	added, err := s.guard.SAdd(ctx, domain.RedisKeyScheduledJobs, jobID)
	if err != nil {
		log.Printf("failed to claim scheduled job %q: %v", jobID, err)
		return
	}
	if added == 0 {
		log.Printf("job %q is already scheduled; skipping", jobID)
		return
	}
	if err := s.guard.Expire(ctx, domain.RedisKeyScheduledJobs, s.claimTTL); err != nil {
		log.Printf("failed to set claim expiry for %q: %v", jobID, err)
	}

	s.mu.Lock()
	s.claimed = append(s.claimed, jobID)
	s.mu.Unlock()

	log.Printf("scheduling job %q (task %q) every %s", jobID, taskID, interval)
	s.wg.Add(1)
	go s.run(jobID, taskID, interval, args)
}

func (s *RecurringScheduler) run(jobID, taskID string, interval time.Duration, args []interface{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.dispatcher.Enqueue(s.runCtx, taskID, args...)
	for {
		select {
		case <-ticker.C:
			s.dispatcher.Enqueue(s.runCtx, taskID, args...)
			if err := s.guard.Expire(s.runCtx, domain.RedisKeyScheduledJobs, s.claimTTL); err != nil {
				log.Printf("failed to refresh claim expiry for %q: %v", jobID, err)
			}
		case <-s.runCtx.Done():
			return
		}
	}
}

// Stop cancels the tickers and releases this process's claims so a later
// restart can re-register them.
func (s *RecurringScheduler) Stop(ctx context.Context) {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	claimed := s.claimed
	s.claimed = nil
	s.mu.Unlock()

	for _, jobID := range claimed {
		if err := s.guard.SRem(ctx, domain.RedisKeyScheduledJobs, jobID); err != nil {
			log.Printf("failed to release scheduled job claim %q: %v", jobID, err)
		}
	}
}
