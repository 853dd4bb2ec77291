package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"card-stock-tracker/domain"
	"card-stock-tracker/repositories"
)

const (
	defaultReceiveWait    = int32(20)
	defaultReceiveBackoff = 5 * time.Second
)

// WorkerService pulls job descriptors off the queue one at a time and
// runs the registered task for each. A message is only deleted once its
// outcome is known; jobs interrupted by shutdown are left on the queue
// so its redelivery brings them back.
type WorkerService struct {
	registry       *TaskRegistry
	queue          repositories.SQSClient
	queueURL       string
	publisher      Publisher
	receiveWait    int32
	receiveBackoff time.Duration
}

type WorkerOption func(*WorkerService)

// WithReceiveWait sets the long-poll wait passed to the queue.
func WithReceiveWait(seconds int32) WorkerOption {
	return func(w *WorkerService) {
		if seconds > 0 {
			w.receiveWait = seconds
		}
	}
}

// WithReceiveBackoff sets the pause after a failed receive.
func WithReceiveBackoff(d time.Duration) WorkerOption {
	return func(w *WorkerService) {
		if d > 0 {
			w.receiveBackoff = d
		}
	}
}

func NewWorkerService(registry *TaskRegistry, queue repositories.SQSClient, queueURL string, publisher Publisher, opts ...WorkerOption) *WorkerService {
	w := &WorkerService{
		registry:       registry,
		queue:          queue,
		queueURL:       queueURL,
		publisher:      publisher,
		receiveWait:    defaultReceiveWait,
		receiveBackoff: defaultReceiveBackoff,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls the queue until the context is cancelled.
func (w *WorkerService) Run(ctx context.Context) {
	log.Printf("worker started, polling %s", w.queueURL)
	for {
		if ctx.Err() != nil {
			log.Println("worker stopping")
			return
		}

		out, err := w.queue.ReceiveMessages(ctx, w.queueURL, 1, w.receiveWait)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("worker stopping")
				return
			}
			log.Printf("failed to receive job: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.receiveBackoff):
			}
			continue
		}

		for _, msg := range out.Messages {
			w.processMessage(ctx, msg)
		}
	}
}

func (w *WorkerService) processMessage(ctx context.Context, msg types.Message) {
	body := ""
	if msg.Body != nil {
		body = *msg.Body
	}

	var job domain.JobDescriptor
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		log.Printf("discarding undecodable job message: %v", err)
		w.deleteMessage(msg)
		return
	}

	task, ok := w.registry.Resolve(job.TaskID)
	if !ok {
		log.Printf("discarding job %s: unknown task %q", job.ID, job.TaskID)
		w.deleteMessage(msg)
		return
	}

	log.Printf("running job %s (task %q)", job.ID, job.TaskID)
	err := task(ctx, job.Args)
	if err != nil && ctx.Err() != nil {
		// Interrupted mid-job. Leave the message in place so the queue
		// redelivers it, and tell the result channel what happened.
		w.publishRetryNotice(job)
		return
	}
	if err != nil {
		log.Printf("job %s (task %q) failed: %v", job.ID, job.TaskID, err)
	} else {
		log.Printf("job %s (task %q) finished", job.ID, job.TaskID)
	}
	w.deleteMessage(msg)
}

func (w *WorkerService) publishRetryNotice(job domain.JobDescriptor) {
	// The worker context is already cancelled at this point.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := domain.JobRetryNoticePayload{JobID: job.ID, TaskID: job.TaskID}
	if err := PublishMessage(ctx, w.publisher, domain.ChannelWorkerResults, domain.MsgJobRetryNotice, payload); err != nil {
		log.Printf("failed to publish retry notice for job %s: %v", job.ID, err)
	}
	log.Printf("job %s (task %q) interrupted, left on queue for redelivery", job.ID, job.TaskID)
}

func (w *WorkerService) deleteMessage(msg types.Message) {
	// Deletion must not be tied to the worker's shutdown context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.queue.DeleteMessage(ctx, w.queueURL, msg.ReceiptHandle); err != nil {
		log.Printf("failed to delete job message: %v", err)
	}
}
