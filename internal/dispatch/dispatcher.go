package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypePublishPost is the queue task type for publish fan-outs.
	TaskTypePublishPost = "post:publish"

	defaultQueue = "default"

	// immediateBuffer delays null-schedule posts slightly so the
	// immediate path and the scheduled path share the same worker.
	immediateBuffer = 2 * time.Second
)

type PublishPayload struct {
	PostID int64 `json:"post_id"`
}

// TaskID derives the deterministic queue id for a post. One post has
// at most one pending job.
func TaskID(postID int64) string {
	return fmt.Sprintf("post:%d", postID)
}

// runAt picks the fire time. A missing or already-passed schedule
// still goes through the queue after a short buffer, so the immediate
// path and the scheduled path share one worker.
func runAt(now time.Time, due *time.Time) time.Time {
	at := now.Add(immediateBuffer)
	if due != nil && due.After(at) {
		at = *due
	}
	return at
}

type taskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type taskRemover interface {
	DeleteTask(queue, id string) error
	Close() error
}

// Dispatcher schedules publish jobs on the Redis-backed queue with
// replace-on-reschedule semantics.
type Dispatcher struct {
	client    taskEnqueuer
	inspector taskRemover
	queue     string
}

func NewDispatcher(redis asynq.RedisClientOpt) *Dispatcher {
	return &Dispatcher{
		client:    asynq.NewClient(redis),
		inspector: asynq.NewInspector(redis),
		queue:     defaultQueue,
	}
}

// Schedule enqueues the publish job for a post. Any pending job with
// the same task id is dropped first, so rescheduling replaces the old
// fire time and a stale timer can never publish.
func (d *Dispatcher) Schedule(ctx context.Context, postID int64, due *time.Time) error {
	id := TaskID(postID)

	if err := d.inspector.DeleteTask(d.queue, id); err != nil &&
		!errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		return fmt.Errorf("drop pending task %s: %w", id, err)
	}

	at := runAt(time.Now(), due)

	payload, err := json.Marshal(PublishPayload{PostID: postID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, payload)
	_, err = d.client.Enqueue(task,
		asynq.Queue(d.queue),
		asynq.TaskID(id),
		asynq.ProcessAt(at),
		asynq.MaxRetry(0),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", id, err)
	}

	slog.Info("publish scheduled", "post_id", postID, "run_at", at)
	return nil
}

// Cancel drops the pending job for a post, if any.
func (d *Dispatcher) Cancel(ctx context.Context, postID int64) error {
	err := d.inspector.DeleteTask(d.queue, TaskID(postID))
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return fmt.Errorf("cancel task %s: %w", TaskID(postID), err)
}

func (d *Dispatcher) Close() error {
	if err := d.inspector.Close(); err != nil {
		slog.Info(err.Error())
	}
	return d.client.Close()
}
