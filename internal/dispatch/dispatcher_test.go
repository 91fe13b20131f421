package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

func TestTaskID(t *testing.T) {
	tests := []struct {
		postID int64
		want   string
	}{
		{1, "post:1"},
		{42, "post:42"},
		{9000000001, "post:9000000001"},
	}
	for _, tt := range tests {
		if got := TaskID(tt.postID); got != tt.want {
			t.Errorf("TaskID(%d) = %q, want %q", tt.postID, got, tt.want)
		}
	}
}

func TestPublishPayloadRoundTrip(t *testing.T) {
	raw, err := json.Marshal(PublishPayload{PostID: 7})
	if err != nil {
		t.Fatal(err)
	}

	var payload PublishPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.PostID != 7 {
		t.Errorf("post_id = %d, want 7", payload.PostID)
	}
}

func TestRunAt(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		due  *time.Time
		want time.Time
	}{
		{"no schedule", nil, now.Add(immediateBuffer)},
		{"future schedule", &future, future},
		{"past schedule", &past, now.Add(immediateBuffer)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runAt(now, tt.due); !got.Equal(tt.want) {
				t.Errorf("runAt = %v, want %v", got, tt.want)
			}
		})
	}
}

// fakeQueue stands in for both the asynq client and inspector and
// records the call order.
type fakeQueue struct {
	mu        sync.Mutex
	calls     []string
	deleteErr error
	tasks     []*asynq.Task
	opts      [][]asynq.Option
}

func (q *fakeQueue) DeleteTask(queue, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, "delete "+id)
	return q.deleteErr
}

func (q *fakeQueue) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, "enqueue "+optionValue(opts, asynq.TaskIDOpt).(string))
	q.tasks = append(q.tasks, task)
	q.opts = append(q.opts, opts)
	return &asynq.TaskInfo{}, nil
}

func (q *fakeQueue) Close() error { return nil }

func optionValue(opts []asynq.Option, typ asynq.OptionType) any {
	for _, opt := range opts {
		if opt.Type() == typ {
			return opt.Value()
		}
	}
	return nil
}

func newTestDispatcher(q *fakeQueue) *Dispatcher {
	return &Dispatcher{client: q, inspector: q, queue: defaultQueue}
}

func TestScheduleReplacesPendingTask(t *testing.T) {
	q := &fakeQueue{deleteErr: asynq.ErrTaskNotFound}
	d := newTestDispatcher(q)

	first := time.Now().Add(time.Hour)
	if err := d.Schedule(context.Background(), 7, &first); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// Rescheduling drops the pending job before enqueueing the new
	// fire time, so the old timer can never publish
	q.deleteErr = nil
	second := time.Now().Add(2 * time.Hour)
	if err := d.Schedule(context.Background(), 7, &second); err != nil {
		t.Fatalf("Schedule (again): %v", err)
	}

	want := []string{"delete post:7", "enqueue post:7", "delete post:7", "enqueue post:7"}
	if len(q.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", q.calls, want)
	}
	for i, call := range want {
		if q.calls[i] != call {
			t.Fatalf("calls = %v, want %v", q.calls, want)
		}
	}

	opts := q.opts[1]
	if got := optionValue(opts, asynq.ProcessAtOpt).(time.Time); !got.Equal(second) {
		t.Errorf("process_at = %v, want %v", got, second)
	}
	if got := optionValue(opts, asynq.MaxRetryOpt).(int); got != 0 {
		t.Errorf("max_retry = %d, want 0", got)
	}

	var payload PublishPayload
	if err := json.Unmarshal(q.tasks[1].Payload(), &payload); err != nil || payload.PostID != 7 {
		t.Errorf("payload = %+v, %v", payload, err)
	}
}

func TestScheduleDeleteErrorAborts(t *testing.T) {
	q := &fakeQueue{deleteErr: errors.New("redis gone")}
	d := newTestDispatcher(q)

	if err := d.Schedule(context.Background(), 7, nil); err == nil {
		t.Fatal("Schedule succeeded with the pending task still in place")
	}
	for _, call := range q.calls {
		if call == "enqueue post:7" {
			t.Error("enqueued despite the failed delete")
		}
	}
}

func TestCancelToleratesMissingTask(t *testing.T) {
	q := &fakeQueue{deleteErr: asynq.ErrTaskNotFound}
	d := newTestDispatcher(q)

	if err := d.Cancel(context.Background(), 7); err != nil {
		t.Errorf("Cancel: %v", err)
	}

	q.deleteErr = errors.New("redis gone")
	if err := d.Cancel(context.Background(), 7); err == nil {
		t.Error("Cancel swallowed a real queue error")
	}
}

type stubPublisher struct {
	mu      sync.Mutex
	err     error
	postIDs []int64
}

func (p *stubPublisher) Publish(ctx context.Context, postID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.postIDs = append(p.postIDs, postID)
	return p.err
}

func TestHandlePublishTask(t *testing.T) {
	pub := &stubPublisher{}
	w := NewWorker(pub)

	payload, _ := json.Marshal(PublishPayload{PostID: 7})
	task := asynq.NewTask(TaskTypePublishPost, payload)

	if err := w.HandlePublishTask(context.Background(), task); err != nil {
		t.Fatalf("HandlePublishTask: %v", err)
	}
	if len(pub.postIDs) != 1 || pub.postIDs[0] != 7 {
		t.Errorf("published = %v, want [7]", pub.postIDs)
	}
}

func TestHandlePublishTaskSwallowsPublishError(t *testing.T) {
	// The orchestrator records failures on the post row, so the queue
	// must not see an error and re-deliver
	pub := &stubPublisher{err: errors.New("boom")}
	w := NewWorker(pub)

	payload, _ := json.Marshal(PublishPayload{PostID: 7})
	task := asynq.NewTask(TaskTypePublishPost, payload)

	if err := w.HandlePublishTask(context.Background(), task); err != nil {
		t.Errorf("HandlePublishTask returned %v, want nil", err)
	}
}

func TestHandlePublishTaskBadPayload(t *testing.T) {
	w := NewWorker(&stubPublisher{})
	task := asynq.NewTask(TaskTypePublishPost, []byte("not json"))

	if err := w.HandlePublishTask(context.Background(), task); err == nil {
		t.Error("malformed payload accepted, want error")
	}
}
