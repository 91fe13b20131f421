package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/postline/postline/internal/service"
)

// Worker connects the queue to the publish orchestrator.
type Worker struct {
	publisher service.Publisher
}

func NewWorker(publisher service.Publisher) *Worker {
	return &Worker{publisher: publisher}
}

func (w *Worker) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode publish payload: %w", err)
	}

	// The orchestrator writes the terminal status itself; the queue
	// never re-delivers
	if err := w.publisher.Publish(ctx, payload.PostID); err != nil {
		slog.Error(err.Error())
	}

	return nil
}
