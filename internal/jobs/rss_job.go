package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/postline/postline/internal/service"
)

// RSSJob runs one ingestion pass per tick under the shared
// skip-on-contention file lock.
type RSSJob struct {
	svc  service.RSSService
	lock *flock.Flock
}

func NewRSSJob(svc service.RSSService, lockPath string) *RSSJob {
	return &RSSJob{
		svc:  svc,
		lock: flock.New(lockPath),
	}
}

func (j *RSSJob) Run() {
	runLocked(j.lock, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := j.svc.IngestAll(ctx); err != nil {
			slog.Info(err.Error())
		}
	})
}
