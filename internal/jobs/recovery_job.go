package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/repository"
)

// RecoveryJob closes out posts that a crashed worker left in
// `publishing`. Platform info recorded before the crash stays on the
// row, so a later retry skips what already went out. The sweep runs
// under the shared skip-on-contention file lock.
type RecoveryJob struct {
	pr      repository.PostRepository
	timeout time.Duration
	lock    *flock.Flock
}

func NewRecoveryJob(pr repository.PostRepository, timeout time.Duration, lockPath string) *RecoveryJob {
	return &RecoveryJob{pr: pr, timeout: timeout, lock: flock.New(lockPath)}
}

func (c *RecoveryJob) Run() {
	runLocked(c.lock, c.sweep)
}

func (c *RecoveryJob) sweep() {
	ctx := context.Background()
	cutoff := time.Now().Add(-c.timeout)

	posts, err := c.pr.ListStuckPublishing(ctx, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, post := range posts {
		msg := "publish interrupted"
		if post.ErrorMessage != "" {
			msg = post.ErrorMessage + " | " + msg
		}
		if err := c.pr.FinishPublish(ctx, post.ID, models.PostStatusFailed, msg, nil); err != nil {
			slog.Info(err.Error())
			continue
		}
		slog.Info("recovered stuck post", "post_id", post.ID)
	}
}
