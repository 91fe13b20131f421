package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/platform"
	"github.com/postline/postline/internal/repository"
	"github.com/postline/postline/internal/service"
)

// sweepWindow is wider than the publish-time margin so scheduled
// publishes rarely pay refresh latency themselves.
const sweepWindow = 30 * time.Minute

// TokenRefreshJob sweeps credentials nearing expiry. The file lock
// keeps a second process out: VK ID rotates refresh tokens on every
// exchange, so two concurrent sweeps would race each other with the
// same single-use token and the loser invalidates the session.
type TokenRefreshJob struct {
	cr   repository.CredentialsRepository
	ts   service.TokenService
	lock *flock.Flock
}

func NewTokenRefreshJob(cr repository.CredentialsRepository, ts service.TokenService, lockPath string) *TokenRefreshJob {
	return &TokenRefreshJob{cr: cr, ts: ts, lock: flock.New(lockPath)}
}

func (c *TokenRefreshJob) RefreshTokens() {
	runLocked(c.lock, c.refreshTokens)
}

func (c *TokenRefreshJob) refreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	windowEnd := currentTime.Add(sweepWindow)

	list, err := c.cr.ListExpiring(ctx, currentTime, windowEnd)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, creds := range list {

		wg.Add(1)
		semaphore <- struct{}{}

		go func(creds *models.Credentials) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if creds.VkTokenExpiresAt != nil && creds.VkTokenExpiresAt.Before(windowEnd) {
				if err := c.ts.EnsureFresh(ctx, creds.ProjectID, platform.VK, sweepWindow); err != nil {
					slog.Info("unable to refresh vk token", "project_id", creds.ProjectID)
				}
			}

			if creds.OkTokenExpiresAt != nil && creds.OkTokenExpiresAt.Before(windowEnd) {
				if err := c.ts.EnsureFresh(ctx, creds.ProjectID, platform.OK, sweepWindow); err != nil {
					slog.Info("unable to refresh ok token", "project_id", creds.ProjectID)
				}
			}
		}(creds)
	}

	wg.Wait()
}
