package job

import (
	"log/slog"

	"github.com/gofrs/flock"
)

// runLocked executes fn only when the file lock is free. Contention
// means another process (or an overrunning previous tick) is already
// on it, so the tick is skipped instead of queueing behind it.
func runLocked(lock *flock.Flock, fn func()) {
	locked, err := lock.TryLock()
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if !locked {
		return
	}
	defer lock.Unlock()

	fn()
}
