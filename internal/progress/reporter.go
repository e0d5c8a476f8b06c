// Package progress edits task status messages with throttled transfer
// updates.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haovie/clonevideo/internal/data"
	"github.com/haovie/clonevideo/internal/repo"
	"github.com/haovie/clonevideo/internal/transport"
	"github.com/haovie/clonevideo/internal/urlutil"
)

const barWidth = 20

// Reporter renders transfer progress into a task's status message. Each call
// also checks that the task is still registered: a vanished task means the
// user cancelled, and Report returns data.ErrCancelled so the caller can
// abort the transfer.
type Reporter struct {
	tasks     repo.TaskReader
	transport transport.Transport
	interval  time.Duration
	log       *slog.Logger

	mu   sync.Mutex
	last map[int64]time.Time
}

func NewReporter(tasks repo.TaskReader, tr transport.Transport, interval time.Duration, log *slog.Logger) *Reporter {
	return &Reporter{
		tasks:     tasks,
		transport: tr,
		interval:  interval,
		log:       log,
		last:      make(map[int64]time.Time),
	}
}

// Report updates the status message with a progress bar. Edits are throttled
// per task; transport failures are logged and swallowed so a flaky edit never
// kills a transfer. The returned error is non-nil only when the task has been
// cancelled.
func (r *Reporter) Report(ctx context.Context, taskID int64, ref data.StatusRef, label string, done, total int64) error {
	if _, err := r.tasks.Get(ctx, taskID); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return data.ErrCancelled
		}
		return nil
	}

	if !r.due(taskID) {
		return nil
	}

	text := fmt.Sprintf("%s\n%s\n%s of %s",
		label,
		urlutil.ProgressBar(done, total, barWidth),
		urlutil.FormatSize(done),
		urlutil.FormatSize(total),
	)
	if err := r.transport.EditMessage(ctx, ref, text); err != nil {
		r.log.Debug("progress edit failed", "task", taskID, "err", err)
	}
	return nil
}

// Forget drops the throttle state for a finished task.
func (r *Reporter) Forget(taskID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, taskID)
}

func (r *Reporter) due(taskID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if t, ok := r.last[taskID]; ok && now.Sub(t) < r.interval {
		return false
	}
	r.last[taskID] = now
	return true
}
