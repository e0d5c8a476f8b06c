package repo

import (
	"context"

	"github.com/haovie/clonevideo/internal/data"
)

// TaskRepo is the registry of live tasks. It is the single source of truth
// for "is this task still alive": long-running operations treat a missing
// entry as their cancellation signal.
type TaskRepo interface {
	TaskReader
	TaskWriter
}

type TaskReader interface {
	Get(ctx context.Context, id int64) (*data.Task, error)
	// FindPending returns the task owned by userID currently parked in
	// StageInfo. Order is undefined if more than one exists; duplicate
	// suppression guarantees at most one per URL.
	FindPending(ctx context.Context, userID int64) (*data.Task, error)
}

type TaskWriter interface {
	// Create registers a new live task. It returns data.ErrDuplicate when the
	// user already has a live task for the same URL.
	Create(ctx context.Context, userID int64, url string, status data.StatusRef) (*data.Task, error)
	// SetStage moves the task forward. Illegal transitions return
	// data.ErrBadStage; a missing task returns data.ErrNotFound.
	SetStage(ctx context.Context, id int64, stage data.Stage) error
	SetAction(ctx context.Context, id int64, action data.Action) error
	AttachMetadata(ctx context.Context, id int64, meta *data.Metadata) error
	// AttachHandle records the acquired resources. Returning data.ErrNotFound
	// means a concurrent cancellation evicted the task; the caller must
	// release the handle itself.
	AttachHandle(ctx context.Context, id int64, h data.Releaser) error
	// Remove evicts the task and reports whether it was present. Evicting a
	// task twice is a safe no-op.
	Remove(ctx context.Context, id int64) bool
	// CancelAll marks every live task owned by userID as cancelled, evicts
	// them, and returns their final snapshots for the caller to finalize.
	CancelAll(ctx context.Context, userID int64) ([]*data.Task, error)
}
