package repo

import (
	"context"
	"sync"
	"time"

	"github.com/haovie/clonevideo/internal/data"
)

// InMemoryTaskRepo is a mutex-guarded task registry. Identifiers increase
// monotonically and are unique for the process lifetime. All methods are
// atomic with respect to each other; readers always observe either the pre-
// or post-state of a concurrent Remove, never a partial one.
type InMemoryTaskRepo struct {
	mu     sync.RWMutex
	tasks  map[int64]*data.Task
	nextID int64
}

func NewInMemoryTaskRepo() *InMemoryTaskRepo {
	return &InMemoryTaskRepo{
		tasks:  make(map[int64]*data.Task),
		nextID: 1,
	}
}

var _ TaskRepo = (*InMemoryTaskRepo)(nil)

func (r *InMemoryTaskRepo) Create(ctx context.Context, userID int64, url string, status data.StatusRef) (*data.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.UserID == userID && t.URL == url {
			return nil, data.ErrDuplicate
		}
	}
	t := &data.Task{
		ID:        r.nextID,
		UserID:    userID,
		URL:       url,
		Stage:     data.StageInfo,
		Status:    status,
		CreatedAt: time.Now(),
	}
	r.nextID++
	r.tasks[t.ID] = t
	return t.Clone(), nil
}

func (r *InMemoryTaskRepo) Get(ctx context.Context, id int64) (*data.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	return t.Clone(), nil
}

func (r *InMemoryTaskRepo) FindPending(ctx context.Context, userID int64) (*data.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tasks {
		if t.UserID == userID && t.Stage == data.StageInfo {
			return t.Clone(), nil
		}
	}
	return nil, data.ErrNotFound
}

func (r *InMemoryTaskRepo) SetStage(ctx context.Context, id int64, stage data.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return data.ErrNotFound
	}
	if !data.CanTransition(t.Stage, stage) {
		return data.ErrBadStage
	}
	t.Stage = stage
	return nil
}

func (r *InMemoryTaskRepo) SetAction(ctx context.Context, id int64, action data.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return data.ErrNotFound
	}
	t.Action = action
	return nil
}

func (r *InMemoryTaskRepo) AttachMetadata(ctx context.Context, id int64, meta *data.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return data.ErrNotFound
	}
	t.Meta = meta
	return nil
}

func (r *InMemoryTaskRepo) AttachHandle(ctx context.Context, id int64, h data.Releaser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return data.ErrNotFound
	}
	t.Handle = h
	return nil
}

func (r *InMemoryTaskRepo) Remove(ctx context.Context, id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	delete(r.tasks, id)
	return ok
}

func (r *InMemoryTaskRepo) CancelAll(ctx context.Context, userID int64) ([]*data.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*data.Task
	for id, t := range r.tasks {
		if t.UserID != userID {
			continue
		}
		t.Stage = data.StageCancelled
		out = append(out, t.Clone())
		delete(r.tasks, id)
	}
	return out, nil
}
