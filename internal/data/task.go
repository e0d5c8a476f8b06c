package data

import (
	"errors"
	"time"
)

// Task is one user-initiated media-acquisition job tracked by the registry.
// A task is created when a user posts a URL, parks in StageInfo once metadata
// arrives, and only proceeds when the user issues a follow-up command.
type Task struct {
	ID        int64
	UserID    int64
	URL       string
	Stage     Stage
	Action    Action
	Status    StatusRef
	Meta      *Metadata
	Handle    Releaser
	CreatedAt time.Time
}

// StatusRef identifies the status message a task edits with progress updates.
type StatusRef struct {
	ChatID    int64
	MessageID int
}

// Metadata holds what the fetcher learned about a URL before download.
type Metadata struct {
	Title           string
	Uploader        string
	DurationSeconds int
	EstimatedBytes  int64
	Description     string
}

// Releaser frees externally acquired resources attached to a task. Release
// must be safe to call more than once.
type Releaser interface {
	Release() error
}

var (
	ErrNotFound      = errors.New("task not found")
	ErrDuplicate     = errors.New("task already exists for user and url")
	ErrCancelled     = errors.New("task cancelled")
	ErrBadStage      = errors.New("invalid stage transition")
	ErrNotSlideshow  = errors.New("source is not a photo slideshow")
	ErrSlideshowOnly = errors.New("source requires a photo command")
	ErrValidation    = errors.New("invalid command argument")
	ErrAcquisition   = errors.New("media acquisition failed")
	ErrTransfer      = errors.New("transfer failed")
)

// Clone returns a deep copy of the task. The Handle is shared: releasing it
// through any copy releases the underlying resources.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Meta != nil {
		m := *t.Meta
		c.Meta = &m
	}
	return &c
}
