// Package service owns task lifecycle policy: when a task may advance, what
// runs at each stage, and how resources are reclaimed on every exit path.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/haovie/clonevideo/internal/data"
	"github.com/haovie/clonevideo/internal/enhancer"
	"github.com/haovie/clonevideo/internal/media"
	"github.com/haovie/clonevideo/internal/metrics"
	"github.com/haovie/clonevideo/internal/repo"
	"github.com/haovie/clonevideo/internal/transport"
	"github.com/haovie/clonevideo/internal/urlutil"
)

// ProgressReporter receives transfer progress and reports cancellation.
type ProgressReporter interface {
	Report(ctx context.Context, taskID int64, ref data.StatusRef, label string, done, total int64) error
	Forget(taskID int64)
}

// Prober inspects a finished video for upload attributes.
type Prober interface {
	Probe(ctx context.Context, path string) (enhancer.VideoInfo, error)
}

// Supervisor drives tasks through their stages. Creation parks a task in the
// Info stage; a follow-up command moves it through Download and Upload in a
// background goroutine that watches the registry and aborts as soon as the
// task disappears.
type Supervisor struct {
	tasks     repo.TaskRepo
	fetcher   media.Fetcher
	transport transport.Transport
	progress  ProgressReporter
	prober    Prober
	broadcast transport.Destination
	log       *slog.Logger

	watchInterval time.Duration
	wg            sync.WaitGroup
}

func NewSupervisor(tasks repo.TaskRepo, fetcher media.Fetcher, tr transport.Transport, progress ProgressReporter, prober Prober, broadcast transport.Destination, log *slog.Logger) *Supervisor {
	return &Supervisor{
		tasks:         tasks,
		fetcher:       fetcher,
		transport:     tr,
		progress:      progress,
		prober:        prober,
		broadcast:     broadcast,
		log:           log,
		watchInterval: 500 * time.Millisecond,
	}
}

// Wait blocks until all background task goroutines have finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// ProcessURL registers a task for the URL and starts the metadata probe in
// the background. The status message is edited with a summary once metadata
// arrives, after which the task stays parked until the user issues a command.
// Returns data.ErrDuplicate when the user already has a live task for the
// same URL.
func (s *Supervisor) ProcessURL(ctx context.Context, userID int64, url string, status data.StatusRef) (*data.Task, error) {
	task, err := s.tasks.Create(ctx, userID, url, status)
	if err != nil {
		return nil, err
	}
	metrics.TaskEvents.WithLabelValues(string(data.StageInfo)).Inc()
	metrics.ActiveTasks.Inc()
	s.log.Info("task created", "task", task.ID, "user", userID, "url", url)

	s.wg.Add(1)
	go s.fetchInfo(task)
	return task, nil
}

func (s *Supervisor) fetchInfo(task *data.Task) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	meta, err := s.fetcher.GetMetadata(ctx, task.URL)
	metrics.FetchLatency.WithLabelValues("metadata").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchErrors.WithLabelValues("metadata").Inc()
		s.log.Error("metadata probe failed", "task", task.ID, "err", err)
		s.editStatus(task.Status, "❌ Could not fetch media info for this link.")
		s.evict(task.ID, data.StageFailed)
		return
	}

	if err := s.tasks.AttachMetadata(ctx, task.ID, meta); err != nil {
		// Cancelled while probing.
		return
	}
	s.editStatus(task.Status, summaryText(task.URL, meta))
}

// summaryText renders the parked-task prompt shown once metadata arrives.
func summaryText(url string, meta *data.Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎬 %s\n", meta.Title)
	if meta.Uploader != "" {
		fmt.Fprintf(&b, "👤 %s\n", meta.Uploader)
	}
	if meta.DurationSeconds > 0 {
		fmt.Fprintf(&b, "⏱ %s\n", urlutil.FormatDuration(meta.DurationSeconds))
	}
	fmt.Fprintf(&b, "💾 ~%s\n", urlutil.FormatSize(meta.EstimatedBytes))
	if p := urlutil.Platform(url); p != "" {
		fmt.Fprintf(&b, "🌐 %s\n", p)
	}
	if urlutil.IsSlideshow(url) {
		b.WriteString("\nThis is a photo slideshow. Use /down_photos or /fowd_photos.")
	} else {
		b.WriteString("\nUse /download to receive it here or /forward to post it.")
	}
	return b.String()
}

// Advance takes the user's parked task into the download stage with the given
// action. It returns data.ErrNotFound when the user has no parked task,
// data.ErrNotSlideshow when a photo action targets a plain video, and
// data.ErrSlideshowOnly when a video action targets a slideshow.
func (s *Supervisor) Advance(ctx context.Context, userID int64, action data.Action) (*data.Task, error) {
	task, err := s.tasks.FindPending(ctx, userID)
	if err != nil {
		return nil, err
	}

	slideshow := urlutil.IsSlideshow(task.URL)
	if action.PhotosOnly() && !slideshow {
		return nil, data.ErrNotSlideshow
	}
	if !action.PhotosOnly() && slideshow {
		return nil, data.ErrSlideshowOnly
	}

	if err := s.tasks.SetAction(ctx, task.ID, action); err != nil {
		return nil, err
	}
	if err := s.tasks.SetStage(ctx, task.ID, data.StageDownload); err != nil {
		return nil, err
	}
	task.Action = action
	task.Stage = data.StageDownload
	metrics.TaskEvents.WithLabelValues(string(data.StageDownload)).Inc()
	s.log.Info("task advancing", "task", task.ID, "action", action)

	s.wg.Add(1)
	go s.run(task)
	return task, nil
}

// run executes the download and upload stages. The context it passes to the
// fetcher and transport is cancelled by the watcher the moment the task
// leaves the registry, so external tools die promptly on /cancel.
func (s *Supervisor) run(task *data.Task) {
	defer s.wg.Done()
	defer s.progress.Forget(task.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.watch(ctx, cancel, task.ID)

	s.editStatus(task.Status, "⬇️ Downloading...")

	handle, err := s.acquire(ctx, task)
	if err != nil {
		if s.cancelled(ctx, err) {
			s.log.Info("task cancelled during download", "task", task.ID)
			return
		}
		s.log.Error("acquisition failed", "task", task.ID, "err", err)
		s.editStatus(task.Status, "❌ Download failed.")
		s.evict(task.ID, data.StageFailed)
		return
	}

	// From here every exit path releases the handle.
	defer handle.Release()

	if err := s.tasks.AttachHandle(ctx, task.ID, handle); err != nil {
		// The task was cancelled between download and attach; the registry
		// no longer owns the handle, so this goroutine cleans up.
		s.log.Info("task vanished before handle attach", "task", task.ID)
		return
	}
	if err := s.tasks.SetStage(ctx, task.ID, data.StageUpload); err != nil {
		return
	}
	metrics.TaskEvents.WithLabelValues(string(data.StageUpload)).Inc()

	if err := s.deliver(ctx, task, handle); err != nil {
		if s.cancelled(ctx, err) {
			s.log.Info("task cancelled during upload", "task", task.ID)
			return
		}
		s.log.Error("delivery failed", "task", task.ID, "err", err)
		s.editStatus(task.Status, "❌ Upload failed.")
		s.evict(task.ID, data.StageFailed)
		return
	}

	s.editStatus(task.Status, "✅ Done.")
	metrics.TaskEvents.WithLabelValues(string(data.StageDone)).Inc()
	s.evict(task.ID, data.StageDone)
}

func (s *Supervisor) acquire(ctx context.Context, task *data.Task) (*media.Handle, error) {
	start := time.Now()
	var (
		handle *media.Handle
		err    error
		op     string
	)
	if task.Action.PhotosOnly() {
		op = "photos"
		handle, err = s.fetcher.AcquirePhotoSet(ctx, task.URL)
	} else {
		op = "video"
		handle, err = s.fetcher.Acquire(ctx, task.URL)
	}
	metrics.FetchLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, data.ErrCancelled) {
		metrics.FetchErrors.WithLabelValues(op).Inc()
	}
	return handle, err
}

func (s *Supervisor) deliver(ctx context.Context, task *data.Task, handle *media.Handle) error {
	dest := transport.User(task.UserID)
	if task.Action.Broadcast() {
		dest = s.broadcast
	}
	caption := ""
	if task.Meta != nil {
		caption = task.Meta.Title
	}

	if task.Action.PhotosOnly() {
		return s.deliverPhotos(ctx, task, handle.Files, dest, caption)
	}
	return s.deliverVideo(ctx, task, handle.Files[0], dest, caption)
}

func (s *Supervisor) deliverVideo(ctx context.Context, task *data.Task, path string, dest transport.Destination, caption string) error {
	opts := transport.SendFileOptions{
		Caption: caption,
		Progress: func(sent, total int64) error {
			return s.progress.Report(ctx, task.ID, task.Status, "⬆️ Uploading...", sent, total)
		},
	}
	if info, err := s.prober.Probe(ctx, path); err == nil {
		opts.Attrs = transport.FileAttrs{
			Width:           info.Width,
			Height:          info.Height,
			DurationSeconds: info.DurationSeconds,
		}
	}
	return s.transport.SendVideo(ctx, dest, path, opts)
}

func (s *Supervisor) deliverPhotos(ctx context.Context, task *data.Task, paths []string, dest transport.Destination, caption string) error {
	for i := 0; i < len(paths); i += transport.AlbumLimit {
		// A /cancel between chunks must stop the remainder.
		if _, err := s.tasks.Get(ctx, task.ID); err != nil {
			return data.ErrCancelled
		}
		end := i + transport.AlbumLimit
		if end > len(paths) {
			end = len(paths)
		}
		chunkCaption := ""
		if i == 0 {
			chunkCaption = caption
		}
		if err := s.transport.SendPhotoAlbum(ctx, dest, paths[i:end], chunkCaption); err != nil {
			return err
		}
	}
	return nil
}

// Cancel evicts every live task the user owns, releases their resources, and
// marks their status messages. It reports how many tasks were cancelled and
// never fails.
func (s *Supervisor) Cancel(ctx context.Context, userID int64) int {
	snapshots, err := s.tasks.CancelAll(ctx, userID)
	if err != nil || len(snapshots) == 0 {
		return 0
	}
	for _, task := range snapshots {
		metrics.ActiveTasks.Dec()
		metrics.TaskEvents.WithLabelValues(string(data.StageCancelled)).Inc()
		s.progress.Forget(task.ID)
		if task.Handle != nil {
			if err := task.Handle.Release(); err != nil {
				s.log.Warn("release after cancel failed", "task", task.ID, "err", err)
			}
		}
		s.editStatus(task.Status, "🚫 Cancelled.")
		s.log.Info("task cancelled", "task", task.ID, "user", userID)
	}
	return len(snapshots)
}

// watch polls the registry and cancels the stage context once the task is
// gone. Registry membership is the single cancellation signal: /cancel only
// has to evict the task.
func (s *Supervisor) watch(ctx context.Context, cancel context.CancelFunc, taskID int64) {
	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.tasks.Get(ctx, taskID); errors.Is(err, data.ErrNotFound) {
				cancel()
				return
			}
		}
	}
}

func (s *Supervisor) cancelled(ctx context.Context, err error) bool {
	return errors.Is(err, data.ErrCancelled) || ctx.Err() != nil
}

// evict removes the task and keeps the gauge honest. Remove is idempotent so
// a racing /cancel cannot double-decrement.
func (s *Supervisor) evict(taskID int64, final data.Stage) {
	if s.tasks.Remove(context.Background(), taskID) {
		metrics.ActiveTasks.Dec()
	}
	if final == data.StageFailed {
		metrics.TaskEvents.WithLabelValues(string(data.StageFailed)).Inc()
	}
}

func (s *Supervisor) editStatus(ref data.StatusRef, text string) {
	if err := s.transport.EditMessage(context.Background(), ref, text); err != nil {
		s.log.Debug("status edit failed", "chat", ref.ChatID, "message", ref.MessageID, "err", err)
	}
}
