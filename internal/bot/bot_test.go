package bot

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/haovie/clonevideo/internal/authstore"
	"github.com/haovie/clonevideo/internal/data"
	"github.com/haovie/clonevideo/internal/transport"
)

type stubSupervisor struct {
	processed  []string
	processErr error
	advances   []data.Action
	advanceErr error
	cancelled  int
}

func (s *stubSupervisor) ProcessURL(ctx context.Context, userID int64, url string, status data.StatusRef) (*data.Task, error) {
	if s.processErr != nil {
		return nil, s.processErr
	}
	s.processed = append(s.processed, url)
	return &data.Task{ID: 1, UserID: userID, URL: url, Status: status}, nil
}

func (s *stubSupervisor) Advance(ctx context.Context, userID int64, action data.Action) (*data.Task, error) {
	if s.advanceErr != nil {
		return nil, s.advanceErr
	}
	s.advances = append(s.advances, action)
	return &data.Task{ID: 1}, nil
}

func (s *stubSupervisor) Cancel(ctx context.Context, userID int64) int {
	return s.cancelled
}

type stubTransport struct {
	messages []string
	deleted  []data.StatusRef
	edits    []string
}

func (t *stubTransport) SendMessage(ctx context.Context, dest transport.Destination, text string) (int, error) {
	t.messages = append(t.messages, text)
	return 100 + len(t.messages), nil
}

func (t *stubTransport) EditMessage(ctx context.Context, ref data.StatusRef, text string) error {
	t.edits = append(t.edits, text)
	return nil
}

func (t *stubTransport) DeleteMessage(ctx context.Context, ref data.StatusRef) error {
	t.deleted = append(t.deleted, ref)
	return nil
}

func (t *stubTransport) SendVideo(ctx context.Context, dest transport.Destination, path string, opts transport.SendFileOptions) error {
	return nil
}

func (t *stubTransport) SendPhotoAlbum(ctx context.Context, dest transport.Destination, paths []string, caption string) error {
	return nil
}

func (t *stubTransport) lastMessage() string {
	if len(t.messages) == 0 {
		return ""
	}
	return t.messages[len(t.messages)-1]
}

const adminID = int64(99)

func newTestBot(t *testing.T, sup Supervisor) (*Bot, *stubTransport, *authstore.Authorizer) {
	t.Helper()
	tr := &stubTransport{}
	store := authstore.NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	auth := authstore.NewAuthorizer(adminID, authstore.Source{}, store)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := New(nil, tr, sup, auth, transport.Destination{ChatID: -500}, log)
	return b, tr, auth
}

func textUpdate(userID, chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text:      text,
	}}
}

func commandUpdate(userID, chatID int64, text string) tgbotapi.Update {
	u := textUpdate(userID, chatID, text)
	cmdLen := len(text)
	if i := strings.IndexByte(text, ' '); i > 0 {
		cmdLen = i
	}
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}}
	return u
}

func TestURLMessageCreatesTask(t *testing.T) {
	sup := &stubSupervisor{}
	b, tr, auth := newTestBot(t, sup)
	auth.Add(context.Background(), 10)

	b.processUpdate(context.Background(), textUpdate(10, 10, "look https://vimeo.com/1 and https://vimeo.com/2"))

	if len(sup.processed) != 1 || sup.processed[0] != "https://vimeo.com/1" {
		t.Fatalf("expected only the first URL processed, got %v", sup.processed)
	}
	if !strings.Contains(tr.messages[0], "Fetching") {
		t.Fatalf("expected status message first, got %q", tr.messages[0])
	}
}

func TestDuplicateURLDeletesStatusSilently(t *testing.T) {
	sup := &stubSupervisor{processErr: data.ErrDuplicate}
	b, tr, auth := newTestBot(t, sup)
	auth.Add(context.Background(), 10)

	b.processUpdate(context.Background(), textUpdate(10, 10, "https://vimeo.com/1"))

	if len(tr.deleted) != 1 {
		t.Fatalf("expected status message deleted, got %v", tr.deleted)
	}
	if len(tr.edits) != 0 {
		t.Fatalf("duplicates must be silent, got edits %v", tr.edits)
	}
}

func TestUnauthorizedUserGetsID(t *testing.T) {
	sup := &stubSupervisor{}
	b, tr, _ := newTestBot(t, sup)

	b.processUpdate(context.Background(), textUpdate(10, 10, "https://vimeo.com/1"))

	if len(sup.processed) != 0 {
		t.Fatal("unauthorized user must not create tasks")
	}
	if !strings.Contains(tr.lastMessage(), "not authorized") || !strings.Contains(tr.lastMessage(), "10") {
		t.Fatalf("expected denial with user ID, got %q", tr.lastMessage())
	}
}

func TestSpamURLIgnored(t *testing.T) {
	sup := &stubSupervisor{}
	b, tr, auth := newTestBot(t, sup)
	auth.Add(context.Background(), 10)

	b.processUpdate(context.Background(), textUpdate(10, 10, "https://taphoammo.net/gian-hang/x"))

	if len(sup.processed) != 0 {
		t.Fatal("spam must not create tasks")
	}
	if !strings.Contains(tr.lastMessage(), "spam") {
		t.Fatalf("expected spam warning, got %q", tr.lastMessage())
	}
}

func TestUnsupportedSite(t *testing.T) {
	sup := &stubSupervisor{}
	b, tr, auth := newTestBot(t, sup)
	auth.Add(context.Background(), 10)

	b.processUpdate(context.Background(), textUpdate(10, 10, "https://random-blog.example/post"))

	if len(sup.processed) != 0 {
		t.Fatal("unsupported sites must not create tasks")
	}
	if !strings.Contains(tr.lastMessage(), "isn't supported") {
		t.Fatalf("unexpected reply %q", tr.lastMessage())
	}
}

func TestUnwatchedGroupIgnored(t *testing.T) {
	sup := &stubSupervisor{}
	b, tr, auth := newTestBot(t, sup)
	auth.Add(context.Background(), 10)

	u := textUpdate(10, -999, "https://vimeo.com/1")
	u.Message.Chat.Type = "group"
	b.processUpdate(context.Background(), u)

	if len(sup.processed) != 0 || len(tr.messages) != 0 {
		t.Fatal("messages in unrelated groups must be ignored")
	}
}

func TestTargetGroupWatched(t *testing.T) {
	sup := &stubSupervisor{}
	b, _, auth := newTestBot(t, sup)
	auth.Add(context.Background(), 10)

	u := textUpdate(10, -500, "https://vimeo.com/1")
	u.Message.Chat.Type = "group"
	b.processUpdate(context.Background(), u)

	if len(sup.processed) != 1 {
		t.Fatal("expected target group message to be processed")
	}
}

func TestStageCommands(t *testing.T) {
	tests := []struct {
		cmd  string
		want data.Action
	}{
		{"/download", data.ActionDeliver},
		{"/forward", data.ActionForward},
		{"/down_photos", data.ActionPhotos},
		{"/fowd_photos", data.ActionPhotosForward},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			sup := &stubSupervisor{}
			b, _, auth := newTestBot(t, sup)
			auth.Add(context.Background(), 10)

			b.processUpdate(context.Background(), commandUpdate(10, 10, tt.cmd))

			if len(sup.advances) != 1 || sup.advances[0] != tt.want {
				t.Fatalf("expected advance with %s, got %v", tt.want, sup.advances)
			}
		})
	}
}

func TestStageCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no pending", data.ErrNotFound, "No pending task"},
		{"not slideshow", data.ErrNotSlideshow, "isn't a photo slideshow"},
		{"slideshow only", data.ErrSlideshowOnly, "/down_photos"},
		{"already running", data.ErrBadStage, "already in progress"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := &stubSupervisor{advanceErr: tt.err}
			b, tr, auth := newTestBot(t, sup)
			auth.Add(context.Background(), 10)

			b.processUpdate(context.Background(), commandUpdate(10, 10, "/download"))

			if !strings.Contains(tr.lastMessage(), tt.want) {
				t.Fatalf("expected reply containing %q, got %q", tt.want, tr.lastMessage())
			}
		})
	}
}

func TestCancelCommand(t *testing.T) {
	sup := &stubSupervisor{cancelled: 2}
	b, tr, auth := newTestBot(t, sup)
	auth.Add(context.Background(), 10)

	b.processUpdate(context.Background(), commandUpdate(10, 10, "/cancel"))
	if !strings.Contains(tr.lastMessage(), "2 task(s)") {
		t.Fatalf("unexpected reply %q", tr.lastMessage())
	}

	sup.cancelled = 0
	b.processUpdate(context.Background(), commandUpdate(10, 10, "/cancel"))
	if !strings.Contains(tr.lastMessage(), "Nothing to cancel") {
		t.Fatalf("unexpected reply %q", tr.lastMessage())
	}
}

func TestGetUserIDWorksWithoutAuthorization(t *testing.T) {
	b, tr, _ := newTestBot(t, &stubSupervisor{})

	b.processUpdate(context.Background(), commandUpdate(55, 55, "/get_user_id"))
	if !strings.Contains(tr.lastMessage(), "55") {
		t.Fatalf("expected ID in reply, got %q", tr.lastMessage())
	}
}

func TestAdminCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("add and list", func(t *testing.T) {
		b, tr, auth := newTestBot(t, &stubSupervisor{})

		b.processUpdate(ctx, commandUpdate(adminID, adminID, "/add_user 123"))
		if ok, _ := auth.IsAllowed(ctx, 123); !ok {
			t.Fatal("expected user added")
		}

		b.processUpdate(ctx, commandUpdate(adminID, adminID, "/list_users"))
		if !strings.Contains(tr.lastMessage(), "123 (store)") {
			t.Fatalf("expected provenance in listing, got %q", tr.lastMessage())
		}
		if !strings.Contains(tr.lastMessage(), "99 (admin)") {
			t.Fatalf("expected admin in listing, got %q", tr.lastMessage())
		}
	})

	t.Run("remove", func(t *testing.T) {
		b, _, auth := newTestBot(t, &stubSupervisor{})
		auth.Add(ctx, 123)

		b.processUpdate(ctx, commandUpdate(adminID, adminID, "/remove_user 123"))
		if ok, _ := auth.IsAllowed(ctx, 123); ok {
			t.Fatal("expected user removed")
		}
	})

	t.Run("admin not removable", func(t *testing.T) {
		b, tr, auth := newTestBot(t, &stubSupervisor{})

		b.processUpdate(ctx, commandUpdate(adminID, adminID, "/remove_user 99"))
		if !strings.Contains(tr.lastMessage(), "pinned") {
			t.Fatalf("unexpected reply %q", tr.lastMessage())
		}
		if ok, _ := auth.IsAllowed(ctx, adminID); !ok {
			t.Fatal("admin must stay allowed")
		}
	})

	t.Run("non-admin denied", func(t *testing.T) {
		b, tr, auth := newTestBot(t, &stubSupervisor{})
		auth.Add(ctx, 10)

		b.processUpdate(ctx, commandUpdate(10, 10, "/add_user 123"))
		if !strings.Contains(tr.lastMessage(), "Only the admin") {
			t.Fatalf("unexpected reply %q", tr.lastMessage())
		}
		if ok, _ := auth.IsAllowed(ctx, 123); ok {
			t.Fatal("non-admin must not grant access")
		}
	})

	t.Run("bad argument", func(t *testing.T) {
		b, tr, _ := newTestBot(t, &stubSupervisor{})

		b.processUpdate(ctx, commandUpdate(adminID, adminID, "/add_user bob"))
		if !strings.Contains(tr.lastMessage(), "not a user ID") {
			t.Fatalf("unexpected reply %q", tr.lastMessage())
		}

		b.processUpdate(ctx, commandUpdate(adminID, adminID, "/add_user"))
		if !strings.Contains(tr.lastMessage(), "Usage:") {
			t.Fatalf("unexpected reply %q", tr.lastMessage())
		}
	})
}

func TestHelpShowsAdminSectionOnlyToAdmin(t *testing.T) {
	b, tr, auth := newTestBot(t, &stubSupervisor{})
	auth.Add(context.Background(), 10)

	b.processUpdate(context.Background(), commandUpdate(10, 10, "/help"))
	if strings.Contains(tr.lastMessage(), "/add_user") {
		t.Fatal("regular users must not see admin commands")
	}

	b.processUpdate(context.Background(), commandUpdate(adminID, adminID, "/help"))
	if !strings.Contains(tr.lastMessage(), "/add_user") {
		t.Fatal("admin should see admin commands")
	}
}
