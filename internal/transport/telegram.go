// Package transport delivers messages and media through the Telegram Bot API.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/haovie/clonevideo/internal/data"
)

// AlbumLimit is the most photos Telegram accepts in one media group.
const AlbumLimit = 10

// Destination addresses a chat either by numeric ID or by @username.
type Destination struct {
	ChatID int64
	Name   string
}

// ParseDestination accepts a numeric chat ID (negative for groups) or an
// @username.
func ParseDestination(s string) (Destination, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Destination{}, fmt.Errorf("%w: empty chat destination", data.ErrValidation)
	}
	if strings.HasPrefix(s, "@") {
		if len(s) == 1 {
			return Destination{}, fmt.Errorf("%w: empty chat username", data.ErrValidation)
		}
		return Destination{Name: s}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Destination{}, fmt.Errorf("%w: chat destination %q", data.ErrValidation, s)
	}
	return Destination{ChatID: id}, nil
}

// User builds a destination for a private chat with the given user.
func User(userID int64) Destination {
	return Destination{ChatID: userID}
}

// ProgressFunc observes upload progress. Returning an error aborts the
// transfer.
type ProgressFunc func(sent, total int64) error

// FileAttrs are playback attributes attached to an uploaded video.
type FileAttrs struct {
	Width           int
	Height          int
	DurationSeconds int
}

// SendFileOptions customizes a media upload.
type SendFileOptions struct {
	Caption  string
	Attrs    FileAttrs
	Progress ProgressFunc
}

// Transport sends and edits chat messages and uploads media.
type Transport interface {
	// SendMessage posts text and returns the new message's ID.
	SendMessage(ctx context.Context, dest Destination, text string) (int, error)
	// EditMessage replaces the text of an earlier status message.
	EditMessage(ctx context.Context, ref data.StatusRef, text string) error
	// DeleteMessage removes an earlier status message.
	DeleteMessage(ctx context.Context, ref data.StatusRef) error
	// SendVideo uploads the video file at path.
	SendVideo(ctx context.Context, dest Destination, path string, opts SendFileOptions) error
	// SendPhotoAlbum uploads up to AlbumLimit photos as one media group. The
	// caption, if any, is attached to the first photo.
	SendPhotoAlbum(ctx context.Context, dest Destination, paths []string, caption string) error
}

// botAPI is the slice of tgbotapi.BotAPI the transport needs.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// Telegram implements Transport over the Bot API.
type Telegram struct {
	api botAPI
	log *slog.Logger
}

func NewTelegram(api botAPI, log *slog.Logger) *Telegram {
	return &Telegram{api: api, log: log}
}

var _ Transport = (*Telegram)(nil)

func applyDest(base *tgbotapi.BaseChat, dest Destination) {
	if dest.Name != "" {
		base.ChannelUsername = dest.Name
		return
	}
	base.ChatID = dest.ChatID
}

func (t *Telegram) SendMessage(ctx context.Context, dest Destination, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(0, text)
	applyDest(&msg.BaseChat, dest)
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("%w: send message: %v", data.ErrTransfer, err)
	}
	return sent.MessageID, nil
}

func (t *Telegram) EditMessage(ctx context.Context, ref data.StatusRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	if _, err := t.api.Send(edit); err != nil {
		return fmt.Errorf("%w: edit message: %v", data.ErrTransfer, err)
	}
	return nil
}

func (t *Telegram) DeleteMessage(ctx context.Context, ref data.StatusRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	del := tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)
	if _, err := t.api.Request(del); err != nil {
		return fmt.Errorf("%w: delete message: %v", data.ErrTransfer, err)
	}
	return nil
}

func (t *Telegram) SendVideo(ctx context.Context, dest Destination, path string, opts SendFileOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open video: %v", data.ErrTransfer, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat video: %v", data.ErrTransfer, err)
	}

	var reader io.Reader = f
	if opts.Progress != nil {
		reader = &progressReader{r: f, total: st.Size(), report: opts.Progress}
	}

	video := tgbotapi.NewVideo(0, tgbotapi.FileReader{Name: st.Name(), Reader: reader})
	applyDest(&video.BaseChat, dest)
	video.Caption = opts.Caption
	video.Duration = opts.Attrs.DurationSeconds
	video.SupportsStreaming = true

	if _, err := t.api.Send(video); err != nil {
		return fmt.Errorf("%w: upload video: %v", data.ErrTransfer, err)
	}
	return nil
}

func (t *Telegram) SendPhotoAlbum(ctx context.Context, dest Destination, paths []string, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: empty photo album", data.ErrValidation)
	}
	if len(paths) > AlbumLimit {
		return fmt.Errorf("%w: album of %d exceeds limit of %d", data.ErrValidation, len(paths), AlbumLimit)
	}

	media := make([]interface{}, 0, len(paths))
	for i, p := range paths {
		photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(p))
		if i == 0 {
			photo.Caption = caption
		}
		media = append(media, photo)
	}

	group := tgbotapi.NewMediaGroup(dest.ChatID, media)
	group.ChannelUsername = dest.Name
	if _, err := t.api.SendMediaGroup(group); err != nil {
		return fmt.Errorf("%w: upload photo album: %v", data.ErrTransfer, err)
	}
	return nil
}

// progressReader reports bytes handed to the uploader. An error from the
// callback propagates as a read error, aborting the transfer mid-flight.
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if cbErr := p.report(p.sent, p.total); cbErr != nil {
			return n, cbErr
		}
	}
	return n, err
}
