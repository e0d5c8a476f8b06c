// Package bot is the Telegram front-end: it turns chat updates into task
// operations and admin actions.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/haovie/clonevideo/internal/authstore"
	"github.com/haovie/clonevideo/internal/data"
	"github.com/haovie/clonevideo/internal/transport"
	"github.com/haovie/clonevideo/internal/urlutil"
)

// Supervisor is the slice of the task service the bot drives.
type Supervisor interface {
	ProcessURL(ctx context.Context, userID int64, url string, status data.StatusRef) (*data.Task, error)
	Advance(ctx context.Context, userID int64, action data.Action) (*data.Task, error)
	Cancel(ctx context.Context, userID int64) int
}

// updateSource is the slice of tgbotapi.BotAPI the run loop needs.
type updateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot routes incoming updates to command handlers.
type Bot struct {
	api       updateSource
	transport transport.Transport
	sup       Supervisor
	auth      *authstore.Authorizer
	target    transport.Destination
	log       *slog.Logger

	commands map[string]func(ctx context.Context, msg *tgbotapi.Message)
}

func New(api updateSource, tr transport.Transport, sup Supervisor, auth *authstore.Authorizer, target transport.Destination, log *slog.Logger) *Bot {
	b := &Bot{
		api:       api,
		transport: tr,
		sup:       sup,
		auth:      auth,
		target:    target,
		log:       log,
	}
	b.commands = map[string]func(ctx context.Context, msg *tgbotapi.Message){
		"start":       b.cmdHelp,
		"help":        b.cmdHelp,
		"get_user_id": b.cmdGetUserID,
		"cancel":      b.cmdCancel,
		"download":    b.advanceCmd(data.ActionDeliver),
		"forward":     b.advanceCmd(data.ActionForward),
		"down_photos": b.advanceCmd(data.ActionPhotos),
		"fowd_photos": b.advanceCmd(data.ActionPhotosForward),
		"add_user":    b.cmdAddUser,
		"remove_user": b.cmdRemoveUser,
		"list_users":  b.cmdListUsers,
	}
	return b
}

// Run consumes updates until the context is cancelled. Each update is handled
// in its own goroutine so a slow metadata probe never blocks the next user.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go func(u tgbotapi.Update) {
				defer func() {
					if r := recover(); r != nil {
						b.log.Error("panic handling update", "panic", r)
					}
				}()
				b.processUpdate(ctx, u)
			}(update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !b.watchedChat(msg.Chat) {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleText(ctx, msg)
}

// watchedChat limits the bot to private chats and the configured target chat.
func (b *Bot) watchedChat(chat *tgbotapi.Chat) bool {
	if chat == nil {
		return false
	}
	if chat.IsPrivate() {
		return true
	}
	if b.target.ChatID != 0 && chat.ID == b.target.ChatID {
		return true
	}
	if b.target.Name != "" && "@"+chat.UserName == b.target.Name {
		return true
	}
	return false
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()

	// Identity commands work for everyone so locked-out users can learn the
	// ID to send to the admin.
	if cmd == "get_user_id" || cmd == "start" || cmd == "help" {
		b.commands[cmd](ctx, msg)
		return
	}

	allowed, err := b.auth.IsAllowed(ctx, msg.From.ID)
	if err != nil {
		b.log.Error("allowlist lookup failed", "user", msg.From.ID, "err", err)
		b.reply(ctx, msg, "⚠️ Authorization check failed, try again later.")
		return
	}
	if !allowed {
		b.reply(ctx, msg, fmt.Sprintf("🚫 You are not authorized. Your user ID is %d.", msg.From.ID))
		return
	}

	handler, ok := b.commands[cmd]
	if !ok {
		b.reply(ctx, msg, "Unknown command. See /help.")
		return
	}
	handler(ctx, msg)
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	urls := urlutil.Extract(msg.Text)
	if len(urls) == 0 {
		return
	}
	// One task per message: only the first link counts.
	url := urls[0]

	allowed, err := b.auth.IsAllowed(ctx, msg.From.ID)
	if err != nil || !allowed {
		b.reply(ctx, msg, fmt.Sprintf("🚫 You are not authorized. Your user ID is %d.", msg.From.ID))
		return
	}

	if urlutil.IsSpam(url) {
		b.reply(ctx, msg, "🚫 That link looks like spam and was ignored.")
		return
	}
	if !urlutil.IsSupported(url) {
		b.reply(ctx, msg, "❓ That site isn't supported.")
		return
	}

	statusID, err := b.transport.SendMessage(ctx, transport.Destination{ChatID: msg.Chat.ID}, "🔍 Fetching media info...")
	if err != nil {
		b.log.Error("status message failed", "err", err)
		return
	}
	ref := data.StatusRef{ChatID: msg.Chat.ID, MessageID: statusID}

	if _, err := b.sup.ProcessURL(ctx, msg.From.ID, url, ref); err != nil {
		if errors.Is(err, data.ErrDuplicate) {
			// Same link twice: drop the extra status message quietly.
			if derr := b.transport.DeleteMessage(ctx, ref); derr != nil {
				b.log.Debug("duplicate status cleanup failed", "err", derr)
			}
			return
		}
		b.log.Error("task creation failed", "user", msg.From.ID, "err", err)
		b.transport.EditMessage(ctx, ref, "❌ Could not start this task.")
	}
}

func (b *Bot) reply(ctx context.Context, msg *tgbotapi.Message, text string) {
	if _, err := b.transport.SendMessage(ctx, transport.Destination{ChatID: msg.Chat.ID}, text); err != nil {
		b.log.Debug("reply failed", "chat", msg.Chat.ID, "err", err)
	}
}

const helpText = `Send me a video link (YouTube, TikTok, Instagram, Twitter/X, and more) and I'll look it up.

Once I show you the details:
/download - send the video to you here
/forward - post the video to the shared chat
/down_photos - send TikTok slideshow photos to you
/fowd_photos - post slideshow photos to the shared chat
/cancel - cancel your pending tasks

Other commands:
/get_user_id - show your Telegram user ID
/help - this message`

const adminHelpText = `

Admin commands:
/add_user <id> - allow a user
/remove_user <id> - revoke a user
/list_users - show the allowlist`

func (b *Bot) cmdHelp(ctx context.Context, msg *tgbotapi.Message) {
	text := helpText
	if b.auth.IsAdmin(msg.From.ID) {
		text += adminHelpText
	}
	b.reply(ctx, msg, text)
}

func (b *Bot) cmdGetUserID(ctx context.Context, msg *tgbotapi.Message) {
	b.reply(ctx, msg, fmt.Sprintf("🆔 Your user ID is %d.", msg.From.ID))
}

func (b *Bot) cmdCancel(ctx context.Context, msg *tgbotapi.Message) {
	n := b.sup.Cancel(ctx, msg.From.ID)
	if n == 0 {
		b.reply(ctx, msg, "Nothing to cancel.")
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("🚫 Cancelled %d task(s).", n))
}

func (b *Bot) advanceCmd(action data.Action) func(ctx context.Context, msg *tgbotapi.Message) {
	return func(ctx context.Context, msg *tgbotapi.Message) {
		_, err := b.sup.Advance(ctx, msg.From.ID, action)
		switch {
		case err == nil:
			// The task's status message tracks progress from here.
		case errors.Is(err, data.ErrNotFound):
			b.reply(ctx, msg, "No pending task. Send me a link first.")
		case errors.Is(err, data.ErrNotSlideshow):
			b.reply(ctx, msg, "That link isn't a photo slideshow. Use /download or /forward.")
		case errors.Is(err, data.ErrSlideshowOnly):
			b.reply(ctx, msg, "That's a photo slideshow. Use /down_photos or /fowd_photos.")
		case errors.Is(err, data.ErrBadStage):
			b.reply(ctx, msg, "That task is already in progress.")
		default:
			b.log.Error("advance failed", "user", msg.From.ID, "action", action, "err", err)
			b.reply(ctx, msg, "⚠️ Something went wrong, try again.")
		}
	}
}

func (b *Bot) cmdAddUser(ctx context.Context, msg *tgbotapi.Message) {
	id, ok := b.adminUserArg(ctx, msg)
	if !ok {
		return
	}
	if err := b.auth.Add(ctx, id); err != nil {
		b.log.Error("add user failed", "target", id, "err", err)
		b.reply(ctx, msg, "⚠️ Could not update the allowlist.")
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("✅ User %d can now use the bot.", id))
}

func (b *Bot) cmdRemoveUser(ctx context.Context, msg *tgbotapi.Message) {
	id, ok := b.adminUserArg(ctx, msg)
	if !ok {
		return
	}
	if !b.auth.Removable(id) {
		b.reply(ctx, msg, "That user is pinned by configuration and can't be removed here.")
		return
	}
	if err := b.auth.Remove(ctx, id); err != nil {
		b.log.Error("remove user failed", "target", id, "err", err)
		b.reply(ctx, msg, "⚠️ Could not update the allowlist.")
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("✅ User %d removed.", id))
}

func (b *Bot) cmdListUsers(ctx context.Context, msg *tgbotapi.Message) {
	if !b.auth.IsAdmin(msg.From.ID) {
		b.reply(ctx, msg, "Only the admin can do that.")
		return
	}
	entries, err := b.auth.List(ctx)
	if err != nil {
		b.log.Error("list users failed", "err", err)
		b.reply(ctx, msg, "⚠️ Could not read the allowlist.")
		return
	}
	if len(entries) == 0 {
		b.reply(ctx, msg, "The allowlist is empty.")
		return
	}
	var sb strings.Builder
	sb.WriteString("👥 Allowed users:\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "• %d (%s)\n", e.UserID, e.Via)
	}
	b.reply(ctx, msg, sb.String())
}

// adminUserArg enforces admin-only access and parses the numeric argument of
// /add_user and /remove_user.
func (b *Bot) adminUserArg(ctx context.Context, msg *tgbotapi.Message) (int64, bool) {
	if !b.auth.IsAdmin(msg.From.ID) {
		b.reply(ctx, msg, "Only the admin can do that.")
		return 0, false
	}
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		b.reply(ctx, msg, fmt.Sprintf("Usage: /%s <user_id>", msg.Command()))
		return 0, false
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		b.reply(ctx, msg, fmt.Sprintf("%q is not a user ID.", arg))
		return 0, false
	}
	return id, true
}
