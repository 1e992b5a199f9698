// Package bot implements the chat-facing command surface: the persistent
// reply-keyboard menu, slash commands, the multi-step add/edit conversations
// and the inline edit/delete flows.
package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"sitewatch/internal/monitor"
	"sitewatch/internal/storage"
	"sitewatch/internal/transport"
	"sitewatch/pkg/logx"
)

type Config struct {
	// AdminIDs are the chat ids allowed to run /users and /stats.
	AdminIDs []int64
}

type Router struct {
	mu     sync.Mutex
	admins map[int64]struct{}

	store    storage.Store
	mon      *monitor.Service
	adapter  transport.Adapter
	sessions *sessionStore
	log      logx.Logger
}

func New(cfg Config, store storage.Store, mon *monitor.Service, adapter transport.Adapter, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		store:    store,
		mon:      mon,
		adapter:  adapter,
		sessions: newSessionStore(),
		log:      log,
	}
	r.Apply(cfg)
	return r
}

// Apply swaps the admin set at runtime.
func (r *Router) Apply(cfg Config) {
	admins := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}
	r.mu.Lock()
	r.admins = admins
	r.mu.Unlock()
}

func (r *Router) isAdmin(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.admins[chatID]
	return ok
}

// Run consumes updates until the channel closes or ctx is cancelled. Each
// update is handled on its own goroutine; per-chat ordering is good enough
// for a conversational UI and slow probes must not stall other chats.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) {
	r.publishMenu(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			go r.dispatch(ctx, up)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, up transport.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panic", logx.Any("panic", rec))
		}
	}()
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message == nil {
			return
		}
		r.registerUser(ctx, up.Message)
		r.handleMessage(ctx, up.Message)
	case transport.UpdateCallback:
		if up.Callback == nil {
			return
		}
		r.handleCallback(ctx, up.Callback)
	}
}

func (r *Router) registerUser(ctx context.Context, m *transport.Message) {
	u := storage.User{
		ChatID:       m.ChatID,
		Username:     m.FromUsername,
		FirstName:    m.FromFirst,
		LastName:     m.FromLast,
		Role:         storage.RoleUser,
		Active:       true,
		LastActivity: time.Now(),
	}
	if r.isAdmin(m.ChatID) {
		u.Role = storage.RoleAdmin
	}
	if err := r.store.UpsertUser(ctx, u); err != nil {
		r.log.Warn("user upsert failed", logx.Int64("chat", m.ChatID), logx.Err(err))
	}
}

func (r *Router) handleMessage(ctx context.Context, m *transport.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		cmd, args := splitCommand(text)
		r.handleCommand(ctx, m, cmd, args)
		return
	}
	if cmd, ok := menuCommand(text); ok {
		r.handleCommand(ctx, m, cmd, "")
		return
	}
	if r.sessions.get(m.ChatID) != nil {
		r.handleSessionInput(ctx, m, text)
		return
	}
	r.send(ctx, m.ChatID, "I didn't get that. Use the menu below or /help.", mainMenu())
}

// splitCommand parses "/cmd@botname arg arg" into ("cmd", "arg arg").
func splitCommand(text string) (cmd, args string) {
	cmd, args, _ = strings.Cut(text[1:], " ")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

func (r *Router) publishMenu(ctx context.Context) {
	upd, ok := r.adapter.(transport.CommandMenuUpdater)
	if !ok {
		return
	}
	if err := upd.UpdateMenuCommands(ctx, commandMenu()); err != nil {
		r.log.Warn("command menu update failed", logx.Err(err))
	}
}

func commandMenu() []transport.BotCommand {
	return []transport.BotCommand{
		{Command: "start", Description: "Show the main menu"},
		{Command: "add", Description: "Watch a new site"},
		{Command: "list", Description: "List your sites"},
		{Command: "check", Description: "Check your sites right now"},
		{Command: "status", Description: "Summary of your sites"},
		{Command: "edit", Description: "Rename a site or change its URL"},
		{Command: "delete", Description: "Stop watching a site"},
		{Command: "cancel", Description: "Abort the current dialog"},
		{Command: "help", Description: "How to use the bot"},
	}
}

func (r *Router) send(ctx context.Context, chatID int64, text string, markup any) {
	opt := &transport.SendOptions{ParseMode: transport.ParseModeHTML, DisablePreview: true}
	if markup != nil {
		opt.ReplyMarkupAdapter = markup
	}
	if _, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt); err != nil {
		r.log.Warn("send failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func (r *Router) edit(ctx context.Context, chatID int64, messageID int, text string, markup any) {
	opt := &transport.SendOptions{ParseMode: transport.ParseModeHTML, DisablePreview: true}
	if markup != nil {
		opt.ReplyMarkupAdapter = markup
	}
	ref := transport.MessageRef{ChatID: chatID, MessageID: messageID}
	if err := r.adapter.EditText(ctx, ref, text, opt); err != nil {
		r.log.Warn("edit failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}
