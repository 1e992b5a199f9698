package bot

import (
	"context"
	"strings"

	"sitewatch/internal/transport"
	"sitewatch/pkg/logx"
	"sitewatch/pkg/tgui"
)

// Reply-keyboard labels shown as the persistent main menu.
const (
	menuAdd    = "🆕 Add site"
	menuList   = "📋 List"
	menuCheck  = "🔄 Check now"
	menuStatus = "📊 Status"
	menuHelp   = "❓ Help"
)

func mainMenu() any {
	return tgui.ReplyKeyboard(
		[]string{menuAdd, menuList},
		[]string{menuCheck, menuStatus},
		[]string{menuHelp},
	)
}

func menuCommand(label string) (string, bool) {
	switch label {
	case menuAdd:
		return "add", true
	case menuList:
		return "list", true
	case menuCheck:
		return "check", true
	case menuStatus:
		return "status", true
	case menuHelp:
		return "help", true
	}
	return "", false
}

func (r *Router) handleCommand(ctx context.Context, m *transport.Message, cmd, args string) {
	switch cmd {
	case "start":
		r.sessions.clear(m.ChatID)
		r.send(ctx, m.ChatID, welcomeText(m.FromFirst), mainMenu())
	case "help":
		r.send(ctx, m.ChatID, helpText(), mainMenu())
	case "add":
		r.cmdAdd(ctx, m.ChatID, args)
	case "list":
		r.cmdList(ctx, m.ChatID)
	case "check":
		r.cmdCheck(ctx, m.ChatID)
	case "status":
		r.cmdStatus(ctx, m.ChatID)
	case "edit":
		r.cmdPickTarget(ctx, m.ChatID, "edit", "Which site do you want to edit?")
	case "delete":
		r.cmdPickTarget(ctx, m.ChatID, "del", "Which site do you want to stop watching?")
	case "cancel":
		r.sessions.clear(m.ChatID)
		r.send(ctx, m.ChatID, "Cancelled.", mainMenu())
	case "users":
		r.cmdUsers(ctx, m.ChatID)
	case "stats":
		r.cmdStats(ctx, m.ChatID)
	default:
		r.send(ctx, m.ChatID, "Unknown command. See /help.", nil)
	}
}

func (r *Router) cmdAdd(ctx context.Context, chatID int64, args string) {
	if url := strings.TrimSpace(args); url != "" {
		sess := &session{state: stateAddURL}
		r.sessions.set(chatID, sess)
		r.stepAddURL(ctx, chatID, sess, url)
		return
	}
	r.sessions.set(chatID, &session{state: stateAddURL})
	r.send(ctx, chatID, "Send the URL of the site to watch (http:// or https://).", nil)
}

func (r *Router) cmdList(ctx context.Context, chatID int64) {
	targets, err := r.store.TargetsBySubscriber(ctx, chatID)
	if err != nil {
		r.log.Warn("list failed", logx.Int64("chat", chatID), logx.Err(err))
		r.send(ctx, chatID, "Couldn't load your sites, please try again.", nil)
		return
	}
	if len(targets) == 0 {
		r.send(ctx, chatID, "You aren't watching any sites yet. Use "+menuAdd+" to start.", mainMenu())
		return
	}
	r.send(ctx, chatID, formatTargetList(targets), mainMenu())
}

func (r *Router) cmdCheck(ctx context.Context, chatID int64) {
	r.send(ctx, chatID, "Checking your sites…", nil)
	results, err := r.mon.CheckNow(ctx, chatID)
	if err != nil {
		r.log.Warn("check now failed", logx.Int64("chat", chatID), logx.Err(err))
		r.send(ctx, chatID, "Couldn't run the check, please try again.", nil)
		return
	}
	if len(results) == 0 {
		r.send(ctx, chatID, "You aren't watching any sites yet. Use "+menuAdd+" to start.", mainMenu())
		return
	}
	r.send(ctx, chatID, formatResults(results), mainMenu())
}

func (r *Router) cmdStatus(ctx context.Context, chatID int64) {
	targets, err := r.store.TargetsBySubscriber(ctx, chatID)
	if err != nil {
		r.log.Warn("status failed", logx.Int64("chat", chatID), logx.Err(err))
		r.send(ctx, chatID, "Couldn't load your sites, please try again.", nil)
		return
	}
	r.send(ctx, chatID, formatStatusSummary(targets), mainMenu())
}

// cmdPickTarget shows the subscriber's targets as inline buttons whose
// callback data routes into the given action.
func (r *Router) cmdPickTarget(ctx context.Context, chatID int64, action, prompt string) {
	targets, err := r.store.TargetsBySubscriber(ctx, chatID)
	if err != nil {
		r.log.Warn("target pick failed", logx.Int64("chat", chatID), logx.Err(err))
		r.send(ctx, chatID, "Couldn't load your sites, please try again.", nil)
		return
	}
	if len(targets) == 0 {
		r.send(ctx, chatID, "You aren't watching any sites yet. Use "+menuAdd+" to start.", mainMenu())
		return
	}
	kb := tgui.NewInline()
	for _, t := range targets {
		kb.Row(tgui.Btn(statusEmoji(t.Status)+" "+t.Name, tgui.Data(scopeTarget, action, formatID(t.ID))))
	}
	r.send(ctx, chatID, prompt, kb.Markup())
}

func (r *Router) cmdUsers(ctx context.Context, chatID int64) {
	if !r.isAdmin(chatID) {
		r.send(ctx, chatID, "This command is for admins.", nil)
		return
	}
	users, err := r.store.Users(ctx)
	if err != nil {
		r.log.Warn("users query failed", logx.Err(err))
		r.send(ctx, chatID, "Couldn't load users.", nil)
		return
	}
	r.send(ctx, chatID, formatUsers(users), nil)
}

func (r *Router) cmdStats(ctx context.Context, chatID int64) {
	if !r.isAdmin(chatID) {
		r.send(ctx, chatID, "This command is for admins.", nil)
		return
	}
	st, err := r.store.Stats(ctx)
	if err != nil {
		r.log.Warn("stats query failed", logx.Err(err))
		r.send(ctx, chatID, "Couldn't load stats.", nil)
		return
	}
	r.send(ctx, chatID, formatStats(st), nil)
}
