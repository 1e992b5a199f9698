package bot

import (
	"context"
	"strconv"

	"sitewatch/internal/transport"
	"sitewatch/pkg/logx"
	"sitewatch/pkg/tgui"
)

const scopeTarget = "tgt"

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	scope, action, payload := tgui.SplitData(cb.Data)
	if scope != scopeTarget {
		r.answer(ctx, cb.ID, "")
		return
	}
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		r.answer(ctx, cb.ID, "")
		return
	}
	if !r.owns(ctx, cb.ChatID, id) {
		r.answer(ctx, cb.ID, "That site is gone.")
		r.edit(ctx, cb.ChatID, cb.MessageID, "That site is gone.", nil)
		return
	}

	switch action {
	case "edit":
		r.cbEditMenu(ctx, cb, id)
	case "ename":
		r.sessions.set(cb.ChatID, &session{state: stateEditName, targetID: id})
		r.answer(ctx, cb.ID, "")
		r.send(ctx, cb.ChatID, "Send the new name.", nil)
	case "eurl":
		r.sessions.set(cb.ChatID, &session{state: stateEditURL, targetID: id})
		r.answer(ctx, cb.ID, "")
		r.send(ctx, cb.ChatID, "Send the new URL (http:// or https://).", nil)
	case "del":
		r.cbConfirmDelete(ctx, cb, id)
	case "delyes":
		r.cbDelete(ctx, cb, id)
	case "delno":
		r.answer(ctx, cb.ID, "")
		r.edit(ctx, cb.ChatID, cb.MessageID, "Kept it. Nothing was removed.", nil)
	default:
		r.answer(ctx, cb.ID, "")
	}
}

func (r *Router) cbEditMenu(ctx context.Context, cb *transport.Callback, id int64) {
	t, err := r.store.TargetByID(ctx, id)
	if err != nil {
		r.answer(ctx, cb.ID, "That site is gone.")
		return
	}
	kb := tgui.NewInline().
		Row(tgui.Btn("✏️ Rename", tgui.Data(scopeTarget, "ename", formatID(id)))).
		Row(tgui.Btn("🔗 Change URL", tgui.Data(scopeTarget, "eurl", formatID(id))))
	r.answer(ctx, cb.ID, "")
	r.edit(ctx, cb.ChatID, cb.MessageID,
		"Editing "+tgui.B(t.Name).String()+"\n"+tgui.Code(t.URL).String(), kb.Markup())
}

func (r *Router) cbConfirmDelete(ctx context.Context, cb *transport.Callback, id int64) {
	t, err := r.store.TargetByID(ctx, id)
	if err != nil {
		r.answer(ctx, cb.ID, "That site is gone.")
		return
	}
	kb := tgui.ConfirmInline(
		tgui.Btn("✅ Yes, remove", tgui.Data(scopeTarget, "delyes", formatID(id))),
		tgui.Btn("❌ No, keep", tgui.Data(scopeTarget, "delno", formatID(id))),
	)
	r.answer(ctx, cb.ID, "")
	r.edit(ctx, cb.ChatID, cb.MessageID,
		"Stop watching "+tgui.B(t.Name).String()+"?", kb.Markup())
}

func (r *Router) cbDelete(ctx context.Context, cb *transport.Callback, id int64) {
	if err := r.store.RemoveSubscriber(ctx, id, cb.ChatID); err != nil {
		r.log.Warn("unsubscribe failed", logx.Int64("target", id), logx.Err(err))
		r.answer(ctx, cb.ID, "Couldn't remove it, please try again.")
		return
	}
	// Last subscriber out turns off monitoring for the URL entirely.
	deleted, err := r.store.DeleteIfNoSubscribers(ctx, id)
	if err != nil {
		r.log.Warn("orphan cleanup failed", logx.Int64("target", id), logx.Err(err))
	}
	r.answer(ctx, cb.ID, "Removed.")
	msg := "Removed. You won't get alerts for this site anymore."
	if deleted {
		r.log.Debug("target deleted, no subscribers left", logx.Int64("target", id))
	}
	r.edit(ctx, cb.ChatID, cb.MessageID, msg, nil)
}

func (r *Router) answer(ctx context.Context, callbackID, text string) {
	if err := r.adapter.AnswerCallback(ctx, callbackID, text); err != nil {
		r.log.Debug("callback answer failed", logx.Err(err))
	}
}
