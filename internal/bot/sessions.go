package bot

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"sitewatch/internal/storage"
	"sitewatch/internal/transport"
	"sitewatch/pkg/logx"
	"sitewatch/pkg/tgui"
)

type sessionState int

const (
	stateAddURL sessionState = iota
	stateAddName
	stateEditName
	stateEditURL
)

// session is one in-flight dialog, keyed by chat id. A chat has at most one.
type session struct {
	state    sessionState
	url      string // pending URL during the add flow
	targetID int64  // target being edited
	started  time.Time
}

const sessionTTL = 10 * time.Minute

type sessionStore struct {
	mu sync.Mutex
	m  map[int64]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{m: make(map[int64]*session)}
}

func (s *sessionStore) get(chatID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[chatID]
	if !ok {
		return nil
	}
	if time.Since(sess.started) > sessionTTL {
		delete(s.m, chatID)
		return nil
	}
	return sess
}

func (s *sessionStore) set(chatID int64, sess *session) {
	sess.started = time.Now()
	s.mu.Lock()
	s.m[chatID] = sess
	s.mu.Unlock()
}

func (s *sessionStore) clear(chatID int64) {
	s.mu.Lock()
	delete(s.m, chatID)
	s.mu.Unlock()
}

var urlPattern = regexp.MustCompile(`^https?://\S+$`)

func validURL(s string) bool { return urlPattern.MatchString(s) }

func (r *Router) handleSessionInput(ctx context.Context, m *transport.Message, text string) {
	sess := r.sessions.get(m.ChatID)
	if sess == nil {
		return
	}
	switch sess.state {
	case stateAddURL:
		r.stepAddURL(ctx, m.ChatID, sess, text)
	case stateAddName:
		r.stepAddName(ctx, m.ChatID, sess, text)
	case stateEditName:
		r.stepEditName(ctx, m.ChatID, sess, text)
	case stateEditURL:
		r.stepEditURL(ctx, m.ChatID, sess, text)
	}
}

func (r *Router) stepAddURL(ctx context.Context, chatID int64, sess *session, text string) {
	url := strings.TrimSpace(text)
	if !validURL(url) {
		r.send(ctx, chatID, "That doesn't look like a URL. Send one starting with http:// or https://, or /cancel.", nil)
		return
	}

	// A URL someone already watches gets a new subscriber, not a new row.
	if t, err := r.store.TargetByURL(ctx, url); err == nil {
		r.sessions.clear(chatID)
		added, err := r.store.AddSubscriber(ctx, t.ID, chatID)
		if err != nil {
			r.log.Warn("subscribe failed", logx.Int64("chat", chatID), logx.Err(err))
			r.send(ctx, chatID, "Something went wrong, please try again.", nil)
			return
		}
		if !added {
			r.send(ctx, chatID, "You are already watching "+tgui.B(t.Name).String()+".", mainMenu())
			return
		}
		r.send(ctx, chatID, "Added! You now watch "+tgui.B(t.Name).String()+" ("+tgui.Code(t.URL).String()+").", mainMenu())
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		r.log.Warn("url lookup failed", logx.Err(err))
		r.send(ctx, chatID, "Something went wrong, please try again.", nil)
		return
	}

	sess.url = url
	sess.state = stateAddName
	r.sessions.set(chatID, sess)
	r.send(ctx, chatID, "Got it. Now send a short name for this site.", nil)
}

func (r *Router) stepAddName(ctx context.Context, chatID int64, sess *session, text string) {
	name := strings.TrimSpace(text)
	if name == "" || len(name) > 64 {
		r.send(ctx, chatID, "Please send a name up to 64 characters, or /cancel.", nil)
		return
	}
	r.sessions.clear(chatID)

	t, err := r.store.CreateTarget(ctx, sess.url, name, chatID)
	if errors.Is(err, storage.ErrDuplicateURL) {
		// Raced another chat adding the same URL; fall back to subscribing.
		if t, err = r.store.TargetByURL(ctx, sess.url); err == nil {
			_, err = r.store.AddSubscriber(ctx, t.ID, chatID)
		}
	}
	if err != nil {
		r.log.Warn("target create failed", logx.Int64("chat", chatID), logx.Err(err))
		r.send(ctx, chatID, "Couldn't save the site, please try again.", nil)
		return
	}

	res, err := r.mon.CheckTarget(ctx, t.ID)
	if err != nil {
		r.log.Warn("initial check failed", logx.Int64("target", t.ID), logx.Err(err))
		r.send(ctx, chatID, "Saved "+tgui.B(name).String()+". First check is pending.", mainMenu())
		return
	}
	r.send(ctx, chatID, "Saved "+tgui.B(name).String()+".\n"+formatResult(res), mainMenu())
}

func (r *Router) stepEditName(ctx context.Context, chatID int64, sess *session, text string) {
	name := strings.TrimSpace(text)
	if name == "" || len(name) > 64 {
		r.send(ctx, chatID, "Please send a name up to 64 characters, or /cancel.", nil)
		return
	}
	r.sessions.clear(chatID)
	if !r.owns(ctx, chatID, sess.targetID) {
		r.send(ctx, chatID, "That site is gone.", mainMenu())
		return
	}
	if err := r.store.UpdateName(ctx, sess.targetID, name); err != nil {
		r.log.Warn("rename failed", logx.Int64("target", sess.targetID), logx.Err(err))
		r.send(ctx, chatID, "Couldn't rename the site, please try again.", nil)
		return
	}
	r.send(ctx, chatID, "Renamed to "+tgui.B(name).String()+".", mainMenu())
}

func (r *Router) stepEditURL(ctx context.Context, chatID int64, sess *session, text string) {
	url := strings.TrimSpace(text)
	if !validURL(url) {
		r.send(ctx, chatID, "That doesn't look like a URL. Send one starting with http:// or https://, or /cancel.", nil)
		return
	}
	r.sessions.clear(chatID)
	if !r.owns(ctx, chatID, sess.targetID) {
		r.send(ctx, chatID, "That site is gone.", mainMenu())
		return
	}
	err := r.store.UpdateURL(ctx, sess.targetID, url)
	switch {
	case errors.Is(err, storage.ErrDuplicateURL):
		r.send(ctx, chatID, "Another watched site already uses that URL.", mainMenu())
	case err != nil:
		r.log.Warn("url change failed", logx.Int64("target", sess.targetID), logx.Err(err))
		r.send(ctx, chatID, "Couldn't change the URL, please try again.", nil)
	default:
		r.send(ctx, chatID, "URL updated to "+tgui.Code(url).String()+".", mainMenu())
	}
}

// owns reports whether chatID subscribes to the target.
func (r *Router) owns(ctx context.Context, chatID, targetID int64) bool {
	t, err := r.store.TargetByID(ctx, targetID)
	if err != nil {
		return false
	}
	for _, id := range t.Subscribers {
		if id == chatID {
			return true
		}
	}
	return false
}
