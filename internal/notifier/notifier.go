// Package notifier fans status transitions out to every subscriber of the
// affected target. Delivery is rate limited globally and isolated per
// recipient: one blocked or failed chat never withholds the alert from the
// rest.
package notifier

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"sitewatch/internal/monitor"
	"sitewatch/internal/storage"
	"sitewatch/internal/transport"
	"sitewatch/pkg/logx"
	"sitewatch/pkg/tgui"
)

const DefaultRatePerSec = 3

type Config struct {
	// RatePerSec caps outgoing messages across all recipients.
	RatePerSec int
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = DefaultRatePerSec
	}
	return c
}

type Service struct {
	mu      sync.Mutex
	limiter *rate.Limiter

	adapter transport.Adapter
	log     logx.Logger
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		adapter: adapter,
		log:     log,
	}
}

// Apply updates the send rate at runtime.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.RatePerSec)
	s.mu.Unlock()
}

// HandleTransition formats the alert for one transition and delivers it to
// each subscriber in turn. A failed send is logged and skipped; it never
// aborts delivery to the remaining subscribers.
func (s *Service) HandleTransition(ctx context.Context, ev monitor.Event) {
	if ev.Target == nil || len(ev.Target.Subscribers) == 0 {
		return
	}
	text := FormatTransition(ev)
	opt := &transport.SendOptions{ParseMode: transport.ParseModeHTML, DisablePreview: true}

	for _, chatID := range ev.Target.Subscribers {
		if err := s.limiter.Wait(ctx); err != nil {
			s.log.Warn("notify aborted", logx.Err(err))
			return
		}
		_, err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt)
		if err != nil {
			s.log.Warn("notify failed",
				logx.Int64("chat", chatID),
				logx.Int64("target", ev.Target.ID),
				logx.Err(err))
		}
	}
}

// FormatTransition renders the alert text for a status transition.
func FormatTransition(ev monitor.Event) string {
	t := ev.Target
	name := t.Name
	if name == "" {
		name = t.URL
	}
	if ev.NewStatus == storage.StatusOnline {
		return fmt.Sprintf("✅ %s is back online\n%s\nResponse time: %d ms",
			tgui.B(name), tgui.Code(t.URL), ev.ResponseMS)
	}
	return fmt.Sprintf("❌ %s is down\n%s\n%s",
		tgui.B(name), tgui.Code(t.URL), downReason(ev))
}

func downReason(ev monitor.Event) string {
	if ev.HTTPStatus != 0 {
		return fmt.Sprintf("Status code: %d", ev.HTTPStatus)
	}
	if ev.Err != "" {
		return "Error: " + tgui.Esc(ev.Err).String()
	}
	return "Error: no response"
}
