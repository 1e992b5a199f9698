// Package app assembles the pieces: config, logging, storage, the Telegram
// transport, the sweep engine, the notifier and the chat router. It owns
// startup/shutdown order and applies config hot reloads to running services.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sitewatch/internal/bot"
	"sitewatch/internal/config"
	"sitewatch/internal/monitor"
	"sitewatch/internal/notifier"
	"sitewatch/internal/storage"
	"sitewatch/internal/transport"
	"sitewatch/internal/transport/telegram"
	"sitewatch/pkg/logx"
)

const updateBuffer = 128

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store    storage.Store
	adapter  *telegram.Adapter
	mon      *monitor.Service
	notifier *notifier.Service
	router   *bot.Router

	updates chan transport.Update
	cfgSub  chan *config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads configuration from path and builds every service. Nothing runs
// until Start.
func New(path string) (*App, error) {
	mgr := config.NewManager(path)
	mgr.SetValidator(validate)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("component", "config")))

	store, err := storage.Open(storageConfig(cfg), log.With(logx.String("component", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	pollTimeout, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("component", "telegram")))
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	ntf := notifier.New(
		notifier.Config{RatePerSec: cfg.Notifier.RatePerSec},
		adapter,
		log.With(logx.String("component", "notifier")),
	)

	monCfg, err := monitorConfig(cfg)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}
	mon := monitor.New(monCfg, store, ntf.HandleTransition, log.With(logx.String("component", "monitor")))

	router := bot.New(
		bot.Config{AdminIDs: cfg.Telegram.AdminIDs},
		store, mon, adapter,
		log.With(logx.String("component", "bot")),
	)

	return &App{
		cfgMgr:   mgr,
		logSvc:   logSvc,
		log:      log.With(logx.String("component", "app")),
		store:    store,
		adapter:  adapter,
		mon:      mon,
		notifier: ntf,
		router:   router,
		updates:  make(chan transport.Update, updateBuffer),
	}, nil
}

// Start brings everything up: transport first so the bot can answer, then
// the sweep engine, then the config watcher for hot reloads.
func (a *App) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel

	if err := a.adapter.Start(ctx, a.updates); err != nil {
		cancel()
		return fmt.Errorf("start transport: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.router.Run(ctx, a.updates)
	}()

	if err := a.mon.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start monitor: %w", err)
	}

	a.cfgSub = a.cfgMgr.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgMgr.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		a.applyLoop(ctx)
	}()

	a.log.Info("sitewatch up")
	return nil
}

// Stop shuts services down in reverse order within the given grace period.
func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.mon.Stop(ctx)
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("transport stop", logx.Err(err))
	}
	a.wg.Wait()
	if a.cfgSub != nil {
		a.cfgMgr.Unsubscribe(a.cfgSub)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	a.log.Info("sitewatch down")
	a.logSvc.Close()
}

// applyLoop pushes validated config changes into the running services.
// Telegram token and storage path changes need a restart and are only logged.
func (a *App) applyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgSub:
			if !ok {
				return
			}
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	monCfg, err := monitorConfig(cfg)
	if err != nil {
		a.log.Warn("reload: bad monitor config", logx.Err(err))
	} else if err := a.mon.Apply(monCfg); err != nil {
		a.log.Warn("reload: monitor apply failed", logx.Err(err))
	}

	a.notifier.Apply(notifier.Config{RatePerSec: cfg.Notifier.RatePerSec})
	a.router.Apply(bot.Config{AdminIDs: cfg.Telegram.AdminIDs})

	a.log.Info("config reloaded")
}

func monitorConfig(cfg *config.Config) (monitor.Config, error) {
	interval, err := config.DurationOr("monitor.interval", cfg.Monitor.Interval, monitor.DefaultInterval)
	if err != nil {
		return monitor.Config{}, err
	}
	probeTimeout, err := config.DurationOr("monitor.probe_timeout", cfg.Monitor.ProbeTimeout, monitor.DefaultProbeTimeout)
	if err != nil {
		return monitor.Config{}, err
	}
	return monitor.Config{
		Interval:     interval,
		ProbeTimeout: probeTimeout,
		Concurrency:  cfg.Monitor.Concurrency,
	}, nil
}

func storageConfig(cfg *config.Config) storage.Config {
	busy, err := config.DurationOr("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		busy = 0
	}
	return storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}
}

// validate rejects configs that would break a running instance when hot
// reloaded: a missing token, an unparsable duration, a zero storage path.
func validate(_ context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := monitorConfig(cfg); err != nil {
		return err
	}
	if _, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second); err != nil {
		return err
	}
	if _, err := config.DurationOr("storage.busy_timeout", cfg.Storage.BusyTimeout, 0); err != nil {
		return err
	}
	return nil
}
