package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sitewatch/internal/storage"
	"sitewatch/pkg/logx"
)

// ErrSweepRunning is returned when a full sweep is requested while the
// previous one is still in flight. The tick is skipped, never queued.
var ErrSweepRunning = errors.New("full sweep already running")

const (
	DefaultInterval    = 5 * time.Minute
	DefaultConcurrency = 8
)

type Config struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
	// Concurrency caps outstanding probes during a full sweep.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// EventSink receives notifiable transitions produced by full sweeps.
// Delivery failures are the sink's problem; the sweep never fails on them.
type EventSink func(ctx context.Context, ev Event)

// Service owns the sweep engine: the cron-driven full-fleet pass and the
// synchronous scoped pass ("check now"). Probe, classify and persist for one
// target always happen under that target's lock, so overlapping probes of the
// same target (full sweep racing an ad hoc check) cannot produce a lost
// update: the persisted status is the last probe to complete, and
// notifiability is computed against the status immediately preceding it.
type Service struct {
	mu  sync.Mutex
	cfg Config

	store  storage.Store
	prober *Prober
	sink   EventSink
	log    logx.Logger

	c      *cron.Cron
	entry  cron.EntryID
	runCtx context.Context

	// sweepMu enforces at-most-one full sweep in flight.
	sweepMu sync.Mutex

	// Striped per-target locks; a target is always locked via lockFor(id).
	locks [64]sync.Mutex
}

func New(cfg Config, store storage.Store, sink EventSink, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		prober: NewProber(cfg.ProbeTimeout),
		sink:   sink,
		log:    log,
	}
}

// Start registers the full-sweep cadence and begins ticking. The provided ctx
// bounds all background sweeps.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.runCtx = ctx
	s.c = cron.New()
	entry, err := s.c.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), s.tick)
	if err != nil {
		s.c = nil
		return err
	}
	s.entry = entry
	s.c.Start()
	s.log.Info("monitor started", logx.Duration("interval", s.cfg.Interval), logx.Int("concurrency", s.cfg.Concurrency))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("monitor stopped")
}

// Apply updates cadence, probe timeout and concurrency at runtime.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	intervalChanged := cfg.Interval != s.cfg.Interval
	s.cfg = cfg
	s.prober.SetTimeout(cfg.ProbeTimeout)

	if s.c == nil || !intervalChanged {
		return nil
	}
	s.c.Remove(s.entry)
	entry, err := s.c.AddFunc(fmt.Sprintf("@every %s", cfg.Interval), s.tick)
	if err != nil {
		return err
	}
	s.entry = entry
	s.log.Info("sweep interval changed", logx.Duration("interval", cfg.Interval))
	return nil
}

func (s *Service) tick() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	events, err := s.RunFullSweep(ctx)
	switch {
	case errors.Is(err, ErrSweepRunning):
		s.log.Warn("previous sweep still running; tick skipped")
	case err != nil:
		s.log.Error("full sweep failed", logx.Err(err))
	default:
		s.log.Debug("full sweep done", logx.Int("transitions", len(events)))
	}
}

// RunFullSweep probes every target in the store with bounded concurrency,
// persists each completed probe, forwards notifiable transitions to the sink,
// and returns them. Per-target failures (probe, persist) are logged and that
// target's result is dropped for the pass; the sweep fails as a whole only
// when target enumeration itself fails.
func (s *Service) RunFullSweep(ctx context.Context) ([]Event, error) {
	if !s.sweepMu.TryLock() {
		return nil, ErrSweepRunning
	}
	defer s.sweepMu.Unlock()

	targets, err := s.store.AllTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	workers := s.cfg.Concurrency
	sink := s.sink
	s.mu.Unlock()
	if workers > len(targets) {
		workers = len(targets)
	}

	var (
		evMu   sync.Mutex
		events []Event
		wg     sync.WaitGroup
	)
	queue := make(chan *storage.Target)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				ev, ok := s.checkOne(ctx, t.ID)
				if !ok {
					continue
				}
				if sink != nil {
					sink(ctx, ev)
				}
				evMu.Lock()
				events = append(events, ev)
				evMu.Unlock()
			}
		}()
	}

feed:
	for _, t := range targets {
		select {
		case queue <- t:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	return events, ctx.Err()
}

// CheckNow runs the per-target probe+classify+persist logic for one
// subscriber's targets and returns every result synchronously. It never goes
// through the notifier.
func (s *Service) CheckNow(ctx context.Context, chatID int64) ([]Result, error) {
	targets, err := s.store.TargetsBySubscriber(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("targets for subscriber %d: %w", chatID, err)
	}

	results := make([]Result, 0, len(targets))
	for _, t := range targets {
		res, err := s.CheckTarget(ctx, t.ID)
		if err != nil {
			s.log.Warn("ad hoc check dropped", logx.Int64("target", t.ID), logx.Err(err))
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// CheckTarget probes a single target right now and returns the synchronous
// result. Used by the add flow and by scoped sweeps; does not notify.
func (s *Service) CheckTarget(ctx context.Context, id int64) (Result, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.store.TargetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}

	out := s.prober.Probe(ctx, t.URL)
	next, _ := Classify(t.Status, out)
	if err := s.store.UpdateStatus(ctx, t.ID, next, time.Now(), out.ResponseMS); err != nil {
		return Result{}, fmt.Errorf("persist status: %w", err)
	}
	t.Status = next
	return Result{Target: t, Status: next, ResponseMS: out.ResponseMS, HTTPStatus: out.HTTPStatus, Err: out.Err}, nil
}

// checkOne is the full-sweep variant: probe, classify against the status
// immediately preceding this probe, persist, and report a notifiable event.
// The target is re-read under its lock so a concurrently deleted or updated
// target is never clobbered with stale data.
func (s *Service) checkOne(ctx context.Context, id int64) (Event, bool) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.store.TargetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("target read failed; result dropped", logx.Int64("target", id), logx.Err(err))
		}
		return Event{}, false
	}

	out := s.prober.Probe(ctx, t.URL)
	next, notifiable := Classify(t.Status, out)

	if err := s.store.UpdateStatus(ctx, t.ID, next, time.Now(), out.ResponseMS); err != nil {
		s.log.Warn("status persist failed; result dropped", logx.Int64("target", t.ID), logx.Err(err))
		return Event{}, false
	}

	if !notifiable {
		return Event{}, false
	}
	t.Status = next
	return Event{
		Target:     t,
		NewStatus:  next,
		ResponseMS: out.ResponseMS,
		HTTPStatus: out.HTTPStatus,
		Err:        out.Err,
	}, true
}

func (s *Service) lockFor(id int64) *sync.Mutex {
	return &s.locks[uint64(id)%uint64(len(s.locks))]
}
