// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/danribes/pfm-solana-rust-sub010/cache"
	"github.com/danribes/pfm-solana-rust-sub010/ledger"
	"github.com/danribes/pfm-solana-rust-sub010/metrics"
	"github.com/danribes/pfm-solana-rust-sub010/middleware"
	"github.com/danribes/pfm-solana-rust-sub010/session"
)

// Closer is recorded as closed_by on questions the sweeper closes
const Closer = "sweeper"

// DefaultLimiterIdle is how long a rate limiter key may sit unused before it is forgotten
const DefaultLimiterIdle = 10 * time.Minute

// Report summarizes one sweep
type Report struct {
	Closed         []string
	SessionsPurged int64
	LimiterKeys    int
	CacheEntries   int
}

// Sweeper closes expired questions and drops stale sessions, limiter keys and cache entries
type Sweeper struct {
	ledger   *ledger.Service
	sessions *session.Store
	store    cache.Store
	metrics  *metrics.Metrics

	limiters    []*middleware.KeyedLimiter
	limiterIdle time.Duration
	now         func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

type Option func(*Sweeper)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithLimiters registers limiters whose keys are dropped after idle
func WithLimiters(idle time.Duration, limiters ...*middleware.KeyedLimiter) Option {
	return func(s *Sweeper) {
		s.limiterIdle = idle
		s.limiters = append(s.limiters, limiters...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(svc *ledger.Service, sessions *session.Store, store cache.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		ledger:      svc,
		sessions:    sessions,
		store:       store,
		limiterIdle: DefaultLimiterIdle,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce performs a single sweep. Concurrent calls are serialized.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep Report
	closed, err := s.ledger.CloseExpired(ctx, Closer)
	if err != nil {
		return rep, fmt.Errorf("close expired questions: %w", err)
	}
	rep.Closed = closed
	for _, q := range closed {
		if err := s.store.Del(ctx, cache.ResultsKey(q)); err != nil {
			slog.Warn("failed to clear cached results", "question", q, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.QuestionsClosed.Add(float64(len(closed)))
	}

	if s.sessions != nil {
		rep.SessionsPurged, err = s.sessions.PurgeExpired(ctx, s.now())
		if err != nil {
			return rep, fmt.Errorf("purge sessions: %w", err)
		}
	}

	for _, l := range s.limiters {
		rep.LimiterKeys += l.Sweep(s.limiterIdle)
	}
	if mem, ok := s.store.(*cache.MemoryStore); ok {
		rep.CacheEntries = mem.Sweep()
	}

	return rep, nil
}

// Start schedules RunOnce on spec (standard cron syntax or descriptors such as "@every 30s")
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	c := cron.New(
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	if _, err := c.AddFunc(spec, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	slog.Info("sweeper started", "schedule", spec)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	slog.Info("sweeper stopped")
}

// Run starts the schedule and blocks until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context, spec string) error {
	if err := s.Start(ctx, spec); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	rep, err := s.RunOnce(ctx)
	if err != nil {
		slog.Error("sweep failed", "error", err)
		return
	}
	if len(rep.Closed) > 0 || rep.SessionsPurged > 0 {
		slog.Info("sweep finished",
			"questions_closed", len(rep.Closed),
			"sessions_purged", rep.SessionsPurged,
			"limiter_keys", rep.LimiterKeys,
			"cache_entries", rep.CacheEntries)
	}
}

// cronLogger routes cron's own logging to slog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
