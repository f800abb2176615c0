// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danribes/pfm-solana-rust-sub010/cache"
	"github.com/danribes/pfm-solana-rust-sub010/cliparse"
	"github.com/danribes/pfm-solana-rust-sub010/db"
	"github.com/danribes/pfm-solana-rust-sub010/events"
	"github.com/danribes/pfm-solana-rust-sub010/ledger"
	"github.com/danribes/pfm-solana-rust-sub010/metrics"
	"github.com/danribes/pfm-solana-rust-sub010/middleware"
	"github.com/danribes/pfm-solana-rust-sub010/pda"
	"github.com/danribes/pfm-solana-rust-sub010/router"
	"github.com/danribes/pfm-solana-rust-sub010/session"
	"github.com/danribes/pfm-solana-rust-sub010/worker"
)

const (
	// loginLimit bounds wallet auth requests per client IP per minute
	loginLimit = 30

	shutdownTimeout = 10 * time.Second
	cachePrefix     = "pfm:"
)

// openDB connects and makes sure the schema exists
func openDB(ctx context.Context, cfg cliparse.Config) (*sql.DB, error) {
	conn, err := db.Open(ctx, cfg.DriverName(), cfg.DatabaseURL, db.DefaultRetry)
	if err != nil {
		return nil, err
	}
	if err := db.CreateSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("schema creation failed: %w", err)
	}
	slog.Info("Database schema ready", "driver", cfg.DriverName(), "tables", len(db.Tables))
	return conn, nil
}

// openCache returns Redis when configured, otherwise an in-process store
func openCache(ctx context.Context, cfg cliparse.Config) (cache.Store, func(), error) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryStore(), func() {}, nil
	}
	rs, err := cache.NewRedisStore(ctx, cfg.RedisURL, cachePrefix)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Using Redis cache")
	return rs, func() { rs.Close() }, nil
}

// withKafka appends a Kafka publisher to pubs when brokers are configured
func withKafka(cfg cliparse.Config, pubs events.Fanout) (events.Fanout, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		return pubs, func() {}, nil
	}
	kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Publishing ledger events to Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	return append(pubs, kp), func() {
		if err := kp.Close(); err != nil {
			slog.Warn("kafka writer close failed", "error", err)
		}
	}, nil
}

func runServe(ctx context.Context, cfg cliparse.Config) error {
	conn, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	store, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	deriver, err := pda.NewDeriver(cfg.ProgramID)
	if err != nil {
		return err
	}

	m := metrics.New()
	hub := events.NewHub()
	pubs, closeKafka, err := withKafka(cfg, events.Fanout{hub, m})
	if err != nil {
		return err
	}
	defer closeKafka()

	svc := ledger.NewService(conn, deriver, ledger.WithPublisher(pubs))
	sessions := session.NewStore(conn, cfg.SessionSecret, cfg.SessionTTL)
	challengeLimiter := middleware.NewKeyedLimiter(cfg.ChallengeLimit, time.Minute)
	loginLimiter := middleware.NewKeyedLimiter(loginLimit, time.Minute)

	mux := router.NewRouter(router.Deps{
		DB:           conn,
		Config:       cfg,
		Ledger:       svc,
		Sessions:     sessions,
		Challenges:   session.NewChallenges(store, challengeLimiter, cfg.NonceTTL),
		Cache:        store,
		Hub:          hub,
		Metrics:      m,
		LoginLimiter: loginLimiter,
	})

	server := &http.Server{
		Handler:           middleware.CORS(mux),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweeper := worker.New(svc, sessions, store,
		worker.WithMetrics(m),
		worker.WithLimiters(worker.DefaultLimiterIdle, challengeLimiter, loginLimiter),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx, cfg.SweepSchedule)
	})
	g.Go(func() error {
		slog.Info("Listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("Server closed", "error", err)
	return err
}

func runMigrate(ctx context.Context, cfg cliparse.Config) error {
	conn, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	return conn.Close()
}

// runSweep performs one sweep without the live event hub
func runSweep(ctx context.Context, cfg cliparse.Config) error {
	conn, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	store, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	deriver, err := pda.NewDeriver(cfg.ProgramID)
	if err != nil {
		return err
	}
	pubs, closeKafka, err := withKafka(cfg, events.Fanout{events.LogPublisher{}})
	if err != nil {
		return err
	}
	defer closeKafka()

	svc := ledger.NewService(conn, deriver, ledger.WithPublisher(pubs))
	sessions := session.NewStore(conn, cfg.SessionSecret, cfg.SessionTTL)

	rep, err := worker.New(svc, sessions, store).RunOnce(ctx)
	if err != nil {
		return err
	}
	slog.Info("Sweep complete", "questions_closed", len(rep.Closed), "sessions_purged", rep.SessionsPurged)
	return nil
}
