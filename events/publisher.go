// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danribes/pfm-solana-rust-sub010/models"
)

// Publisher delivers a committed ledger event somewhere
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// Fanout publishes to every publisher and joins their errors
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev models.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes each event to the structured log
type LogPublisher struct {
	Logger *slog.Logger
}

func (l LogPublisher) Publish(ctx context.Context, ev models.Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "ledger event",
		"kind", ev.Kind,
		"id", ev.ID,
		"community", ev.Community,
		"question", ev.Question,
		"actor", ev.Actor,
	)
	return nil
}
