// Package client implements the poll-based reconciliation loop that
// merges server-side conversation state into local state without
// duplicates. There is no push channel; this loop is the delivery
// mechanism for asynchronous analysis results.
package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/agriclip/chat-service/internal/config"
)

// ErrPollTimeout is returned once the polling budget is exhausted; the
// caller surfaces it as a terminal "analysis unavailable" state rather
// than retrying forever.
var ErrPollTimeout = errors.New("polling budget exhausted")

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 30
)

// Poller runs a tick function at a fixed interval until the tick
// reports done, the attempt budget runs out, or the context is
// cancelled. An explicit loop rather than re-armed timers, so
// termination is structural.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	Log         *zap.SugaredLogger
}

func NewPoller(interval time.Duration, maxAttempts int, log *zap.SugaredLogger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Poller{Interval: interval, MaxAttempts: maxAttempts, Log: log}
}

// NewPollerFromConfig builds a poller from the classifier section of the
// service config.
func NewPollerFromConfig(c *config.Classifier, log *zap.SugaredLogger) *Poller {
	return NewPoller(c.PollInterval(), c.PollMaxAttempts, log)
}

func (p *Poller) Run(ctx context.Context, tick func(ctx context.Context) (done bool, err error)) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		done, err := tick(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if p.Log != nil {
		p.Log.Warnw("polling budget exhausted", "attempts", p.MaxAttempts)
	}
	return ErrPollTimeout
}
