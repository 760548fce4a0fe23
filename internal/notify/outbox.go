// Package notify drains the notification outbox. Rows are written by the
// waitlist matcher in the same database as the state change that caused
// them; the dispatcher delivers them out of band with retries.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"salonbook/internal/metrics"
	"salonbook/internal/models"
)

// Sender delivers one notification to the client. Implementations are
// expected to be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, n *models.Notification) error
}

// LogSender writes notifications to the log. It stands in for an SMS or
// messenger gateway in development and tests.
type LogSender struct {
	Logger *zerolog.Logger
}

func (s *LogSender) Send(_ context.Context, n *models.Notification) error {
	s.Logger.Info().
		Str("phone", n.ClientPhone).
		Str("client", n.ClientName).
		Str("message", n.Message).
		Msg("notification delivered")
	return nil
}

// Store is the outbox storage slice.
type Store interface {
	PendingNotifications(ctx context.Context, limit int) ([]models.Notification, error)
	MarkNotificationSent(ctx context.Context, id int64) error
	MarkNotificationFailed(ctx context.Context, id int64, sendErr string, terminal bool) error
	CountPendingNotifications(ctx context.Context) (int64, error)
}

// Dispatcher polls the outbox and pushes pending notifications through the
// sender under a rate limit. A delivery failure increments the retry count;
// past MaxRetries the row is parked as failed and never retried.
type Dispatcher struct {
	store      Store
	sender     Sender
	limiter    *rate.Limiter
	maxRetries int
	batchSize  int
	logger     *zerolog.Logger
}

type DispatcherOptions struct {
	RatePerSecond float64
	Burst         int
	MaxRetries    int
	BatchSize     int
}

func NewDispatcher(store Store, sender Sender, opts DispatcherOptions, logger *zerolog.Logger) *Dispatcher {
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Dispatcher{
		store:      store,
		sender:     sender,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		maxRetries: opts.MaxRetries,
		batchSize:  opts.BatchSize,
		logger:     logger,
	}
}

// DispatchPending delivers one batch. Returns the number sent.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	pending, err := d.store.PendingNotifications(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range pending {
		n := &pending[i]
		if err := d.limiter.Wait(ctx); err != nil {
			return sent, err
		}
		if err := d.sender.Send(ctx, n); err != nil {
			terminal := n.RetryCount+1 >= d.maxRetries
			if markErr := d.store.MarkNotificationFailed(ctx, n.ID, err.Error(), terminal); markErr != nil {
				d.logger.Error().Err(markErr).Int64("id", n.ID).Msg("marking notification failed")
			}
			if terminal {
				metrics.IncNotificationSent("failed")
				d.logger.Error().Err(err).
					Int64("id", n.ID).
					Str("phone", n.ClientPhone).
					Msg("notification dropped after retries")
			} else {
				d.logger.Warn().Err(err).
					Int64("id", n.ID).
					Int("retry", n.RetryCount+1).
					Msg("notification send failed, will retry")
			}
			continue
		}
		if err := d.store.MarkNotificationSent(ctx, n.ID); err != nil {
			d.logger.Error().Err(err).Int64("id", n.ID).Msg("marking notification sent")
			continue
		}
		metrics.IncNotificationSent("sent")
		sent++
	}

	if depth, err := d.store.CountPendingNotifications(ctx); err == nil {
		metrics.SetOutboxDepth(depth)
	}
	return sent, nil
}

// Run polls the outbox on a fixed interval until the context ends.
func (d *Dispatcher) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.DispatchPending(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error().Err(err).Msg("outbox dispatch failed")
			}
		}
	}
}
