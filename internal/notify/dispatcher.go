package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/worker"
)

// Backends are the delivery targets. A nil backend is skipped.
type Backends struct {
	List  Deliverer // email list provider
	Ads   Deliverer // ad attribution endpoint
	Audit Deliverer // intake audit log
}

// Config holds dispatcher configuration.
type Config struct {
	Concurrency int
	QueueSize   int
	MaxAttempts int
	BackoffUnit time.Duration
}

// Dispatcher implements Sinks by queueing deliveries on a worker pool.
type Dispatcher struct {
	pool        *worker.Pool
	backends    Backends
	maxAttempts int
	backoffUnit time.Duration
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher. Call Start before events can be
// delivered.
func NewDispatcher(cfg Config, backends Backends, logger *slog.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = constants.NotifyMaxAttempts
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = constants.NotifyBackoffUnit
	}
	logger = logger.With("component", "notify")
	return &Dispatcher{
		pool:        worker.New(worker.Config{Concurrency: cfg.Concurrency, QueueSize: cfg.QueueSize}, logger),
		backends:    backends,
		maxAttempts: cfg.MaxAttempts,
		backoffUnit: cfg.BackoffUnit,
		logger:      logger,
	}
}

// Start begins delivering queued events.
func (d *Dispatcher) Start(ctx context.Context) { d.pool.Start(ctx) }

// Stop delivers what is queued and stops the workers.
func (d *Dispatcher) Stop() { d.pool.Stop() }

// Idle reports whether no deliveries are queued or running.
func (d *Dispatcher) Idle() bool { return d.pool.Pending() == 0 }

// CaptureEmailLead implements Sinks.
func (d *Dispatcher) CaptureEmailLead(ctx context.Context, lead Lead) {
	d.enqueue("list", d.backends.List, EventLeadCaptured, lead)
	d.enqueue("ads", d.backends.Ads, EventLeadCaptured, adEvent{
		Event:       "lead",
		SessionID:   lead.SessionID,
		ClickID:     lead.ClickID,
		UTMSource:   lead.UTMSource,
		UTMCampaign: lead.UTMCampaign,
		At:          lead.At,
	})
}

// LogIntake implements Sinks.
func (d *Dispatcher) LogIntake(ctx context.Context, rec IntakeRecord) {
	d.enqueue("audit", d.backends.Audit, EventIntakeLogged, rec)
}

// TrackConversion implements Sinks.
func (d *Dispatcher) TrackConversion(ctx context.Context, conv Conversion) {
	d.enqueue("ads", d.backends.Ads, EventPurchase, adEvent{
		Event:       "purchase",
		SessionID:   conv.SessionID,
		ClickID:     conv.ClickID,
		UTMSource:   conv.UTMSource,
		UTMCampaign: conv.UTMCampaign,
		Value:       conv.AmountCents,
		Currency:    conv.Currency,
		At:          conv.At,
	})
	d.enqueue("audit", d.backends.Audit, EventPaymentPaid, conv)
}

func (d *Dispatcher) enqueue(name string, target Deliverer, eventType string, payload any) {
	if target == nil {
		return
	}
	ok := d.pool.Submit(worker.Job{
		Name: name + ":" + eventType,
		Run: func(ctx context.Context) error {
			return d.deliver(ctx, name, target, eventType, payload)
		},
	})
	if !ok {
		d.logger.Warn("notification queue full, event dropped", "sink", name, "type", eventType)
	}
}

// deliver retries with attempt² backoff (1, 4, 9 units).
func (d *Dispatcher) deliver(ctx context.Context, name string, target Deliverer, eventType string, payload any) error {
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		lastErr = target.Deliver(ctx, eventType, payload)
		if lastErr == nil {
			return nil
		}
		d.logger.Debug("delivery attempt failed", "sink", name, "type", eventType, "attempt", attempt, "error", lastErr)
		if attempt == d.maxAttempts {
			break
		}

		timer := time.NewTimer(time.Duration(attempt*attempt) * d.backoffUnit)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	d.logger.Error("notification delivery failed", "sink", name, "type", eventType, "attempts", d.maxAttempts, "error", lastErr)
	return nil
}
