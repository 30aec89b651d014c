// Package dispatcher delivers scheduled replies once their send time has passed.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/Shanbot/internal/models"
	"github.com/BTreeMap/Shanbot/internal/store"
)

// Defaults for the polling loop.
const (
	DefaultPollInterval = 60 * time.Second
	DefaultBatchLimit   = 50
)

// UnknownOutcome is the last_error of a record whose delivery key was already claimed
// by an earlier attempt that never recorded its result.
const UnknownOutcome = "delivery outcome unknown"

// SendFunc performs the actual delivery of one scheduled reply.
type SendFunc func(ctx context.Context, rec models.ScheduledResponse) error

// DispatchReport summarises one pass over the due records.
type DispatchReport struct {
	Due     int
	Sent    int
	Failed  int
	Skipped int
}

// Dispatcher polls the scheduled response table and sends due replies at most once.
type Dispatcher struct {
	repo         store.ScheduledResponseRepo
	dedup        store.DeliveryDedupRepo
	send         SendFunc
	pollInterval time.Duration
	batchLimit   int
	now          func() time.Time
	afterSend    func(models.ScheduledResponse)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPollInterval sets how often due records are scanned.
func WithPollInterval(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.pollInterval = d
		}
	}
}

// WithBatchLimit caps the records handled per poll.
func WithBatchLimit(n int) Option {
	return func(dp *Dispatcher) {
		if n > 0 {
			dp.batchLimit = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(dp *Dispatcher) { dp.now = now }
}

// WithAfterSend registers a hook called after a record was sent and marked.
func WithAfterSend(fn func(models.ScheduledResponse)) Option {
	return func(dp *Dispatcher) { dp.afterSend = fn }
}

// New creates a Dispatcher.
func New(repo store.ScheduledResponseRepo, dedup store.DeliveryDedupRepo, send SendFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repo:         repo,
		dedup:        dedup,
		send:         send,
		pollInterval: DefaultPollInterval,
		batchLimit:   DefaultBatchLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DeliveryKey is the dedup key claimed before a record is sent.
func DeliveryKey(scheduleID int64) string {
	return fmt.Sprintf("schedule:%d", scheduleID)
}

// Run polls once immediately and then on every tick until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher.Run: starting", "pollInterval", d.pollInterval, "batchLimit", d.batchLimit)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchDue(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Dispatcher.Run: poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher.Run: stopping")
			return
		case <-ticker.C:
		}
	}
}

// DispatchDue handles every record due now, oldest send time first. Once ctx is cancelled no new
// send is started, but a send already in progress runs to completion and is recorded.
func (d *Dispatcher) DispatchDue(ctx context.Context) (DispatchReport, error) {
	var report DispatchReport

	due, err := d.repo.ListDueScheduledResponses(d.now().UTC(), d.batchLimit)
	if err != nil {
		return report, fmt.Errorf("list due scheduled responses: %w", err)
	}
	report.Due = len(due)

	sendCtx := context.WithoutCancel(ctx)
	for _, rec := range due {
		if ctx.Err() != nil {
			report.Skipped += report.Due - report.Sent - report.Failed - report.Skipped
			break
		}
		switch d.dispatchOne(sendCtx, rec) {
		case outcomeSent:
			report.Sent++
		case outcomeFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	if report.Due > 0 {
		slog.Info("Dispatcher.DispatchDue: pass complete", "due", report.Due, "sent", report.Sent,
			"failed", report.Failed, "skipped", report.Skipped)
	}
	return report, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
)

func (d *Dispatcher) dispatchOne(ctx context.Context, rec models.ScheduledResponse) outcome {
	claimed, err := d.dedup.ClaimDelivery(DeliveryKey(rec.ScheduleID), rec.ScheduleID)
	if err != nil {
		slog.Error("Dispatcher.dispatchOne: claim failed", "scheduleID", rec.ScheduleID, "error", err)
		return outcomeSkipped
	}
	if !claimed {
		slog.Warn("Dispatcher.dispatchOne: delivery already attempted", "scheduleID", rec.ScheduleID)
		if d.markFailed(rec.ScheduleID, UnknownOutcome) {
			return outcomeFailed
		}
		return outcomeSkipped
	}

	slog.Debug("Dispatcher.dispatchOne: sending", "scheduleID", rec.ScheduleID, "subscriberID", rec.UserSubscriberID)
	if err := d.send(ctx, rec); err != nil {
		slog.Error("Dispatcher.dispatchOne: send failed", "scheduleID", rec.ScheduleID, "error", err)
		if d.markFailed(rec.ScheduleID, err.Error()) {
			return outcomeFailed
		}
		return outcomeSkipped
	}

	sentAt := d.now().UTC()
	if err := d.repo.MarkScheduledResponseSent(rec.ScheduleID, sentAt); err != nil {
		d.logMarkError("sent", rec.ScheduleID, err)
		return outcomeSkipped
	}
	rec.Status = models.ScheduleStatusSent
	rec.SentAt = &sentAt
	slog.Debug("Dispatcher.dispatchOne: sent", "scheduleID", rec.ScheduleID, "subscriberID", rec.UserSubscriberID)
	if d.afterSend != nil {
		d.afterSend(rec)
	}
	return outcomeSent
}

func (d *Dispatcher) markFailed(id int64, msg string) bool {
	if err := d.repo.MarkScheduledResponseFailed(id, msg); err != nil {
		d.logMarkError("failed", id, err)
		return false
	}
	return true
}

func (d *Dispatcher) logMarkError(state string, id int64, err error) {
	if errors.Is(err, store.ErrConflict) {
		slog.Warn("Dispatcher: record already left scheduled", "scheduleID", id, "target", state)
		return
	}
	slog.Error("Dispatcher: mark failed", "scheduleID", id, "target", state, "error", err)
}
