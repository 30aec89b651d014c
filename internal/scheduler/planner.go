package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/Shanbot/internal/analytics"
	"github.com/BTreeMap/Shanbot/internal/models"
	"github.com/BTreeMap/Shanbot/internal/store"
	"github.com/BTreeMap/Shanbot/internal/util"
)

// ErrNotRequeueable is returned when requeueing a record that has not failed.
var ErrNotRequeueable = errors.New("only failed scheduled responses can be requeued")

// Planner computes reply delays from analytics and persists scheduled responses.
type Planner struct {
	tracker *analytics.Tracker
	repo    store.ScheduledResponseRepo
	policy  DelayPolicy
	now     func() time.Time
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithPolicy overrides the delay policy.
func WithPolicy(p DelayPolicy) PlannerOption {
	return func(pl *Planner) { pl.policy = p }
}

// WithClock overrides the clock used for requeued records.
func WithClock(now func() time.Time) PlannerOption {
	return func(pl *Planner) { pl.now = now }
}

// NewPlanner creates a Planner reading reply history from tracker and writing to repo.
func NewPlanner(tracker *analytics.Tracker, repo store.ScheduledResponseRepo, opts ...PlannerOption) *Planner {
	p := &Planner{
		tracker: tracker,
		repo:    repo,
		policy:  DefaultDelayPolicy(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.policy = p.policy.withDefaults()
	return p
}

// ComputeDelay returns the reply delay in whole minutes for a message received at incomingTimestamp.
// Unknown subscribers get the default bucket.
func (p *Planner) ComputeDelay(incomingTimestamp, subscriberID string) (int, error) {
	incoming, err := util.ParseTimestamp(incomingTimestamp)
	if err != nil {
		return 0, err
	}
	return p.delayFor(subscriberID, incoming), nil
}

func (p *Planner) delayFor(subscriberID string, incoming time.Time) int {
	var conv analytics.Conversation
	if p.tracker != nil {
		if c, ok := p.tracker.Snapshot(subscriberID); ok {
			conv = c
		}
	}
	return DelayMinutes(ComputeDelay(conv, incoming, p.policy))
}

// Schedule validates rec, fills in the delay when CalculatedDelayMinutes is zero, sets the send
// time to the incoming timestamp plus the delay and persists it with status scheduled. A send
// time already in the past simply becomes due on the next dispatcher poll.
func (p *Planner) Schedule(rec models.ScheduledResponse) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, fmt.Errorf("invalid scheduled response: %w", err)
	}
	rec.IncomingMessageTimestamp = rec.IncomingMessageTimestamp.UTC()
	if rec.CalculatedDelayMinutes == 0 {
		rec.CalculatedDelayMinutes = p.delayFor(rec.UserSubscriberID, rec.IncomingMessageTimestamp)
	}
	rec.ScheduledSendTime = rec.IncomingMessageTimestamp.Add(time.Duration(rec.CalculatedDelayMinutes) * time.Minute)
	rec.Status = models.ScheduleStatusScheduled

	id, err := p.repo.CreateScheduledResponse(rec)
	if err != nil {
		slog.Error("Planner.Schedule: persist failed", "subscriberID", rec.UserSubscriberID, "error", err)
		return 0, err
	}
	slog.Info("Planner.Schedule: reply scheduled", "scheduleID", id, "subscriberID", rec.UserSubscriberID,
		"delayMinutes", rec.CalculatedDelayMinutes, "sendAt", rec.ScheduledSendTime)
	return id, nil
}

// Requeue copies a failed record into a new scheduled record that is due immediately.
// The failed record stays as it is for audit.
func (p *Planner) Requeue(id int64) (int64, error) {
	old, err := p.repo.GetScheduledResponse(id)
	if err != nil {
		return 0, err
	}
	if old.Status != models.ScheduleStatusFailed {
		return 0, fmt.Errorf("schedule %d is %s: %w", id, old.Status, ErrNotRequeueable)
	}

	now := p.now().UTC()
	rec := *old
	rec.ScheduleID = 0
	rec.Status = models.ScheduleStatusScheduled
	rec.SentAt = nil
	rec.LastError = ""
	rec.ScheduledSendTime = now
	rec.CalculatedDelayMinutes = 0

	newID, err := p.repo.CreateScheduledResponse(rec)
	if err != nil {
		return 0, err
	}
	slog.Info("Planner.Requeue: failed reply requeued", "from", id, "scheduleID", newID)
	return newID, nil
}
