package scheduler

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/Shanbot/internal/analytics"
	"github.com/BTreeMap/Shanbot/internal/models"
	"github.com/BTreeMap/Shanbot/internal/store"
	"github.com/BTreeMap/Shanbot/internal/util"
)

func newTestPlanner(t *testing.T, tracker *analytics.Tracker, r float64) (*Planner, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(t.TempDir(), "planner.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	policy := DefaultDelayPolicy()
	policy.Rand = fixedRand(r)
	return NewPlanner(tracker, s, WithPolicy(policy), WithClock(func() time.Time { return t0.Add(time.Hour) })), s
}

func TestPlanner_ComputeDelay(t *testing.T) {
	tracker := analytics.NewTracker("")
	for _, m := range []analytics.Message{
		{Text: "What's your goal?", Type: "ai", Timestamp: util.FormatTimestamp(t0)},
		{Text: "lose weight", Type: "user", Timestamp: util.FormatTimestamp(t0.Add(12 * time.Minute))},
	} {
		if _, err := tracker.RecordMessage("42", m); err != nil {
			t.Fatal(err)
		}
	}
	p, _ := newTestPlanner(t, tracker, 0)

	got, err := p.ComputeDelay(util.FormatTimestamp(t0.Add(12*time.Minute)), "42")
	if err != nil {
		t.Fatalf("ComputeDelay failed: %v", err)
	}
	if got != 10 {
		t.Errorf("ComputeDelay = %d minutes, want 10 (low end of 10-20 minutes)", got)
	}

	unknown, err := p.ComputeDelay(util.FormatTimestamp(t0), "nobody")
	if err != nil || unknown != 2 {
		t.Errorf("unknown subscriber delay = %d, %v; want 2", unknown, err)
	}

	if _, err := p.ComputeDelay("not a time", "42"); !errors.Is(err, util.ErrTimestampParse) {
		t.Errorf("bad timestamp error = %v", err)
	}
}

func TestPlanner_Schedule(t *testing.T) {
	p, s := newTestPlanner(t, analytics.NewTracker(""), 0.5)

	id, err := p.Schedule(models.ScheduledResponse{
		UserSubscriberID:         "42",
		UserIGUsername:           "lifter",
		ResponseText:             "Nice! What does your week look like?",
		IncomingMessageText:      "I train 3x a week",
		IncomingMessageTimestamp: t0,
	})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	rec, err := s.GetScheduledResponse(id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.CalculatedDelayMinutes != 4 {
		t.Errorf("CalculatedDelayMinutes = %d, want 4", rec.CalculatedDelayMinutes)
	}
	if !rec.ScheduledSendTime.Equal(t0.Add(4 * time.Minute)) {
		t.Errorf("ScheduledSendTime = %v, want incoming + 4m", rec.ScheduledSendTime)
	}
	if rec.Status != models.ScheduleStatusScheduled {
		t.Errorf("Status = %q", rec.Status)
	}
}

func TestPlanner_ScheduleKeepsExplicitDelay(t *testing.T) {
	p, s := newTestPlanner(t, nil, 0)
	id, err := p.Schedule(models.ScheduledResponse{
		UserSubscriberID:         "42",
		ResponseText:             "hey",
		IncomingMessageTimestamp: t0,
		CalculatedDelayMinutes:   45,
	})
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := s.GetScheduledResponse(id)
	if !rec.ScheduledSendTime.Equal(t0.Add(45 * time.Minute)) {
		t.Errorf("ScheduledSendTime = %v", rec.ScheduledSendTime)
	}
}

func TestPlanner_ScheduleRejectsInvalid(t *testing.T) {
	p, s := newTestPlanner(t, nil, 0)
	if _, err := p.Schedule(models.ScheduledResponse{UserSubscriberID: "42", IncomingMessageTimestamp: t0}); !errors.Is(err, models.ErrEmptyResponseText) {
		t.Errorf("Schedule error = %v, want ErrEmptyResponseText", err)
	}
	if all, _ := s.ListScheduledResponses("", 0); len(all) != 0 {
		t.Errorf("invalid record persisted: %+v", all)
	}
}

func TestPlanner_Requeue(t *testing.T) {
	p, s := newTestPlanner(t, nil, 0)
	id, err := p.Schedule(models.ScheduledResponse{UserSubscriberID: "42", ResponseText: "hey", IncomingMessageTimestamp: t0})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Requeue(id); !errors.Is(err, ErrNotRequeueable) {
		t.Errorf("Requeue of scheduled record = %v, want ErrNotRequeueable", err)
	}
	if err := s.MarkScheduledResponseFailed(id, "manychat down"); err != nil {
		t.Fatal(err)
	}

	newID, err := p.Requeue(id)
	if err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	if newID == id {
		t.Fatal("Requeue must create a new record")
	}
	rec, _ := s.GetScheduledResponse(newID)
	if rec.Status != models.ScheduleStatusScheduled || rec.LastError != "" || rec.ResponseText != "hey" {
		t.Errorf("requeued record = %+v", rec)
	}
	if !rec.ScheduledSendTime.Equal(t0.Add(time.Hour)) {
		t.Errorf("requeued record should be due now, got %v", rec.ScheduledSendTime)
	}
	old, _ := s.GetScheduledResponse(id)
	if old.Status != models.ScheduleStatusFailed {
		t.Errorf("original record changed: %+v", old)
	}

	if _, err := p.Requeue(9999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Requeue missing = %v", err)
	}
}
