package analytics

import (
	"reflect"
	"testing"
	"time"
)

func TestTracker_Engagement(t *testing.T) {
	tr := NewTracker("", WithClock(fixedClock))
	if _, ok := tr.Engagement("nobody"); ok {
		t.Fatal("unknown subscriber should report ok=false")
	}

	record(t, tr, "A", "Are you vegan?", "ai", 0)
	record(t, tr, "A", "yes! and I go to the gym", "user", 90*time.Second)
	record(t, tr, "A", "Nice, keep it up.", "ai", 2*time.Minute)

	e, ok := tr.Engagement("A")
	if !ok {
		t.Fatal("expected engagement for A")
	}
	if e.ResponderCategory != CategoryLowResponder {
		t.Errorf("ResponderCategory = %q", e.ResponderCategory)
	}
	if e.QuestionResponseRate != 1 {
		t.Errorf("QuestionResponseRate = %v, want 1", e.QuestionResponseRate)
	}
	if e.TypicalResponseBucket != "0-2 minutes" {
		t.Errorf("TypicalResponseBucket = %q", e.TypicalResponseBucket)
	}
	if !reflect.DeepEqual(e.Topics, []string{"fitness", "vegan"}) {
		t.Errorf("Topics = %v", e.Topics)
	}
	if e.TotalMessages != 3 || e.UserMessages != 1 || e.AIMessages != 2 {
		t.Errorf("counts = %+v", e)
	}
}

func TestEngagementOf_EmptyRecord(t *testing.T) {
	e := EngagementOf(Conversation{Metadata: Metadata{SubscriberID: "Z"}})
	if e.ResponderCategory != CategoryNoResponder || e.QuestionResponseRate != 0 {
		t.Errorf("unexpected engagement for empty record: %+v", e)
	}
	if e.Topics == nil || e.Milestones == nil {
		t.Error("Topics and Milestones should be non-nil for stable JSON")
	}
}
