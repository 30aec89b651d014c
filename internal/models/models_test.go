package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func validScheduled() ScheduledResponse {
	return ScheduledResponse{
		UserSubscriberID:         "123",
		ResponseText:             "Hey! How's the training going?",
		IncomingMessageTimestamp: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		CalculatedDelayMinutes:   4,
	}
}

func TestScheduledResponse_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ScheduledResponse)
		want   error
	}{
		{"valid", func(*ScheduledResponse) {}, nil},
		{"missing subscriber", func(r *ScheduledResponse) { r.UserSubscriberID = " " }, ErrEmptySubscriberID},
		{"missing text", func(r *ScheduledResponse) { r.ResponseText = "" }, ErrEmptyResponseText},
		{"text too long", func(r *ScheduledResponse) { r.ResponseText = strings.Repeat("a", MaxResponseLength+1) }, ErrResponseTooLong},
		{"missing incoming time", func(r *ScheduledResponse) { r.IncomingMessageTimestamp = time.Time{} }, ErrMissingIncomingTime},
		{"negative delay", func(r *ScheduledResponse) { r.CalculatedDelayMinutes = -1 }, ErrNegativeDelay},
		{"bad status", func(r *ScheduledResponse) { r.Status = "pending" }, ErrInvalidScheduleState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validScheduled()
			tt.mutate(&r)
			if got := r.Validate(); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestManyChatWebhook_Decode(t *testing.T) {
	body := `{"id":"987","custom_fields":{"CONVERSATION":"User: hi\nShannon: hey!","INSTAGRAM_USERNAME":"plantlifter"}}`
	var w ManyChatWebhook
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if w.CustomFields.InstagramUsername != "plantlifter" {
		t.Errorf("InstagramUsername = %q", w.CustomFields.InstagramUsername)
	}

	empty := ManyChatWebhook{ID: "987"}
	if err := empty.Validate(); err != ErrEmptyConversation {
		t.Errorf("Validate() on empty conversation = %v", err)
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	if r := Error("boom"); r.Status != "error" || r.Message != "boom" || r.Result != nil {
		t.Errorf("Error() = %+v", r)
	}
	if r := Scheduled(WebhookResult{Mode: "auto"}); r.Status != "scheduled" {
		t.Errorf("Scheduled() status = %q", r.Status)
	}
	if r := Queued(nil); r.Status != "queued" {
		t.Errorf("Queued() status = %q", r.Status)
	}
	data, err := json.Marshal(Success(map[string]int{"n": 1}))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"status":"ok","result":{"n":1}}` {
		t.Errorf("Success JSON = %s", data)
	}
}

func TestStatusValidation(t *testing.T) {
	for _, s := range []ScheduleStatus{ScheduleStatusScheduled, ScheduleStatusSent, ScheduleStatusFailed} {
		if !IsValidScheduleStatus(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	if IsValidScheduleStatus("retrying") {
		t.Error("unknown schedule status accepted")
	}
	if !IsValidReviewStatus(ReviewStatusApproved) || IsValidReviewStatus("maybe") {
		t.Error("review status validation wrong")
	}
}
