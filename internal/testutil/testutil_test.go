package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/Shanbot/internal/models"
)

type mockTestingT struct {
	failed   bool
	errorMsg string
}

func (m *mockTestingT) Helper() {}

func (m *mockTestingT) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Fatalf(format string, args ...interface{}) {
	m.Errorf(format, args...)
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{"matching status codes", 200, 200, false},
		{"different status codes", 200, 404, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")
			if mockT.failed != tt.shouldFail {
				t.Errorf("failed = %v, want %v (%s)", mockT.failed, tt.shouldFail, mockT.errorMsg)
			}
		})
	}
}

func TestAssertAPIStatus(t *testing.T) {
	tests := []struct {
		name       string
		jsonBody   string
		expected   models.APIStatus
		shouldFail bool
	}{
		{"matching status", `{"status":"scheduled","result":{"mode":"auto"}}`, models.APIStatusScheduled, false},
		{"different status", `{"status":"error","message":"boom"}`, models.APIStatusOK, true},
		{"invalid JSON", `{"status":}`, models.APIStatusOK, true},
		{"missing status field", `{"result":1}`, models.APIStatusOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			rr := httptest.NewRecorder()
			rr.Body.WriteString(tt.jsonBody)

			resp := AssertAPIStatus(mockT, rr, tt.expected)
			if mockT.failed != tt.shouldFail {
				t.Errorf("failed = %v, want %v (%s)", mockT.failed, tt.shouldFail, mockT.errorMsg)
			}
			if !tt.shouldFail && resp.Result == nil {
				t.Error("expected result to be decoded")
			}
		})
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
		want string
	}{
		{"no body", nil, ""},
		{"raw string", "{not json", "{not json"},
		{"struct body", models.ReviewDecision{Response: "hi"}, "{\"response\":\"hi\"}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateHTTPRequest(t, http.MethodPost, "/reviews/rv_1/approve", tt.body)
			data, err := io.ReadAll(req.Body)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("body = %q, want %q", data, tt.want)
			}
			if req.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", req.Header.Get("Content-Type"))
			}
		})
	}
}

func TestNewSQLiteStoreAndScheduledCount(t *testing.T) {
	st := NewSQLiteStore(t)
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	_, err := st.CreateScheduledResponse(models.ScheduledResponse{
		UserSubscriberID:         "42",
		ResponseText:             "hey!",
		IncomingMessageTimestamp: at,
		CalculatedDelayMinutes:   2,
		ScheduledSendTime:        at.Add(2 * time.Minute),
		Status:                   models.ScheduleStatusScheduled,
	})
	if err != nil {
		t.Fatalf("CreateScheduledResponse failed: %v", err)
	}

	AssertScheduledCount(t, st, models.ScheduleStatusScheduled, 1, "after create")

	mockT := &mockTestingT{}
	AssertScheduledCount(mockT, st, models.ScheduleStatusSent, 1, "no sent yet")
	if !mockT.failed {
		t.Error("expected count mismatch to fail")
	}
}
