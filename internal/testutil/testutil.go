// Package testutil provides common test helpers for Shanbot packages.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/BTreeMap/Shanbot/internal/models"
	"github.com/BTreeMap/Shanbot/internal/store"
)

// TB is the subset of testing.TB the assertions use.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// NewSQLiteStore opens a fresh SQLite store in a temp dir and closes it when the test ends.
func NewSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(t.TempDir(), "shanbot.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertAPIStatus decodes an APIResponse envelope and checks its status field.
func AssertAPIStatus(t TB, rr *httptest.ResponseRecorder, expected models.APIStatus) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode JSON response %q: %v", rr.Body.String(), err)
		return resp
	}
	if resp.Status != string(expected) {
		t.Errorf("expected status '%s', got '%s' (message: %s)", expected, resp.Status, resp.Message)
	}
	return resp
}

// CreateHTTPRequest creates an HTTP request with an optional JSON body for testing.
// A string body is sent as is so tests can post malformed JSON.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertScheduledCount checks how many scheduled responses have the given status.
func AssertScheduledCount(t TB, repo store.ScheduledResponseRepo, status models.ScheduleStatus, expected int, context string) {
	t.Helper()
	recs, err := repo.ListScheduledResponses(status, 0)
	if err != nil {
		t.Fatalf("%s: failed to list scheduled responses: %v", context, err)
		return
	}
	if len(recs) != expected {
		t.Errorf("%s: expected %d %s responses, got %d", context, expected, status, len(recs))
	}
}
