package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/Shanbot/internal/models"
	"github.com/BTreeMap/Shanbot/internal/scheduler"
	"github.com/BTreeMap/Shanbot/internal/store"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so an encoding failure can still change the status code.
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeError maps domain errors to HTTP status codes. Unknown errors become 500 with a generic
// message so internals never leak to callers.
func writeError(w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = fallback
	}
	writeJSONResponse(w, status, models.Error(msg))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, scheduler.ErrNotRequeueable):
		return http.StatusConflict
	case errors.Is(err, models.ErrEmptySubscriberID),
		errors.Is(err, models.ErrEmptyConversation),
		errors.Is(err, models.ErrEmptyResponseText),
		errors.Is(err, models.ErrResponseTooLong),
		errors.Is(err, models.ErrMissingIncomingTime),
		errors.Is(err, models.ErrNegativeDelay):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
