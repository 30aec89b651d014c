package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/Shanbot/internal/bot"
	"github.com/BTreeMap/Shanbot/internal/lockfile"
	"github.com/BTreeMap/Shanbot/internal/models"
)

// userMessageLimit is how many recent messages /users/{id} returns.
const userMessageLimit = 50

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"version":   s.version,
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"auto_mode": s.engine.AutoMode(),
	}))
}

func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var hook models.ManyChatWebhook
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&hook); err != nil {
		slog.Warn("Server.webhookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	slog.Debug("Server.webhookHandler: webhook received", "subscriberID", hook.ID)

	result, err := s.engine.HandleWebhook(r.Context(), hook)
	if err != nil {
		slog.Error("Server.webhookHandler: processing failed", "subscriberID", hook.ID, "error", err)
		writeError(w, err, "Failed to process webhook")
		return
	}

	switch result.Mode {
	case bot.ModeAuto:
		writeJSONResponse(w, http.StatusOK, models.Scheduled(result))
	case bot.ModeReview:
		writeJSONResponse(w, http.StatusOK, models.Queued(result))
	default:
		writeJSONResponse(w, http.StatusOK, models.Recorded(result))
	}
}

func (s *Server) globalAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.tracker.Global()))
}

func (s *Server) listConversationsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.tracker.Conversations()))
}

func (s *Server) conversationHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, ok := s.tracker.Snapshot(id)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(conv))
}

func (s *Server) engagementHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	eng, ok := s.tracker.Engagement(id)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(eng))
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.export(); err != nil {
		var held *lockfile.LockError
		if errors.As(err, &held) {
			slog.Info("Server.exportHandler: export already in progress", "holder", held.Holder)
			writeJSONResponse(w, http.StatusConflict, models.Error("Export skipped: another export is in progress"))
			return
		}
		slog.Error("Server.exportHandler: export failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Analytics export failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Analytics exported", map[string]string{"path": s.tracker.Path()}))
}

func (s *Server) userHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := s.st.GetUser(id)
	if err != nil {
		writeError(w, err, "Failed to load user")
		return
	}
	msgs, err := s.st.ListMessages(id, userMessageLimit)
	if err != nil {
		slog.Error("Server.userHandler: list messages failed", "subscriberID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load messages"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"user":     user,
		"messages": msgs,
	}))
}

var errBadLimit = errors.New("limit must be a positive integer")

// queryLimit reads ?limit=, returning 0 (store default) when absent.
func queryLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errBadLimit
	}
	return n, nil
}
