package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/Shanbot/internal/models"
)

func scheduleIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid schedule id"))
		return 0, false
	}
	return id, true
}

func (s *Server) listScheduledHandler(w http.ResponseWriter, r *http.Request) {
	status := models.ScheduleStatus(r.URL.Query().Get("status"))
	if status != "" && !models.IsValidScheduleStatus(status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid status filter"))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	recs, err := s.st.ListScheduledResponses(status, limit)
	if err != nil {
		slog.Error("Server.listScheduledHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list scheduled responses"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(recs))
}

func (s *Server) getScheduledHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}
	rec, err := s.st.GetScheduledResponse(id)
	if err != nil {
		writeError(w, err, "Failed to load scheduled response")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rec))
}

func (s *Server) requeueHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}
	newID, err := s.planner.Requeue(id)
	if err != nil {
		slog.Warn("Server.requeueHandler: requeue refused", "scheduleID", id, "error", err)
		writeError(w, err, "Failed to requeue")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Scheduled(map[string]int64{"schedule_id": newID, "requeued_from": id}))
}
