package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/Shanbot/internal/models"
)

func (s *Server) listReviewsHandler(w http.ResponseWriter, r *http.Request) {
	status := models.ReviewStatus(r.URL.Query().Get("status"))
	if status != "" && !models.IsValidReviewStatus(status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid status filter"))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	reviews, err := s.st.ListReviews(status, limit)
	if err != nil {
		slog.Error("Server.listReviewsHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list reviews"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(reviews))
}

func (s *Server) getReviewHandler(w http.ResponseWriter, r *http.Request) {
	review, err := s.st.GetReview(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "Failed to load review")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(review))
}

func (s *Server) approveReviewHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	id := chi.URLParam(r, "id")

	// The body is optional; an empty one approves the proposed text as is.
	var decision models.ReviewDecision
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&decision); err != nil && !errors.Is(err, io.EOF) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if len(decision.Response) > models.MaxResponseLength {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrResponseTooLong.Error()))
		return
	}

	review, err := s.engine.ApproveReview(id, decision.Response)
	if err != nil {
		slog.Warn("Server.approveReviewHandler: approve failed", "reviewID", id, "error", err)
		writeError(w, err, "Failed to approve review")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Scheduled(review))
}

func (s *Server) rejectReviewHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	review, err := s.engine.RejectReview(id)
	if err != nil {
		slog.Warn("Server.rejectReviewHandler: reject failed", "reviewID", id, "error", err)
		writeError(w, err, "Failed to reject review")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(review))
}
