package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/campusmarket/internal/service/review"
)

type createReviewRequest struct {
	TransactionID string `json:"transaction_id"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
}

type respondReviewRequest struct {
	Text string `json:"text"`
}

// handleReviewCreate — POST /api/reviews.
func (s *Server) handleReviewCreate(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := s.reviews.Create(r.Context(), CallerID(r.Context()), review.CreateInput{
		TransactionID: req.TransactionID,
		Rating:        req.Rating,
		Comment:       req.Comment,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleReviewList — GET /api/reviews?user_id= | item_id=. Без параметров
// возвращает отзывы о вызывающем.
func (s *Server) handleReviewList(w http.ResponseWriter, r *http.Request) {
	if itemID := r.URL.Query().Get("item_id"); itemID != "" {
		reviews, err := s.reviews.ListForItem(r.Context(), itemID)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, reviews)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = CallerID(r.Context())
	}
	reviews, err := s.reviews.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// handleReviewGet — GET /api/reviews/{id}.
func (s *Server) handleReviewGet(w http.ResponseWriter, r *http.Request) {
	found, err := s.reviews.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// handleReviewRespond — POST /api/reviews/{id}/response.
func (s *Server) handleReviewRespond(w http.ResponseWriter, r *http.Request) {
	var req respondReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	updated, err := s.reviews.Respond(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()), req.Text)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleReviewDelete — DELETE /api/reviews/{id}.
func (s *Server) handleReviewDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.reviews.Delete(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context())); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
