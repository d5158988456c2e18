package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

type createBuyRequestRequest struct {
	ItemID string `json:"item_id"`
}

// acceptBuyRequestResponse несёт и заявку, и открытую по ней сделку.
type acceptBuyRequestResponse struct {
	BuyRequest  domain.BuyRequest  `json:"buy_request"`
	Transaction domain.Transaction `json:"transaction"`
}

// handleBuyRequestCreate — POST /api/buy-requests.
func (s *Server) handleBuyRequestCreate(w http.ResponseWriter, r *http.Request) {
	var req createBuyRequestRequest
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := s.buyRequests.Create(r.Context(), req.ItemID, CallerID(r.Context()))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleBuyRequestList — GET /api/buy-requests?role=buyer|seller.
func (s *Server) handleBuyRequestList(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		role = "buyer"
	}

	requests, err := s.buyRequests.ListForUser(r.Context(), CallerID(r.Context()), role)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// handleBuyRequestGet — GET /api/buy-requests/{id}.
func (s *Server) handleBuyRequestGet(w http.ResponseWriter, r *http.Request) {
	found, err := s.buyRequests.Get(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// handleBuyRequestAccept — POST /api/buy-requests/{id}/accept.
func (s *Server) handleBuyRequestAccept(w http.ResponseWriter, r *http.Request) {
	request, tx, err := s.buyRequests.Accept(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptBuyRequestResponse{BuyRequest: request, Transaction: tx})
}

// handleBuyRequestReject — POST /api/buy-requests/{id}/reject.
func (s *Server) handleBuyRequestReject(w http.ResponseWriter, r *http.Request) {
	request, err := s.buyRequests.Reject(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// handleBuyRequestCancel — POST /api/buy-requests/{id}/cancel.
func (s *Server) handleBuyRequestCancel(w http.ResponseWriter, r *http.Request) {
	request, err := s.buyRequests.Cancel(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}
