package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/transaction"
)

type createAppointmentRequest struct {
	ConversationID string     `json:"conversation_id"`
	ItemID         string     `json:"item_id"`
	MeetupTime     *time.Time `json:"meetup_time,omitempty"`
	MeetupPlace    string     `json:"meetup_place,omitempty"`
	MeetupLat      *float64   `json:"meetup_lat,omitempty"`
	MeetupLng      *float64   `json:"meetup_lng,omitempty"`
}

type updateTransactionRequest struct {
	BuyerConfirmed        *bool `json:"buyer_confirmed,omitempty"`
	SellerConfirmed       *bool `json:"seller_confirmed,omitempty"`
	BuyerCancelConfirmed  *bool `json:"buyer_cancel_confirmed,omitempty"`
	SellerCancelConfirmed *bool `json:"seller_cancel_confirmed,omitempty"`

	MeetupTime      *time.Time `json:"meetup_time,omitempty"`
	ClearMeetupTime bool       `json:"clear_meetup_time,omitempty"`
	MeetupPlace     *string    `json:"meetup_place,omitempty"`
	MeetupLat       *float64   `json:"meetup_lat,omitempty"`
	MeetupLng       *float64   `json:"meetup_lng,omitempty"`
}

// handleTransactionCreateAppointment — POST /api/transactions/create-with-appointment.
// Идемпотентный upsert: 201 для новой сделки, 200 для обновлённой.
func (s *Server) handleTransactionCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tx, created, err := s.transactions.CreateAppointment(r.Context(), CallerID(r.Context()), transaction.AppointmentInput{
		ConversationID: req.ConversationID,
		ItemID:         req.ItemID,
		MeetupTime:     req.MeetupTime,
		MeetupPlace:    req.MeetupPlace,
		MeetupLat:      req.MeetupLat,
		MeetupLng:      req.MeetupLng,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, tx)
}

// handleTransactionGet — GET /api/transactions/{id}.
func (s *Server) handleTransactionGet(w http.ResponseWriter, r *http.Request) {
	tx, err := s.transactions.Get(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// handleTransactionUpdate — PATCH /api/transactions/{id}.
func (s *Server) handleTransactionUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tx, err := s.transactions.Update(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()), domain.TransactionUpdate{
		BuyerConfirmed:        req.BuyerConfirmed,
		SellerConfirmed:       req.SellerConfirmed,
		BuyerCancelConfirmed:  req.BuyerCancelConfirmed,
		SellerCancelConfirmed: req.SellerCancelConfirmed,
		MeetupTime:            req.MeetupTime,
		ClearMeetupTime:       req.ClearMeetupTime,
		MeetupPlace:           req.MeetupPlace,
		MeetupLat:             req.MeetupLat,
		MeetupLng:             req.MeetupLng,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// handleTransactionCancel — POST /api/transactions/{id}/cancel.
func (s *Server) handleTransactionCancel(w http.ResponseWriter, r *http.Request) {
	tx, err := s.transactions.Cancel(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// handleTransactionListByConversation — GET /api/transactions/by-conversation/{conversationID}/all.
func (s *Server) handleTransactionListByConversation(w http.ResponseWriter, r *http.Request) {
	txs, err := s.transactions.ListByConversation(r.Context(), chi.URLParam(r, "conversationID"), CallerID(r.Context()))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// handleTransactionTimeline — GET /api/transactions/{id}/timeline.
func (s *Server) handleTransactionTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := s.transactions.Timeline(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
