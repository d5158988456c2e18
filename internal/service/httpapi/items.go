package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/item"
)

type createItemRequest struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	Category     string  `json:"category"`
	Condition    string  `json:"condition"`
	Location     string  `json:"location"`
	IsNegotiable bool    `json:"is_negotiable"`
}

type setItemStatusRequest struct {
	Status string `json:"status"`
}

// handleItemCreate — POST /api/items.
func (s *Server) handleItemCreate(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := s.items.Create(r.Context(), CallerID(r.Context()), item.CreateInput{
		Title:        req.Title,
		Description:  req.Description,
		Price:        req.Price,
		Category:     req.Category,
		Condition:    req.Condition,
		Location:     req.Location,
		IsNegotiable: req.IsNegotiable,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleItemList — GET /api/items?seller_id=&limit=. Без seller_id
// возвращает объявления вызывающего.
func (s *Server) handleItemList(w http.ResponseWriter, r *http.Request) {
	sellerID := r.URL.Query().Get("seller_id")
	if sellerID == "" {
		sellerID = CallerID(r.Context())
	}

	items, err := s.items.ListBySeller(r.Context(), sellerID, queryLimit(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleItemGet — GET /api/items/{id}.
func (s *Server) handleItemGet(w http.ResponseWriter, r *http.Request) {
	found, err := s.items.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// handleItemSetStatus — PATCH /api/items/{id}/status.
func (s *Server) handleItemSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setItemStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	updated, err := s.items.SetStatus(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()), domain.ItemStatus(req.Status))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
