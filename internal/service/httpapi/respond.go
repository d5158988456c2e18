package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// errorBody — единый формат ошибки API.
type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError переводит доменную таксономию ошибок в HTTP-статусы:
// validation — 400, credential — 401, authorization — 403, not found — 404,
// state и conflict — 409. Всё остальное — 500 без деталей наружу.
func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	switch {
	case domain.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})
	case errors.Is(err, domain.ErrInvalidCredential):
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: err.Error()})
	case domain.IsAuthorization(err):
		writeJSON(w, http.StatusForbidden, errorBody{Detail: err.Error()})
	case domain.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Detail: err.Error()})
	case domain.IsState(err), domain.IsConflict(err), domain.IsVersionConflict(err):
		writeJSON(w, http.StatusConflict, errorBody{Detail: err.Error()})
	default:
		if logger != nil {
			logger.WithError(err).Error("request failed")
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "internal server error"})
	}
}

// queryLimit читает limit из query; 0 означает "без ограничения".
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid request body"})
		return false
	}
	return true
}
