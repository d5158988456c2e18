package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

type contextKey string

// callerIDKey — ключ id аутентифицированного пользователя в контексте запроса.
const callerIDKey contextKey = "caller_id"

// CallerID возвращает id пользователя, положенный auth-middleware.
func CallerID(ctx context.Context) string {
	if id, ok := ctx.Value(callerIDKey).(string); ok {
		return id
	}
	return ""
}

// newAuthMiddleware проверяет credential из Authorization (схема Bearer
// опциональна) и кладёт id пользователя в контекст. Без валидного
// credential'а запрос дальше не проходит.
func newAuthMiddleware(authenticator domain.Authenticator, logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := r.Header.Get("Authorization")
			if strings.HasPrefix(credential, "Bearer ") {
				credential = strings.TrimPrefix(credential, "Bearer ")
			}
			if credential == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "authentication required"})
				return
			}

			userID, err := authenticator.Authenticate(r.Context(), credential)
			if err != nil {
				writeError(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), callerIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// newLoggingMiddleware пишет access-лог запроса.
func newLoggingMiddleware(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			logger.WithFields(log.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   recorder.status,
				"duration": time.Since(started).String(),
			}).Info("request handled")
		})
	}
}

// statusRecorder перехватывает статус ответа для access-лога.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush пробрасывает Flush для SSE-потока.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func newRecoveryMiddleware(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithField("panic", rec).Error("handler panicked")
					writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
