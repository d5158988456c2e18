package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
	"github.com/vladislavdragonenkov/campusmarket/internal/notify"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/buyrequest"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/item"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/review"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/transaction"
	"github.com/vladislavdragonenkov/campusmarket/internal/version"
)

// Server собирает HTTP-обработчики поверх движков ядра.
type Server struct {
	items         item.Ledger
	buyRequests   buyrequest.Engine
	transactions  transaction.Engine
	reviews       review.Ledger
	hub           *notify.Hub
	authenticator domain.Authenticator
	logger        *log.Entry
}

// Config — зависимости HTTP-слоя.
type Config struct {
	Items         item.Ledger
	BuyRequests   buyrequest.Engine
	Transactions  transaction.Engine
	Reviews       review.Ledger
	Hub           *notify.Hub
	Authenticator domain.Authenticator
	Logger        *log.Entry
}

// NewServer создаёт HTTP-слой API.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	return &Server{
		items:         cfg.Items,
		buyRequests:   cfg.BuyRequests,
		transactions:  cfg.Transactions,
		reviews:       cfg.Reviews,
		hub:           cfg.Hub,
		authenticator: cfg.Authenticator,
		logger:        logger,
	}
}

// Router собирает chi-роутер со всеми маршрутами API.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(newRecoveryMiddleware(s.logger))
	r.Use(newLoggingMiddleware(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(newAuthMiddleware(s.authenticator, s.logger))

		r.Route("/api/items", func(r chi.Router) {
			r.Post("/", s.handleItemCreate)
			r.Get("/", s.handleItemList)
			r.Get("/{id}", s.handleItemGet)
			r.Patch("/{id}/status", s.handleItemSetStatus)
		})

		r.Route("/api/buy-requests", func(r chi.Router) {
			r.Post("/", s.handleBuyRequestCreate)
			r.Get("/", s.handleBuyRequestList)
			r.Get("/{id}", s.handleBuyRequestGet)
			r.Post("/{id}/accept", s.handleBuyRequestAccept)
			r.Post("/{id}/reject", s.handleBuyRequestReject)
			r.Post("/{id}/cancel", s.handleBuyRequestCancel)
		})

		r.Route("/api/transactions", func(r chi.Router) {
			r.Post("/create-with-appointment", s.handleTransactionCreateAppointment)
			r.Get("/by-conversation/{conversationID}/all", s.handleTransactionListByConversation)
			r.Get("/{id}", s.handleTransactionGet)
			r.Patch("/{id}", s.handleTransactionUpdate)
			r.Post("/{id}/cancel", s.handleTransactionCancel)
			r.Get("/{id}/timeline", s.handleTransactionTimeline)
		})

		r.Route("/api/reviews", func(r chi.Router) {
			r.Post("/", s.handleReviewCreate)
			r.Get("/", s.handleReviewList)
			r.Get("/{id}", s.handleReviewGet)
			r.Post("/{id}/response", s.handleReviewRespond)
			r.Delete("/{id}", s.handleReviewDelete)
		})

		r.Get("/api/notifications/stream", s.handleNotificationStream)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.GetVersion(),
	})
}
