package handlers

import (
	"net/http"

	"github.com/chatmux/chatmux/internal/i18n"
	"github.com/chatmux/chatmux/internal/middleware"
	"github.com/chatmux/chatmux/internal/services/auth"
	"github.com/chatmux/chatmux/internal/services/chat"
	"github.com/chatmux/chatmux/internal/services/storage"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds a decoded request body
const maxBodyBytes = 1 << 20

// Handler serves the chat HTTP API
type Handler struct {
	orchestrator *chat.Orchestrator
	sessions     storage.SessionStore
	localizer    *i18n.Localizer
	logger       *logrus.Logger
}

// NewHandler creates the API handler
func NewHandler(
	orchestrator *chat.Orchestrator,
	sessions storage.SessionStore,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		sessions:     sessions,
		localizer:    localizer,
		logger:       logger,
	}
}

// RouterDeps are the cross-cutting collaborators of the API router
type RouterDeps struct {
	Limiter        middleware.RateLimiter
	ExemptPaths    []string
	Resolver       auth.Resolver
	Metrics        *middleware.Metrics
	AllowedOrigins []string
}

// NewRouter registers all routes behind the middleware chain
func NewRouter(h *Handler, deps RouterDeps) http.Handler {
	router := mux.NewRouter()
	router.Use(
		middleware.RequestLogging(h.logger, deps.Metrics),
		middleware.ProcessTime,
		middleware.OptionalAuth(deps.Resolver),
		middleware.Admission(deps.Limiter, deps.ExemptPaths, deps.Metrics),
	)

	router.HandleFunc("/", h.HandleRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api/chat").Subrouter()
	api.HandleFunc("/message", h.HandleMessage).Methods(http.MethodPost)
	api.HandleFunc("/message/stream", h.HandleStream).Methods(http.MethodPost)
	api.HandleFunc("/stop/{request_id}", h.HandleStop).Methods(http.MethodPost)
	api.HandleFunc("/sessions", h.HandleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{session_id}", h.HandleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{session_id}", h.HandleDeleteSession).Methods(http.MethodDelete)

	return middleware.CORS(deps.AllowedOrigins)(router)
}
