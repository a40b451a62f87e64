// Package httpapi exposes the engine over the JSON API consumed by the
// Privora mobile app. All routes live under /api/auth and answer with the
// envelope {"success": bool, "message": string, ...}.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/privora/privauth"
)

// Options configures the HTTP surface.
type Options struct {
	Logger *slog.Logger

	// AllowedOrigins is the CORS allow-list, typically chosen per
	// environment. Empty disables CORS headers entirely.
	AllowedOrigins []string
}

// Server routes HTTP requests to the engine.
type Server struct {
	engine *privauth.Engine
	logger *slog.Logger
}

// NewRouter builds the API router with CORS, request logging, and client IP
// annotation applied to every route.
func NewRouter(engine *privauth.Engine, opts Options) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{engine: engine, logger: logger}

	r := mux.NewRouter()
	r.Use(corsMiddleware(opts.AllowedOrigins))
	r.Use(requestLogMiddleware(logger))
	r.Use(clientIPMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	auth.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)
	auth.HandleFunc("/resend-verification", s.handleResendVerification).Methods(http.MethodPost)
	auth.HandleFunc("/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	auth.HandleFunc("/verify-otp", s.handleVerifyOTP).Methods(http.MethodPost)
	auth.HandleFunc("/resend-otp", s.handleResendOTP).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)

	// Preflight for any /api path.
	r.PathPrefix("/api/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodOptions)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ok"})
}
