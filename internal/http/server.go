// Package http exposes the ledger as a JSON API.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fiado/internal/auth"
	"fiado/internal/services"
	"fiado/internal/store"
)

type Server struct {
	http.Server
	ledger      *services.LedgerService
	users       store.UserDirectory
	stores      store.StoreDirectory
	tokens      *auth.Tokens
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, ledger *services.LedgerService, users store.UserDirectory, stores store.StoreDirectory, tokens *auth.Tokens) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		ledger:      ledger,
		users:       users,
		stores:      stores,
		tokens:      tokens,
		rateLimiter: newRateLimiter(),
	}

	authed := auth.NewMiddleware(tokens)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/login", s.withSecurityHeaders(s.handleLogin))
	mux.HandleFunc("GET /api/me", s.withSecurityHeaders(authed.Wrap(s.handleMe)))

	mux.HandleFunc("POST /api/users", s.withSecurityHeaders(authed.Wrap(s.handleCreateUser)))
	mux.HandleFunc("GET /api/users", s.withSecurityHeaders(authed.Wrap(s.handleListUsers)))
	mux.HandleFunc("POST /api/stores", s.withSecurityHeaders(authed.Wrap(s.handleCreateStore)))
	mux.HandleFunc("GET /api/stores", s.withSecurityHeaders(authed.Wrap(s.handleListStores)))

	mux.HandleFunc("POST /api/purchases", s.withSecurityHeaders(authed.Wrap(s.handleRecordPurchase)))
	mux.HandleFunc("POST /api/statements/close", s.withSecurityHeaders(authed.Wrap(s.handleCloseStatement)))
	mux.HandleFunc("GET /api/customers/{id}/statements", s.withSecurityHeaders(authed.Wrap(s.handleCustomerStatements)))
	mux.HandleFunc("GET /api/customers/{id}/statements/open", s.withSecurityHeaders(authed.Wrap(s.handleOpenStatement)))
	mux.HandleFunc("GET /api/customers/{id}/statements/export.csv", s.withSecurityHeaders(authed.Wrap(s.handleCustomerStatementsCSV)))
	mux.HandleFunc("GET /api/stores/{id}/statements", s.withSecurityHeaders(authed.Wrap(s.handleStoreStatements)))
	mux.HandleFunc("GET /api/stores/{id}/outstanding", s.withSecurityHeaders(authed.Wrap(s.handleStoreOutstanding)))
	mux.HandleFunc("GET /api/statements/{id}/report.xlsx", s.withSecurityHeaders(authed.Wrap(s.handleStatementXLSX)))
	mux.HandleFunc("GET /api/statements/{id}/report.pdf", s.withSecurityHeaders(authed.Wrap(s.handleStatementPDF)))

	return s
}

// withSecurityHeaders adds security headers, rate limiting and request
// logging to responses.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := r.Context()
		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		// Mutations are rate limited per client IP.
		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
