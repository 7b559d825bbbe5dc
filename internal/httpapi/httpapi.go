package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"pdvsystem/backend/internal/backup"
	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/service"
	"pdvsystem/backend/internal/store"
)

const (
	terminalHeader  = "X-Terminal-ID"
	maxBodyBytes    = 1 << 20
	maxRestoreBytes = 64 << 20
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	backups       *backup.Manager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	log           zerolog.Logger
}

func New(svc *service.Service, auth *AuthManager, backups *backup.Manager, allowedOrigin string, logger zerolog.Logger) *API {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &API{
		service:       svc,
		auth:          auth,
		backups:       backups,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		log:           logger.With().Str("component", "http").Logger(),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", terminalHeader},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limitBody(maxBodyBytes))
			r.Post("/auth/login", a.handleLogin)

			r.Group(func(r chi.Router) {
				r.Use(a.requireAuth)

				r.Route("/cashier", func(r chi.Router) {
					r.Post("/open", a.handleSessionOpen)
					r.Get("/status", a.handleSessionStatus)
					r.Post("/close", a.handleSessionClose)
					r.With(requireRole(domain.RoleAdmin, domain.RoleManager)).Get("/history", a.handleSessionHistory)
				})

				r.Route("/sales", func(r chi.Router) {
					r.Post("/", a.handleCreateSale)
					r.With(requireRole(domain.RoleAdmin, domain.RoleManager)).Get("/", a.handleListSales)
				})

				r.Route("/products", func(r chi.Router) {
					r.Get("/", a.handleListProducts)
					r.With(requireRole(domain.RoleAdmin)).Post("/", a.handleCreateProduct)
					r.Get("/barcode/{barcode}", a.handleProductByBarcode)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", a.handleGetProduct)
						r.Post("/stock", a.handleAddStock)
						r.Group(func(r chi.Router) {
							r.Use(requireRole(domain.RoleAdmin, domain.RoleManager))
							r.Put("/", a.handleUpdateProduct)
							r.Delete("/", a.handleDeleteProduct)
							r.Post("/adjustments", a.handleAdjustStock)
						})
					})
				})

				r.With(requireRole(domain.RoleAdmin, domain.RoleManager)).Get("/stock/history", a.handleStockHistory)
				r.With(requireRole(domain.RoleAdmin, domain.RoleManager)).Get("/reports/dashboard", a.handleDashboard)

				r.With(requireRole(domain.RoleAdmin)).Post("/auth/register", a.handleCreateUser)
				r.Route("/users", func(r chi.Router) {
					r.With(requireRole(domain.RoleAdmin, domain.RoleManager)).Get("/", a.handleListUsers)
					r.With(requireRole(domain.RoleAdmin)).Post("/", a.handleCreateUser)
					r.Route("/{id}", func(r chi.Router) {
						r.With(requireRole(domain.RoleAdmin, domain.RoleManager)).Get("/", a.handleGetUser)
						r.With(requireRole(domain.RoleAdmin)).Put("/", a.handleUpdateUser)
						r.With(requireRole(domain.RoleAdmin)).Delete("/", a.handleDeleteUser)
					})
				})
			})
		})

		r.Route("/backup", func(r chi.Router) {
			r.Use(limitBody(maxRestoreBytes))
			r.Use(a.requireAuth)
			r.Use(requireRole(domain.RoleAdmin))
			r.Get("/stats", a.handleBackupStats)
			r.Post("/create", a.handleBackupCreate)
			r.Get("/list", a.handleBackupList)
			r.Get("/download/{name}", a.handleBackupDownload)
			r.Post("/restore", a.handleBackupRestore)
			r.Delete("/{name}", a.handleBackupDelete)
		})
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

// requireRole must run after requireAuth.
func requireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, service.ErrUnauthenticated)
				return
			}
			if !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role domain.Role, allowed []domain.Role) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		event := a.log.Info()
		if status >= 500 {
			event = a.log.Error()
		}
		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(startedAt)).
			Msg("request")
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// decodeRequest decodes the body into dest and answers 400 on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
			return false
		}
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func parseNonNegative(raw string, fallback int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return n, nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInactiveAccount):
		return http.StatusForbidden
	case errors.Is(err, store.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrConsistency):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		a.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("internal error")
	case http.StatusServiceUnavailable:
		a.log.Warn().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("consistency failure")
		writeJSON(w, status, map[string]any{
			"error":     "the operation could not be completed safely, please retry",
			"retryable": store.IsRetryable(err),
		})
		return
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry internal details.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
