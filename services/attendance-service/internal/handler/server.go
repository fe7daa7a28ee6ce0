package handler

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/metrics"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/policy"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/ratelimit"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/usecase"
)

// ServerParams collects the collaborators of the HTTP server.
type ServerParams struct {
	Auth       usecase.AuthUsecase
	Users      usecase.UserUsecase
	Attendance usecase.AttendanceUsecase
	Policy     *policy.Policy

	// LoginLimiter and ScanLimiter may be nil to disable rate limiting.
	LoginLimiter *ratelimit.Limiter
	ScanLimiter  *ratelimit.Limiter

	// HealthCheck reports whether the store is reachable. Nil means always healthy.
	HealthCheck func(ctx context.Context) error

	// TrustedProxies are the peers allowed to set the client address through
	// forwarding headers. Requests from any other peer are keyed by their own address.
	TrustedProxies []netip.Prefix

	CORSAllowedOrigins []string
	GoogleSignIn       bool
	Logger             *zerolog.Logger
}

// Server serves the HTTP API.
type Server struct {
	auth         usecase.AuthUsecase
	users        usecase.UserUsecase
	attendance   usecase.AttendanceUsecase
	policy       *policy.Policy
	loginLimiter *ratelimit.Limiter
	scanLimiter  *ratelimit.Limiter
	healthCheck  func(ctx context.Context) error
	proxies      []netip.Prefix
	corsOrigins  []string
	googleSignIn bool
	validator    *requestValidator
	logger       *zerolog.Logger
}

// NewServer creates a Server from its collaborators.
func NewServer(p ServerParams) *Server {
	return &Server{
		auth:         p.Auth,
		users:        p.Users,
		attendance:   p.Attendance,
		policy:       p.Policy,
		loginLimiter: p.LoginLimiter,
		scanLimiter:  p.ScanLimiter,
		healthCheck:  p.HealthCheck,
		proxies:      p.TrustedProxies,
		corsOrigins:  p.CORSAllowedOrigins,
		googleSignIn: p.GoogleSignIn,
		validator:    newRequestValidator(),
		logger:       p.Logger,
	}
}

// Router builds the chi router with middleware and every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.realIP)
	r.Use(hlog.NewHandler(*s.logger))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(s.recoverer)
	r.Use(metrics.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.With(s.rateLimit(s.loginLimiter)).Post("/login", s.handleLogin)
			if s.googleSignIn {
				r.With(s.rateLimit(s.loginLimiter)).Post("/google", s.handleGoogleLogin)
			}
			r.With(s.authenticate).Get("/profile", s.handleProfile)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(s.authenticate)
			r.With(s.guard(s.canListUsers, "Admin privileges required")).Get("/", s.handleListUsers)
			r.With(s.guard(s.canReadUser, "Unauthorized")).Get("/{id}", s.handleGetUser)
			r.With(s.guard(s.canReadUser, "Unauthorized")).Put("/{id}", s.handleUpdateUser)
			r.With(s.guard(s.canDeleteUser, "Admin privileges required")).Delete("/{id}", s.handleDeleteUser)
		})

		r.Route("/attendance", func(r chi.Router) {
			r.With(s.rateLimit(s.scanLimiter)).Post("/scan", s.handleScan)

			r.Group(func(r chi.Router) {
				r.Use(s.authenticate)
				r.With(s.guard(s.canCreateAttendance, "Unauthorized")).Post("/", s.handleCreateRecord)
				r.Get("/date/{date}", s.handleListByDate)
				r.With(s.guard(s.canViewStudent, "Unauthorized")).Get("/student/{id}", s.handleListByStudent)
				r.With(s.guard(s.canCreateAttendance, "Teacher privileges required")).Get("/export/{date}", s.handleExport)
				r.With(s.guard(s.canUpdateAttendance, "Unauthorized")).Put("/{id}", s.handleUpdateRecord)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.healthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.healthCheck(ctx); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("health check failed")
			writeError(w, http.StatusServiceUnavailable, "Store unavailable")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}
