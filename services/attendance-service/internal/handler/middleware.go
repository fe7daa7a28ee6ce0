package handler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/apperror"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/metrics"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/policy"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/ratelimit"
	"github.com/vasapolrittideah/school-attendance-api/shared/auth"
	"github.com/vasapolrittideah/school-attendance-api/shared/observability"
)

type userKey struct{}

// authenticate resolves the bearer token into the stored user and puts it in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeAppError(w, r, apperror.Authentication("Token is missing", err))
			return
		}

		user, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, user)
		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("user_id", user.ID.Hex())
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userKey{}).(*model.User)
	return user
}

func callerFromContext(ctx context.Context) policy.Caller {
	user := userFromContext(ctx)
	if user == nil {
		return policy.Caller{}
	}
	return policy.CallerFromUser(user)
}

// callerRule is a route level authorization decision.
type callerRule func(c policy.Caller, r *http.Request) bool

// guard rejects the request with 403 and message unless rule holds. It runs before the body is read.
func (s *Server) guard(rule callerRule, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rule(callerFromContext(r.Context()), r) {
				writeAppError(w, r, apperror.Authorization(message))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) canCreateAttendance(c policy.Caller, _ *http.Request) bool {
	return s.policy.CanCreateAttendance(c)
}

func (s *Server) canUpdateAttendance(c policy.Caller, _ *http.Request) bool {
	return s.policy.CanUpdateAttendance(c)
}

func (s *Server) canViewStudent(c policy.Caller, r *http.Request) bool {
	return s.policy.CanViewAttendanceByStudent(c, chi.URLParam(r, "id"))
}

func (s *Server) canListUsers(c policy.Caller, _ *http.Request) bool {
	return s.policy.CanListUsers(c)
}

func (s *Server) canReadUser(c policy.Caller, r *http.Request) bool {
	return s.policy.CanReadUser(c, chi.URLParam(r, "id"))
}

func (s *Server) canDeleteUser(c policy.Caller, _ *http.Request) bool {
	return s.policy.CanDeleteUser(c)
}

// rateLimit counts requests per client address. A nil limiter disables the check.
func (s *Server) rateLimit(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := l.Allow(r.Context(), clientIP(r))
			if err != nil {
				hlog.FromRequest(r).Warn().Err(err).Str("scope", l.Scope()).Msg("rate limiter unavailable")
			}
			if !allowed {
				metrics.RateLimited.WithLabelValues(l.Scope()).Inc()
				writeAppError(w, r, apperror.TooManyRequests("Too many requests, please try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// realIP applies chi's RealIP only to requests whose peer is a trusted proxy, so a
// direct client cannot pick its own address through forwarding headers.
func (s *Server) realIP(next http.Handler) http.Handler {
	forwarded := middleware.RealIP(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.trustedPeer(r.RemoteAddr) {
			forwarded.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) trustedPeer(remoteAddr string) bool {
	if len(s.proxies) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(clientIPFromAddr(remoteAddr))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, prefix := range s.proxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	return clientIPFromAddr(r.RemoteAddr)
}

func clientIPFromAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// recoverer turns panics into the 500 envelope without exposing the stack.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			err := fmt.Errorf("panic: %v", rec)
			hlog.FromRequest(r).Error().Err(err).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			observability.CaptureErr(err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}()

		next.ServeHTTP(w, r)
	})
}
