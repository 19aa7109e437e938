package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/safar/kasir-pos/internal/auth"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// requestFields is filled in by inner middleware so the access log can
// report who made the request.
type requestFields struct {
	userID string
}

type fieldsKey struct{}

func fieldsFrom(ctx context.Context) *requestFields {
	f, _ := ctx.Value(fieldsKey{}).(*requestFields)
	return f
}

// requestLogger writes one access log line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			fields := &requestFields{userID: "anonymous"}
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), fieldsKey{}, fields)))

			logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("user_id", fields.userID).
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Int("status", rec.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}

// extendWriteDeadline moves the connection's write deadline to d from now,
// overriding http.Server.WriteTimeout for the wrapped routes.
func (s *Server) extendWriteDeadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(d)); err != nil {
				s.log(r).Debug().Err(err).Msg("write deadline not extended")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate requires a valid bearer token and puts its identity in the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			s.respondError(w, r, apperr.Unauthorized("missing bearer token"))
			return
		}

		id, err := s.Verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			s.respondError(w, r, &apperr.Error{Kind: apperr.KindUnauthorized, Msg: "unauthorized", Err: err})
			return
		}

		if f := fieldsFrom(r.Context()); f != nil {
			f.userID = id.ID.String()
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// identity returns the caller set by authenticate.
func identity(r *http.Request) *auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func (s *Server) log(r *http.Request) *zerolog.Logger {
	l := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
	return &l
}
