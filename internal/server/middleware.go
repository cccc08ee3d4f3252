package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"taskmanagement-api/internal/apperr"
)

const tracerName = "taskmanagement-api/internal/server"

type ownerKey struct{}

func withOwner(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// ownerFromContext returns the authenticated user id set by requireBearer.
func ownerFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ownerKey{}).(int64)
	return id, ok
}

// requireBearer rejects requests without a valid bearer token. The response
// is the same for a missing, malformed, forged or expired token; only the log
// line says which.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			s.writeError(w, r, apperr.New(apperr.CodeUnauthenticated, "missing bearer token"))
			return
		}

		ownerID, err := s.tokens.Validate(token)
		if err != nil {
			if errors.Is(err, apperr.ErrTokenExpired) {
				s.logger.Printf("WARN: expired token on %s %s", r.Method, r.URL.Path)
			} else {
				s.logger.Printf("WARN: rejected token on %s %s: %v", r.Method, r.URL.Path, err)
			}
			s.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withOwner(r.Context(), ownerID)))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// recoverPanics turns a handler panic into the generic 500 body.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Printf("ERROR: panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				respondWithError(w, http.StatusInternalServerError, msgInternal, nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// traceRequests starts a server span per request, continuing any incoming
// W3C trace context. Without a registered provider the spans are no-ops.
func (s *Server) traceRequests(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		name := r.Method
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				name += " " + tpl
			}
		}
		ctx, span := tracer.Start(ctx, name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}
