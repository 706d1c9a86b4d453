package api

import (
	"context"
	"net/http"
	"time"

	"github.com/atticfs/attic/internal/logger"
	"github.com/atticfs/attic/pkg/tree"
)

type contextKey int

const principalKey contextKey = iota

// principal returns the authenticated user id stored by withPrincipal.
func principal(r *http.Request) tree.ID {
	id, _ := r.Context().Value(principalKey).(tree.ID)
	return id
}

// withPrincipal resolves the caller from the principal header and rejects
// requests without a registered user.
func (a *API) withPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(PrincipalHeader)
		if raw == "" {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "missing "+PrincipalHeader+" header")
			return
		}
		id, err := tree.ParseID(raw)
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "malformed "+PrincipalHeader+" header")
			return
		}
		if !a.registry.UserExists(id) {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "unknown user")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withRateLimit rejects requests that exceed the configured request rate.
// Rejection is immediate rather than queued; clients are expected to back
// off and retry.
func (a *API) withRateLimit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow() {
			writeErrorCode(w, http.StatusTooManyRequests, "rate_limited", "request rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(p)
}

// withObservability records request logs and metrics around the whole
// route table.
func (a *API) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		a.metrics.RecordRequestStart()
		defer a.metrics.RecordRequestEnd()

		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		a.metrics.RecordRequest(r.Method, route, rec.status, elapsed)

		logger.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, elapsed)
	})
}

// pathID parses the canonical hex id in the named path segment.
func pathID(r *http.Request, segment string) (tree.ID, error) {
	return tree.ParseID(r.PathValue(segment))
}
