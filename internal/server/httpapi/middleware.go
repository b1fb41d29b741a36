package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/preshare/internal/common"
	"github.com/dmitrijs2005/preshare/internal/logging"
)

type ctxKey int

const (
	userKey ctxKey = iota
	tokenKey
	requestIDKey
)

// caller returns the authenticated username and token of r.
func caller(r *http.Request) (string, string) {
	u, _ := r.Context().Value(userKey).(string)
	t, _ := r.Context().Value(tokenKey).(string)
	return u, t
}

func extractToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.TokenScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireAuth rejects requests without a valid "Token <key>" header.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := extractToken(r.Header.Get(common.AuthorizationHeader))
		if raw == "" {
			w.Header().Set("WWW-Authenticate", common.TokenScheme)
			writeJSON(w, http.StatusUnauthorized, detail{detailNotAuthenticated})
			return
		}

		username, err := h.users.Authenticate(r.Context(), raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, username)
		ctx = context.WithValue(ctx, tokenKey, raw)
		next(w, r.WithContext(ctx))
	}
}

func limitBody(n int64, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, n)
		h(w, r)
	}
}

type metaWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (m *metaWriter) WriteHeader(code int) {
	m.status = code
	m.ResponseWriter.WriteHeader(code)
}

func (m *metaWriter) Write(b []byte) (int, error) {
	if m.status == 0 {
		m.status = http.StatusOK
	}
	n, err := m.ResponseWriter.Write(b)
	m.size += n
	return n, err
}

// withRequestID echoes or assigns an X-Request-ID.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestLogging(l logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			mw := &metaWriter{ResponseWriter: w}

			next.ServeHTTP(mw, r)

			id, _ := r.Context().Value(requestIDKey).(string)
			l.Info(r.Context(), "request",
				"req_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", mw.status,
				"size", mw.size,
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}
