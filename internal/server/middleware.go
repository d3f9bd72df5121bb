package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"donationledger/pkg/types"

	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	contextKeyPrincipal contextKey = "principal"
	contextKeyRequest   contextKey = "request"
)

// requestInfo is filled in by handlers further down the chain so the
// logging middleware can report on them after the response is written.
type requestInfo struct {
	principal types.Principal
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Service) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		info := &requestInfo{}

		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), contextKeyRequest, info)))

		entry := s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": time.Since(started).Milliseconds(),
		})
		if info.principal.IsAuthenticated() {
			entry = entry.WithField("donor_id", info.principal.ID)
		}
		entry.Info("http request")
	})
}

// Authenticate resolves the caller from a bearer token or the session cookie.
// Requests without credentials continue anonymously; bad credentials do not.
func (s *Service) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := s.accessToken(r)
		if err != nil {
			s.logger.WithError(err).Debug("failed to decode session cookie")
			s.writeError(w, r, types.ErrUnauthenticated)
			return
		}
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := s.verifier.Verify(r.Context(), raw)
		if err != nil {
			s.logger.WithError(err).Debug("failed to verify access token")
			s.writeError(w, r, err)
			return
		}

		if info, ok := r.Context().Value(contextKeyRequest).(*requestInfo); ok {
			info.principal = principal
		}
		ctx := context.WithValue(r.Context(), contextKeyPrincipal, principal)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) accessToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", errors.New("malformed authorization header")
		}
		return strings.TrimSpace(token), nil
	}

	cookie, err := r.Cookie(s.config.CookieName)
	if err != nil {
		return "", nil
	}

	var accessToken string
	if err := s.cookie.Decode(s.config.CookieName, cookie.Value, &accessToken); err != nil {
		return "", err
	}

	return accessToken, nil
}

func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !principalFrom(r.Context()).IsAuthenticated() {
			s.writeError(w, r, types.ErrUnauthenticated)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !principalFrom(r.Context()).Admin {
			s.writeError(w, r, types.ErrForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) StripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path != "/" && strings.HasSuffix(path, "/") {
			newURL := *r.URL
			newURL.Path = strings.TrimSuffix(path, "/")

			http.Redirect(w, r, newURL.String(), http.StatusMovedPermanently)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func principalFrom(ctx context.Context) types.Principal {
	principal, _ := ctx.Value(contextKeyPrincipal).(types.Principal)
	return principal
}
