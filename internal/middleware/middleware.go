package middleware

import (
	"compress/gzip"
	"context"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/avolkov/labelscan/internal/logger"
	"github.com/avolkov/labelscan/internal/user"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (w gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

func GzipHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") == "gzip" {
			gzr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(rw, "Failed to create gzip reader", http.StatusBadRequest)
				return
			}
			defer gzr.Close()
			r.Body = io.NopCloser(gzr)
		}

		if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			rw.Header().Set("Content-Encoding", "gzip")
			gzw := gzip.NewWriter(rw)
			defer gzw.Close()

			gzrw := gzipResponseWriter{Writer: gzw, ResponseWriter: rw}
			next.ServeHTTP(gzrw, r)
		} else {
			next.ServeHTTP(rw, r)
		}
	})
}

type ctxKeyUserID struct{}

// JWTMiddleware admits only requests carrying a valid token for an existing
// admin account. No server-side session state is kept.
func JWTMiddleware(secret []byte, repo user.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimPrefix(auth, "Bearer ")

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			u, err := repo.FindUserByEmail(r.Context(), claims.Subject)
			if err != nil || !u.IsAdmin {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyUserID{}, u.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserIDFromContext(ctx context.Context) int64 {
	return ctx.Value(ctxKeyUserID{}).(int64)
}

func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxKeyUserID{}, userID)
}

// APIKeyAuth guards the mail relay with a shared X-API-Key header. An empty
// configured key bypasses the check so first-run setups are not locked out,
// with a warning on every request.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				logger.Log.Warn("API key not configured, authentication bypassed",
					zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("X-API-Key") != apiKey {
				logger.Log.Warn("unauthorized API access attempt",
					zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPWhitelist rejects callers whose address is not in the comma-separated
// allow list. An empty list or "*" admits everyone.
func IPWhitelist(allowed string) func(http.Handler) http.Handler {
	ips := map[string]struct{}{}
	wildcard := strings.TrimSpace(allowed) == "" || allowed == "*"
	for _, ip := range strings.Split(allowed, ",") {
		ip = strings.TrimSpace(ip)
		if ip == "*" {
			wildcard = true
		} else if ip != "" {
			ips[ip] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if wildcard {
				next.ServeHTTP(w, r)
				return
			}
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if _, ok := ips[host]; !ok {
				logger.Log.Warn("IP address not in whitelist",
					zap.String("ip", host), zap.String("path", r.URL.Path))
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
