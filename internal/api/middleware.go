package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/rs/zerolog"
)

const jwtLeeway = time.Minute

// AuthConfig selects the accepted credentials. With neither set, auth is
// skipped (development mode).
type AuthConfig struct {
	APIKey    string
	JWTSecret []byte // HS256
	JWTIssuer string // optional
}

func (c AuthConfig) enabled() bool {
	return c.APIKey != "" || len(c.JWTSecret) > 0
}

// APIKeyAuth is middleware that validates requests against a backend API key
// or, when a secret is configured, an HS256 JWT. It checks the X-API-Key
// header first, then falls back to Authorization: Bearer <token>.
func APIKeyAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Try X-API-Key header first (preferred for backend-to-backend calls)
			key := r.Header.Get("X-API-Key")

			// Fall back to Authorization: Bearer <key>
			if key == "" {
				authHeader := r.Header.Get("Authorization")
				if strings.HasPrefix(authHeader, "Bearer ") {
					key = strings.TrimPrefix(authHeader, "Bearer ")
				}
			}

			if key == "" {
				respondError(w, http.StatusUnauthorized, "Missing credentials. Provide X-API-Key header or Authorization: Bearer <token>")
				return
			}

			// Constant-time comparison to prevent timing attacks
			if cfg.APIKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			if len(cfg.JWTSecret) > 0 {
				if err := verifyJWT(key, cfg); err == nil {
					next.ServeHTTP(w, r)
					return
				}
			}

			respondError(w, http.StatusForbidden, "Invalid credentials")
		})
	}
}

// verifyJWT checks signature, expiry and (optionally) issuer.
func verifyJWT(token string, cfg AuthConfig) error {
	tok, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return err
	}

	var claims jwt.Claims
	if err := tok.Claims(cfg.JWTSecret, &claims); err != nil {
		return err
	}

	return claims.ValidateWithLeeway(jwt.Expected{
		Issuer: cfg.JWTIssuer,
		Time:   time.Now(),
	}, jwtLeeway)
}

// RequestLogger writes one access log line per request.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("elapsed", time.Since(start)).
					Msg("request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
