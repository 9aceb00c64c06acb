package chi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
	logpkg "github.com/kailas-cloud/dataforge/internal/logger"
)

const defaultLeeway = 30 * time.Second

// AuthConfig configures HS256 bearer token verification.
// An empty Secret disables verification and every request runs as DevUser.
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
	DevUser  string
	Leeway   time.Duration
}

// Claims are the token claims: the subject is the user id, caps its capabilities.
type Claims struct {
	jwt.RegisteredClaims
	Capabilities []string `json:"caps,omitempty"`
}

// AuthMiddleware authenticates the caller and stores it in the request context.
func AuthMiddleware(cfg AuthConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		dev := domain.User{ID: cfg.DevUser}
		if dev.ID == "" {
			dev.ID = "dev"
		}
		logger.Warn("Authentication disabled", zap.String("user", dev.ID))
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				logpkg.AnnotateUser(r.Context(), dev.ID)
				next.ServeHTTP(w, r.WithContext(domain.ContextWithUser(r.Context(), dev)))
			})
		}
	}

	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(leeway),
	}
	if iss := strings.TrimSpace(cfg.Issuer); iss != "" {
		opts = append(opts, jwt.WithIssuer(iss))
	}
	if aud := strings.TrimSpace(cfg.Audience); aud != "" {
		opts = append(opts, jwt.WithAudience(aud))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
				return
			}
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			user, err := verify(parser, key, strings.TrimSpace(auth[len(bearerPrefix):]))
			if err != nil {
				logpkg.FromContext(r.Context()).Debug("token rejected", zap.Error(err))
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid token")
				return
			}
			logpkg.AnnotateUser(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(domain.ContextWithUser(r.Context(), user)))
		})
	}
}

func verify(parser *jwt.Parser, key []byte, token string) (domain.User, error) {
	var claims Claims
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return domain.User{}, err
	}
	if !parsed.Valid {
		return domain.User{}, errors.New("invalid token")
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return domain.User{}, errors.New("token subject missing")
	}
	return domain.User{ID: subject, Capabilities: claims.Capabilities}, nil
}
