package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/dataforge/internal/domain"
	logpkg "github.com/kailas-cloud/dataforge/internal/logger"
)

const testSecret = "test-secret"

func userHandler(got *domain.User) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := domain.UserFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		*got = u
		w.WriteHeader(http.StatusOK)
	})
}

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func validClaims() Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "dataforge",
			Audience:  jwt.ClaimStrings{"dataforge-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Capabilities: []string{domain.ActionDataRead},
	}
}

func testAuthConfig() AuthConfig {
	return AuthConfig{Secret: testSecret, Issuer: "dataforge", Audience: "dataforge-api"}
}

func TestAuthMiddleware_NoSecret_DevUser(t *testing.T) {
	var got domain.User
	handler := AuthMiddleware(AuthConfig{DevUser: "local"}, zap.NewNop())(userHandler(&got))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/models", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}
	if got.ID != "local" || len(got.Capabilities) != 0 {
		t.Errorf("user = %+v, want unrestricted local", got)
	}
}

func TestAuthMiddleware_MissingHeader_401(t *testing.T) {
	var got domain.User
	handler := AuthMiddleware(testAuthConfig(), zap.NewNop())(userHandler(&got))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/models", http.NoBody))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Success || errResp.Code != CodeUnauthorized {
		t.Errorf("response = %+v", errResp)
	}
}

func TestAuthMiddleware_WrongScheme_401(t *testing.T) {
	var got domain.User
	handler := AuthMiddleware(testAuthConfig(), zap.NewNop())(userHandler(&got))

	req := httptest.NewRequest("GET", "/models", http.NoBody)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	var got domain.User
	handler := AuthMiddleware(testAuthConfig(), zap.NewNop())(userHandler(&got))

	req := httptest.NewRequest("GET", "/models", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, validClaims()))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if got.ID != "user-1" {
		t.Errorf("user id = %q", got.ID)
	}
	if got.Can(domain.ActionDataWrite) || !got.Can(domain.ActionDataRead) {
		t.Errorf("capabilities = %v", got.Capabilities)
	}
}

func TestAuthMiddleware_RejectsInvalidTokens(t *testing.T) {
	expired := validClaims()
	expired.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	otherIssuer := validClaims()
	otherIssuer.Issuer = "someone-else"

	otherAudience := validClaims()
	otherAudience.Audience = jwt.ClaimStrings{"other-api"}

	noSubject := validClaims()
	noSubject.Subject = "  "

	tests := []struct {
		name   string
		method jwt.SigningMethod
		secret string
		claims Claims
	}{
		{"wrong secret", jwt.SigningMethodHS256, "other-secret", validClaims()},
		{"wrong algorithm", jwt.SigningMethodHS512, testSecret, validClaims()},
		{"expired", jwt.SigningMethodHS256, testSecret, expired},
		{"wrong issuer", jwt.SigningMethodHS256, testSecret, otherIssuer},
		{"wrong audience", jwt.SigningMethodHS256, testSecret, otherAudience},
		{"missing subject", jwt.SigningMethodHS256, testSecret, noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.User
			handler := AuthMiddleware(testAuthConfig(), zap.NewNop())(userHandler(&got))

			req := httptest.NewRequest("GET", "/models", http.NoBody)
			req.Header.Set("Authorization", "Bearer "+signToken(t, tt.method, tt.secret, tt.claims))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("got %d, want %d", rr.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestServer_HealthAndMetricsSkipAuth(t *testing.T) {
	s := NewServer(Services{Health: &mockHealth{}}, zap.NewNop()).WithAuth(testAuthConfig())
	h := s.Handler()

	for _, path := range []string{"/health", "/metrics"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest("GET", path, http.NoBody))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: got %d, want %d", path, rr.Code, http.StatusOK)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/filters/compile", http.NoBody))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("protected route: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	calls := 0
	limiter := &mockLimiter{limit: 10, allowFn: func(_ context.Context, user string) (time.Duration, error) {
		calls++
		if calls > 1 {
			return 1500 * time.Millisecond, domain.ErrRateLimited
		}
		return 0, nil
	}}
	var got domain.User
	h := AuthMiddleware(AuthConfig{}, zap.NewNop())(RateLimitMiddleware(limiter, zap.NewNop())(userHandler(&got)))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/models", http.NoBody))
	if rr.Code != http.StatusOK || rr.Header().Get("X-RateLimit-Limit") != "10" {
		t.Fatalf("first request: %d, limit header %q", rr.Code, rr.Header().Get("X-RateLimit-Limit"))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/models", http.NoBody))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr.Header().Get("Retry-After") != "2" {
		t.Errorf("Retry-After = %q, want 2", rr.Header().Get("Retry-After"))
	}
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	limiter := &mockLimiter{limit: 10, allowFn: func(context.Context, string) (time.Duration, error) {
		return 0, errors.New("redis down")
	}}
	var got domain.User
	h := AuthMiddleware(AuthConfig{}, zap.NewNop())(RateLimitMiddleware(limiter, zap.NewNop())(userHandler(&got)))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/models", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Errorf("got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_AnnotatesRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logpkg.ContextWithLogger(context.Background(), zap.New(core))

	var got domain.User
	h := AuthMiddleware(testAuthConfig(), zap.NewNop())(userHandler(&got))
	req := httptest.NewRequest(http.MethodGet, "/models", http.NoBody).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, validClaims()))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	logpkg.FromContext(ctx).Info("http_request")
	if user := logs.All()[0].ContextMap()["user"]; user != "user-1" {
		t.Errorf("logged user = %v, want user-1", user)
	}
}

func TestAnnotateModel_DocumentRoutes(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logpkg.ContextWithLogger(context.Background(), zap.New(core))

	r := chi.NewRouter()
	r.Route("/models/{model}/documents", func(r chi.Router) {
		r.Use(annotateModel)
		r.Get("/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	})
	req := httptest.NewRequest(http.MethodGet, "/models/Person/documents/d1", http.NoBody).WithContext(ctx)
	r.ServeHTTP(httptest.NewRecorder(), req)

	logpkg.FromContext(ctx).Info("http_request")
	if model := logs.All()[0].ContextMap()["model"]; model != "Person" {
		t.Errorf("logged model = %v, want Person", model)
	}
}
