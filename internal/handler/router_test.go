package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/nbhdcity/internal/metrics"
	"github.com/hitoshi/nbhdcity/internal/middleware"
	"github.com/hitoshi/nbhdcity/internal/model"
	"github.com/hitoshi/nbhdcity/internal/token"
)

func newTestRouter(t *testing.T, devMode bool) (http.Handler, *token.Manager) {
	t.Helper()

	tokens := token.NewManager("test-secret-for-router", time.Hour)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(120, 10))
	t.Cleanup(rl.Stop)

	nbhdService := &mockNeighborhoodService{
		ListFunc: func(ctx context.Context, cursor string, limit int) (*model.Page[model.Neighborhood], error) {
			return &model.Page[model.Neighborhood]{}, nil
		},
		CreateFunc: func(ctx context.Context, userID, name, description string) (*model.Neighborhood, error) {
			return testNeighborhood(), nil
		},
	}
	userService := &mockUserService{
		GetProfileFunc: func(ctx context.Context, userID string) (*model.User, error) {
			return testUser(), nil
		},
	}
	authService := &mockAuthService{
		BeginLoginFunc: func(ctx context.Context, redirectTarget string) (string, error) {
			return "https://bsky.social/oauth/authorize?state=abc", nil
		},
		IssueTestSessionFunc: func(ctx context.Context, userID, handle string) (string, error) {
			return "dev-token", nil
		},
	}

	router := NewRouter(&RouterDeps{
		TokenVerifier:       tokens,
		RateLimiter:         rl,
		CORSAllowedOrigin:   "http://localhost:3000",
		Logger:              slog.New(slog.NewJSONHandler(testWriter{t}, nil)),
		Collector:           collector,
		Gatherer:            reg,
		AuthService:         authService,
		AuthConfig:          AuthHandlerConfig{FrontendURL: "https://nbhd.city"},
		NeighborhoodService: nbhdService,
		UserService:         userService,
		DevMode:             devMode,
	})
	return router, tokens
}

// testWriter はログ出力をテストログに流す。
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func TestRouter_PublicRoutes_NoAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t, false)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/neighborhoods", http.StatusOK},
		{http.MethodGet, "/api/users/did%3Aplc%3Aalice", http.StatusOK},
		{http.MethodGet, "/auth/login", http.StatusTemporaryRedirect},
		{http.MethodPost, "/auth/logout", http.StatusNoContent},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, w.Code, tt.want)
		}
	}
}

// 公開の/api/users/{id}と保護された/api/users/meが同居していても、
// /api/users/meは静的ルートとして認証必須のままであること。
func TestRouter_UsersMe_StillRequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/users/me without token: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRouter_ProtectedRoute_RequiresBearerToken(t *testing.T) {
	router, tokens := newTestRouter(t, false)

	// トークンなしは401
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/neighborhoods", strings.NewReader(`{"name":"Riverside"}`)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("without token: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	// 有効なトークンで201
	sessionToken, err := tokens.Mint("did:plc:alice")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/neighborhoods", strings.NewReader(`{"name":"Riverside"}`))
	req.Header.Set("Authorization", "Bearer "+sessionToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("with token: status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestRouter_AuthMe_VerifiesToken(t *testing.T) {
	router, tokens := newTestRouter(t, false)

	sessionToken, err := tokens.Mint("did:plc:alice")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+sessionToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	// 不正なトークンは401
	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRouter_TestSessionRoute_OnlyInDevMode(t *testing.T) {
	body := `{"user_id":"did:plc:dev"}`

	devRouter, _ := newTestRouter(t, true)
	w := httptest.NewRecorder()
	devRouter.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/test-session", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Errorf("dev mode: status = %d, want %d", w.Code, http.StatusOK)
	}

	prodRouter, _ := newTestRouter(t, false)
	w = httptest.NewRecorder()
	prodRouter.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/test-session", strings.NewReader(body)))
	if w.Code != http.StatusNotFound {
		t.Errorf("prod mode: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_SetsSecurityAndCORSHeaders(t *testing.T) {
	router, _ := newTestRouter(t, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/neighborhoods", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
