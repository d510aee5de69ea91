package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1.0 / 60.0),
		GeneralBurst:    2,
		CreateRate:      rate.Limit(1.0 / 60.0),
		CreateBurst:     1,
		CleanupInterval: time.Hour,
	}
}

func authedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/neighborhoods", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func TestRateLimiter_General_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest("did:plc:alice"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}

	// バーストを超えた3回目は429
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("did:plc:alice"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
}

func TestRateLimiter_LimitsArePerUser(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.CreateMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	// aliceがバーストを使い切る
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("did:plc:alice"))
	if w.Code != http.StatusCreated {
		t.Fatalf("alice status = %d, want %d", w.Code, http.StatusCreated)
	}
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("did:plc:alice"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("alice status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// bobは影響を受けない
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("did:plc:bob"))
	if w.Code != http.StatusCreated {
		t.Errorf("bob status = %d, want %d", w.Code, http.StatusCreated)
	}

	if got := rl.CreateLimiterCount(); got != 2 {
		t.Errorf("CreateLimiterCount = %d, want 2", got)
	}
}

func TestRateLimiter_BucketsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	createHandler := rl.CreateMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	generalHandler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 作成バケットを使い切る
	w := httptest.NewRecorder()
	createHandler.ServeHTTP(w, authedRequest("did:plc:alice"))
	w = httptest.NewRecorder()
	createHandler.ServeHTTP(w, authedRequest("did:plc:alice"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("create status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// API全般バケットはまだ許可される
	w = httptest.NewRecorder()
	generalHandler.ServeHTTP(w, authedRequest("did:plc:alice"))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRateLimiter_UnauthenticatedRequest_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/neighborhoods", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRateLimiter_Cleanup_RemovesStaleEntries(t *testing.T) {
	config := testRateLimiterConfig()
	config.CleanupInterval = 10 * time.Millisecond
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("did:plc:alice"))

	if got := rl.GeneralLimiterCount(); got != 1 {
		t.Fatalf("GeneralLimiterCount = %d, want 1", got)
	}

	// TTL（CleanupInterval*2）経過後にエントリが削除される
	rl.generalMu.Lock()
	rl.generalLimiters["did:plc:alice"].lastAccess = time.Now().Add(-time.Minute)
	rl.generalMu.Unlock()

	rl.cleanup()

	if got := rl.GeneralLimiterCount(); got != 0 {
		t.Errorf("GeneralLimiterCount = %d, want 0", got)
	}
}

func TestNewRateLimiterConfig_ConvertsPerMinuteRates(t *testing.T) {
	config := NewRateLimiterConfig(120, 10)

	if config.GeneralRate != rate.Limit(2.0) {
		t.Errorf("GeneralRate = %v, want %v", config.GeneralRate, rate.Limit(2.0))
	}
	if config.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", config.GeneralBurst)
	}
	if config.CreateBurst != 10 {
		t.Errorf("CreateBurst = %d, want 10", config.CreateBurst)
	}
}
