package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/nbhdcity/internal/auth"
	"github.com/hitoshi/nbhdcity/internal/metrics"
	"github.com/hitoshi/nbhdcity/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectTarget string) (string, error)
	CompleteLogin(ctx context.Context, stateToken, code string) (*auth.LoginResult, error)
	IssueTestSession(ctx context.Context, userID, handle string) (string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL string // ログイン完了後の遷移先のベースURL
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	config    AuthHandlerConfig
	collector metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{
		service:   service,
		config:    config,
		collector: collector,
	}
}

// Login はBlueSky OAuthフローを開始する。
// GET /auth/login?redirect=/some/path
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	authorizeURL, err := h.service.BeginLogin(r.Context(), r.URL.Query().Get("redirect"))
	if err != nil {
		slog.Error("failed to begin login", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	http.Redirect(w, r, authorizeURL, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// 成功時はフロントエンドにセッショントークンを載せてリダイレクトし、
// 失敗時はエラーコードを載せてリダイレクトする。
// GET /auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		h.collector.RecordLoginOutcome(metrics.LoginOutcomeInvalidState)
		h.redirectWithError(w, r, model.ErrCodeInvalidState)
		return
	}

	result, err := h.service.CompleteLogin(r.Context(), state, code)
	if err != nil {
		h.recordLoginFailure(err)
		slog.Warn("oauth callback failed", slog.String("error", err.Error()))
		h.redirectWithError(w, r, errorCode(err))
		return
	}

	h.collector.RecordLoginOutcome(metrics.LoginOutcomeSuccess)

	// フロントエンドにトークンと遷移先を渡す
	target, err := url.Parse(h.config.FrontendURL + "/auth/success")
	if err != nil {
		writeError(w, err)
		return
	}
	q := target.Query()
	q.Set("token", result.SessionToken)
	q.Set("redirect", result.RedirectTarget)
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusTemporaryRedirect)
}

// Logout はJWTベースのためサーバー側の状態を持たない。
// クライアントがトークンを破棄することでログアウトが完了する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// TestSession は開発モード限定でセッショントークンを直接発行する。
// POST /auth/test-session {user_id, handle}
func (h *AuthHandler) TestSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Handle string `json:"handle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	token, err := h.service.IssueTestSession(r.Context(), req.UserID, req.Handle)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}{AccessToken: token, TokenType: "bearer"})
}

// redirectWithError はフロントエンドのエラーページにリダイレクトする。
func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.config.FrontendURL+"/auth/error?code="+url.QueryEscape(code), http.StatusTemporaryRedirect)
}

// recordLoginFailure はログイン失敗の種別をメトリクスに記録する。
func (h *AuthHandler) recordLoginFailure(err error) {
	switch errorCode(err) {
	case model.ErrCodeInvalidState:
		h.collector.RecordLoginOutcome(metrics.LoginOutcomeInvalidState)
	default:
		h.collector.RecordLoginOutcome(metrics.LoginOutcomeExchangeFailed)
	}
}

// errorCode はエラーから安定したエラーコードを取り出す。
func errorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return "INTERNAL_ERROR"
}
