// Package auth はBlueSky OAuthによるログインフローとセッショントークンの発行を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/nbhdcity/internal/model"
	"github.com/hitoshi/nbhdcity/internal/repository"
	"github.com/hitoshi/nbhdcity/internal/token"
)

// Identity はIdPから取得したユーザーの識別情報を表す。
type Identity struct {
	DID    string // AT ProtocolのDID。アプリ全体でユーザーの主キーとなる。
	Handle string // 例: alice.bsky.social
}

// IdentityProvider はOAuth認証プロバイダーのインターフェース。
type IdentityProvider interface {
	// AuthorizeURL はIdPの認可URLを生成する。
	AuthorizeURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザーの識別情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*Identity, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	StateTTL time.Duration // ハンドシェイク状態の有効期間
	DevMode  bool          // テストセッション発行を許可するか
}

// LoginResult はログイン完了時の結果。
type LoginResult struct {
	SessionToken   string
	RedirectTarget string
	UserID         string
	Handle         string
}

// Service はOAuthログインフローのビジネスロジックを提供する。
type Service struct {
	provider IdentityProvider
	users    repository.UserRepository
	states   repository.HandshakeStateStore
	tokens   *token.Manager
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	provider IdentityProvider,
	users repository.UserRepository,
	states repository.HandshakeStateStore,
	tokens *token.Manager,
	config ServiceConfig,
) *Service {
	return &Service{
		provider: provider,
		users:    users,
		states:   states,
		tokens:   tokens,
		config:   config,
	}
}

// BeginLogin はハンドシェイク状態を登録し、IdPの認可URLを返す。
// redirectTargetはログイン完了後の遷移先。検証に通らない場合は"/"に落とす。
func (s *Service) BeginLogin(ctx context.Context, redirectTarget string) (string, error) {
	state, err := generateStateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	now := time.Now()
	err = s.states.Put(ctx, &model.HandshakeState{
		Token:          state,
		RedirectTarget: sanitizeRedirectTarget(redirectTarget),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.config.StateTTL),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store handshake state: %w", err)
	}

	return s.provider.AuthorizeURL(state), nil
}

// CompleteLogin はOAuthコールバックを処理する。
// stateの検証（単回使用・期限）、認可コードの交換、ユーザー行のアップサート、
// セッショントークンの発行をこの順で行う。stateが不正な場合は
// コード交換を行わずにINVALID_STATEで打ち切る。
func (s *Service) CompleteLogin(ctx context.Context, stateToken, code string) (*LoginResult, error) {
	state, err := s.states.Consume(ctx, stateToken)
	if err != nil {
		return nil, fmt.Errorf("failed to consume handshake state: %w", err)
	}
	if state == nil {
		return nil, model.NewInvalidStateError()
	}

	identity, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.users.EnsureExists(ctx, identity.DID, identity.Handle); err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	sessionToken, err := s.tokens.Mint(identity.DID)
	if err != nil {
		return nil, fmt.Errorf("failed to mint session token: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", identity.DID),
		slog.String("handle", identity.Handle),
	)

	return &LoginResult{
		SessionToken:   sessionToken,
		RedirectTarget: state.RedirectTarget,
		UserID:         identity.DID,
		Handle:         identity.Handle,
	}, nil
}

// IssueTestSession は開発モード限定で任意ユーザーのセッショントークンを発行する。
// IdPを経由せずにローカルでAPIを叩くための入口で、本番では常に認証エラーになる。
func (s *Service) IssueTestSession(ctx context.Context, userID, handle string) (string, error) {
	if !s.config.DevMode {
		return "", model.NewUnauthenticatedError()
	}
	if userID == "" {
		return "", model.NewValidationError("user_idは必須です")
	}
	if handle == "" {
		handle = userID
	}

	if err := s.users.EnsureExists(ctx, userID, handle); err != nil {
		return "", fmt.Errorf("failed to ensure user: %w", err)
	}

	slog.Warn("test session issued", slog.String("user_id", userID))
	return s.tokens.Mint(userID)
}

// sanitizeRedirectTarget はオープンリダイレクトを防ぐ。
// サイト内の絶対パスのみを許可し、それ以外は"/"に落とす。
func sanitizeRedirectTarget(target string) string {
	if target == "" {
		return "/"
	}
	// "//evil.example"や"/\evil.example"はスキーム相対URLとして解釈されうる
	if !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") ||
		strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

// generateStateToken は暗号的に安全なハンドシェイクトークンを生成する。
func generateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
