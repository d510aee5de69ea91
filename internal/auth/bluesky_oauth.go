package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/nbhdcity/internal/model"
)

const (
	defaultBlueskyAuthURL    = "https://bsky.social/oauth/authorize"
	defaultBlueskyTokenURL   = "https://bsky.social/oauth/token"
	defaultBlueskySessionURL = "https://bsky.social/xrpc/com.atproto.server.getSession"
)

// BlueskyOAuthConfig はBlueSky OAuthプロバイダーの設定。
type BlueskyOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL    string
	TokenURL   string
	SessionURL string

	// IdPへのリクエストに使用するHTTPクライアント。
	// 省略時はhttp.DefaultClient。
	HTTPClient *http.Client
}

// BlueskyOAuthProvider はBlueSky（AT Protocol）のOAuth 2.0認証を提供する。
type BlueskyOAuthProvider struct {
	config BlueskyOAuthConfig
}

// NewBlueskyOAuthProvider はBlueskyOAuthProviderを生成する。
func NewBlueskyOAuthProvider(config BlueskyOAuthConfig) *BlueskyOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultBlueskyAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultBlueskyTokenURL
	}
	if config.SessionURL == "" {
		config.SessionURL = defaultBlueskySessionURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &BlueskyOAuthProvider{config: config}
}

// AuthorizeURL はBlueSkyの認可URLを生成する。
func (p *BlueskyOAuthProvider) AuthorizeURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"atproto transition:generic"},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// blueskyTokenResponse はトークンエンドポイントのレスポンス。
// subにはユーザーのDIDが入る。
type blueskyTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Sub         string `json:"sub"`
}

// blueskySession はcom.atproto.server.getSessionのレスポンス。
type blueskySession struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザーのDIDとハンドルを取得する。
// IdP側の失敗はすべてPROVIDER_EXCHANGE_FAILEDに分類される。
func (p *BlueskyOAuthProvider) ExchangeCode(ctx context.Context, code string) (*Identity, error) {
	tokenResp, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, model.NewProviderExchangeFailedError(err.Error())
	}

	session, err := p.fetchSession(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, model.NewProviderExchangeFailedError(err.Error())
	}

	return &Identity{DID: session.DID, Handle: session.Handle}, nil
}

func (p *BlueskyOAuthProvider) exchangeToken(ctx context.Context, code string) (*blueskyTokenResponse, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp blueskyTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &tokenResp, nil
}

func (p *BlueskyOAuthProvider) fetchSession(ctx context.Context, accessToken string) (*blueskySession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.SessionURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read session response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var session blueskySession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	if session.DID == "" {
		return nil, fmt.Errorf("empty did in session response")
	}

	return &session, nil
}

// compile-time interface check
var _ IdentityProvider = (*BlueskyOAuthProvider)(nil)
