// Package token はセッショントークンの発行と検証を提供する。
//
// トークンはHS256署名のJWTで、クレームはsub（ユーザーDID）、iat、expのみ。
// サーバー側にセッション状態は持たず、署名検証だけで認証が完結する。
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/nbhdcity/internal/model"
)

// Manager はセッショントークンの発行・検証を行う。
type Manager struct {
	secret []byte
	maxAge time.Duration
}

// NewManager はManagerを生成する。maxAgeは発行するトークンの有効期間。
func NewManager(secret string, maxAge time.Duration) *Manager {
	return &Manager{secret: []byte(secret), maxAge: maxAge}
}

// Mint はユーザーIDを主体とするセッショントークンを発行する。
func (m *Manager) Mint(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.secret)
}

// Verify はトークンを検証してユーザーIDを返す。
// 署名不正・期限切れ・署名方式不一致・subject欠落はすべてUNAUTHENTICATED。
func (m *Manager) Verify(tokenString string) (string, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !tok.Valid {
		return "", model.NewUnauthenticatedError()
	}

	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", model.NewUnauthenticatedError()
	}
	return claims.Subject, nil
}
