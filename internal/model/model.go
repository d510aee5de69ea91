// Package model はドメインモデルを定義する。
package model

import "time"

// User はBlueSkyで認証されたユーザーのプロフィールを表す。
// IDはBlueSkyのDID（プロバイダー発行の不透明な識別子）で、作成後は不変。
type User struct {
	ID          string
	Handle      string
	DisplayName string
	Avatar      string
	Bio         string
	Location    string
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Neighborhood は近隣コミュニティを表す。
// NameLowerは名前のグローバル一意性を担保するための小文字化コピー。
type Neighborhood struct {
	ID          string
	Name        string
	NameLower   string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	MemberCount int
}

// Membership はユーザーと近隣の多対多の結びつきを表す。
// (NeighborhoodID, UserID) のペアごとに一意。
type Membership struct {
	NeighborhoodID string
	UserID         string
	JoinedAt       time.Time
}

// NeighborhoodDetail は近隣とそのメンバー一覧をまとめたモデル。
// 近隣パーティションへの1回のレンジクエリで取得される。
type NeighborhoodDetail struct {
	Neighborhood Neighborhood
	Members      []Membership
}

// HandshakeState はOAuthログインの往復を紐付ける短命・単回使用のトークン状態を表す。
// TTL超過または消費によって破棄され、永続エンティティではない。
type HandshakeState struct {
	Token          string
	RedirectTarget string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Page はカーソルベースページネーションの1ページを表す。
// NextCursorが空文字列の場合、後続ページは存在しない。
type Page[T any] struct {
	Items      []T
	NextCursor string
}
