// Package keys は単一テーブル設計のキー構成を定義する。
//
// 全エンティティは1つのDynamoDBテーブルに格納され、PKのプレフィックスで
// 種別を判別する。副次アクセスパターンはGSI1（entity_type + created_at）と
// GSI3（user_id + joined_at）、および名前一意性の予約行で賄う。
// 副作用を持たない純粋なマッピングのみを提供し、リポジトリ層からのみ参照される。
package keys

import "strings"

// テーブルとインデックスの物理名。
const (
	// IndexByEntityType は作成日時順の全件リスト用GSI（entity_type HASH + created_at RANGE）。
	IndexByEntityType = "GSI1"
	// IndexByUser はユーザーの所属一覧用GSI（user_id HASH + joined_at RANGE）。
	IndexByUser = "GSI3"
)

// 属性名。GSIのキー属性はアイテム本体の属性を兼ねる。
const (
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrEntityType = "entity_type"
	AttrCreatedAt  = "created_at"
	AttrUserID     = "user_id"
	AttrJoinedAt   = "joined_at"
	AttrTTL        = "ttl"
)

// entity_type属性の値。GSI1のパーティションキーとして使用する。
const (
	EntityTypeNeighborhood = "neighborhood"
	EntityTypeMembership   = "membership"
	EntityTypeUser         = "user"
)

// キープレフィックスと固定ソートキー。
const (
	neighborhoodPKPrefix = "NBHD#"
	namePKPrefix         = "NBHDNAME#"
	userPKPrefix         = "USER#"
	statePKPrefix        = "STATE#"
	memberSKPrefix       = "MEMBER#"

	// MetadataSK は近隣メタデータ行のソートキー。
	MetadataSK = "METADATA"
	// ProfileSK はユーザープロフィール行のソートキー。
	ProfileSK = "PROFILE"
	// NameSK は名前予約行のソートキー。
	NameSK = "NAME"
	// StateSK はOAuthハンドシェイク状態行のソートキー。
	StateSK = "STATE"
)

// NeighborhoodPK は近隣パーティションのキーを返す。
// メタデータ行とメンバー行が同一パーティションを共有する。
func NeighborhoodPK(nbhdID string) string {
	return neighborhoodPKPrefix + nbhdID
}

// NamePK は近隣名の一意性予約行のパーティションキーを返す。
// 名前は小文字化して比較するため、必ず小文字化した上でキーに埋め込む。
func NamePK(name string) string {
	return namePKPrefix + strings.ToLower(name)
}

// NameLower は一意性比較に使う正規化済みの名前を返す。
func NameLower(name string) string {
	return strings.ToLower(name)
}

// MemberSK は近隣パーティション内のメンバー行のソートキーを返す。
func MemberSK(userID string) string {
	return memberSKPrefix + userID
}

// UserPK はユーザープロフィール行のパーティションキーを返す。
func UserPK(userID string) string {
	return userPKPrefix + userID
}

// StatePK はOAuthハンドシェイク状態行のパーティションキーを返す。
func StatePK(token string) string {
	return statePKPrefix + token
}

// IsMemberSK はソートキーがメンバー行のものかを判定する。
func IsMemberSK(sk string) bool {
	return strings.HasPrefix(sk, memberSKPrefix)
}

// UserIDFromMemberSK はメンバー行のソートキーからユーザーIDを取り出す。
// メンバー行のソートキーでない場合は空文字列を返す。
func UserIDFromMemberSK(sk string) string {
	if !IsMemberSK(sk) {
		return ""
	}
	return strings.TrimPrefix(sk, memberSKPrefix)
}

// NeighborhoodIDFromPK は近隣パーティションキーから近隣IDを取り出す。
// 近隣のキーでない場合は空文字列を返す。
func NeighborhoodIDFromPK(pk string) string {
	if !strings.HasPrefix(pk, neighborhoodPKPrefix) {
		return ""
	}
	return strings.TrimPrefix(pk, neighborhoodPKPrefix)
}
